package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/spendcat/internal/category"
)

// ErrSessionActive is returned when a bulk cache is initialized while a
// previous one has not been cleared.
var ErrSessionActive = errors.New("bulk cache already active")

// bulkCache is the in-memory classification cache used during high-volume
// ingestion. It is scoped to exactly one bulk run (init, use, flush, clear)
// and is not safe for concurrent writers: the single ingestion worker owns
// it for the duration of the run.
//
// Lookups here trade recall for throughput: no embedding or similarity
// calls, only exact match, substring match, and the rule engine.
type bulkCache struct {
	// exact maps name to resolved category for O(1) repeat lookups.
	exact map[string]category.Category

	// pending buffers mappings discovered during the run for one batched
	// flush to the mapping store.
	pending []category.Mapping
}

// InitBulkCache acquires the bulk-operation cache, preloading every
// persisted mapping into memory. Returns ErrSessionActive if a previous
// session was not cleared.
func (s *Service) InitBulkCache(ctx context.Context) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if s.session != nil {
		return ErrSessionActive
	}

	mappings, err := s.mappings.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("preloading mappings: %w", err)
	}

	cache := &bulkCache{exact: make(map[string]category.Category, len(mappings))}
	for _, m := range mappings {
		cache.exact[m.Name] = m.Category
	}
	s.session = cache

	s.logger.Info("bulk cache initialized", zap.Int("preloaded", len(mappings)))
	return nil
}

// FlushPendingMappings writes the buffered mappings to the persistent
// store in one batch and clears the buffer. No-op without an active cache.
func (s *Service) FlushPendingMappings(ctx context.Context) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if s.session == nil || len(s.session.pending) == 0 {
		return nil
	}

	pending := s.session.pending
	if err := s.mappings.UpsertMany(ctx, pending); err != nil {
		// Buffer kept for a later flush attempt.
		return fmt.Errorf("flushing %d pending mappings: %w", len(pending), err)
	}
	s.session.pending = nil

	s.logger.Info("pending mappings flushed", zap.Int("count", len(pending)))
	return nil
}

// ClearBulkCache releases the bulk cache. Unflushed pending mappings are
// dropped; callers flush first.
func (s *Service) ClearBulkCache() {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if s.session != nil && len(s.session.pending) > 0 {
		s.logger.Warn("bulk cache cleared with unflushed mappings",
			zap.Int("dropped", len(s.session.pending)))
	}
	s.session = nil
}

// activeSession returns the live bulk cache, or nil outside a bulk run.
func (s *Service) activeSession() *bulkCache {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	return s.session
}

// lookup resolves a name from the cache alone: exact match, then substring
// match (promoted to an exact entry for O(1) future lookups within this
// run). Misses return Unclassified.
func (c *bulkCache) lookup(name string) category.Category {
	if cat, ok := c.exact[name]; ok {
		return cat
	}

	lower := strings.ToLower(name)
	for known, cat := range c.exact {
		if len(known) < 2 {
			continue
		}
		knownLower := strings.ToLower(known)
		if strings.Contains(lower, knownLower) || strings.Contains(knownLower, lower) {
			// Promote so the next lookup of this exact name is O(1).
			c.exact[name] = cat
			return cat
		}
	}

	return category.Unclassified
}

// cacheLookup extends bulkCache.lookup with the rule engine, buffering rule
// hits for the batched flush. This is the path GetCategory takes in cache
// mode.
func (s *Service) cacheLookup(c *bulkCache, name, contextText string) category.Category {
	if cat := c.lookup(name); cat.IsClassified() {
		return cat
	}

	if cat, ok := s.rules.Match(name, contextText); ok {
		c.exact[name] = cat
		c.pending = append(c.pending, category.Mapping{
			Name:     name,
			Category: cat,
			Source:   category.SourceLocal,
		})
		return cat
	}

	return category.Unclassified
}
