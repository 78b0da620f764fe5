package classifier

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/spendcat/internal/category"
	"github.com/fyrsmithlabs/spendcat/internal/simindex"
	"github.com/fyrsmithlabs/spendcat/internal/store"
)

// GetCategory classifies a single merchant name through the tier chain.
// contextText is optional surrounding message text consulted by the rule
// engine only.
//
// Embedding or index failures never surface: they are logged and the lookup
// falls through to the next tier. The worst case answer is Unclassified,
// which a later bulk round resolves.
func (s *Service) GetCategory(ctx context.Context, name, contextText string) (category.Category, error) {
	return s.GetCategoryWithEmbedding(ctx, name, contextText, nil)
}

// GetCategoryWithEmbedding is GetCategory with a caller-supplied embedding
// vector for the name, sparing the Tier 1.5 embedding call when the caller
// already has one. Pass nil to let the service embed.
func (s *Service) GetCategoryWithEmbedding(ctx context.Context, name, contextText string, vector []float32) (category.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return category.Unclassified, nil
	}

	ctx, span := tracer.Start(ctx, "classifier.get_category")
	defer span.End()

	// Cache mode: an active bulk session answers from memory only.
	if session := s.activeSession(); session != nil {
		cat := s.cacheLookup(session, name, contextText)
		span.SetAttributes(attribute.String("tier", "bulk_cache"))
		return cat, nil
	}

	// Tier 1: exact, then partial mapping match. Zero external cost.
	if m, err := s.mappings.GetExact(ctx, name); err == nil {
		tierHits.WithLabelValues("exact").Inc()
		span.SetAttributes(attribute.String("tier", "exact"))
		return m.Category, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("exact mapping lookup failed", zap.String("name", name), zap.Error(err))
	}

	if m, err := s.mappings.GetPartial(ctx, name); err == nil {
		tierHits.WithLabelValues("partial").Inc()
		span.SetAttributes(attribute.String("tier", "partial"))
		return m.Category, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("partial mapping lookup failed", zap.String("name", name), zap.Error(err))
	}

	// Tier 1.5: similarity index. Failures fall through to the rules.
	if cat, tier, ok := s.lookupByVector(ctx, name, vector); ok {
		tierHits.WithLabelValues(tier).Inc()
		span.SetAttributes(attribute.String("tier", tier))
		return cat, nil
	}

	// Tier 2: deterministic keyword rules.
	if cat, ok := s.rules.Match(name, contextText); ok {
		tierHits.WithLabelValues("rules").Inc()
		span.SetAttributes(attribute.String("tier", "rules"))
		s.promote(ctx, name, cat, category.SourceLocal)
		return cat, nil
	}

	// Tier 3 is deferred: the oracle is only consulted by the bulk
	// pipeline, never synchronously.
	tierHits.WithLabelValues("unclassified").Inc()
	span.SetAttributes(attribute.String("tier", "unclassified"))
	return category.Unclassified, nil
}

// lookupByVector runs Tier 1.5a (best match) and 1.5b (group vote).
// Returns the resolved category, the tier label, and whether a tier hit.
func (s *Service) lookupByVector(ctx context.Context, name string, vector []float32) (category.Category, string, bool) {
	if vector == nil {
		var err error
		vector, err = s.embedder.EmbedQuery(ctx, name)
		if err != nil {
			s.logger.Debug("embedding failed, skipping vector tiers",
				zap.String("name", name), zap.Error(err))
			return "", "", false
		}
	}

	// Tier 1.5a: single best neighbor above the auto-apply bar.
	best, err := s.index.FindBest(ctx, vector, s.thresholds.AutoApply)
	if err != nil {
		s.logger.Warn("similarity lookup failed", zap.String("name", name), zap.Error(err))
		return "", "", false
	}
	if best != nil && best.Record.Category.IsClassified() {
		s.promote(ctx, name, best.Record.Category, category.SourceVector)
		s.recordMatch(ctx, best.Record.Name)
		return best.Record.Category, "vector_best", true
	}

	// Tier 1.5b: majority vote over the looser neighbor group.
	group, err := s.index.FindGroup(ctx, vector, s.thresholds.Group)
	if err != nil {
		s.logger.Warn("similarity group lookup failed", zap.String("name", name), zap.Error(err))
		return "", "", false
	}
	if cat, ok := majorityVote(group); ok {
		s.promote(ctx, name, cat, category.SourceVector)
		for _, match := range group {
			s.recordMatch(ctx, match.Record.Name)
		}
		return cat, "vector_group", true
	}

	return "", "", false
}

// majorityVote picks the most common classified category among matches.
// Ties break deterministically on the lexicographically smallest category
// name, so the vote never depends on map iteration order.
func majorityVote(matches []simindex.Match) (category.Category, bool) {
	votes := make(map[category.Category]int)
	for _, m := range matches {
		if m.Record.Category.IsClassified() {
			votes[m.Record.Category]++
		}
	}
	if len(votes) == 0 {
		return "", false
	}

	cats := make([]category.Category, 0, len(votes))
	for cat := range votes {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool {
		if votes[cats[i]] != votes[cats[j]] {
			return votes[cats[i]] > votes[cats[j]]
		}
		return cats[i] < cats[j]
	})
	return cats[0], true
}

// promote writes the result into the mapping store so the next lookup for
// this name is a Tier 1 exact hit. Promotion failures are logged, never
// surfaced: the classification already succeeded.
func (s *Service) promote(ctx context.Context, name string, cat category.Category, source category.Source) {
	m := category.Mapping{Name: name, Category: cat, Source: source}
	if err := s.mappings.Upsert(ctx, m); err != nil {
		s.logger.Warn("cache promotion failed",
			zap.String("name", name),
			zap.String("category", string(cat)),
			zap.Error(err))
	}
}

// hasUserMapping reports whether name carries a manually corrected mapping.
// A mapping read failure counts as a user mapping so an unreadable row is
// never overwritten by a machine-derived write.
func (s *Service) hasUserMapping(ctx context.Context, name string) bool {
	m, err := s.mappings.GetExact(ctx, name)
	if err != nil {
		return !errors.Is(err, store.ErrNotFound)
	}
	return m.Source == category.SourceUser
}

// recordMatch bumps the matched neighbor's observability counter.
func (s *Service) recordMatch(ctx context.Context, name string) {
	if err := s.embeddings.IncrementMatchCount(ctx, name); err != nil {
		s.logger.Debug("match count increment failed", zap.String("name", name), zap.Error(err))
	}
}
