package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/spendcat/internal/category"
	"github.com/fyrsmithlabs/spendcat/internal/store"
)

// Scope selects how far a manual correction reaches.
type Scope string

const (
	// ScopeRecord corrects only the record the user touched; the caller
	// updates that record itself.
	ScopeRecord Scope = "record"

	// ScopeAllRecords corrects every record sharing the name.
	ScopeAllRecords Scope = "all"
)

// SetCategory applies a manual correction for a name.
//
// The mapping write and record updates are mandatory: their failure is the
// caller's error. The embedding upsert and propagation onto similar names
// that follow are best-effort self-learning: failures are logged and never
// surfaced, since the user's correction has already landed.
func (s *Service) SetCategory(ctx context.Context, name string, cat category.Category, scope Scope) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return category.ErrEmptyName
	}
	if !cat.IsClassified() {
		return category.ErrEmptyCategory
	}

	ctx, span := tracer.Start(ctx, "classifier.set_category")
	defer span.End()

	m := category.Mapping{Name: name, Category: cat, Source: category.SourceUser}
	if err := s.mappings.Upsert(ctx, m); err != nil {
		return fmt.Errorf("writing user mapping: %w", err)
	}

	if scope == ScopeAllRecords {
		if _, err := s.records.UpdateCategory(ctx, name, cat); err != nil {
			return fmt.Errorf("updating records for %s: %w", name, err)
		}
	}

	// Derived caches no longer reflect the corrected name.
	s.index.Invalidate()

	// Best-effort self-learning from here on.
	s.learnFromCorrection(ctx, name, cat)
	return nil
}

// learnFromCorrection upserts a fully-trusted embedding record for the
// corrected name and propagates the category onto similar names.
func (s *Service) learnFromCorrection(ctx context.Context, name string, cat category.Category) {
	if err := s.upsertUserEmbedding(ctx, name, cat); err != nil {
		s.logger.Warn("embedding upsert after correction failed",
			zap.String("name", name), zap.Error(err))
	}

	propagated, err := s.Propagate(ctx, name, cat, category.ConfidenceUser)
	if err != nil {
		s.logger.Warn("propagation after correction failed",
			zap.String("name", name), zap.Error(err))
		return
	}
	if propagated > 0 {
		s.logger.Info("correction propagated to similar names",
			zap.String("name", name),
			zap.String("category", string(cat)),
			zap.Int("propagated", propagated))
	}
}

// upsertUserEmbedding writes a confidence-1.0 user-sourced embedding record
// for name. When a record already exists, only its category and confidence
// change: no redundant embedding regeneration. When generation for the name
// is already in flight elsewhere, the upsert is skipped.
func (s *Service) upsertUserEmbedding(ctx context.Context, name string, cat category.Category) error {
	existing, err := s.embeddings.GetByName(ctx, name)
	switch {
	case err == nil:
		existing.Category = cat
		existing.Source = category.SourceUser
		existing.Confidence = category.ConfidenceUser
		if err := s.embeddings.Upsert(ctx, existing); err != nil {
			return err
		}
	case errors.Is(err, store.ErrNotFound):
		if !s.inflight.TryClaim(name) {
			s.logger.Debug("embedding generation already in flight", zap.String("name", name))
			return nil
		}
		defer s.inflight.Release(name)

		vector, err := s.embedder.EmbedQuery(ctx, name)
		if err != nil {
			return fmt.Errorf("embedding %s: %w", name, err)
		}
		record := category.StoreEmbedding{
			Name:       name,
			Category:   cat,
			Vector:     vector,
			Source:     category.SourceUser,
			Confidence: category.ConfidenceUser,
		}
		if err := s.embeddings.Upsert(ctx, record); err != nil {
			return err
		}
	default:
		return err
	}

	s.index.Invalidate()
	return nil
}
