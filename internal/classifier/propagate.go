package classifier

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/spendcat/internal/category"
	"github.com/fyrsmithlabs/spendcat/internal/store"
)

// Propagate copies a classification from name onto sufficiently similar
// neighbors and returns how many were changed.
//
// Guards, in order:
//   - confidence below MinPropagationConfidence propagates nothing;
//   - a neighbor already carrying the category is skipped;
//   - a neighbor whose similarity×confidence falls below the gate is
//     skipped;
//   - a neighbor whose embedding record or mapping is user-sourced is
//     never overwritten.
func (s *Service) Propagate(ctx context.Context, name string, cat category.Category, confidence float64) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" || !cat.IsClassified() {
		return 0, nil
	}
	if confidence < s.thresholds.MinPropagationConfidence {
		return 0, nil
	}

	ctx, span := tracer.Start(ctx, "classifier.propagate")
	defer span.End()
	span.SetAttributes(
		attribute.String("name", name),
		attribute.Float64("confidence", confidence),
	)

	vector, err := s.vectorFor(ctx, name)
	if err != nil {
		// Propagation is opportunistic: no embedding, no propagation.
		s.logger.Debug("propagation skipped, no embedding",
			zap.String("name", name), zap.Error(err))
		return 0, nil
	}

	neighbors, err := s.index.FindGroup(ctx, vector, s.thresholds.Propagate)
	if err != nil {
		s.logger.Warn("propagation neighbor lookup failed",
			zap.String("name", name), zap.Error(err))
		return 0, nil
	}

	changed := 0
	for _, neighbor := range neighbors {
		rec := neighbor.Record
		if rec.Name == name {
			continue
		}
		if rec.Category == cat {
			continue
		}
		if neighbor.Similarity*confidence < s.thresholds.MinPropagationConfidence {
			continue
		}
		if rec.Source == category.SourceUser {
			continue
		}
		// A manual correction can live only in the mapping tier when the
		// best-effort embedding write behind it never landed.
		if s.hasUserMapping(ctx, rec.Name) {
			continue
		}

		// Propagated trust decays with distance from the origin.
		propagatedConfidence := neighbor.Similarity * confidence

		// skipUser guards again at the store level against a concurrent
		// manual correction between the snapshot read and this write.
		updated, err := s.embeddings.UpdateCategory(ctx, rec.Name, cat,
			category.SourcePropagated, propagatedConfidence, true)
		if err != nil {
			s.logger.Warn("propagation update failed",
				zap.String("neighbor", rec.Name), zap.Error(err))
			continue
		}
		if !updated {
			continue
		}

		s.promote(ctx, rec.Name, cat, category.SourcePropagated)
		changed++
	}

	if changed > 0 {
		s.index.Invalidate()
		propagationTotal.Add(float64(changed))
	}

	span.SetAttributes(attribute.Int("propagated", changed))
	return changed, nil
}

// vectorFor returns the stored embedding vector for name, generating one
// when no record exists yet.
func (s *Service) vectorFor(ctx context.Context, name string) ([]float32, error) {
	rec, err := s.embeddings.GetByName(ctx, name)
	if err == nil && len(rec.Vector) > 0 {
		return rec.Vector, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return s.embedder.EmbedQuery(ctx, name)
}
