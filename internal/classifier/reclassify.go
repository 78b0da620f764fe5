package classifier

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/spendcat/internal/category"
)

// ReclassifyLowConfidence re-runs the oracle over every embedding record
// whose confidence sits below threshold and applies the fresh answers to
// the mapping store, the embedding records, and the underlying transaction
// records. Returns the number of names reclassified.
//
// No semantic grouping here: these are already individual low-trust
// entries, so each name is asked about directly. Names whose mapping is
// user-sourced are excluded entirely. A fresh oracle answer resets
// confidence to the oracle default.
func (s *Service) ReclassifyLowConfidence(ctx context.Context, threshold float64) (int, error) {
	records, err := s.embeddings.BelowConfidence(ctx, threshold)
	if err != nil {
		return 0, fmt.Errorf("fetching low-confidence records: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	names := make([]string, 0, len(records))
	for _, rec := range records {
		// A stale low-confidence record can sit behind a manual correction
		// in the mapping tier; that name belongs to the user, not the
		// oracle.
		if s.hasUserMapping(ctx, rec.Name) {
			continue
		}
		names = append(names, rec.Name)
	}
	if len(names) == 0 {
		return 0, nil
	}

	results, err := s.oracle.Classify(ctx, names)
	if err != nil {
		return 0, fmt.Errorf("reclassifying %d names: %w", len(names), err)
	}

	changed := 0
	for name, cat := range results {
		if !cat.IsClassified() {
			continue
		}

		m := category.Mapping{Name: name, Category: cat, Source: category.SourceOracle}
		if err := s.mappings.Upsert(ctx, m); err != nil {
			s.logger.Warn("reclassification mapping write failed",
				zap.String("name", name), zap.Error(err))
			continue
		}
		if _, err := s.embeddings.UpdateCategory(ctx, name, cat,
			category.SourceOracle, category.ConfidenceOracle, false); err != nil {
			s.logger.Warn("reclassification embedding update failed",
				zap.String("name", name), zap.Error(err))
		}
		if _, err := s.records.UpdateCategory(ctx, name, cat); err != nil {
			s.logger.Warn("reclassification record update failed",
				zap.String("name", name), zap.Error(err))
		}
		changed++
	}

	if changed > 0 {
		s.index.Invalidate()
	}

	s.logger.Info("low-confidence reclassification complete",
		zap.Int("candidates", len(records)),
		zap.Int("reclassified", changed))
	return changed, nil
}
