package classifier

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/spendcat/internal/category"
)

// ClassifyUnclassified runs one bulk classification round over all
// currently unclassified names and returns the number of records updated.
//
// Pipeline per round:
//  1. fetch distinct unclassified names ranked by spend magnitude; when
//     maxNames > 0 only the top slice is processed;
//  2. peel off names the rule engine resolves for free;
//  3. cluster the remainder by embedding similarity and elect one
//     representative per cluster;
//  4. batch-classify the representatives via the oracle;
//  5. copy each representative's result onto its cluster members;
//  6. persist everything in one mapping batch and one embedding batch;
//  7. stamp resolved categories onto the underlying records.
//
// Returns 0 when nothing was unclassified or nothing could be resolved.
func (s *Service) ClassifyUnclassified(ctx context.Context, maxNames int) (int, error) {
	runID := uuid.New().String()[:8]
	logger := s.logger.With(zap.String("run", runID))

	ctx, span := tracer.Start(ctx, "classifier.bulk_round")
	defer span.End()

	stats, err := s.records.UnclassifiedNames(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching unclassified names: %w", err)
	}
	if len(stats) == 0 {
		return 0, nil
	}

	// Importance-prioritized partial processing: biggest spend first.
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Magnitude > stats[j].Magnitude
	})
	if maxNames > 0 && len(stats) > maxNames {
		stats = stats[:maxNames]
	}

	names := make([]string, 0, len(stats))
	for _, st := range stats {
		names = append(names, st.Name)
	}
	span.SetAttributes(attribute.Int("names", len(names)))

	// Step 2: free rule-engine pre-classification.
	resolved := make(map[string]category.Category, len(names))
	sources := make(map[string]category.Source, len(names))
	var remaining []string
	for _, name := range names {
		if cat, ok := s.rules.Match(name, ""); ok {
			resolved[name] = cat
			sources[name] = category.SourceLocal
			continue
		}
		remaining = append(remaining, name)
	}
	logger.Debug("rule pre-classification",
		zap.Int("matched", len(resolved)),
		zap.Int("remaining", len(remaining)))

	// Steps 3-5: group, ask the oracle about representatives only, and
	// fan the answers back out over cluster members.
	var vectors map[string][]float32
	if len(remaining) > 0 {
		var groups []category.Group
		groups, vectors = s.grouper.Group(ctx, remaining)

		representatives := make([]string, 0, len(groups))
		for _, g := range groups {
			representatives = append(representatives, g.Representative)
		}
		span.SetAttributes(attribute.Int("groups", len(groups)))

		oracleResults, err := s.oracle.Classify(ctx, representatives)
		if err != nil {
			// Context cancellation; whatever resolved before it still
			// counts below.
			logger.Warn("oracle classification interrupted", zap.Error(err))
		}

		for _, g := range groups {
			cat, ok := oracleResults[g.Representative]
			if !ok {
				continue
			}
			for _, member := range g.Members {
				resolved[member] = cat
				sources[member] = category.SourceOracle
			}
		}
	}

	if len(resolved) == 0 {
		logger.Info("bulk round produced no classifications")
		return 0, nil
	}

	// Step 6: single batched persist per store. All oracle calls have
	// returned by now, so a round never leaves interleaved partial state.
	s.persistBulkResults(ctx, logger, resolved, sources, vectors)

	// Step 7: stamp categories onto the underlying records.
	updated := 0
	for name, cat := range resolved {
		n, err := s.records.UpdateCategory(ctx, name, cat)
		if err != nil {
			logger.Warn("record update failed",
				zap.String("name", name), zap.Error(err))
			continue
		}
		updated += n
	}

	logger.Info("bulk round complete",
		zap.Int("names", len(names)),
		zap.Int("resolved", len(resolved)),
		zap.Int("records_updated", updated))
	span.SetAttributes(attribute.Int("updated", updated))
	return updated, nil
}

// persistBulkResults writes the round's mappings and embeddings, each in a
// single batch. Persistence failures are logged and leave the store in its
// prior state; the affected names simply stay eligible for a later round.
func (s *Service) persistBulkResults(
	ctx context.Context,
	logger *zap.Logger,
	resolved map[string]category.Category,
	sources map[string]category.Source,
	vectors map[string][]float32,
) {
	mappings := make([]category.Mapping, 0, len(resolved))
	var records []category.StoreEmbedding
	for name, cat := range resolved {
		source := sources[name]
		mappings = append(mappings, category.Mapping{
			Name:     name,
			Category: cat,
			Source:   source,
		})
		if vec, ok := vectors[name]; ok {
			records = append(records, category.StoreEmbedding{
				Name:       name,
				Category:   cat,
				Vector:     vec,
				Source:     source,
				Confidence: category.ConfidenceOracle,
			})
		}
	}

	if err := s.mappings.UpsertMany(ctx, mappings); err != nil {
		logger.Warn("bulk mapping persist failed", zap.Error(err))
	}
	if len(records) > 0 {
		if err := s.embeddings.UpsertMany(ctx, records); err != nil {
			logger.Warn("bulk embedding persist failed", zap.Error(err))
		}
		s.index.Invalidate()
	}
}
