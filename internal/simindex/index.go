// Package simindex holds an in-memory snapshot of all known store
// embeddings and answers cosine-similarity queries against it.
//
// The snapshot is rebuilt lazily on first access after invalidation and is
// replaced wholesale, never mutated in place: readers holding an old
// snapshot see a consistent, if stale, view. Search is exact O(n) over all
// records; the data set (one record per known merchant name) stays small
// enough that approximate indexing would buy nothing.
package simindex

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/spendcat/internal/category"
)

// Source supplies the full embedding record set for snapshot builds.
type Source interface {
	GetAll(ctx context.Context) ([]category.StoreEmbedding, error)
}

// Match is one similarity query result.
type Match struct {
	// Record is the matched embedding record.
	Record category.StoreEmbedding

	// Similarity is the cosine similarity to the query vector, in [-1, 1].
	Similarity float64
}

// snapshot is an immutable view of the record set with precomputed norms.
type snapshot struct {
	records []category.StoreEmbedding
	norms   []float64
}

// Index answers nearest-neighbor and threshold-group queries over all known
// store embeddings.
type Index struct {
	source Source
	logger *zap.Logger

	// rebuildMu serializes snapshot rebuilds; readers never block on it.
	rebuildMu sync.Mutex
	snapshot  atomic.Pointer[snapshot]
}

// New creates an index over the given record source. The first query
// triggers a snapshot build.
func New(source Source, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		source: source,
		logger: logger.Named("simindex"),
	}
}

// Invalidate drops the current snapshot. The next query rebuilds it from
// the source. Call after any embedding write.
func (i *Index) Invalidate() {
	i.snapshot.Store(nil)
}

// Len returns the number of records in the current snapshot, building it
// if needed.
func (i *Index) Len(ctx context.Context) (int, error) {
	snap, err := i.current(ctx)
	if err != nil {
		return 0, err
	}
	return len(snap.records), nil
}

// current returns the live snapshot, rebuilding it when invalidated.
func (i *Index) current(ctx context.Context) (*snapshot, error) {
	if snap := i.snapshot.Load(); snap != nil {
		return snap, nil
	}

	i.rebuildMu.Lock()
	defer i.rebuildMu.Unlock()

	// Another caller may have rebuilt while we waited.
	if snap := i.snapshot.Load(); snap != nil {
		return snap, nil
	}

	records, err := i.source.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading embedding records: %w", err)
	}

	snap := &snapshot{
		records: records,
		norms:   make([]float64, len(records)),
	}
	for idx, rec := range records {
		snap.norms[idx] = norm(rec.Vector)
	}
	i.snapshot.Store(snap)

	i.logger.Debug("similarity snapshot rebuilt", zap.Int("records", len(records)))
	return snap, nil
}

// FindBest returns the single record with the highest cosine similarity to
// vector at or above minSimilarity, or nil when none qualifies.
func (i *Index) FindBest(ctx context.Context, vector []float32, minSimilarity float64) (*Match, error) {
	snap, err := i.current(ctx)
	if err != nil {
		return nil, err
	}

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	var best *Match
	for idx, rec := range snap.records {
		sim := i.similarity(vector, queryNorm, rec.Vector, snap.norms[idx])
		if sim < minSimilarity {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &Match{Record: rec, Similarity: sim}
		}
	}
	return best, nil
}

// FindGroup returns every record at or above minSimilarity, unordered.
func (i *Index) FindGroup(ctx context.Context, vector []float32, minSimilarity float64) ([]Match, error) {
	snap, err := i.current(ctx)
	if err != nil {
		return nil, err
	}

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	var matches []Match
	for idx, rec := range snap.records {
		sim := i.similarity(vector, queryNorm, rec.Vector, snap.norms[idx])
		if sim >= minSimilarity {
			matches = append(matches, Match{Record: rec, Similarity: sim})
		}
	}
	return matches, nil
}

// similarity computes cosine similarity given precomputed norms. Dimension
// mismatches and zero vectors score 0.
func (i *Index) similarity(query []float32, queryNorm float64, vector []float32, vectorNorm float64) float64 {
	if len(query) != len(vector) || vectorNorm == 0 {
		return 0
	}
	return dot(query, vector) / (queryNorm * vectorNorm)
}
