// Package grouper clusters unclassified merchant names by embedding
// similarity so the bulk pipeline sends one representative per cluster to
// the classification oracle instead of every name.
package grouper

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/spendcat/internal/category"
	"github.com/fyrsmithlabs/spendcat/internal/embeddings"
	"github.com/fyrsmithlabs/spendcat/internal/simindex"
)

// Grouper clusters names by cosine similarity.
type Grouper struct {
	batch     *embeddings.BatchGenerator
	threshold float64
	logger    *zap.Logger
}

// New creates a grouper. Names whose pairwise similarity reaches threshold
// land in the same cluster.
func New(embedder embeddings.Embedder, threshold float64, logger *zap.Logger) *Grouper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Grouper{
		batch:     embeddings.NewBatchGenerator(embedder, logger),
		threshold: threshold,
		logger:    logger.Named("grouper"),
	}
}

// Group clusters names and returns the clusters plus the embedding vectors
// generated along the way, keyed by name, so callers can persist them
// without re-embedding.
//
// Greedy single-pass clustering: each name joins the first existing cluster
// whose representative is similar enough, otherwise opens a new cluster with
// itself as representative. The representative is always the first member
// encountered.
//
// Group never fails: names that could not be embedded become singleton
// clusters, and a total embedding outage degrades to all-singletons.
func (g *Grouper) Group(ctx context.Context, names []string) ([]category.Group, map[string][]float32) {
	if len(names) == 0 {
		return nil, nil
	}

	vectors := g.batch.Generate(ctx, names)
	if len(vectors) == 0 {
		g.logger.Warn("embedding generation produced no vectors, falling back to singleton groups",
			zap.Int("names", len(names)))
		return singletons(names), nil
	}

	var groups []category.Group
	// repVectors[i] is the representative vector of groups[i].
	var repVectors [][]float32

	for _, name := range names {
		vec, ok := vectors[name]
		if !ok {
			groups = append(groups, category.Group{Representative: name, Members: []string{name}})
			repVectors = append(repVectors, nil)
			continue
		}

		joined := false
		for i, repVec := range repVectors {
			if repVec == nil {
				continue
			}
			if simindex.Cosine(vec, repVec) >= g.threshold {
				groups[i].Members = append(groups[i].Members, name)
				joined = true
				break
			}
		}
		if !joined {
			groups = append(groups, category.Group{Representative: name, Members: []string{name}})
			repVectors = append(repVectors, vec)
		}
	}

	g.logger.Debug("grouped names",
		zap.Int("names", len(names)),
		zap.Int("groups", len(groups)))
	return groups, vectors
}

// singletons wraps every name in its own group.
func singletons(names []string) []category.Group {
	groups := make([]category.Group, 0, len(names))
	for _, name := range names {
		groups = append(groups, category.Group{Representative: name, Members: []string{name}})
	}
	return groups
}
