package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/spendcat/internal/category"
)

func seedEmbedding(t *testing.T, f *fixture, name string, cat category.Category, vec []float32, source category.Source, confidence float64) {
	t.Helper()
	require.NoError(t, f.embeddings.Upsert(context.Background(), category.StoreEmbedding{
		Name: name, Category: cat, Vector: vec, Source: source, Confidence: confidence,
	}))
}

func TestPropagateToSimilarNeighbors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	origin := []float32{1, 0, 0}
	near := []float32{0.95, 0.312, 0}   // cos ~0.95
	far := []float32{0.5, 0.866, 0}     // cos ~0.50

	seedEmbedding(t, f, "CoffeeHouse", "Cafe", origin, category.SourceUser, 1.0)
	seedEmbedding(t, f, "Coffee House Central", "Food", near, category.SourceOracle, 0.8)
	seedEmbedding(t, f, "Hardware Depot", "Shopping", far, category.SourceOracle, 0.8)

	changed, err := f.svc.Propagate(ctx, "CoffeeHouse", "Cafe", 1.0)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	rec, ok := f.embeddings.get("Coffee House Central")
	require.True(t, ok)
	assert.Equal(t, category.Category("Cafe"), rec.Category)
	assert.Equal(t, category.SourcePropagated, rec.Source)
	assert.InDelta(t, 0.95, rec.Confidence, 0.01, "propagated confidence decays with similarity")

	// The distant neighbor is untouched.
	rec, _ = f.embeddings.get("Hardware Depot")
	assert.Equal(t, category.Category("Shopping"), rec.Category)

	m, ok := f.mappings.get("Coffee House Central")
	require.True(t, ok)
	assert.Equal(t, category.SourcePropagated, m.Source)
}

func TestPropagateNeverOverwritesUserRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	origin := []float32{1, 0, 0}
	near := []float32{0.95, 0.312, 0}

	seedEmbedding(t, f, "CoffeeHouse", "Cafe", origin, category.SourceOracle, 0.8)
	seedEmbedding(t, f, "Coffee Museum", "Entertainment", near, category.SourceUser, 1.0)

	changed, err := f.svc.Propagate(ctx, "CoffeeHouse", "Cafe", 0.9)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	rec, _ := f.embeddings.get("Coffee Museum")
	assert.Equal(t, category.Category("Entertainment"), rec.Category)
	assert.Equal(t, category.SourceUser, rec.Source)
}

func TestPropagateNeverOverwritesUserMappings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	origin := []float32{1, 0, 0}
	near := []float32{0.95, 0.312, 0}

	// A correction whose best-effort embedding write never landed leaves a
	// user mapping over a stale oracle-sourced embedding record.
	seedEmbedding(t, f, "CoffeeHouse", "Dining", origin, category.SourceUser, 1.0)
	seedEmbedding(t, f, "Coffee Museum", "Entertainment", near, category.SourceOracle, 0.8)
	require.NoError(t, f.mappings.Upsert(ctx, category.Mapping{
		Name: "Coffee Museum", Category: "Cafe", Source: category.SourceUser,
	}))

	changed, err := f.svc.Propagate(ctx, "CoffeeHouse", "Dining", 1.0)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	m, ok := f.mappings.get("Coffee Museum")
	require.True(t, ok)
	assert.Equal(t, category.Category("Cafe"), m.Category, "user mapping must survive propagation")
	assert.Equal(t, category.SourceUser, m.Source)

	// The stale embedding record behind the correction is left alone too.
	rec, _ := f.embeddings.get("Coffee Museum")
	assert.Equal(t, category.Category("Entertainment"), rec.Category)
	assert.Equal(t, category.SourceOracle, rec.Source)
}

func TestPropagateConfidenceGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	origin := []float32{1, 0, 0}
	near := []float32{0.95, 0.312, 0}

	seedEmbedding(t, f, "CoffeeHouse", "Cafe", origin, category.SourceOracle, 0.5)
	seedEmbedding(t, f, "Coffee House Central", "Food", near, category.SourceOracle, 0.8)

	// Below MinPropagationConfidence: nothing moves and the index is never
	// consulted.
	changed, err := f.svc.Propagate(ctx, "CoffeeHouse", "Cafe", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	rec, _ := f.embeddings.get("Coffee House Central")
	assert.Equal(t, category.Category("Food"), rec.Category)
}

func TestPropagateEffectiveConfidenceGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	origin := []float32{1, 0, 0}
	// cos ~0.91: above the propagation similarity bar, but 0.91*0.72 < 0.70.
	near := []float32{0.91, 0.4146, 0}

	seedEmbedding(t, f, "CoffeeHouse", "Cafe", origin, category.SourceOracle, 0.72)
	seedEmbedding(t, f, "Coffee House Central", "Food", near, category.SourceOracle, 0.8)

	changed, err := f.svc.Propagate(ctx, "CoffeeHouse", "Cafe", 0.72)
	require.NoError(t, err)
	assert.Equal(t, 0, changed, "similarity times confidence below the gate must not propagate")
}

func TestPropagateSkipsSameCategoryAndSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	origin := []float32{1, 0, 0}
	near := []float32{0.95, 0.312, 0}

	seedEmbedding(t, f, "CoffeeHouse", "Cafe", origin, category.SourceUser, 1.0)
	seedEmbedding(t, f, "Coffee Corner", "Cafe", near, category.SourceOracle, 0.8)

	changed, err := f.svc.Propagate(ctx, "CoffeeHouse", "Cafe", 1.0)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}

func TestPropagateUnknownNameIsNoop(t *testing.T) {
	f := newFixture(t)

	// No stored vector and no embedder answer: propagation quietly skips.
	changed, err := f.svc.Propagate(context.Background(), "Never Seen", "Cafe", 1.0)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}
