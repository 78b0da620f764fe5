package grouper

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder returns canned vectors; names without one come back nil.
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	failAll bool
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no vector for %q", text)
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, fmt.Errorf("embedding service down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.vectors[t]
	}
	return out, nil
}

func TestGroupClustersSimilarNames(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"Coffee House":   {1, 0},
		"Coffee House 2": {0.99, 0.141},
		"Metro Line":     {0, 1},
		"Metro Line B":   {0.141, 0.99},
	}}
	g := New(emb, 0.88, nil)

	groups, vectors := g.Group(context.Background(), []string{
		"Coffee House", "Coffee House 2", "Metro Line", "Metro Line B",
	})

	require.Len(t, groups, 2)
	assert.Equal(t, "Coffee House", groups[0].Representative)
	assert.ElementsMatch(t, []string{"Coffee House", "Coffee House 2"}, groups[0].Members)
	assert.Equal(t, "Metro Line", groups[1].Representative)
	assert.ElementsMatch(t, []string{"Metro Line", "Metro Line B"}, groups[1].Members)

	// The generated vectors ride along for persistence.
	assert.Len(t, vectors, 4)
	assert.Equal(t, []float32{1, 0}, vectors["Coffee House"])
}

func TestGroupRepresentativeIsFirstMember(t *testing.T) {
	same := []float32{1, 0}
	emb := &stubEmbedder{vectors: map[string][]float32{
		"First": same, "Second": same, "Third": same,
	}}
	g := New(emb, 0.88, nil)

	groups, _ := g.Group(context.Background(), []string{"First", "Second", "Third"})
	require.Len(t, groups, 1)
	assert.Equal(t, "First", groups[0].Representative)
	assert.Equal(t, []string{"First", "Second", "Third"}, groups[0].Members)
}

func TestGroupUnembeddedNamesBecomeSingletons(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"Known A": {1, 0},
		"Known B": {1, 0},
	}}
	g := New(emb, 0.88, nil)

	groups, vectors := g.Group(context.Background(), []string{"Known A", "Mystery", "Known B"})

	require.Len(t, groups, 2)
	assert.ElementsMatch(t, []string{"Known A", "Known B"}, groups[0].Members)
	assert.Equal(t, "Mystery", groups[1].Representative)
	assert.Equal(t, []string{"Mystery"}, groups[1].Members)
	_, ok := vectors["Mystery"]
	assert.False(t, ok)
}

func TestGroupTotalEmbeddingOutageDegradesToSingletons(t *testing.T) {
	emb := &stubEmbedder{failAll: true}
	g := New(emb, 0.88, nil)

	groups, vectors := g.Group(context.Background(), []string{"A", "B", "C"})

	require.Len(t, groups, 3)
	for i, name := range []string{"A", "B", "C"} {
		assert.Equal(t, name, groups[i].Representative)
		assert.Equal(t, []string{name}, groups[i].Members)
	}
	assert.Nil(t, vectors)
}

func TestGroupEmptyInput(t *testing.T) {
	g := New(&stubEmbedder{}, 0.88, nil)
	groups, vectors := g.Group(context.Background(), nil)
	assert.Nil(t, groups)
	assert.Nil(t, vectors)
}

func TestGroupThresholdSeparatesBorderlinePairs(t *testing.T) {
	// cos(a, b) ~0.95: one cluster at 0.88, two clusters at 0.97.
	a := []float32{1, 0}
	b := []float32{0.95, 0.312}
	emb := &stubEmbedder{vectors: map[string][]float32{"a": a, "b": b}}

	loose := New(emb, 0.88, nil)
	groups, _ := loose.Group(context.Background(), []string{"a", "b"})
	assert.Len(t, groups, 1)

	strict := New(emb, 0.97, nil)
	groups, _ = strict.Group(context.Background(), []string{"a", "b"})
	assert.Len(t, groups, 2)
}
