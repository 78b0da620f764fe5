package classifier

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/spendcat/internal/category"
	"github.com/fyrsmithlabs/spendcat/internal/store"
)

// fakeMappingStore is an in-memory MappingStore that counts lookups.
type fakeMappingStore struct {
	mu       sync.Mutex
	mappings map[string]category.Mapping

	exactCalls   int
	partialCalls int
	failUpsert   bool
}

func newFakeMappingStore() *fakeMappingStore {
	return &fakeMappingStore{mappings: make(map[string]category.Mapping)}
}

func (f *fakeMappingStore) GetExact(ctx context.Context, name string) (category.Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exactCalls++
	if m, ok := f.mappings[name]; ok {
		return m, nil
	}
	return category.Mapping{}, store.ErrNotFound
}

func (f *fakeMappingStore) GetPartial(ctx context.Context, name string) (category.Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partialCalls++
	lower := strings.ToLower(name)
	var best category.Mapping
	for _, m := range f.mappings {
		key := strings.ToLower(m.Name)
		if len(key) < 2 {
			continue
		}
		if strings.Contains(lower, key) || strings.Contains(key, lower) {
			if len(m.Name) > len(best.Name) {
				best = m
			}
		}
	}
	if best.Name != "" {
		return best, nil
	}
	return category.Mapping{}, store.ErrNotFound
}

func (f *fakeMappingStore) GetAll(ctx context.Context) ([]category.Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]category.Mapping, 0, len(f.mappings))
	for _, m := range f.mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeMappingStore) Upsert(ctx context.Context, m category.Mapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert {
		return fmt.Errorf("upsert disabled")
	}
	f.mappings[m.Name] = m
	return nil
}

func (f *fakeMappingStore) UpsertMany(ctx context.Context, mappings []category.Mapping) error {
	for _, m := range mappings {
		if err := f.Upsert(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMappingStore) DeleteAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mappings = make(map[string]category.Mapping)
	return nil
}

func (f *fakeMappingStore) get(name string) (category.Mapping, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mappings[name]
	return m, ok
}

// fakeEmbeddingStore is an in-memory EmbeddingStore.
type fakeEmbeddingStore struct {
	mu      sync.Mutex
	records map[string]category.StoreEmbedding
}

func newFakeEmbeddingStore() *fakeEmbeddingStore {
	return &fakeEmbeddingStore{records: make(map[string]category.StoreEmbedding)}
}

func (f *fakeEmbeddingStore) GetAll(ctx context.Context) ([]category.StoreEmbedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]category.StoreEmbedding, 0, len(f.records))
	for _, e := range f.records {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeEmbeddingStore) GetByName(ctx context.Context, name string) (category.StoreEmbedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.records[name]; ok {
		return e, nil
	}
	return category.StoreEmbedding{}, store.ErrNotFound
}

func (f *fakeEmbeddingStore) BelowConfidence(ctx context.Context, threshold float64) ([]category.StoreEmbedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []category.StoreEmbedding
	for _, e := range f.records {
		if e.Confidence < threshold {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeEmbeddingStore) Upsert(ctx context.Context, e category.StoreEmbedding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[e.Name] = e
	return nil
}

func (f *fakeEmbeddingStore) UpsertMany(ctx context.Context, records []category.StoreEmbedding) error {
	for _, e := range records {
		if err := f.Upsert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeEmbeddingStore) IncrementMatchCount(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.records[name]; ok {
		e.MatchCount++
		f.records[name] = e
	}
	return nil
}

func (f *fakeEmbeddingStore) UpdateCategory(ctx context.Context, name string, cat category.Category, source category.Source, confidence float64, skipUser bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.records[name]
	if !ok {
		return false, nil
	}
	if skipUser && e.Source == category.SourceUser {
		return false, nil
	}
	e.Category = cat
	e.Source = source
	e.Confidence = confidence
	f.records[name] = e
	return true, nil
}

func (f *fakeEmbeddingStore) DeleteAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = make(map[string]category.StoreEmbedding)
	return nil
}

func (f *fakeEmbeddingStore) get(name string) (category.StoreEmbedding, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.records[name]
	return e, ok
}

// fakeEmbedder returns canned vectors per name and counts calls.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32

	queryCalls int
	batchCalls int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: make(map[string][]float32)}
}

func (f *fakeEmbedder) set(name string, vector []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[name] = vector
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no vector for %q", text)
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

func (f *fakeEmbedder) queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryCalls
}

// fakeOracle answers from a fixed map and records every requested name.
type fakeOracle struct {
	mu      sync.Mutex
	answers map[string]category.Category

	requested []string
	calls     int
}

func newFakeOracle(answers map[string]category.Category) *fakeOracle {
	if answers == nil {
		answers = make(map[string]category.Category)
	}
	return &fakeOracle{answers: answers}
}

func (f *fakeOracle) Classify(ctx context.Context, names []string) (map[string]category.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requested = append(f.requested, names...)
	out := make(map[string]category.Category)
	for _, name := range names {
		if cat, ok := f.answers[name]; ok {
			out[name] = cat
		}
	}
	return out, nil
}

func (f *fakeOracle) requestedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requested))
	copy(out, f.requested)
	return out
}

// unitVec returns a 2D unit vector at the given angle in radians, handy for
// constructing pairs with an exact cosine similarity.
func unitVec(cos, sin float64) []float32 {
	return []float32{float32(cos), float32(sin)}
}
