package embeddings

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var batchTracer = otel.Tracer("spendcat.embeddings.batch")

// Default batch generation tuning.
const (
	DefaultChunkSize   = 32
	DefaultMaxParallel = 10
)

// BatchGenerator embeds large name lists in fixed-size chunks under a
// bounded concurrency permit. A failed chunk only drops its own names: the
// result map simply has no entry for them.
type BatchGenerator struct {
	embedder    Embedder
	chunkSize   int
	maxParallel int
	logger      *zap.Logger
}

// NewBatchGenerator creates a batch generator over the given embedder.
func NewBatchGenerator(embedder Embedder, logger *zap.Logger) *BatchGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchGenerator{
		embedder:    embedder,
		chunkSize:   DefaultChunkSize,
		maxParallel: DefaultMaxParallel,
		logger:      logger,
	}
}

// SetChunkSize overrides the per-request chunk size.
func (g *BatchGenerator) SetChunkSize(n int) {
	if n > 0 {
		g.chunkSize = n
	}
}

// SetMaxParallel overrides the concurrency bound.
func (g *BatchGenerator) SetMaxParallel(n int) {
	if n > 0 {
		g.maxParallel = n
	}
}

// Generate embeds every name and returns a name-to-vector map. Names whose
// chunk failed, or whose positional row came back nil, are absent from the
// map. Generate never returns an error: callers treat missing names as
// unembedded and move on.
func (g *BatchGenerator) Generate(ctx context.Context, names []string) map[string][]float32 {
	if len(names) == 0 {
		return nil
	}

	ctx, span := batchTracer.Start(ctx, "embeddings.generate_batch")
	defer span.End()
	span.SetAttributes(attribute.Int("names", len(names)))

	chunks := chunkStrings(names, g.chunkSize)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string][]float32, len(names))
	)
	sem := make(chan struct{}, g.maxParallel)

	for _, chunk := range chunks {
		wg.Add(1)
		go func(chunk []string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			vectors, err := g.embedder.EmbedDocuments(ctx, chunk)
			if err != nil {
				g.logger.Warn("embedding chunk failed",
					zap.Int("chunk_size", len(chunk)),
					zap.Error(err))
				return
			}

			mu.Lock()
			for i, name := range chunk {
				if i < len(vectors) && vectors[i] != nil {
					results[name] = vectors[i]
				}
			}
			mu.Unlock()
		}(chunk)
	}
	wg.Wait()

	span.SetAttributes(attribute.Int("embedded", len(results)))
	return results
}

// chunkStrings splits names into slices of at most size elements.
func chunkStrings(names []string, size int) [][]string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]string
	for start := 0; start < len(names); start += size {
		end := start + size
		if end > len(names) {
			end = len(names)
		}
		chunks = append(chunks, names[start:end])
	}
	return chunks
}
