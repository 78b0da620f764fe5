// Package oracle provides the batch classification client: the expensive
// external service that maps merchant names to spending categories.
//
// The LLM-backed implementation chunks names into fixed-size requests, runs
// chunks under a bounded concurrency permit, and rate-limits requests to
// respect provider quotas. A failed chunk is skipped, not retried forever,
// and never aborts the remaining chunks.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/spendcat/internal/category"
)

var tracer = otel.Tracer("spendcat.oracle")

// Sentinel errors for oracle configuration.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid oracle configuration")
)

// Default tuning values.
const (
	DefaultModel             = "gpt-4o-mini"
	DefaultChunkSize         = 50
	DefaultMaxParallel       = 4
	DefaultRequestsPerSecond = 2.0
	defaultRateBurst         = 1
)

// Client batch-classifies merchant names into spending categories.
//
// The returned map has defined miss semantics: an absent name is
// unresolved, not an error. Partial responses are expected.
type Client interface {
	Classify(ctx context.Context, names []string) (map[string]category.Category, error)
}

// Config holds configuration for the LLM-backed oracle client.
type Config struct {
	// BaseURL is the OpenAI-compatible chat completion endpoint.
	BaseURL string `koanf:"base_url"`

	// Model is the chat model used for classification. Default "gpt-4o-mini".
	Model string `koanf:"model"`

	// APIKey authenticates against the provider.
	APIKey string `koanf:"api_key"`

	// ChunkSize is the number of names per request. Default 50.
	ChunkSize int `koanf:"chunk_size"`

	// MaxParallel bounds concurrent chunk requests. Default 4.
	MaxParallel int `koanf:"max_parallel"`

	// RequestsPerSecond throttles chunk requests. Default 2.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxParallel == 0 {
		c.MaxParallel = DefaultMaxParallel
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.ChunkSize < 0 || c.MaxParallel < 0 || c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: tuning values must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// LLMClient implements Client on top of a langchaingo chat model.
type LLMClient struct {
	llm         llms.Model
	categories  []category.Category
	limiter     *rate.Limiter
	chunkSize   int
	maxParallel int
	logger      *zap.Logger
}

// NewLLMClient creates an oracle client from config. The category set given
// to the oracle defaults to category.DefaultCategories when nil.
func NewLLMClient(cfg Config, categories []category.Category, logger *zap.Logger) (*LLMClient, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "placeholder"
	}
	opts = append(opts, openai.WithToken(apiKey))

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating chat client: %w", err)
	}

	return NewWithModel(llm, categories, cfg, logger), nil
}

// NewWithModel creates an oracle client over an existing chat model.
// Primarily for tests and callers that manage the model themselves.
func NewWithModel(llm llms.Model, categories []category.Category, cfg Config, logger *zap.Logger) *LLMClient {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(categories) == 0 {
		categories = category.DefaultCategories()
	}

	return &LLMClient{
		llm:         llm,
		categories:  categories,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), defaultRateBurst),
		chunkSize:   cfg.ChunkSize,
		maxParallel: cfg.MaxParallel,
		logger:      logger.Named("oracle"),
	}
}

// Categories returns the category set offered to the oracle.
func (c *LLMClient) Categories() []category.Category {
	return c.categories
}

// Classify batch-classifies names. Names in failed chunks, names the model
// could not classify, and names mapped to unknown categories are simply
// absent from the result.
//
// Classify returns an error only when the context is cancelled; chunk
// failures are logged and skipped so one bad request never poisons a bulk
// round.
func (c *LLMClient) Classify(ctx context.Context, names []string) (map[string]category.Category, error) {
	if len(names) == 0 {
		return map[string]category.Category{}, nil
	}

	chunks := chunkNames(names, c.chunkSize)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]category.Category, len(names))
	)
	sem := make(chan struct{}, c.maxParallel)

	for idx, chunk := range chunks {
		wg.Add(1)
		go func(idx int, chunk []string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			// The limiter provides the inter-batch delay that keeps
			// us under provider rate limits.
			if err := c.limiter.Wait(ctx); err != nil {
				return
			}

			classified, err := c.classifyChunk(ctx, chunk)
			if err != nil {
				c.logger.Warn("oracle chunk failed, skipping",
					zap.Int("chunk", idx),
					zap.Int("names", len(chunk)),
					zap.Error(err))
				classificationChunks.WithLabelValues("error").Inc()
				return
			}
			classificationChunks.WithLabelValues("success").Inc()

			mu.Lock()
			for name, cat := range classified {
				results[name] = cat
			}
			mu.Unlock()
		}(idx, chunk)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}

	classifiedNames.Add(float64(len(results)))
	c.logger.Info("oracle classification complete",
		zap.Int("requested", len(names)),
		zap.Int("resolved", len(results)),
		zap.Int("chunks", len(chunks)))
	return results, nil
}

// classifyChunk sends one chunk to the model and parses the response.
func (c *LLMClient) classifyChunk(ctx context.Context, names []string) (map[string]category.Category, error) {
	ctx, span := tracer.Start(ctx, "oracle.classify_chunk")
	defer span.End()
	span.SetAttributes(attribute.Int("names", len(names)))

	prompt := buildPrompt(names, c.categories)

	response, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt,
		llms.WithTemperature(0),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chunk request failed")
		return nil, fmt.Errorf("oracle request: %w", err)
	}

	classified, err := parseResponse(response, names, c.categories)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chunk parse failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("resolved", len(classified)))
	return classified, nil
}

// chunkNames splits names into slices of at most size elements.
func chunkNames(names []string, size int) [][]string {
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

var _ Client = (*LLMClient)(nil)
