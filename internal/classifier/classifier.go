// Package classifier implements the tiered merchant-name classification
// orchestrator.
//
// Lookup tiers, cheapest and most trusted first:
//
//	Tier 1    exact then partial match against the persistent mapping store
//	Tier 1.5  similarity-index lookup (best match, then group vote)
//	Tier 2    deterministic keyword rules
//	Tier 3    deferred: the name stays unclassified until a bulk round
//
// The orchestrator also owns the self-learning loop: manual corrections,
// confidence-gated propagation onto similar names, bulk oracle
// classification with semantic grouping, and reclassification of
// low-confidence records.
package classifier

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/spendcat/internal/category"
	"github.com/fyrsmithlabs/spendcat/internal/embeddings"
	"github.com/fyrsmithlabs/spendcat/internal/grouper"
	"github.com/fyrsmithlabs/spendcat/internal/oracle"
	"github.com/fyrsmithlabs/spendcat/internal/rules"
	"github.com/fyrsmithlabs/spendcat/internal/simindex"
)

var tracer = otel.Tracer("spendcat.classifier")

// Thresholds are the similarity and confidence gates governing the
// vector tiers and propagation.
type Thresholds struct {
	// AutoApply is the minimum best-match similarity for Tier 1.5a.
	AutoApply float64 `koanf:"auto_apply"`

	// Group is the minimum similarity for Tier 1.5b group votes and for
	// semantic grouping in the bulk pipeline.
	Group float64 `koanf:"group"`

	// Propagate is the minimum neighbor similarity for propagation.
	Propagate float64 `koanf:"propagate"`

	// MinPropagationConfidence gates propagation entirely: classifications
	// below it never propagate.
	MinPropagationConfidence float64 `koanf:"min_propagation_confidence"`
}

// DefaultThresholds returns the production threshold set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoApply:                0.92,
		Group:                    0.88,
		Propagate:                0.90,
		MinPropagationConfidence: 0.70,
	}
}

// MappingStore is the Tier 1 persistent name-to-category cache consumed by
// the orchestrator. Implemented by store.MappingStore.
type MappingStore interface {
	GetExact(ctx context.Context, name string) (category.Mapping, error)
	GetPartial(ctx context.Context, name string) (category.Mapping, error)
	GetAll(ctx context.Context) ([]category.Mapping, error)
	Upsert(ctx context.Context, m category.Mapping) error
	UpsertMany(ctx context.Context, mappings []category.Mapping) error
	DeleteAll(ctx context.Context) error
}

// EmbeddingStore persists learned store embeddings. Implemented by
// store.EmbeddingStore.
type EmbeddingStore interface {
	GetAll(ctx context.Context) ([]category.StoreEmbedding, error)
	GetByName(ctx context.Context, name string) (category.StoreEmbedding, error)
	BelowConfidence(ctx context.Context, threshold float64) ([]category.StoreEmbedding, error)
	Upsert(ctx context.Context, e category.StoreEmbedding) error
	UpsertMany(ctx context.Context, records []category.StoreEmbedding) error
	IncrementMatchCount(ctx context.Context, name string) error
	UpdateCategory(ctx context.Context, name string, cat category.Category, source category.Source, confidence float64, skipUser bool) (bool, error)
	DeleteAll(ctx context.Context) error
}

// NameStat is one unclassified merchant name with the total transaction
// magnitude associated with it. Magnitude ranks names so a partial bulk run
// classifies the most significant spending first.
type NameStat struct {
	Name      string
	Magnitude float64
}

// RecordStore is the underlying transaction-record collaborator owned by
// the ingestion layer. The orchestrator only needs the unclassified name
// roster and a way to stamp resolved categories back onto records.
type RecordStore interface {
	// UnclassifiedNames returns one entry per distinct unclassified name.
	UnclassifiedNames(ctx context.Context) ([]NameStat, error)

	// UpdateCategory sets the category on every record carrying the name
	// and returns the number of records changed.
	UpdateCategory(ctx context.Context, name string, cat category.Category) (int, error)
}

// Service is the classification orchestrator.
type Service struct {
	mappings   MappingStore
	embeddings EmbeddingStore
	records    RecordStore
	embedder   embeddings.Embedder
	oracle     oracle.Client
	rules      *rules.Engine
	index      *simindex.Index
	grouper    *grouper.Grouper
	batch      *embeddings.BatchGenerator
	thresholds Thresholds
	logger     *zap.Logger
	inflight   *inflightGuard

	// sessionMu guards acquisition and release of the single bulk cache.
	sessionMu sync.Mutex
	session   *bulkCache

	// onRound, if set, receives per-round progress from the round driver.
	onRound func(round, updated, remaining int)
}

// Option configures a Service.
type Option func(*Service)

// WithThresholds overrides the default similarity/confidence thresholds.
func WithThresholds(t Thresholds) Option {
	return func(s *Service) { s.thresholds = t }
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRoundProgress registers a callback invoked after every bulk round
// with the round number, records updated, and names still unclassified.
func WithRoundProgress(fn func(round, updated, remaining int)) Option {
	return func(s *Service) { s.onRound = fn }
}

// NewService wires the orchestrator from its collaborators.
//
// mappings, embeddingStore, records, embedder, and oracleClient are
// required; ruleEngine may be nil, in which case the built-in default rule
// table is used.
func NewService(
	mappings MappingStore,
	embeddingStore EmbeddingStore,
	records RecordStore,
	embedder embeddings.Embedder,
	oracleClient oracle.Client,
	ruleEngine *rules.Engine,
	opts ...Option,
) *Service {
	if ruleEngine == nil {
		ruleEngine = rules.NewDefaultEngine()
	}

	s := &Service{
		mappings:   mappings,
		embeddings: embeddingStore,
		records:    records,
		embedder:   embedder,
		oracle:     oracleClient,
		rules:      ruleEngine,
		thresholds: DefaultThresholds(),
		logger:     zap.NewNop(),
		inflight:   newInflightGuard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.index = simindex.New(embeddingStore, s.logger)
	s.grouper = grouper.New(embedder, s.thresholds.Group, s.logger)
	s.batch = embeddings.NewBatchGenerator(embedder, s.logger)
	s.logger = s.logger.Named("classifier")

	return s
}

// Thresholds returns the active threshold set.
func (s *Service) Thresholds() Thresholds {
	return s.thresholds
}

// UnclassifiedCount returns the number of distinct unclassified names.
func (s *Service) UnclassifiedCount(ctx context.Context) (int, error) {
	stats, err := s.records.UnclassifiedNames(ctx)
	if err != nil {
		return 0, err
	}
	return len(stats), nil
}

// Reset deletes every mapping and embedding record. Full-data reset only;
// transaction records are untouched.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.mappings.DeleteAll(ctx); err != nil {
		return err
	}
	if err := s.embeddings.DeleteAll(ctx); err != nil {
		return err
	}
	s.index.Invalidate()
	s.logger.Warn("classifier data reset")
	return nil
}
