// Package category defines the domain types shared by the classification
// pipeline: spending categories, record sources, persisted mappings, and
// store embeddings.
package category

import "errors"

// Common errors for category domain types.
var (
	ErrEmptyName         = errors.New("store name cannot be empty")
	ErrEmptyCategory     = errors.New("category cannot be empty")
	ErrInvalidConfidence = errors.New("confidence must be between 0.0 and 1.0")
	ErrInvalidSource     = errors.New("invalid mapping source")
)

// Category is a spending category label (e.g. "Cafe", "Shopping").
type Category string

// Unclassified is the sentinel category returned when no tier of the
// pipeline produced a result. Records carrying it are picked up by the
// bulk classification pipeline on a later round.
const Unclassified Category = "Unclassified"

// IsClassified reports whether c carries a real category.
func (c Category) IsClassified() bool {
	return c != "" && c != Unclassified
}

// DefaultCategories is the built-in category set offered to the oracle
// when no custom set is configured.
func DefaultCategories() []Category {
	return []Category{
		"Food",
		"Cafe",
		"Shopping",
		"Groceries",
		"Transport",
		"Housing",
		"Utilities",
		"Health",
		"Entertainment",
		"Education",
		"Travel",
		"Subscriptions",
		"Finance",
		"Other",
	}
}

// Source records how a classification was obtained. Sources form a trust
// order: user corrections are the highest-trust records and are never
// overwritten by automated propagation.
type Source string

const (
	// SourceLocal marks a classification produced by the deterministic
	// rule engine.
	SourceLocal Source = "local"

	// SourceUser marks a manual correction. Highest trust; immutable to
	// propagation.
	SourceUser Source = "user"

	// SourceVector marks a classification copied from a similar known
	// name via the similarity index (cache promotion).
	SourceVector Source = "vector"

	// SourceOracle marks a classification returned by the external
	// classification oracle.
	SourceOracle Source = "oracle"

	// SourcePropagated marks a classification copied onto a neighbor by
	// the propagation policy.
	SourcePropagated Source = "propagated"
)

// Valid reports whether s is a known source value.
func (s Source) Valid() bool {
	switch s {
	case SourceLocal, SourceUser, SourceVector, SourceOracle, SourcePropagated:
		return true
	}
	return false
}

// Default confidence values per source. A fresh user correction is fully
// trusted; an oracle answer slightly less so.
const (
	ConfidenceUser   = 1.0
	ConfidenceOracle = 0.8
)

// Mapping is the persisted name-to-category cache entry (Tier 1).
// At most one mapping exists per exact name; updates are last-write-wins.
type Mapping struct {
	// Name is the exact merchant/store name this mapping covers.
	Name string `json:"name"`

	// Category is the resolved spending category.
	Category Category `json:"category"`

	// Source records how this mapping was obtained.
	Source Source `json:"source"`
}

// Validate checks the mapping fields.
func (m Mapping) Validate() error {
	if m.Name == "" {
		return ErrEmptyName
	}
	if m.Category == "" {
		return ErrEmptyCategory
	}
	if !m.Source.Valid() {
		return ErrInvalidSource
	}
	return nil
}

// StoreEmbedding is a learned (name, vector, category, confidence) record
// backing the similarity index. One record exists per name.
type StoreEmbedding struct {
	// Name is the merchant/store name this record embeds.
	Name string `json:"name"`

	// Category is the category last resolved for the name.
	Category Category `json:"category"`

	// Vector is the fixed-length embedding of the name.
	Vector []float32 `json:"vector"`

	// Source records how the category was obtained.
	Source Source `json:"source"`

	// Confidence scores how much the category is trusted, in [0, 1].
	// Gates propagation and reclassification.
	Confidence float64 `json:"confidence"`

	// MatchCount counts how often this record was the matched neighbor
	// in a similarity query. Observability only.
	MatchCount int `json:"match_count"`
}

// Validate checks the embedding record fields.
func (e StoreEmbedding) Validate() error {
	if e.Name == "" {
		return ErrEmptyName
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return ErrInvalidConfidence
	}
	if !e.Source.Valid() {
		return ErrInvalidSource
	}
	return nil
}

// Group is an ephemeral similarity cluster produced per bulk-classification
// round. The representative is sent to the oracle on behalf of all members.
// Groups are never persisted.
type Group struct {
	// Representative is the member whose classification stands in for
	// the whole cluster.
	Representative string

	// Members lists every name in the cluster, representative included.
	Members []string
}
