package classifier

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/spendcat/internal/category"
)

// TxRecord is one ingested transaction as the in-memory record store sees
// it. The production record store lives in the ingestion layer; this one
// backs tests and the CLI.
type TxRecord struct {
	Name     string
	Category category.Category
	Amount   float64
}

// InMemoryRecordStore is an in-memory RecordStore implementation.
type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records []TxRecord
}

// NewInMemoryRecordStore creates an empty in-memory record store.
func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{}
}

// Add appends a transaction record. An empty category is stored as
// Unclassified.
func (s *InMemoryRecordStore) Add(name string, cat category.Category, amount float64) {
	if cat == "" {
		cat = category.Unclassified
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, TxRecord{Name: name, Category: cat, Amount: amount})
}

// UnclassifiedNames aggregates unclassified records by name, summing
// absolute amounts into the magnitude.
func (s *InMemoryRecordStore) UnclassifiedNames(ctx context.Context) ([]NameStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]float64)
	var order []string
	for _, rec := range s.records {
		if rec.Category.IsClassified() {
			continue
		}
		if _, seen := totals[rec.Name]; !seen {
			order = append(order, rec.Name)
		}
		amount := rec.Amount
		if amount < 0 {
			amount = -amount
		}
		totals[rec.Name] += amount
	}

	stats := make([]NameStat, 0, len(order))
	for _, name := range order {
		stats = append(stats, NameStat{Name: name, Magnitude: totals[name]})
	}
	return stats, nil
}

// UpdateCategory sets the category on every record with the name.
func (s *InMemoryRecordStore) UpdateCategory(ctx context.Context, name string, cat category.Category) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for i := range s.records {
		if s.records[i].Name == name && s.records[i].Category != cat {
			s.records[i].Category = cat
			updated++
		}
	}
	return updated, nil
}

// Records returns a copy of all records.
func (s *InMemoryRecordStore) Records() []TxRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TxRecord, len(s.records))
	copy(out, s.records)
	return out
}

var _ RecordStore = (*InMemoryRecordStore)(nil)
