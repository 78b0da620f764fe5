package category

import (
	"errors"
	"testing"
)

func TestIsClassified(t *testing.T) {
	tests := []struct {
		cat  Category
		want bool
	}{
		{"Cafe", true},
		{Unclassified, false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.cat.IsClassified(); got != tt.want {
			t.Errorf("IsClassified(%q) = %v, want %v", tt.cat, got, tt.want)
		}
	}
}

func TestSourceValid(t *testing.T) {
	for _, s := range []Source{SourceLocal, SourceUser, SourceVector, SourceOracle, SourcePropagated} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Source("bogus").Valid() {
		t.Error("unknown source should be invalid")
	}
	if Source("").Valid() {
		t.Error("empty source should be invalid")
	}
}

func TestMappingValidate(t *testing.T) {
	tests := []struct {
		name    string
		m       Mapping
		wantErr error
	}{
		{"valid", Mapping{Name: "Starbucks", Category: "Cafe", Source: SourceUser}, nil},
		{"empty name", Mapping{Category: "Cafe", Source: SourceUser}, ErrEmptyName},
		{"empty category", Mapping{Name: "Starbucks", Source: SourceUser}, ErrEmptyCategory},
		{"bad source", Mapping{Name: "Starbucks", Category: "Cafe", Source: "bogus"}, ErrInvalidSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStoreEmbeddingValidate(t *testing.T) {
	valid := StoreEmbedding{Name: "x", Category: "Cafe", Vector: []float32{1}, Source: SourceOracle, Confidence: 0.8}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	tests := []struct {
		name    string
		e       StoreEmbedding
		wantErr error
	}{
		{"empty name", StoreEmbedding{Source: SourceOracle}, ErrEmptyName},
		{"confidence too high", StoreEmbedding{Name: "x", Source: SourceOracle, Confidence: 1.1}, ErrInvalidConfidence},
		{"confidence negative", StoreEmbedding{Name: "x", Source: SourceOracle, Confidence: -0.1}, ErrInvalidConfidence},
		{"bad source", StoreEmbedding{Name: "x", Source: "bogus", Confidence: 0.5}, ErrInvalidSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.e.Validate(); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", tt.e, tt.wantErr)
			}
		})
	}
}

func TestDefaultCategoriesAreClassified(t *testing.T) {
	cats := DefaultCategories()
	if len(cats) == 0 {
		t.Fatal("default category set is empty")
	}
	for _, c := range cats {
		if !c.IsClassified() {
			t.Errorf("default category %q is not classified", c)
		}
	}
}
