package rules

import (
	"strings"
	"testing"

	"github.com/fyrsmithlabs/spendcat/internal/category"
)

func TestMatch(t *testing.T) {
	e := NewDefaultEngine()

	tests := []struct {
		name        string
		input       string
		contextText string
		want        category.Category
		ok          bool
	}{
		{"coffee keyword", "Coffee House X", "", "Cafe", true},
		{"case insensitive", "STARBUCKS RESERVE", "", "Cafe", true},
		{"restaurant", "Luigi's Restaurant", "", "Food", true},
		{"grocery", "Neighborhood Grocery", "", "Groceries", true},
		{"transport", "City Taxi 24", "", "Transport", true},
		{"pharmacy", "Main St Pharmacy", "", "Health", true},
		{"context text matches", "Receipt 1042", "paid at the parking garage", "Transport", true},
		{"no match", "Zzyzx Holdings", "", "", false},
		{"empty name", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.Match(tt.input, tt.contextText)
			if ok != tt.ok {
				t.Fatalf("Match(%q, %q) ok = %v, want %v", tt.input, tt.contextText, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("Match(%q, %q) = %q, want %q", tt.input, tt.contextText, got, tt.want)
			}
		})
	}
}

func TestMatchFirstRuleWins(t *testing.T) {
	e := NewEngine([]Rule{
		{Patterns: []string{"mega"}, Category: "Shopping"},
		{Patterns: []string{"megamart"}, Category: "Groceries"},
	})

	got, ok := e.Match("MegaMart Central", "")
	if !ok || got != "Shopping" {
		t.Fatalf("Match = %q (%v), want Shopping from the earlier rule", got, ok)
	}
}

func TestMatchTruncatesOversizedInput(t *testing.T) {
	e := NewDefaultEngine()

	// The keyword sits past the scan bound and must not match.
	padded := strings.Repeat("x", maxInputLength) + " coffee"
	if _, ok := e.Match("Some Vendor", padded); ok {
		t.Fatal("pattern beyond the input bound should not match")
	}
}

func TestReload(t *testing.T) {
	e := NewEngine([]Rule{
		{Patterns: []string{"alpha"}, Category: "Shopping"},
	})

	if _, ok := e.Match("Alpha Store", ""); !ok {
		t.Fatal("expected match before reload")
	}

	e.Reload([]Rule{
		{Patterns: []string{"beta"}, Category: "Travel"},
	})

	if _, ok := e.Match("Alpha Store", ""); ok {
		t.Fatal("old rules must be gone after reload")
	}
	got, ok := e.Match("Beta Lounge", "")
	if !ok || got != "Travel" {
		t.Fatalf("Match after reload = %q (%v), want Travel", got, ok)
	}
	if e.Len() != 1 {
		t.Fatalf("Len = %d, want 1", e.Len())
	}
}

func TestReloadDropsInvalidRules(t *testing.T) {
	e := NewEngine([]Rule{
		{Patterns: []string{"  ", ""}, Category: "Shopping"}, // no usable patterns
		{Patterns: []string{"valid"}, Category: ""},          // no category
		{Patterns: []string{" keep  "}, Category: "Travel"},  // trimmed, kept
	})

	if e.Len() != 1 {
		t.Fatalf("Len = %d, want 1", e.Len())
	}
	got, ok := e.Match("Keepsake Tours", "")
	if !ok || got != "Travel" {
		t.Fatalf("Match = %q (%v), want Travel", got, ok)
	}
}
