// Package rules implements the deterministic keyword rule engine: a static
// table of (pattern list, category) pairs checked by case-insensitive
// substring containment. Rule matching is the cheapest classification tier
// and never calls external services.
package rules

import (
	"strings"
	"sync"

	"github.com/fyrsmithlabs/spendcat/internal/category"
)

// maxInputLength bounds the text scanned per lookup. Merchant names are
// short; context text from raw messages can be arbitrarily long.
const maxInputLength = 4096

// Rule pairs a list of substring patterns with the category they detect.
// Rules are evaluated in order; within a rule, any pattern may match.
// First matching rule wins.
type Rule struct {
	// Patterns are matched case-insensitively as substrings of the
	// name or its surrounding context text.
	Patterns []string `koanf:"patterns"`

	// Category is the target category when any pattern matches.
	Category category.Category `koanf:"category"`
}

// compiledRule holds lowercased patterns ready for containment checks.
type compiledRule struct {
	patterns []string
	category category.Category
}

// Engine classifies names by ordered substring rules.
//
// The rule set is swapped wholesale under a read lock, so lookups stay
// safe during Reload. Patterns are lowercased once at load time.
type Engine struct {
	mu    sync.RWMutex
	rules []compiledRule
}

// NewEngine creates an engine with the given rules. Empty patterns are
// dropped; rules with no surviving pattern are skipped.
func NewEngine(rules []Rule) *Engine {
	e := &Engine{}
	e.Reload(rules)
	return e
}

// NewDefaultEngine creates an engine with the built-in rule table.
func NewDefaultEngine() *Engine {
	return NewEngine(DefaultRules())
}

// Reload replaces the rule set. Lookups in flight keep matching against the
// old set; later lookups see the new one.
func (e *Engine) Reload(rules []Rule) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		patterns := make([]string, 0, len(r.Patterns))
		for _, p := range r.Patterns {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" {
				patterns = append(patterns, p)
			}
		}
		if len(patterns) == 0 || r.Category == "" {
			continue
		}
		compiled = append(compiled, compiledRule{patterns: patterns, category: r.Category})
	}

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
}

// Len returns the number of active rules.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Match classifies a name, optionally with surrounding context text.
// Returns the first matching rule's category, or false if no rule matches.
func (e *Engine) Match(name, contextText string) (category.Category, bool) {
	combined := name
	if contextText != "" {
		combined += " " + contextText
	}
	if len(combined) > maxInputLength {
		combined = combined[:maxInputLength]
	}
	combined = strings.ToLower(combined)

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, rule := range e.rules {
		for _, p := range rule.patterns {
			if strings.Contains(combined, p) {
				return rule.category, true
			}
		}
	}
	return "", false
}

// DefaultRules returns the built-in rule table. More specific patterns are
// listed first to avoid shadowing by broad ones.
func DefaultRules() []Rule {
	return []Rule{
		{Patterns: []string{"starbucks", "coffee", "cafe", "espresso", "tea house"}, Category: "Cafe"},
		{Patterns: []string{"mcdonald", "burger", "pizza", "kitchen", "restaurant", "grill", "bbq", "sushi", "diner", "bakery", "chicken"}, Category: "Food"},
		{Patterns: []string{"supermarket", "grocery", "market", "mart ", "fresh foods"}, Category: "Groceries"},
		{Patterns: []string{"uber", "taxi", "metro", "railway", "rail ", "bus terminal", "parking", "gas station", "fuel", "toll"}, Category: "Transport"},
		{Patterns: []string{"pharmacy", "clinic", "hospital", "dental", "optical"}, Category: "Health"},
		{Patterns: []string{"cinema", "theater", "theatre", "karaoke", "arcade", "bowling"}, Category: "Entertainment"},
		{Patterns: []string{"hotel", "hostel", "resort", "airline", "airways", "airport"}, Category: "Travel"},
		{Patterns: []string{"electric", "water supply", "gas works", "telecom", "mobile plan", "internet"}, Category: "Utilities"},
		{Patterns: []string{"netflix", "spotify", "prime video", "subscription"}, Category: "Subscriptions"},
		{Patterns: []string{"bookstore", "academy", "tuition", "library"}, Category: "Education"},
		{Patterns: []string{"bank", "insurance", "securities", "atm fee"}, Category: "Finance"},
		{Patterns: []string{"outlet", "department store", "boutique", "store", "shop"}, Category: "Shopping"},
	}
}
