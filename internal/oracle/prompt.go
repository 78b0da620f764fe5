package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/spendcat/internal/category"
)

// ErrMalformedResponse indicates a model response with no parseable JSON.
var ErrMalformedResponse = errors.New("malformed oracle response")

// buildPrompt renders the classification instruction for one chunk.
// The model answers with a strict JSON object so parsing needs no
// reflection-style guessing over response shapes.
func buildPrompt(names []string, categories []category.Category) string {
	var b strings.Builder

	b.WriteString("You classify merchant and store names into spending categories.\n")
	b.WriteString("Allowed categories:\n")
	for _, cat := range categories {
		b.WriteString("- ")
		b.WriteString(string(cat))
		b.WriteByte('\n')
	}
	b.WriteString("\nClassify each of the following names. Respond with a single JSON object\n")
	b.WriteString("mapping every name to exactly one allowed category. Use \"")
	b.WriteString(string(category.Unclassified))
	b.WriteString("\" when you cannot tell. No other text.\n\nNames:\n")
	for _, name := range names {
		b.WriteString("- ")
		b.WriteString(name)
		b.WriteByte('\n')
	}

	return b.String()
}

// parseResponse extracts the JSON object from a model response and keeps
// only entries for requested names mapped to allowed categories. Entries
// the model marked unclassified are dropped: an absent key already means
// unresolved.
func parseResponse(response string, names []string, categories []category.Category) (map[string]category.Category, error) {
	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	allowed := make(map[category.Category]struct{}, len(categories))
	for _, cat := range categories {
		allowed[cat] = struct{}{}
	}
	requested := make(map[string]struct{}, len(names))
	for _, name := range names {
		requested[name] = struct{}{}
	}

	results := make(map[string]category.Category, len(raw))
	for name, value := range raw {
		if _, ok := requested[name]; !ok {
			continue
		}
		cat := category.Category(strings.TrimSpace(value))
		if !cat.IsClassified() {
			continue
		}
		if _, ok := allowed[cat]; !ok {
			continue
		}
		results[name] = cat
	}
	return results, nil
}
