// Package chart models Vega-Lite chart specs produced by executed
// artifacts and selects the final chart among several candidates.
package chart

import (
	"encoding/json"
	"fmt"
)

// compositionKeys are the Vega-Lite composition operators. A spec using
// any of them is a composite view.
var compositionKeys = []string{"layer", "hconcat", "vconcat", "concat"}

// Candidate is one chart-capable value dumped by the sandbox harness,
// in declaration order.
type Candidate struct {
	// Name is the variable the chart was bound to in the executed script.
	Name string
	// Spec is the raw Vega-Lite document.
	Spec map[string]any
	// Order is the declaration index within the executed namespace.
	Order int
}

// ParseCandidate decodes a harness-emitted spec document.
func ParseCandidate(name string, order int, data []byte) (Candidate, error) {
	var spec map[string]any
	if err := json.Unmarshal(data, &spec); err != nil {
		return Candidate{}, fmt.Errorf("chart %s: parse spec: %w", name, err)
	}
	return Candidate{Name: name, Spec: spec, Order: order}, nil
}

// HasTitle reports whether the spec carries a non-empty title. Vega-Lite
// allows both a plain string and a {"text": ...} object.
func (c Candidate) HasTitle() bool {
	switch t := c.Spec["title"].(type) {
	case string:
		return t != ""
	case map[string]any:
		if s, ok := t["text"].(string); ok {
			return s != ""
		}
		return len(t) > 0
	default:
		return false
	}
}

// Complexity counts the leaf views in the spec. A single-mark chart
// scores 1; layered or concatenated charts score the sum of their
// subviews, so composites always outrank simple charts.
func (c Candidate) Complexity() int {
	return countViews(c.Spec)
}

func countViews(spec map[string]any) int {
	total := 0
	for _, key := range compositionKeys {
		children, ok := spec[key].([]any)
		if !ok {
			continue
		}
		for _, child := range children {
			if sub, ok := child.(map[string]any); ok {
				total += countViews(sub)
			}
		}
	}
	// Faceted specs wrap a single subview under "spec".
	if sub, ok := spec["spec"].(map[string]any); ok {
		total += countViews(sub)
	}
	if total == 0 {
		return 1
	}
	return total
}

// MarshalSpec renders the candidate's spec as JSON for persistence.
func (c Candidate) MarshalSpec() ([]byte, error) {
	data, err := json.MarshalIndent(c.Spec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("chart %s: marshal spec: %w", c.Name, err)
	}
	return data, nil
}
