// Package agent implements the three LLM-backed task agents: SQL
// generation, visualization-code generation, and chart evaluation.
package agent

import (
	"fmt"
	"strings"
)

// extractFence returns the body of the first ```lang fenced block in
// text. Models occasionally drop the language tag, so a bare ``` fence
// on its own line is accepted as a fallback.
func extractFence(text, lang string) (string, error) {
	if body, ok := fenceBody(text, "```"+lang); ok {
		return body, nil
	}
	if body, ok := fenceBody(text, "```\n"); ok {
		return body, nil
	}
	return "", fmt.Errorf("response contains no ```%s fence", lang)
}

func fenceBody(text, open string) (string, bool) {
	start := strings.Index(text, open)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(open):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	body := strings.TrimSpace(rest[:end])
	if body == "" {
		return "", false
	}
	return body, true
}
