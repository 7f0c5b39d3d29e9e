package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/Strob0t/VizForge/internal/domain/task"
	"github.com/Strob0t/VizForge/internal/port/agent"
	"github.com/Strob0t/VizForge/internal/port/llm"
)

// EvalAgent judges whether a produced chart satisfies the request.
type EvalAgent struct {
	client llm.Client
	model  string
}

// NewEvalAgent creates an evaluation agent.
func NewEvalAgent(client llm.Client, model string) *EvalAgent {
	return &EvalAgent{client: client, model: model}
}

// Evaluate prompts the model with the request, the script, and the
// produced Vega-Lite spec, and parses the JSON verdict. Malformed JSON
// is repaired before being treated as a generation failure.
func (a *EvalAgent) Evaluate(ctx context.Context, ec agent.EvalContext) (task.EvaluationVerdict, error) {
	msg := llm.Message{Role: "user", Content: a.prompt(ec)}
	if ec.Task.ReferenceImage != "" {
		url, err := encodeImageURL(ec.Task.ReferenceImage)
		if err != nil {
			return task.EvaluationVerdict{}, fmt.Errorf("%w: %v", task.ErrFatalConfig, err)
		}
		msg.ImageURL = url
	}

	resp, err := a.client.Complete(ctx, llm.Request{
		Model:    a.model,
		Messages: []llm.Message{msg},
	})
	if err != nil {
		return task.EvaluationVerdict{}, fmt.Errorf("evaluation completion: %w", err)
	}

	verdict, err := parseVerdict(resp)
	if err != nil {
		return task.EvaluationVerdict{}, fmt.Errorf("%w: %v", task.ErrCodeGeneration, err)
	}
	return verdict, nil
}

// parseVerdict decodes the verdict JSON. Models wrap verdicts in fences
// or emit trailing commas often enough that both a fence strip and a
// jsonrepair pass run before giving up.
func parseVerdict(resp string) (task.EvaluationVerdict, error) {
	text := resp
	if body, err := extractFence(resp, "json"); err == nil {
		text = body
	}
	text = strings.TrimSpace(text)

	var v task.EvaluationVerdict
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, nil
	}

	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return task.EvaluationVerdict{}, fmt.Errorf("verdict is not JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return task.EvaluationVerdict{}, fmt.Errorf("repaired verdict is not a verdict object: %w", err)
	}
	return v, nil
}

func (a *EvalAgent) prompt(ec agent.EvalContext) string {
	var b strings.Builder
	b.WriteString("You are a data visualization expert who specializes in Altair for Python. Evaluate whether the visualization below satisfies the user's request.\n\n")
	b.WriteString("USER QUERY:\n")
	b.WriteString(ec.Task.Request)
	b.WriteString("\n\nVISUALIZATION CODE:\n```python\n")
	b.WriteString(ec.Code)
	b.WriteString("\n```\n\nPRODUCED CHART (Vega-Lite spec):\n```json\n")
	b.Write(ec.ChartJSON)
	b.WriteString("\n```\n")

	if ec.Task.ReferenceCode != "" {
		b.WriteString("\nREFERENCE CODE:\n```python\n")
		b.WriteString(ec.Task.ReferenceCode)
		b.WriteString("\n```\n")
	}
	if ec.Task.ReferenceImage != "" {
		b.WriteString("\nREFERENCE IMAGE:\nThe user provided a reference image that the visualization should stylistically match.\n")
	}
	if ec.Task.ExistingCode != "" {
		b.WriteString("\nEXISTING CODE (that was being modified):\n```python\n")
		b.WriteString(ec.Task.ExistingCode)
		b.WriteString("\n```\n")
	}

	b.WriteString(`
Evaluate the chart against these criteria:
1. Does it correctly address the user's requirements?
2. Is the visualization appropriate for the data and task?
3. Does it match the style of any provided reference?

Respond with ONLY a JSON object in this exact shape, nothing else:
{"satisfied": <true|false>, "mismatch_notes": ["<what is wrong>"], "suggested_fixes": ["<concrete change>"]}

When satisfied is true, mismatch_notes and suggested_fixes must be empty arrays.
`)
	return b.String()
}
