package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/VizForge/internal/domain/task"
	"github.com/Strob0t/VizForge/internal/port/agent"
	"github.com/Strob0t/VizForge/internal/port/llm"
)

// promptRowLimit bounds how many data rows the code prompt inlines.
// The full result set never travels through the model; the script gets
// a representative slice plus the total count.
const promptRowLimit = 200

// CodeAgent generates and repairs visualization scripts.
type CodeAgent struct {
	client llm.Client
	model  string
}

// NewCodeAgent creates a code generation agent.
func NewCodeAgent(client llm.Client, model string) *CodeAgent {
	return &CodeAgent{client: client, model: model}
}

// GenerateCode prompts the model for a complete Altair script and
// extracts the ```python fence. The prompt varies with the task type
// and carries the repair instruction on retry attempts.
func (a *CodeAgent) GenerateCode(ctx context.Context, cc agent.CodeContext) (string, error) {
	prompt, err := a.prompt(cc)
	if err != nil {
		return "", err
	}

	msg := llm.Message{Role: "user", Content: prompt}
	if cc.Task.ReferenceImage != "" {
		url, err := encodeImageURL(cc.Task.ReferenceImage)
		if err != nil {
			return "", fmt.Errorf("%w: %v", task.ErrFatalConfig, err)
		}
		msg.ImageURL = url
	}

	resp, err := a.client.Complete(ctx, llm.Request{
		Model:    a.model,
		Messages: []llm.Message{msg},
	})
	if err != nil {
		return "", fmt.Errorf("code completion: %w", err)
	}

	source, err := extractFence(resp, "python")
	if err != nil {
		return "", fmt.Errorf("%w: %v", task.ErrCodeGeneration, err)
	}
	return source, nil
}

func (a *CodeAgent) prompt(cc agent.CodeContext) (string, error) {
	records, total, err := dataRecords(cc.Columns, cc.Rows)
	if err != nil {
		return "", fmt.Errorf("encode data records: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a data visualization expert who specializes in Altair for Python. Create an Altair visualization based on the data and requirements below.\n\n")

	if cc.SQL != "" {
		b.WriteString("SQL QUERY (already executed; its result is inlined below):\n")
		b.WriteString(cc.SQL)
		b.WriteString("\n\n")
	}
	if records != "" {
		fmt.Fprintf(&b, "DATA (JSON records, %d of %d rows):\n", min(total, promptRowLimit), total)
		b.WriteString(records)
		b.WriteString("\n\n")
	}
	b.WriteString("USER QUERY:\n")
	b.WriteString(cc.Task.Request)
	b.WriteString("\n")

	switch cc.Task.Type {
	case task.TypeCodeRef:
		b.WriteString("\nREFERENCE CODE:\n")
		b.WriteString(cc.Task.ReferenceCode)
		b.WriteString("\nUse this reference code as inspiration for your visualization style and approach. Adapt it to work with the current data and requirements.\n")
	case task.TypeImageRef:
		b.WriteString("\nREFERENCE IMAGE:\nThe user has provided a reference image. Create a visualization that matches the style and approach shown in the reference image.\n")
	case task.TypeModify:
		b.WriteString("\nEXISTING CODE:\n")
		b.WriteString(cc.Task.ExistingCode)
		b.WriteString("\nModify this existing code to meet the new requirements while maintaining its overall structure.\n")
	}

	if cc.Repair != nil {
		b.WriteString("\nPREVIOUS ATTEMPT:\n```python\n")
		b.WriteString(cc.PriorArtifact)
		b.WriteString("\n```\n\nPROBLEM WITH THE PREVIOUS ATTEMPT:\n")
		b.WriteString(cc.Repair.ProblemSummary)
		if len(cc.Repair.SuggestedChanges) > 0 {
			b.WriteString("\n\nREQUIRED CHANGES:\n")
			for _, change := range cc.Repair.SuggestedChanges {
				b.WriteString("- ")
				b.WriteString(change)
				b.WriteString("\n")
			}
		}
		b.WriteString("\nProduce a corrected complete script.\n")
	}

	b.WriteString(`
Generate a complete Python script with Altair that:
1. Builds a pandas DataFrame from the inlined data records
2. Creates the appropriate visualization with Altair
3. Sets appropriate titles, labels, colors, and interactive elements
4. Optimizes the visualization appearance for readability
5. Includes any necessary imports and the complete code

IMPORTANT REQUIREMENTS:
1. DO NOT use try-except blocks or any other exception handling code
2. DO NOT include any error handling or defensive programming
3. Write the code assuming the data and inputs are valid
4. Keep the code simple and straightforward
5. Bind the finished chart to a variable named chart

Your response should be ONLY the Python code, nothing else. Do not include explanations before or after the code.

Please use the following format for your response:
` + "```python\nimport altair as alt\nimport pandas as pd\n\ndf = pd.DataFrame(<DATA RECORDS>)\n<DATA PROCESSING>\nchart = alt.Chart(df).mark_<MARK_TYPE>().encode(\n    x='<X_AXIS>',\n    y='<Y_AXIS>',\n    ...\n)\n```\n")
	return b.String(), nil
}

// dataRecords renders the query result as a JSON array of objects,
// truncated to promptRowLimit rows. Returns the encoded slice and the
// total row count.
func dataRecords(columns []string, rows [][]string) (string, int, error) {
	if len(columns) == 0 || len(rows) == 0 {
		return "", 0, nil
	}

	total := len(rows)
	limit := min(total, promptRowLimit)
	records := make([]map[string]string, 0, limit)
	for _, row := range rows[:limit] {
		rec := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}

	data, err := json.Marshal(records)
	if err != nil {
		return "", 0, err
	}
	return string(data), total, nil
}
