package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/Strob0t/VizForge/internal/domain/task"
	"github.com/Strob0t/VizForge/internal/port/agent"
	"github.com/Strob0t/VizForge/internal/port/llm"
)

// SQLAgent generates the data-extraction query for a task.
type SQLAgent struct {
	client llm.Client
	schema *SchemaRenderer
	model  string
}

// NewSQLAgent creates a SQL generation agent.
func NewSQLAgent(client llm.Client, schema *SchemaRenderer, model string) *SQLAgent {
	return &SQLAgent{client: client, schema: schema, model: model}
}

// GenerateSQL renders the database schema, prompts the model, and
// extracts the ```sql fence from the response. A response without a
// fence is a repairable generation failure.
func (a *SQLAgent) GenerateSQL(ctx context.Context, sc agent.SQLContext) (string, error) {
	md, err := a.schema.Render(ctx, sc.Task.Database)
	if err != nil {
		return "", fmt.Errorf("schema snapshot: %w", err)
	}

	msg := llm.Message{Role: "user", Content: a.prompt(sc, md)}
	if sc.Task.ReferenceImage != "" {
		url, err := encodeImageURL(sc.Task.ReferenceImage)
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
		return "", fmt.Errorf("sql completion: %w", err)
	}

	query, err := extractFence(resp, "sql")
	if err != nil {
		return "", fmt.Errorf("%w: %v", task.ErrSQLGeneration, err)
	}
	return query, nil
}

func (a *SQLAgent) prompt(sc agent.SQLContext, schemaMD string) string {
	var b strings.Builder
	b.WriteString("You are a SQL expert. Based on the database schema and the user's request, generate an appropriate SQL query.\n\n")
	b.WriteString("DATABASE SCHEMA:\n")
	b.WriteString(schemaMD)
	b.WriteString("\nUSER QUERY:\n")
	b.WriteString(sc.Task.Request)
	b.WriteString("\n")

	if sc.Task.ReferenceCode != "" {
		b.WriteString("\nREFERENCE CODE:\n")
		b.WriteString(sc.Task.ReferenceCode)
		b.WriteString("\n")
	}
	if sc.Task.ReferenceImage != "" {
		b.WriteString("\nREFERENCE IMAGE:\nThe user has provided a reference image. Consider the visualization style shown in the image when selecting columns.\n")
	}
	if sc.PriorError != "" {
		b.WriteString("\nPREVIOUS ATTEMPT FAILED:\nThe last query was rejected by the database with this error:\n")
		b.WriteString(sc.PriorError)
		b.WriteString("\nGenerate a corrected query that avoids this error.\n")
	}

	b.WriteString("\nGenerate ONLY the SQL query needed to extract the data for this visualization.\n")
	b.WriteString("Your response should be ONLY the SQL query, nothing else.\n\n")
	b.WriteString("Please use the following format for your response:\n```sql\n<SQL QUERY>\n```\n")
	return b.String()
}
