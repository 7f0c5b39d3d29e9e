// Package agent defines the ports for the three LLM-backed task agents.
// Each agent exposes a fixed, closed set of operations; the coordinator
// never dispatches dynamically.
package agent

import (
	"context"

	"github.com/Strob0t/VizForge/internal/domain/repair"
	"github.com/Strob0t/VizForge/internal/domain/task"
)

// SQLContext carries everything the SQL agent needs for one attempt.
type SQLContext struct {
	Task task.Task
	// PriorError is the database error from the previous attempt, empty
	// on the first one.
	PriorError string
}

// SQLGenerator produces a SQL query extracting the data for a request.
type SQLGenerator interface {
	GenerateSQL(ctx context.Context, sc SQLContext) (string, error)
}

// CodeContext carries everything the code agent needs for one attempt.
type CodeContext struct {
	Task task.Task
	SQL  string
	// Columns and Rows are the query result the script visualizes. The
	// generated script receives the data inline so the sandbox never
	// needs database access.
	Columns []string
	Rows    [][]string
	// PriorArtifact is the last generated script; set on repair entries
	// and for modify-type initial generation (the existing code).
	PriorArtifact string
	// Repair is the planner's instruction; nil on the initial attempt.
	Repair *repair.Instruction
}

// CodeGenerator produces or modifies a visualization script.
type CodeGenerator interface {
	GenerateCode(ctx context.Context, cc CodeContext) (string, error)
}

// EvalContext carries a successful execution for judgment.
type EvalContext struct {
	Task      task.Task
	Code      string
	ChartJSON []byte
}

// Evaluator judges whether the produced chart satisfies the request.
type Evaluator interface {
	Evaluate(ctx context.Context, ec EvalContext) (task.EvaluationVerdict, error)
}
