package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/Strob0t/VizForge/internal/domain/task"
	"github.com/Strob0t/VizForge/internal/port/agent"
	"github.com/Strob0t/VizForge/internal/port/database"
)

type sqlGenFunc func(context.Context, agent.SQLContext) (string, error)

func (f sqlGenFunc) GenerateSQL(ctx context.Context, sc agent.SQLContext) (string, error) {
	return f(ctx, sc)
}

type codeGenFunc func(context.Context, agent.CodeContext) (string, error)

func (f codeGenFunc) GenerateCode(ctx context.Context, cc agent.CodeContext) (string, error) {
	return f(ctx, cc)
}

type evalFunc func(context.Context, agent.EvalContext) (task.EvaluationVerdict, error)

func (f evalFunc) Evaluate(ctx context.Context, ec agent.EvalContext) (task.EvaluationVerdict, error) {
	return f(ctx, ec)
}

type execFunc func(context.Context, task.CodeArtifact) (task.ExecutionOutcome, error)

func (f execFunc) Execute(ctx context.Context, a task.CodeArtifact) (task.ExecutionOutcome, error) {
	return f(ctx, a)
}

// queryInspector implements the database port with a scripted RunQuery.
type queryInspector struct {
	run      func(query string) (database.Rows, error)
	runCalls int
}

func (q *queryInspector) ListTables(context.Context, string) ([]string, error) { return nil, nil }
func (q *queryInspector) GetSchema(context.Context, string, string) ([]database.Column, error) {
	return nil, nil
}
func (q *queryInspector) GetSampleRows(context.Context, string, string, int) (database.Rows, error) {
	return database.Rows{}, nil
}
func (q *queryInspector) GetForeignKeys(context.Context, string, string) ([]database.ForeignKey, error) {
	return nil, nil
}
func (q *queryInspector) RunQuery(_ context.Context, _, query string) (database.Rows, error) {
	q.runCalls++
	return q.run(query)
}

func okRows() database.Rows {
	return database.Rows{Columns: []string{"month", "n"}, Values: [][]string{{"jan", "3"}}}
}

func okOutcome(a task.CodeArtifact) task.ExecutionOutcome {
	return task.ExecutionOutcome{
		Artifact:  a,
		Status:    task.ExecOK,
		ChartJSON: []byte(`{"mark":"bar","title":"Signups"}`),
	}
}

func satisfied(context.Context, agent.EvalContext) (task.EvaluationVerdict, error) {
	return task.EvaluationVerdict{Satisfied: true}, nil
}

func newTestCoordinator(t *testing.T, sg agent.SQLGenerator, cg agent.CodeGenerator, ev agent.Evaluator, insp database.Inspector, ex Executor, cfg CoordinatorConfig) *Coordinator {
	t.Helper()
	if cfg.OutputDir == "" {
		cfg.OutputDir = t.TempDir()
	}
	return NewCoordinator(sg, cg, ev, insp, ex, nil, cfg, nil)
}

func TestCoordinatorHappyPath(t *testing.T) {
	insp := &queryInspector{run: func(string) (database.Rows, error) { return okRows(), nil }}
	c := newTestCoordinator(t,
		sqlGenFunc(func(_ context.Context, sc agent.SQLContext) (string, error) {
			return "SELECT month, n FROM signups", nil
		}),
		codeGenFunc(func(_ context.Context, cc agent.CodeContext) (string, error) {
			if cc.SQL == "" || len(cc.Rows) == 0 {
				t.Error("code context missing sql result")
			}
			return "chart = alt.Chart(df).mark_bar()", nil
		}),
		evalFunc(satisfied),
		insp,
		execFunc(func(_ context.Context, a task.CodeArtifact) (task.ExecutionOutcome, error) {
			return okOutcome(a), nil
		}),
		CoordinatorConfig{},
	)

	res := c.Run(context.Background(), task.Task{Request: "signups per month", Database: "shop"})

	if res.FinalStatus != task.StatusSuccess {
		t.Fatalf("status = %s, reason = %s", res.FinalStatus, res.FatalReason)
	}
	if res.TaskID == "" {
		t.Error("task id not assigned")
	}
	if res.Type != task.TypePlainQuery {
		t.Errorf("type = %s", res.Type)
	}
	if res.IterationsUsed != 0 {
		t.Errorf("iterations = %d", res.IterationsUsed)
	}
	if len(res.SQLHistory) != 1 || !res.SQLHistory[0].Success {
		t.Fatalf("sql history = %+v", res.SQLHistory)
	}
	if len(res.CodeHistory) != 1 || res.CodeHistory[0].Origin != task.OriginInitial {
		t.Fatalf("code history = %+v", res.CodeHistory)
	}

	data, err := os.ReadFile(res.FinalChartPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Signups") {
		t.Fatalf("chart file = %s", data)
	}
	if !strings.HasSuffix(res.FinalChartPath, res.TaskID+".vega.json") {
		t.Errorf("chart path = %s", res.FinalChartPath)
	}
}

func TestCoordinatorRetriesSQLWithErrorFeedback(t *testing.T) {
	var seenPrior []string
	insp := &queryInspector{run: func(query string) (database.Rows, error) {
		if strings.Contains(query, "monht") {
			return database.Rows{}, errors.New(`column "monht" does not exist`)
		}
		return okRows(), nil
	}}

	attempt := 0
	c := newTestCoordinator(t,
		sqlGenFunc(func(_ context.Context, sc agent.SQLContext) (string, error) {
			seenPrior = append(seenPrior, sc.PriorError)
			attempt++
			if attempt == 1 {
				return "SELECT monht FROM signups", nil
			}
			return "SELECT month FROM signups", nil
		}),
		codeGenFunc(func(context.Context, agent.CodeContext) (string, error) { return "chart = 1", nil }),
		evalFunc(satisfied),
		insp,
		execFunc(func(_ context.Context, a task.CodeArtifact) (task.ExecutionOutcome, error) {
			return okOutcome(a), nil
		}),
		CoordinatorConfig{},
	)

	res := c.Run(context.Background(), task.Task{Request: "r", Database: "shop"})

	if res.FinalStatus != task.StatusSuccess {
		t.Fatalf("status = %s", res.FinalStatus)
	}
	if len(res.SQLHistory) != 2 {
		t.Fatalf("sql history = %+v", res.SQLHistory)
	}
	if res.SQLHistory[0].Success || !strings.Contains(res.SQLHistory[0].Error, "monht") {
		t.Errorf("first attempt = %+v", res.SQLHistory[0])
	}
	if !res.SQLHistory[1].Success {
		t.Errorf("second attempt = %+v", res.SQLHistory[1])
	}
	if seenPrior[0] != "" || !strings.Contains(seenPrior[1], "monht") {
		t.Errorf("prior errors = %q", seenPrior)
	}
}

func TestCoordinatorSQLBudgetExhaustionIsFatal(t *testing.T) {
	insp := &queryInspector{run: func(string) (database.Rows, error) {
		return database.Rows{}, errors.New("syntax error")
	}}
	c := newTestCoordinator(t,
		sqlGenFunc(func(context.Context, agent.SQLContext) (string, error) { return "SELECT broken", nil }),
		codeGenFunc(func(context.Context, agent.CodeContext) (string, error) {
			t.Error("code generation must not run without a working query")
			return "", nil
		}),
		evalFunc(satisfied),
		insp,
		execFunc(func(_ context.Context, a task.CodeArtifact) (task.ExecutionOutcome, error) {
			return okOutcome(a), nil
		}),
		CoordinatorConfig{SQLAttempts: 2},
	)

	res := c.Run(context.Background(), task.Task{Request: "r", Database: "shop"})

	if res.FinalStatus != task.StatusFatalError {
		t.Fatalf("status = %s", res.FinalStatus)
	}
	if insp.runCalls != 2 {
		t.Errorf("query attempts = %d, want 2", insp.runCalls)
	}
	if len(res.SQLHistory) != 2 {
		t.Errorf("sql history = %+v", res.SQLHistory)
	}
	if !strings.Contains(res.FatalReason, "no working query") {
		t.Errorf("fatal reason = %q", res.FatalReason)
	}
}

func TestCoordinatorModifySkipsSQLStates(t *testing.T) {
	insp := &queryInspector{run: func(string) (database.Rows, error) {
		return database.Rows{}, errors.New("must not be called")
	}}
	var gotExisting string
	c := newTestCoordinator(t,
		sqlGenFunc(func(context.Context, agent.SQLContext) (string, error) {
			t.Error("sql generation must not run for modify tasks")
			return "", nil
		}),
		codeGenFunc(func(_ context.Context, cc agent.CodeContext) (string, error) {
			gotExisting = cc.Task.ExistingCode
			return "chart = alt.Chart(df).mark_line(angle=45)", nil
		}),
		evalFunc(satisfied),
		insp,
		execFunc(func(_ context.Context, a task.CodeArtifact) (task.ExecutionOutcome, error) {
			return okOutcome(a), nil
		}),
		CoordinatorConfig{},
	)

	res := c.Run(context.Background(), task.Task{
		Request:      "rotate x-axis labels",
		Database:     "shop",
		ExistingCode: "chart = alt.Chart(df).mark_line()",
	})

	if res.FinalStatus != task.StatusSuccess {
		t.Fatalf("status = %s, reason = %s", res.FinalStatus, res.FatalReason)
	}
	if res.Type != task.TypeModify {
		t.Errorf("type = %s", res.Type)
	}
	if len(res.SQLHistory) != 0 {
		t.Errorf("sql history = %+v", res.SQLHistory)
	}
	if insp.runCalls != 0 {
		t.Errorf("inspector hit %d times", insp.runCalls)
	}
	if gotExisting != "chart = alt.Chart(df).mark_line()" {
		t.Errorf("existing code = %q", gotExisting)
	}
	if len(res.CodeHistory) != 1 || res.CodeHistory[0].Iteration != 0 {
		t.Errorf("code history = %+v", res.CodeHistory)
	}
}

func TestCoordinatorRepairsTimeout(t *testing.T) {
	insp := &queryInspector{run: func(string) (database.Rows, error) { return okRows(), nil }}

	genCalls := 0
	c := newTestCoordinator(t,
		sqlGenFunc(func(context.Context, agent.SQLContext) (string, error) { return "SELECT 1", nil }),
		codeGenFunc(func(_ context.Context, cc agent.CodeContext) (string, error) {
			genCalls++
			if genCalls == 1 {
				if cc.Repair != nil {
					t.Error("initial attempt must not carry a repair instruction")
				}
				return "while True: pass", nil
			}
			if cc.Repair == nil {
				t.Fatal("repair attempt missing instruction")
			}
			if !strings.Contains(cc.Repair.ProblemSummary, "time limit") {
				t.Errorf("problem summary = %q", cc.Repair.ProblemSummary)
			}
			if cc.PriorArtifact != "while True: pass" {
				t.Errorf("prior artifact = %q", cc.PriorArtifact)
			}
			return "chart = 1", nil
		}),
		evalFunc(satisfied),
		insp,
		execFunc(func(_ context.Context, a task.CodeArtifact) (task.ExecutionOutcome, error) {
			if strings.Contains(a.Source, "while True") {
				return task.ExecutionOutcome{Artifact: a, Status: task.ExecTimeout}, nil
			}
			return okOutcome(a), nil
		}),
		CoordinatorConfig{},
	)

	res := c.Run(context.Background(), task.Task{Request: "r", Database: "shop"})

	if res.FinalStatus != task.StatusSuccess {
		t.Fatalf("status = %s", res.FinalStatus)
	}
	if res.IterationsUsed != 1 {
		t.Errorf("iterations = %d", res.IterationsUsed)
	}
	if len(res.CodeHistory) != 2 {
		t.Fatalf("code history = %+v", res.CodeHistory)
	}
	if res.CodeHistory[1].Origin != task.OriginRepaired || res.CodeHistory[1].Iteration != 1 {
		t.Errorf("repaired artifact = %+v", res.CodeHistory[1])
	}
}

func TestCoordinatorGivesUpAtBudget(t *testing.T) {
	insp := &queryInspector{run: func(string) (database.Rows, error) { return okRows(), nil }}
	c := newTestCoordinator(t,
		sqlGenFunc(func(context.Context, agent.SQLContext) (string, error) { return "SELECT 1", nil }),
		codeGenFunc(func(_ context.Context, cc agent.CodeContext) (string, error) {
			return fmt.Sprintf("attempt_%v = 1", cc.Repair != nil), nil
		}),
		evalFunc(satisfied),
		insp,
		execFunc(func(_ context.Context, a task.CodeArtifact) (task.ExecutionOutcome, error) {
			return task.ExecutionOutcome{
				Artifact:  a,
				Status:    task.ExecRuntimeError,
				ErrorKind: "KeyError",
				ErrorText: "KeyError: 'month'",
			}, nil
		}),
		CoordinatorConfig{MaxIterations: 2},
	)

	res := c.Run(context.Background(), task.Task{Request: "r", Database: "shop"})

	if res.FinalStatus != task.StatusGaveUp {
		t.Fatalf("status = %s", res.FinalStatus)
	}
	if res.IterationsUsed != 2 {
		t.Errorf("iterations = %d", res.IterationsUsed)
	}
	// Initial attempt plus one artifact per repair iteration.
	if len(res.CodeHistory) != 3 {
		t.Fatalf("code history length = %d", len(res.CodeHistory))
	}
	if res.FinalChartPath != "" {
		t.Errorf("no chart was ever produced, path = %q", res.FinalChartPath)
	}
}

func TestCoordinatorGiveUpKeepsBestChart(t *testing.T) {
	insp := &queryInspector{run: func(string) (database.Rows, error) { return okRows(), nil }}
	c := newTestCoordinator(t,
		sqlGenFunc(func(context.Context, agent.SQLContext) (string, error) { return "SELECT 1", nil }),
		codeGenFunc(func(context.Context, agent.CodeContext) (string, error) { return "chart = 1", nil }),
		evalFunc(func(context.Context, agent.EvalContext) (task.EvaluationVerdict, error) {
			return task.EvaluationVerdict{
				Satisfied:     false,
				MismatchNotes: []string{"wrong mark type"},
				SuggestedFix:  []string{"use mark_point"},
			}, nil
		}),
		insp,
		execFunc(func(_ context.Context, a task.CodeArtifact) (task.ExecutionOutcome, error) {
			return okOutcome(a), nil
		}),
		CoordinatorConfig{MaxIterations: 1},
	)

	res := c.Run(context.Background(), task.Task{Request: "r", Database: "shop"})

	if res.FinalStatus != task.StatusGaveUp {
		t.Fatalf("status = %s", res.FinalStatus)
	}
	if res.FinalChartPath == "" {
		t.Fatal("expected the last rendered chart to be kept")
	}
	if _, err := os.Stat(res.FinalChartPath); err != nil {
		t.Fatal(err)
	}
}

func TestCoordinatorTransportFailureIsFatal(t *testing.T) {
	insp := &queryInspector{run: func(string) (database.Rows, error) { return okRows(), nil }}
	execCalls := 0
	c := newTestCoordinator(t,
		sqlGenFunc(func(context.Context, agent.SQLContext) (string, error) { return "SELECT 1", nil }),
		codeGenFunc(func(context.Context, agent.CodeContext) (string, error) {
			return "", fmt.Errorf("code completion: %w", task.ErrTransport)
		}),
		evalFunc(satisfied),
		insp,
		execFunc(func(_ context.Context, a task.CodeArtifact) (task.ExecutionOutcome, error) {
			execCalls++
			return okOutcome(a), nil
		}),
		CoordinatorConfig{},
	)

	res := c.Run(context.Background(), task.Task{Request: "r", Database: "shop"})

	if res.FinalStatus != task.StatusFatalError {
		t.Fatalf("status = %s", res.FinalStatus)
	}
	if execCalls != 0 {
		t.Error("executor ran after a transport failure")
	}
	if !strings.Contains(res.FatalReason, "transport") {
		t.Errorf("fatal reason = %q", res.FatalReason)
	}
}

func TestCoordinatorMalformedResponseIsRepairable(t *testing.T) {
	insp := &queryInspector{run: func(string) (database.Rows, error) { return okRows(), nil }}
	genCalls := 0
	c := newTestCoordinator(t,
		sqlGenFunc(func(context.Context, agent.SQLContext) (string, error) { return "SELECT 1", nil }),
		codeGenFunc(func(_ context.Context, cc agent.CodeContext) (string, error) {
			genCalls++
			if genCalls == 1 {
				return "", fmt.Errorf("%w: response contains no ```python fence", task.ErrCodeGeneration)
			}
			if cc.Repair == nil || !strings.Contains(cc.Repair.ProblemSummary, "could not be parsed") {
				t.Errorf("repair instruction = %+v", cc.Repair)
			}
			return "chart = 1", nil
		}),
		evalFunc(satisfied),
		insp,
		execFunc(func(_ context.Context, a task.CodeArtifact) (task.ExecutionOutcome, error) {
			return okOutcome(a), nil
		}),
		CoordinatorConfig{},
	)

	res := c.Run(context.Background(), task.Task{Request: "r", Database: "shop"})

	if res.FinalStatus != task.StatusSuccess {
		t.Fatalf("status = %s, reason = %s", res.FinalStatus, res.FatalReason)
	}
	if res.IterationsUsed != 1 {
		t.Errorf("iterations = %d", res.IterationsUsed)
	}
	// The malformed attempt produced no artifact.
	if len(res.CodeHistory) != 1 {
		t.Errorf("code history = %+v", res.CodeHistory)
	}
}
