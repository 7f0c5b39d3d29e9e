// Package service orchestrates visualization tasks: the per-task
// coordinator state machine and the batch driver on top of it.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	vfotel "github.com/Strob0t/VizForge/internal/adapter/otel"
	"github.com/Strob0t/VizForge/internal/domain/repair"
	"github.com/Strob0t/VizForge/internal/domain/task"
	"github.com/Strob0t/VizForge/internal/port/agent"
	"github.com/Strob0t/VizForge/internal/port/database"
	"github.com/Strob0t/VizForge/internal/port/messagequeue"
)

// State is one phase of the coordinator state machine.
type State string

const (
	StateClassifying    State = "classifying"
	StateGeneratingSQL  State = "generating_sql"
	StateExecutingSQL   State = "executing_sql"
	StateGeneratingCode State = "generating_code"
	StateExecuting      State = "executing"
	StateEvaluating     State = "evaluating"
	StateRepairing      State = "repairing"
	StateDone           State = "done"
)

const (
	// DefaultMaxIterations bounds the main repair loop.
	DefaultMaxIterations = 3
	// DefaultSQLAttempts bounds the SQL sub-budget, separate from the
	// main repair budget.
	DefaultSQLAttempts = 3
)

// Executor runs one code artifact in isolation. Satisfied by
// sandbox.Executor.
type Executor interface {
	Execute(ctx context.Context, artifact task.CodeArtifact) (task.ExecutionOutcome, error)
}

// CoordinatorConfig holds per-coordinator settings.
type CoordinatorConfig struct {
	// MaxIterations is the repair budget. Iteration 0 is the initial
	// attempt; up to MaxIterations repairs follow.
	MaxIterations int `yaml:"max_iterations"`
	// SQLAttempts is the SQL generate/execute sub-budget.
	SQLAttempts int `yaml:"sql_attempts"`
	// OutputDir is where winning chart specs are written.
	OutputDir string `yaml:"output_dir"`
}

func (c *CoordinatorConfig) applyDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.SQLAttempts <= 0 {
		c.SQLAttempts = DefaultSQLAttempts
	}
	if c.OutputDir == "" {
		c.OutputDir = "output"
	}
}

// Coordinator drives one task through the generate, execute, evaluate,
// repair pipeline. It is stateless between tasks and safe to share
// across batch workers.
type Coordinator struct {
	sqlGen    agent.SQLGenerator
	codeGen   agent.CodeGenerator
	evaluator agent.Evaluator
	inspector database.Inspector
	executor  Executor
	events    messagequeue.Queue // optional
	metrics   *vfotel.Metrics    // optional
	cfg       CoordinatorConfig
	log       *slog.Logger
}

// NewCoordinator wires the pipeline collaborators. events may be nil.
func NewCoordinator(
	sqlGen agent.SQLGenerator,
	codeGen agent.CodeGenerator,
	evaluator agent.Evaluator,
	inspector database.Inspector,
	executor Executor,
	events messagequeue.Queue,
	cfg CoordinatorConfig,
	log *slog.Logger,
) *Coordinator {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		sqlGen:    sqlGen,
		codeGen:   codeGen,
		evaluator: evaluator,
		inspector: inspector,
		executor:  executor,
		events:    events,
		cfg:       cfg,
		log:       log,
	}
}

// SetMetrics attaches metric instruments; nil disables recording.
func (c *Coordinator) SetMetrics(m *vfotel.Metrics) {
	c.metrics = m
}

// Run executes one task to a terminal state. It always returns a
// complete result; errors are folded into the result's final status.
func (c *Coordinator) Run(ctx context.Context, tk task.Task) task.Result {
	if tk.ID == "" {
		tk.ID = uuid.NewString()
	}
	if tk.Type == "" {
		tk.Type = task.Classify(tk)
	}

	ctx, span := vfotel.StartTaskSpan(ctx, tk.ID, string(tk.Type), tk.Database)
	defer span.End()

	log := c.log.With("task_id", tk.ID, "task_type", tk.Type)
	log.Info("task started", "database", tk.Database)
	c.publish(ctx, messagequeue.SubjectTaskStarted, messagequeue.TaskStartedPayload{
		TaskID:   tk.ID,
		Type:     string(tk.Type),
		Database: tk.Database,
	})
	if c.metrics != nil {
		c.metrics.TasksStarted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("task.type", string(tk.Type)),
		))
	}

	started := time.Now()
	res := c.pipeline(ctx, tk, log)
	res.TaskID = tk.ID
	res.Type = tk.Type
	res.StartedAt = started
	res.FinishedAt = time.Now()

	log.Info("task finished",
		"final_status", res.FinalStatus,
		"iterations_used", res.IterationsUsed,
		"duration", res.FinishedAt.Sub(res.StartedAt))
	c.publish(ctx, messagequeue.SubjectTaskCompleted, messagequeue.TaskCompletedPayload{
		TaskID:         tk.ID,
		FinalStatus:    string(res.FinalStatus),
		IterationsUsed: res.IterationsUsed,
		ChartPath:      res.FinalChartPath,
	})

	span.SetAttributes(attribute.String("task.final_status", string(res.FinalStatus)))
	if res.FinalStatus == task.StatusFatalError {
		span.SetStatus(codes.Error, res.FatalReason)
	}
	if c.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("task.type", string(tk.Type)))
		switch res.FinalStatus {
		case task.StatusSuccess:
			c.metrics.TasksSucceeded.Add(ctx, 1, attrs)
		case task.StatusGaveUp:
			c.metrics.TasksGaveUp.Add(ctx, 1, attrs)
		case task.StatusFatalError:
			c.metrics.TasksFailed.Add(ctx, 1, attrs)
		}
		c.metrics.TaskDuration.Record(ctx, res.FinishedAt.Sub(res.StartedAt).Seconds(), attrs)
		c.metrics.TaskIterations.Record(ctx, int64(res.IterationsUsed), attrs)
	}
	return res
}

func (c *Coordinator) pipeline(ctx context.Context, tk task.Task, log *slog.Logger) task.Result {
	var res task.Result

	// Modify tasks operate on existing code; the data need is already
	// embedded in it, so the SQL states are skipped entirely.
	var sqlText string
	var data database.Rows
	if tk.Type != task.TypeModify {
		sqlCtx, sqlSpan := vfotel.StartStageSpan(ctx, "sql", 0)
		sql, rows, history, err := c.sqlPhase(sqlCtx, tk, log)
		sqlSpan.SetAttributes(attribute.Int("sql.attempts", len(history)))
		sqlSpan.End()
		res.SQLHistory = history
		if err != nil {
			return c.fatal(res, log, err)
		}
		sqlText, data = sql, rows
	}

	var (
		instruction *repair.Instruction
		prior       = tk.ExistingCode
		lastChart   []byte
		iteration   int
	)
	for {
		log.Debug("state change", "state", StateGeneratingCode, "iteration", iteration)
		genCtx, genSpan := vfotel.StartStageSpan(ctx, "generate_code", iteration)
		source, err := c.codeGen.GenerateCode(genCtx, agent.CodeContext{
			Task:          tk,
			SQL:           sqlText,
			Columns:       data.Columns,
			Rows:          data.Values,
			PriorArtifact: prior,
			Repair:        instruction,
		})
		genSpan.End()
		if err != nil {
			if !errors.Is(err, task.ErrCodeGeneration) {
				return c.fatal(res, log, err)
			}
			ins := repair.PlanMalformed(err.Error())
			if done := c.repairOrGiveUp(ctx, &res, &iteration, &instruction, ins, "", lastChart, tk.ID, log); done {
				return res
			}
			continue
		}

		origin := task.OriginInitial
		if iteration > 0 {
			origin = task.OriginRepaired
		}
		artifact := task.CodeArtifact{Source: source, Iteration: iteration, Origin: origin}
		res.CodeHistory = append(res.CodeHistory, artifact)
		prior = source

		log.Debug("state change", "state", StateExecuting, "iteration", iteration)
		execCtx, execSpan := vfotel.StartStageSpan(ctx, "execute", iteration)
		outcome, err := c.executor.Execute(execCtx, artifact)
		if err == nil {
			execSpan.SetAttributes(attribute.String("execute.status", string(outcome.Status)))
			if c.metrics != nil {
				c.metrics.SandboxWallTime.Record(ctx, outcome.WallTime.Seconds(),
					metric.WithAttributes(attribute.String("execute.status", string(outcome.Status))))
			}
		}
		execSpan.End()
		if err != nil {
			return c.fatal(res, log, err)
		}
		if outcome.Status != task.ExecOK {
			ins := repair.PlanExecution(outcome)
			if done := c.repairOrGiveUp(ctx, &res, &iteration, &instruction, ins, outcome.Status, lastChart, tk.ID, log); done {
				return res
			}
			continue
		}
		lastChart = outcome.ChartJSON

		log.Debug("state change", "state", StateEvaluating, "iteration", iteration)
		evalCtx, evalSpan := vfotel.StartStageSpan(ctx, "evaluate", iteration)
		verdict, err := c.evaluator.Evaluate(evalCtx, agent.EvalContext{
			Task:      tk,
			Code:      source,
			ChartJSON: outcome.ChartJSON,
		})
		evalSpan.End()
		if err != nil {
			if !errors.Is(err, task.ErrCodeGeneration) {
				return c.fatal(res, log, err)
			}
			ins := repair.PlanMalformed(err.Error())
			if done := c.repairOrGiveUp(ctx, &res, &iteration, &instruction, ins, outcome.Status, lastChart, tk.ID, log); done {
				return res
			}
			continue
		}

		if verdict.Satisfied {
			path, err := c.writeChart(tk.ID, outcome.ChartJSON)
			if err != nil {
				return c.fatal(res, log, err)
			}
			res.FinalStatus = task.StatusSuccess
			res.FinalChartPath = path
			res.IterationsUsed = iteration
			return res
		}

		ins := repair.PlanVerdict(verdict)
		if done := c.repairOrGiveUp(ctx, &res, &iteration, &instruction, ins, outcome.Status, lastChart, tk.ID, log); done {
			return res
		}
	}
}

// sqlPhase runs the GeneratingSql/ExecutingSql loop within its
// sub-budget. Database errors re-enter generation with the error fed
// back; budget exhaustion is fatal.
func (c *Coordinator) sqlPhase(ctx context.Context, tk task.Task, log *slog.Logger) (string, database.Rows, []task.SqlResult, error) {
	var history []task.SqlResult
	var priorErr string

	for attempt := 0; attempt < c.cfg.SQLAttempts; attempt++ {
		log.Debug("state change", "state", StateGeneratingSQL, "attempt", attempt)
		query, err := c.sqlGen.GenerateSQL(ctx, agent.SQLContext{Task: tk, PriorError: priorErr})
		if err != nil {
			if !errors.Is(err, task.ErrSQLGeneration) {
				return "", database.Rows{}, history, err
			}
			history = append(history, task.SqlResult{Success: false, Error: err.Error()})
			priorErr = ""
			continue
		}

		log.Debug("state change", "state", StateExecutingSQL, "attempt", attempt)
		rows, err := c.inspector.RunQuery(ctx, tk.Database, query)
		if err != nil {
			log.Debug("query rejected", "attempt", attempt, "error", err)
			history = append(history, task.SqlResult{Query: query, Success: false, Error: err.Error()})
			priorErr = err.Error()
			continue
		}

		history = append(history, task.SqlResult{
			Query:   query,
			Success: true,
			Rows:    rows.Values,
			Columns: rows.Columns,
		})
		return query, rows, history, nil
	}

	return "", database.Rows{}, history,
		fmt.Errorf("%w: no working query after %d attempts", task.ErrSQLExecution, c.cfg.SQLAttempts)
}

// repairOrGiveUp either advances the repair loop with the instruction
// or terminates the result at the iteration budget. It reports true
// when the result is terminal.
func (c *Coordinator) repairOrGiveUp(
	ctx context.Context,
	res *task.Result,
	iteration *int,
	instruction **repair.Instruction,
	ins repair.Instruction,
	execStatus task.ExecStatus,
	lastChart []byte,
	taskID string,
	log *slog.Logger,
) bool {
	if *iteration >= c.cfg.MaxIterations {
		res.FinalStatus = task.StatusGaveUp
		res.IterationsUsed = *iteration
		// Keep the best chart produced even though evaluation never
		// passed; a partially wrong chart beats nothing.
		if len(lastChart) > 0 {
			if path, err := c.writeChart(taskID, lastChart); err == nil {
				res.FinalChartPath = path
			} else {
				log.Warn("writing give-up chart failed", "error", err)
			}
		}
		return true
	}

	*iteration++
	*instruction = &ins
	log.Info("entering repair iteration",
		"state", StateRepairing,
		"iteration", *iteration,
		"problem", ins.ProblemSummary,
		"severity", ins.Severity)
	c.publish(ctx, messagequeue.SubjectTaskIteration, messagequeue.TaskIterationPayload{
		TaskID:     taskID,
		Iteration:  *iteration,
		ExecStatus: string(execStatus),
		Problem:    ins.ProblemSummary,
	})
	return false
}

func (c *Coordinator) fatal(res task.Result, log *slog.Logger, err error) task.Result {
	log.Error("task failed", "error", err)
	res.FinalStatus = task.StatusFatalError
	res.FatalReason = err.Error()
	return res
}

func (c *Coordinator) writeChart(taskID string, spec []byte) (string, error) {
	if err := os.MkdirAll(c.cfg.OutputDir, 0o750); err != nil {
		return "", fmt.Errorf("output dir: %w", err)
	}
	path := filepath.Join(c.cfg.OutputDir, taskID+".vega.json")
	if err := os.WriteFile(path, spec, 0o600); err != nil {
		return "", fmt.Errorf("write chart: %w", err)
	}
	return path, nil
}

// publish sends a lifecycle event when an event sink is configured.
// Event delivery is best-effort and never affects the task outcome.
func (c *Coordinator) publish(ctx context.Context, subject string, payload any) {
	if c.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := c.events.Publish(ctx, subject, data); err != nil {
		c.log.Debug("event publish failed", "subject", subject, "error", err)
	}
}
