package task

import "time"

// ExecStatus is the outcome class of one sandbox execution attempt.
type ExecStatus string

const (
	ExecOK              ExecStatus = "ok"
	ExecTimeout         ExecStatus = "timeout"
	ExecRuntimeError    ExecStatus = "runtime_error"
	ExecNoChartProduced ExecStatus = "no_chart_produced"
)

// FinalStatus is the terminal state of a task run.
type FinalStatus string

const (
	StatusSuccess    FinalStatus = "success"
	StatusGaveUp     FinalStatus = "gave_up_after_max_iterations"
	StatusFatalError FinalStatus = "fatal_error"
)

// ArtifactOrigin records whether a code artifact came from the initial
// generation or from a repair iteration.
type ArtifactOrigin string

const (
	OriginInitial  ArtifactOrigin = "initial"
	OriginRepaired ArtifactOrigin = "repaired"
)

// SqlResult is one SQL generation/execution attempt.
type SqlResult struct {
	Query   string     `json:"query"`
	Success bool       `json:"success"`
	Rows    [][]string `json:"rows,omitempty"`
	Columns []string   `json:"columns,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// CodeArtifact is one immutable generated script. Every repair
// iteration appends a new artifact; prior ones are never mutated.
type CodeArtifact struct {
	Source    string         `json:"source"`
	Iteration int            `json:"iteration"`
	Origin    ArtifactOrigin `json:"origin"`
}

// ExecutionOutcome is the result of running one artifact in the sandbox.
type ExecutionOutcome struct {
	Artifact  CodeArtifact  `json:"artifact"`
	Status    ExecStatus    `json:"status"`
	Stdout    string        `json:"stdout,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"` // exception type, e.g. "ValueError"
	ErrorText string        `json:"error_text,omitempty"` // message + traceback
	ChartJSON []byte        `json:"chart_json,omitempty"` // extracted winning spec
	WallTime  time.Duration `json:"wall_time"`
}

// EvaluationVerdict is the evaluation agent's judgment of a chart
// against the original request.
type EvaluationVerdict struct {
	Satisfied     bool     `json:"satisfied"`
	MismatchNotes []string `json:"mismatch_notes,omitempty"`
	SuggestedFix  []string `json:"suggested_fixes,omitempty"`
}

// Result is the terminal record of a task run. Written once on
// completion, never mutated afterwards.
type Result struct {
	TaskID         string         `json:"task_id"`
	Type           Type           `json:"type"`
	FinalStatus    FinalStatus    `json:"final_status"`
	SQLHistory     []SqlResult    `json:"sql_history,omitempty"`
	CodeHistory    []CodeArtifact `json:"code_history,omitempty"`
	FinalChartPath string         `json:"final_chart_path,omitempty"`
	IterationsUsed int            `json:"iterations_used"`
	FatalReason    string         `json:"fatal_reason,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
}
