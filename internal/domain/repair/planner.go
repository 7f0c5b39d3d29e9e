// Package repair converts execution and evaluation failures into
// structured instructions for the next code-generation attempt.
package repair

import (
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/VizForge/internal/domain/task"
)

// Severity is advisory metadata for logging. It never gates whether a
// repair attempt proceeds; the coordinator's iteration budget is the
// only gate.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Instruction tells the code-generation agent what to change and why.
type Instruction struct {
	ProblemSummary   string   `json:"problem_summary"`
	SuggestedChanges []string `json:"suggested_changes"`
	Severity         Severity `json:"severity"`
}

// PlanExecution builds a repair instruction from a failed execution
// outcome. Each failure class gets a distinct instruction: a timeout is
// a computation problem, not a logic bug, and must never be described
// as one.
func PlanExecution(outcome task.ExecutionOutcome) Instruction {
	switch outcome.Status {
	case task.ExecTimeout:
		return Instruction{
			ProblemSummary: fmt.Sprintf(
				"The script did not finish within the time limit (ran %s). "+
					"This indicates an unbounded loop or excessive computation, not a logic defect.",
				outcome.WallTime.Round(time.Millisecond)),
			SuggestedChanges: []string{
				"Remove or bound any loops that grow with data size.",
				"Avoid recomputing aggregations per row; use vectorized pandas operations.",
				"Limit the number of rows processed if the dataset is large.",
			},
			Severity: SeverityError,
		}
	case task.ExecNoChartProduced:
		return Instruction{
			ProblemSummary: "The script ran without errors but never constructed a chart object.",
			SuggestedChanges: []string{
				"Build an Altair chart object and bind it to a variable.",
				"Make the chart the final statement of the script.",
			},
			Severity: SeverityError,
		}
	default: // runtime error
		return Instruction{
			ProblemSummary: fmt.Sprintf("The script raised %s: %s",
				orUnknown(outcome.ErrorKind), firstLine(outcome.ErrorText)),
			SuggestedChanges: []string{
				"Fix the defect indicated by the traceback below and keep the rest of the script unchanged.",
				outcome.ErrorText,
			},
			Severity: SeverityError,
		}
	}
}

// PlanVerdict builds a repair instruction from an unsatisfied
// evaluation verdict. The evaluation agent already localizes the
// semantic gap, so its notes and fixes are forwarded verbatim.
func PlanVerdict(v task.EvaluationVerdict) Instruction {
	summary := "The chart does not satisfy the request."
	if len(v.MismatchNotes) > 0 {
		summary = strings.Join(v.MismatchNotes, " ")
	}
	return Instruction{
		ProblemSummary:   summary,
		SuggestedChanges: v.SuggestedFix,
		Severity:         SeverityWarning,
	}
}

// PlanMalformed builds a repair instruction for an LLM response that
// could not be parsed (missing code fence, unrepairable JSON). The next
// attempt asks for a better-formed response rather than a code change.
func PlanMalformed(detail string) Instruction {
	return Instruction{
		ProblemSummary: "The previous response could not be parsed: " + detail,
		SuggestedChanges: []string{
			"Return the complete script inside a single ```python code fence.",
			"Do not include prose outside the fence.",
		},
		Severity: SeverityWarning,
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "an exception"
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
