package task

import "errors"

// Failure classes for the pipeline. SQL and code execution failures are
// recovered by the repair loop; transport and configuration failures
// terminate the task immediately.
var (
	ErrSQLGeneration  = errors.New("sql generation failed")
	ErrSQLExecution   = errors.New("sql execution failed")
	ErrCodeGeneration = errors.New("code generation failed") // malformed/unextractable LLM response
	ErrTransport      = errors.New("agent transport failed")
	ErrFatalConfig    = errors.New("fatal configuration error")
)

// IsFatal reports whether err must bypass the repair loop and terminate
// the task with FinalStatus StatusFatalError.
func IsFatal(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrFatalConfig)
}
