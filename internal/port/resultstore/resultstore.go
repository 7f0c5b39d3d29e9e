// Package resultstore defines the task-result persistence port
// (interface).
package resultstore

import (
	"context"

	"github.com/Strob0t/VizForge/internal/domain/task"
)

// Store persists one result record per task and an index of completed
// task ids for batch resumability.
type Store interface {
	// Save writes the result record and marks the task id completed.
	// Saving is incremental: it happens as each task finishes, not at
	// batch end.
	Save(ctx context.Context, res task.Result) error

	// Completed returns the set of task ids that already have a result
	// record. Resumed batches skip these without re-invoking the
	// coordinator.
	Completed(ctx context.Context) (map[string]bool, error)
}
