package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/VizForge/internal/domain/task"
	"github.com/Strob0t/VizForge/internal/port/resultstore"
)

// BatchConfig holds batch driver settings.
type BatchConfig struct {
	// Workers is the number of tasks run concurrently. Zero means one
	// worker per CPU.
	Workers int `yaml:"workers"`
}

// BatchSummary is the aggregate outcome of one batch run.
type BatchSummary struct {
	Total     int `json:"total"`
	Skipped   int `json:"skipped"`
	Succeeded int `json:"succeeded"`
	GaveUp    int `json:"gave_up"`
	Fatal     int `json:"fatal"`
}

// Batch runs independent tasks through a shared coordinator with a
// bounded worker pool. Tasks share no mutable state; results are
// persisted as each task finishes so a crash loses at most the
// in-flight work.
type Batch struct {
	coord   *Coordinator
	store   resultstore.Store
	workers int
	log     *slog.Logger
}

// NewBatch creates a batch driver.
func NewBatch(coord *Coordinator, store resultstore.Store, cfg BatchConfig, log *slog.Logger) *Batch {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Batch{coord: coord, store: store, workers: cfg.Workers, log: log}
}

// Run executes all tasks, skipping ids that already have a persisted
// result. A task's fatal error never aborts the batch; it is recorded
// and the next task proceeds. The returned error covers infrastructure
// only (result store unreachable).
func (b *Batch) Run(ctx context.Context, tasks []task.Task) (BatchSummary, error) {
	summary := BatchSummary{Total: len(tasks)}

	completed, err := b.store.Completed(ctx)
	if err != nil {
		return summary, fmt.Errorf("load completed ids: %w", err)
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for _, tk := range tasks {
		if completed[tk.ID] {
			b.log.Info("skipping completed task", "task_id", tk.ID)
			mu.Lock()
			summary.Skipped++
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			res := b.coord.Run(ctx, tk)
			if err := b.store.Save(ctx, res); err != nil {
				return fmt.Errorf("save result %s: %w", res.TaskID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			switch res.FinalStatus {
			case task.StatusSuccess:
				summary.Succeeded++
			case task.StatusGaveUp:
				summary.GaveUp++
			case task.StatusFatalError:
				summary.Fatal++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

// LoadTasks reads a batch definition: a JSON array of tasks. Tasks
// without an id get a positional one so resumed runs recognize them.
func LoadTasks(path string) ([]task.Task, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied batch file
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}

	var tasks []task.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("parse batch file: %w", err)
	}

	for i := range tasks {
		if tasks[i].ID == "" {
			tasks[i].ID = fmt.Sprintf("task-%03d", i)
		}
		if tasks[i].Type == "" {
			tasks[i].Type = task.Classify(tasks[i])
		}
	}
	return tasks, nil
}
