package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/VizForge/internal/domain/task"
)

// ResultStore mirrors task results into the task_results table. It
// implements the resultstore port; the file store remains the source
// of truth for resumability, the mirror serves querying.
type ResultStore struct {
	pool *pgxpool.Pool
}

// NewResultStore creates a ResultStore backed by the given pool.
func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Save upserts the result record keyed by task id.
func (s *ResultStore) Save(ctx context.Context, res task.Result) error {
	sqlHistory, err := json.Marshal(res.SQLHistory)
	if err != nil {
		return fmt.Errorf("marshal sql history: %w", err)
	}
	codeHistory, err := json.Marshal(res.CodeHistory)
	if err != nil {
		return fmt.Errorf("marshal code history: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO task_results
		   (task_id, task_type, final_status, sql_history, code_history,
		    final_chart_path, iterations_used, fatal_reason, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (task_id) DO UPDATE SET
		   task_type = EXCLUDED.task_type,
		   final_status = EXCLUDED.final_status,
		   sql_history = EXCLUDED.sql_history,
		   code_history = EXCLUDED.code_history,
		   final_chart_path = EXCLUDED.final_chart_path,
		   iterations_used = EXCLUDED.iterations_used,
		   fatal_reason = EXCLUDED.fatal_reason,
		   started_at = EXCLUDED.started_at,
		   finished_at = EXCLUDED.finished_at`,
		res.TaskID, string(res.Type), string(res.FinalStatus), sqlHistory, codeHistory,
		res.FinalChartPath, res.IterationsUsed, res.FatalReason, res.StartedAt, res.FinishedAt)
	if err != nil {
		return fmt.Errorf("save result %s: %w", res.TaskID, err)
	}
	return nil
}

// Completed returns the ids of all mirrored results.
func (s *ResultStore) Completed(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT task_id FROM task_results`)
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	defer rows.Close()

	done := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan task id: %w", err)
		}
		done[id] = true
	}
	return done, rows.Err()
}
