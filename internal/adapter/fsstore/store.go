// Package fsstore persists task results as one JSON file per task. It
// is the source of truth for batch resumability.
package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Strob0t/VizForge/internal/domain/task"
)

// Store writes result records under dir, one <task_id>.json each.
type Store struct {
	dir string
}

// New creates a Store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("result dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes the record atomically: a rename makes the record either
// fully present or absent, so a crash mid-write never yields a partial
// file that Completed would count.
func (s *Store) Save(_ context.Context, res task.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	final := filepath.Join(s.dir, res.TaskID+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("commit result: %w", err)
	}
	return nil
}

// Completed returns the task ids with a persisted record.
func (s *Store) Completed(context.Context) (map[string]bool, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read result dir: %w", err)
	}

	done := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		done[strings.TrimSuffix(name, ".json")] = true
	}
	return done, nil
}

// Load reads one persisted result record.
func (s *Store) Load(_ context.Context, taskID string) (task.Result, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, taskID+".json")) //nolint:gosec // G304: our result dir
	if err != nil {
		return task.Result{}, fmt.Errorf("read result %s: %w", taskID, err)
	}

	var res task.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return task.Result{}, fmt.Errorf("parse result %s: %w", taskID, err)
	}
	return res, nil
}
