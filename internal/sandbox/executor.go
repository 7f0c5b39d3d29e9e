// Package sandbox runs generated visualization scripts in isolated
// child processes with a hard wall-clock timeout.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Strob0t/VizForge/internal/domain/chart"
	"github.com/Strob0t/VizForge/internal/domain/task"
)

// DefaultTimeout bounds one execution attempt.
const DefaultTimeout = 60 * time.Second

// killGracePeriod is how long a killed child gets to release its pipes
// before Wait gives up on it.
const killGracePeriod = 2 * time.Second

// Config holds executor settings.
type Config struct {
	// Interpreter is the Python binary used to run the harness.
	Interpreter string `yaml:"interpreter"`
	// Timeout is the wall-clock budget per execution attempt.
	Timeout time.Duration `yaml:"timeout"`
	// WorkDir is the root for per-attempt scratch directories.
	// Empty means the system temp directory.
	WorkDir string `yaml:"work_dir"`
}

// Executor runs code artifacts in fresh child processes. A crashed,
// looping, or memory-hungry artifact can never take the coordinator
// down with it.
type Executor struct {
	interpreter string
	timeout     time.Duration
	workDir     string
}

// New creates an Executor from cfg, applying defaults for zero fields.
func New(cfg Config) *Executor {
	e := &Executor{
		interpreter: cfg.Interpreter,
		timeout:     cfg.Timeout,
		workDir:     cfg.WorkDir,
	}
	if e.interpreter == "" {
		e.interpreter = "python3"
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	return e
}

// harnessError is the structured payload the harness writes on an
// artifact exception.
type harnessError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Traceback string `json:"traceback"`
}

// Execute runs one artifact and classifies the outcome. The returned
// error is reserved for infrastructure failures (scratch dir, spawn);
// artifact failures are expressed through the outcome status.
func (e *Executor) Execute(ctx context.Context, artifact task.CodeArtifact) (task.ExecutionOutcome, error) {
	outcome := task.ExecutionOutcome{Artifact: artifact}

	dir, err := os.MkdirTemp(e.workDir, "vizforge-exec-")
	if err != nil {
		return outcome, fmt.Errorf("sandbox: scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	scriptPath := filepath.Join(dir, "script.py")
	harnessPath := filepath.Join(dir, "harness.py")
	chartsDir := filepath.Join(dir, "charts")

	if err := os.WriteFile(scriptPath, []byte(artifact.Source), 0o600); err != nil {
		return outcome, fmt.Errorf("sandbox: write script: %w", err)
	}
	if err := os.WriteFile(harnessPath, []byte(harnessSource), 0o600); err != nil {
		return outcome, fmt.Errorf("sandbox: write harness: %w", err)
	}
	if err := os.Mkdir(chartsDir, 0o700); err != nil {
		return outcome, fmt.Errorf("sandbox: charts dir: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, e.interpreter, harnessPath, scriptPath, chartsDir) //nolint:gosec // G204: interpreter comes from config, paths are ours
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Run the child in its own process group so the kill reaches any
	// grandchildren the artifact may have spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = killGracePeriod

	start := time.Now()
	runErr := cmd.Run()
	outcome.WallTime = time.Since(start)
	outcome.Stdout = stdout.String()
	outcome.Stderr = stderr.String()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		outcome.Status = task.ExecTimeout
		slog.Debug("sandbox execution timed out",
			"iteration", artifact.Iteration, "wall_time", outcome.WallTime)
		return outcome, nil
	}

	if runErr != nil {
		outcome.Status = task.ExecRuntimeError
		if he, ok := readHarnessError(dir); ok {
			outcome.ErrorKind = he.Kind
			outcome.ErrorText = he.Message + "\n" + he.Traceback
		} else {
			outcome.ErrorText = outcome.Stderr
		}
		return outcome, nil
	}

	candidates, err := readCandidates(chartsDir)
	if err != nil {
		return outcome, err
	}
	winner := chart.Extract(candidates)
	if winner == nil {
		outcome.Status = task.ExecNoChartProduced
		return outcome, nil
	}

	spec, err := winner.MarshalSpec()
	if err != nil {
		return outcome, err
	}
	outcome.Status = task.ExecOK
	outcome.ChartJSON = spec
	return outcome, nil
}

func readHarnessError(dir string) (harnessError, bool) {
	data, err := os.ReadFile(filepath.Join(dir, "error.json")) //nolint:gosec // G304: dir is our scratch dir
	if err != nil {
		return harnessError{}, false
	}
	var he harnessError
	if err := json.Unmarshal(data, &he); err != nil {
		return harnessError{}, false
	}
	return he, true
}

// readCandidates loads the harness-emitted chart specs in declaration
// order. Filenames are "NNN_<var>.json".
func readCandidates(chartsDir string) ([]chart.Candidate, error) {
	entries, err := os.ReadDir(chartsDir)
	if err != nil {
		return nil, fmt.Errorf("sandbox: read charts dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	candidates := make([]chart.Candidate, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(chartsDir, name)) //nolint:gosec // G304: harness output in our scratch dir
		if err != nil {
			return nil, fmt.Errorf("sandbox: read candidate %s: %w", name, err)
		}

		order, varName := splitCandidateName(name)
		c, err := chart.ParseCandidate(varName, order, data)
		if err != nil {
			// A spec the harness could not serialize cleanly is not a
			// pipeline failure; skip it and let ranking decide among
			// the rest.
			slog.Warn("skipping unparseable chart candidate", "file", name, "error", err)
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func splitCandidateName(file string) (order int, varName string) {
	base := strings.TrimSuffix(file, ".json")
	prefix, rest, ok := strings.Cut(base, "_")
	if !ok {
		return 0, base
	}
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, base
	}
	return n, rest
}
