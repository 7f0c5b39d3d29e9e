package sandbox

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/VizForge/internal/domain/task"
)

// The executor tests run real child processes and need a Python
// interpreter; they use plain duck-typed chart objects so Altair is not
// required.
func newTestExecutor(t *testing.T, timeout time.Duration) *Executor {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	return New(Config{Timeout: timeout, WorkDir: t.TempDir()})
}

const fakeChartPrelude = `
class FakeChart:
    def __init__(self, spec):
        self.spec = spec
        self.mark = spec.get("mark")
    def to_dict(self):
        return self.spec
`

func artifact(source string) task.CodeArtifact {
	return task.CodeArtifact{Source: source, Iteration: 0, Origin: task.OriginInitial}
}

func TestExecuteExtractsTitledChart(t *testing.T) {
	e := newTestExecutor(t, 30*time.Second)

	src := fakeChartPrelude + `
draft = FakeChart({"mark": "bar"})
final = FakeChart({"mark": "point", "title": "Ages"})
`
	out, err := e.Execute(context.Background(), artifact(src))
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != task.ExecOK {
		t.Fatalf("status = %s, stderr = %s", out.Status, out.Stderr)
	}
	if !strings.Contains(string(out.ChartJSON), `"Ages"`) {
		t.Fatalf("expected the titled chart to win, got %s", out.ChartJSON)
	}
}

func TestExecuteCapturesStreams(t *testing.T) {
	e := newTestExecutor(t, 30*time.Second)

	src := `
import sys
print("loading rows")
sys.stderr.write("deprecation warning\n")
` + fakeChartPrelude + `
chart = FakeChart({"mark": "bar"})
`
	out, err := e.Execute(context.Background(), artifact(src))
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != task.ExecOK {
		t.Fatalf("status = %s", out.Status)
	}
	if !strings.Contains(out.Stdout, "loading rows") {
		t.Fatalf("stdout not captured: %q", out.Stdout)
	}
	if !strings.Contains(out.Stderr, "deprecation warning") {
		t.Fatalf("stderr not captured: %q", out.Stderr)
	}
}

func TestExecuteClassifiesRuntimeError(t *testing.T) {
	e := newTestExecutor(t, 30*time.Second)

	out, err := e.Execute(context.Background(), artifact(`raise ValueError("bad column")`))
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != task.ExecRuntimeError {
		t.Fatalf("status = %s", out.Status)
	}
	if out.ErrorKind != "ValueError" {
		t.Fatalf("error kind = %q", out.ErrorKind)
	}
	if !strings.Contains(out.ErrorText, "bad column") || !strings.Contains(out.ErrorText, "Traceback") {
		t.Fatalf("error text missing message or traceback: %q", out.ErrorText)
	}
}

func TestExecuteClassifiesNoChart(t *testing.T) {
	e := newTestExecutor(t, 30*time.Second)

	out, err := e.Execute(context.Background(), artifact(`rows = [1, 2, 3]`))
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != task.ExecNoChartProduced {
		t.Fatalf("status = %s", out.Status)
	}
	if len(out.ChartJSON) != 0 {
		t.Fatalf("unexpected chart: %s", out.ChartJSON)
	}
}

func TestExecuteKillsOnTimeout(t *testing.T) {
	e := newTestExecutor(t, 500*time.Millisecond)

	start := time.Now()
	out, err := e.Execute(context.Background(), artifact(`
while True:
    pass
`))
	elapsed := time.Since(start)

	if err != nil {
		t.Fatal(err)
	}
	if out.Status != task.ExecTimeout {
		t.Fatalf("status = %s, want timeout", out.Status)
	}
	if out.WallTime < 500*time.Millisecond {
		t.Fatalf("wall time %s below the timeout", out.WallTime)
	}
	// Execute returning promptly proves the child was reaped rather
	// than left running to the test deadline.
	if elapsed > 10*time.Second {
		t.Fatalf("execution lingered %s after timeout", elapsed)
	}
}

func TestExecuteStripsShowCalls(t *testing.T) {
	e := newTestExecutor(t, 30*time.Second)

	// .show() would raise without a renderer; the harness strips it.
	src := fakeChartPrelude + `
class Shower(FakeChart):
    pass
chart = Shower({"mark": "bar", "title": "T"})
chart.show()
`
	out, err := e.Execute(context.Background(), artifact(src))
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != task.ExecOK {
		t.Fatalf("status = %s, stderr = %s", out.Status, out.Stderr)
	}
}
