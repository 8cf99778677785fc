// Package testutil provides the shared harness for integration tests: a
// fully wired engine over temporary directories, with the shell swapped for
// a scriptable recorder so no real build tools are needed.
package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pipewright/pipewright/internal/action"
	"github.com/pipewright/pipewright/internal/cache"
	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/ctxlog"
	"github.com/pipewright/pipewright/internal/event"
	"github.com/pipewright/pipewright/internal/executor"
	"github.com/pipewright/pipewright/internal/hcl"
	"github.com/pipewright/pipewright/internal/orchestrator"
	"github.com/pipewright/pipewright/internal/report"
	"github.com/pipewright/pipewright/internal/runner"
	"github.com/pipewright/pipewright/internal/shell"
	"github.com/pipewright/pipewright/internal/storage"
	"github.com/pipewright/pipewright/internal/toolchain"
	"github.com/pipewright/pipewright/internal/yamlcfg"
	"github.com/stretchr/testify/require"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// ShellCall records one command handed to the recording shell.
type ShellCall struct {
	Command string
	Dir     string
	Env     map[string]string
}

// RecordingShell is a scriptable shell.Runner. Script decides each command's
// outcome; a nil Script makes every command succeed with empty output.
type RecordingShell struct {
	mu     sync.Mutex
	calls  []ShellCall
	Script func(command, dir string) (shell.Result, error)
}

// Run implements shell.Runner.
func (r *RecordingShell) Run(ctx context.Context, command, dir string, env map[string]string) (shell.Result, error) {
	r.mu.Lock()
	envCopy := make(map[string]string, len(env))
	for k, v := range env {
		envCopy[k] = v
	}
	r.calls = append(r.calls, ShellCall{Command: command, Dir: dir, Env: envCopy})
	r.mu.Unlock()

	if r.Script != nil {
		return r.Script(command, dir)
	}
	return shell.Result{Output: "ok\n"}, nil
}

// Calls returns a copy of everything the shell was asked to run.
func (r *RecordingShell) Calls() []ShellCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ShellCall(nil), r.calls...)
}

// HarnessResult holds the outcomes of a pipeline integration run.
type HarnessResult struct {
	Reports   []*report.RunReport
	Err       error
	LogOutput string
	Store     *report.Store
	RunsDir   string
	CacheDir  string
}

// RunPipelineTest wires a complete engine over temporary directories, loads
// the given workflow files (keyed by file name, .hcl or .yml), and
// dispatches one event through it. The project checkout contains a
// Cargo.lock, and toolchain 1.80.1 is installed for ubuntu, windows, and
// macos so the built-in actions have something to resolve against.
func RunPipelineTest(t *testing.T, files map[string]string, ev event.Event, sh shell.Runner) *HarnessResult {
	t.Helper()

	workflowDir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(workflowDir, name), []byte(content), 0o644))
	}

	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "Cargo.lock"), []byte("[[package]]\nname = \"serde\"\nversion = \"1.0.210\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "main.rs"), []byte("fn main() {}\n"), 0o644))

	provisioner := toolchain.New(t.TempDir())
	for _, osLabel := range []string{"ubuntu", "windows", "macos"} {
		_, err := provisioner.Install("1.80.1", osLabel)
		require.NoError(t, err)
	}

	if sh == nil {
		sh = &RecordingShell{}
	}

	logBuf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	model := &config.Model{}
	for _, loader := range []config.Loader{hcl.NewLoader(), yamlcfg.NewLoader()} {
		loaded, err := loader.Load(ctx, workflowDir)
		require.NoError(t, err)
		model.Workflows = append(model.Workflows, loaded.Workflows...)
	}
	require.NoError(t, model.Validate())

	runsDir := t.TempDir()
	cacheDir := t.TempDir()
	logs := storage.NewLogStore(runsDir)
	legRunner := &runner.Runner{
		Shell:       sh,
		Actions:     action.Builtin(),
		Provisioner: provisioner,
		Cache:       cache.New(cacheDir),
		Logs:        logs,
		ProjectDir:  projectDir,
		WorkRoot:    t.TempDir(),
	}

	store := report.NewStore()
	orch := orchestrator.New(model, legRunner, store, logs, executor.Config{Workers: 4})

	reports, err := orch.Dispatch(ctx, ev)
	return &HarnessResult{
		Reports:   reports,
		Err:       err,
		LogOutput: logBuf.String(),
		Store:     store,
		RunsDir:   runsDir,
		CacheDir:  cacheDir,
	}
}

// LegByID finds one leg report in a run report.
func LegByID(t *testing.T, rep *report.RunReport, id string) report.LegReport {
	t.Helper()
	for _, leg := range rep.Legs {
		if leg.ID == id {
			return leg
		}
	}
	t.Fatalf("leg %s not found in run %s", id, rep.ID)
	return report.LegReport{}
}

// StepStatuses maps step names to their statuses for one leg.
func StepStatuses(leg report.LegReport) map[string]report.Status {
	out := make(map[string]report.Status, len(leg.Steps))
	for _, step := range leg.Steps {
		out[step.Name] = step.Status
	}
	return out
}
