// Package shell executes step commands through the system shell, capturing
// combined output. The Runner interface exists so the leg runner can be
// exercised in tests without spawning processes.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sort"
	"time"

	"github.com/pipewright/pipewright/internal/ctxlog"
)

// Result is the outcome of one command invocation.
type Result struct {
	Output   string
	ExitCode int
	Duration time.Duration
}

// Runner runs a single shell command in a working directory with an explicit
// environment. A non-zero exit is returned as an error alongside the result.
type Runner interface {
	Run(ctx context.Context, command, dir string, env map[string]string) (Result, error)
}

// Exec is the real Runner implementation, invoking `sh -c` per command.
type Exec struct {
	// Timeout bounds a single command; zero means no bound beyond ctx.
	Timeout time.Duration
}

// Run executes the command, blocking until it terminates. The environment is
// exactly the provided map; nothing ambient leaks in, so legs stay
// reproducible.
func (e *Exec) Run(ctx context.Context, command, dir string, env map[string]string) (Result, error) {
	logger := ctxlog.FromContext(ctx)

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = flattenEnv(env)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Output:   out.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
	}

	logger.Debug("Command finished.", "command", command, "exit_code", res.ExitCode, "duration", res.Duration)
	return res, err
}

// flattenEnv renders the environment map as KEY=VALUE pairs in sorted key
// order, keeping repeated invocations byte-identical.
func flattenEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
