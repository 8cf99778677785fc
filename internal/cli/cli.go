package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/pipewright/pipewright/internal/app"
	"github.com/pipewright/pipewright/internal/executor"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("pipewright", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
pipewright - a declarative CI verification pipeline engine.

Usage:
  pipewright [options] [WORKFLOW_PATH]

Arguments:
  WORKFLOW_PATH
    Path to a workflow file (.hcl, .yml, .yaml) or a directory of them.

Options:
`)
		flagSet.PrintDefaults()
	}

	workflowsFlag := flagSet.String("workflows", "", "Path to the workflow file or directory.")
	wFlag := flagSet.String("w", "", "Path to the workflow file or directory (shorthand).")
	projectFlag := flagSet.String("project", ".", "Path to the project checkout to verify.")
	eventFlag := flagSet.String("event", "", "One-shot trigger event type: 'push' or 'pull_request'.")
	branchFlag := flagSet.String("branch", "", "Branch the one-shot event targets.")
	listenFlag := flagSet.String("listen", "", "Listen address for the webhook/status server, e.g. ':8080'. Empty runs one-shot.")
	toolchainRootFlag := flagSet.String("toolchain-root", "", "Installation root for pinned toolchains.")
	cacheDirFlag := flagSet.String("cache-dir", "", "Directory for dependency cache entries.")
	runsDirFlag := flagSet.String("runs-dir", "", "Directory for run logs and reports.")
	workDirFlag := flagSet.String("work-dir", "", "Directory for per-leg workspaces.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 10, "Number of concurrent workers for the executor.")
	stepTimeoutFlag := flagSet.Duration("step-timeout", 0, "Timeout for a single shell step. 0 disables it.")
	cancelPolicyFlag := flagSet.String("cancel-policy", "kill", "What run cancellation does to in-flight legs: 'kill' or 'drain'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *workflowsFlag != "" {
		path = *workflowsFlag
	} else if *wFlag != "" {
		path = *wFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *stepTimeoutFlag < 0 {
		return nil, false, &ExitError{Code: 2, Message: "step-timeout must not be negative"}
	}

	config, err := app.NewConfig(app.Config{
		WorkflowPath:  path,
		ProjectDir:    *projectFlag,
		ToolchainRoot: *toolchainRootFlag,
		CacheDir:      *cacheDirFlag,
		RunsDir:       *runsDirFlag,
		WorkRoot:      *workDirFlag,
		LogFormat:     logFormat,
		LogLevel:      logLevel,
		Workers:       *workersFlag,
		StepTimeout:   *stepTimeoutFlag,
		CancelPolicy:  executor.CancelPolicy(*cancelPolicyFlag),
		ListenAddr:    *listenFlag,
		EventType:     *eventFlag,
		Branch:        *branchFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}
