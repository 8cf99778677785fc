package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/pipewright/pipewright/internal/event"
	"github.com/pipewright/pipewright/internal/executor"
)

// Config holds everything an App instance needs to run.
type Config struct {
	// WorkflowPath points at a workflow file or a directory of workflow
	// files (.hcl, .yml, .yaml).
	WorkflowPath string
	// ProjectDir is the source tree the checkout action copies into each
	// leg's workspace.
	ProjectDir string

	// ToolchainRoot is the installation root pinned toolchain versions are
	// resolved against.
	ToolchainRoot string
	// CacheDir is where dependency cache entries live between runs.
	CacheDir string
	// RunsDir receives per-run step logs and report files.
	RunsDir string
	// WorkRoot is where per-leg workspaces are created.
	WorkRoot string

	LogFormat string
	LogLevel  string

	// Workers bounds how many legs execute concurrently.
	Workers int
	// StepTimeout bounds a single shell step; zero disables the bound.
	StepTimeout time.Duration
	// CancelPolicy decides whether canceling a run kills in-flight legs or
	// lets them drain.
	CancelPolicy executor.CancelPolicy

	// ListenAddr, when set, runs the webhook/status HTTP server instead of
	// a one-shot dispatch.
	ListenAddr string
	// EventType and Branch describe the trigger for a one-shot dispatch.
	EventType string
	Branch    string
}

// NewConfig validates a Config and fills defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkflowPath == "" {
		return nil, errors.New("WorkflowPath is a required configuration field and cannot be empty")
	}
	if cfg.ListenAddr == "" && cfg.EventType == "" {
		return nil, errors.New("either a listen address or a one-shot event must be configured")
	}
	if cfg.EventType != "" {
		if _, err := event.ParseType(cfg.EventType); err != nil {
			return nil, err
		}
		if cfg.Branch == "" {
			return nil, fmt.Errorf("a branch is required for a one-shot %s event", cfg.EventType)
		}
	}

	policy, ok := executor.ParseCancelPolicy(string(cfg.CancelPolicy))
	if !ok {
		return nil, fmt.Errorf("invalid cancel policy %q (want %q or %q)", cfg.CancelPolicy, executor.CancelKill, executor.CancelDrain)
	}
	cfg.CancelPolicy = policy

	if cfg.ProjectDir == "" {
		cfg.ProjectDir = "."
	}
	if cfg.ToolchainRoot == "" {
		cfg.ToolchainRoot = ".pipewright/toolchains"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = ".pipewright/cache"
	}
	if cfg.RunsDir == "" {
		cfg.RunsDir = ".pipewright/runs"
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = ".pipewright/work"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}

	return &cfg, nil
}
