package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pipewright/pipewright/internal/action"
	"github.com/pipewright/pipewright/internal/cache"
	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/ctxlog"
	"github.com/pipewright/pipewright/internal/executor"
	"github.com/pipewright/pipewright/internal/hcl"
	"github.com/pipewright/pipewright/internal/orchestrator"
	"github.com/pipewright/pipewright/internal/report"
	"github.com/pipewright/pipewright/internal/runner"
	"github.com/pipewright/pipewright/internal/shell"
	"github.com/pipewright/pipewright/internal/storage"
	"github.com/pipewright/pipewright/internal/toolchain"
	"github.com/pipewright/pipewright/internal/yamlcfg"
)

// App encapsulates the engine's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	cfg    *Config

	model *config.Model
	store *report.Store
	orch  *orchestrator.Orchestrator
}

// New constructs a fully wired App: logger, workflow model, built-in action
// registry, provisioner, cache, storage, and orchestrator. Loaders may be
// injected for tests; by default both the HCL and YAML loaders run over the
// workflow path and their models are merged.
func New(outW io.Writer, cfg *Config, loaders ...config.Loader) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if len(loaders) == 0 {
		loaders = []config.Loader{hcl.NewLoader(), yamlcfg.NewLoader()}
	}

	model := &config.Model{}
	for _, loader := range loaders {
		loaded, err := loader.Load(ctx, cfg.WorkflowPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflows: %w", err)
		}
		model.Workflows = append(model.Workflows, loaded.Workflows...)
	}
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow configuration: %w", err)
	}

	actions := action.Builtin()
	if err := validateActions(model, actions); err != nil {
		return nil, fmt.Errorf("invalid workflow configuration: %w", err)
	}
	logger.Debug("Workflow model loaded and validated.", "workflow_count", len(model.Workflows))

	store := report.NewStore()
	logs := storage.NewLogStore(cfg.RunsDir)
	legRunner := &runner.Runner{
		Shell:       &shell.Exec{Timeout: cfg.StepTimeout},
		Actions:     actions,
		Provisioner: toolchain.New(cfg.ToolchainRoot),
		Cache:       cache.New(cfg.CacheDir),
		Logs:        logs,
		ProjectDir:  cfg.ProjectDir,
		WorkRoot:    cfg.WorkRoot,
	}

	orch := orchestrator.New(model, legRunner, store, logs, executor.Config{
		Workers:      cfg.Workers,
		CancelPolicy: cfg.CancelPolicy,
	})
	logger.Debug("Engine wired.", "workers", cfg.Workers, "cancel_policy", cfg.CancelPolicy)

	return &App{
		outW:   outW,
		logger: logger,
		cfg:    cfg,
		model:  model,
		store:  store,
		orch:   orch,
	}, nil
}

// validateActions rejects uses steps naming actions the registry does not
// know, so a typo fails at startup instead of mid-run.
func validateActions(model *config.Model, actions *action.Registry) error {
	for _, wf := range model.Workflows {
		for _, job := range wf.Jobs {
			for _, step := range job.Steps {
				if step.Uses == "" {
					continue
				}
				if _, err := actions.Lookup(step.Uses); err != nil {
					return fmt.Errorf("workflow %q job %q: %w", wf.Name, job.Name, err)
				}
			}
		}
	}
	return nil
}

// Model returns the loaded workflow model. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}

// Store returns the run report store. This is primarily for testing.
func (a *App) Store() *report.Store {
	return a.store
}
