// Package runner executes one leg: its steps strictly in sequence, in an
// isolated workspace, with an explicit environment. A failing step aborts
// the remainder of the leg; it never touches sibling legs.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pipewright/pipewright/internal/action"
	"github.com/pipewright/pipewright/internal/cache"
	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/ctxlog"
	"github.com/pipewright/pipewright/internal/expr"
	"github.com/pipewright/pipewright/internal/graph"
	"github.com/pipewright/pipewright/internal/report"
	"github.com/pipewright/pipewright/internal/shell"
	"github.com/pipewright/pipewright/internal/storage"
	"github.com/pipewright/pipewright/internal/toolchain"
)

// Runner is the production leg runner wired with the engine's collaborators.
type Runner struct {
	Shell       shell.Runner
	Actions     *action.Registry
	Provisioner *toolchain.Provisioner
	Cache       *cache.Manager
	Logs        *storage.LogStore
	// ProjectDir is the source tree the checkout action copies from.
	ProjectDir string
	// WorkRoot is where per-leg workspaces are created.
	WorkRoot string
}

// RunLeg executes every step of the leg in order and returns its report.
// Errors are terminal states of the report, not Go errors: the scheduler
// aggregates statuses, it does not propagate step failures.
func (r *Runner) RunLeg(ctx context.Context, runID, legID string, leg *graph.Leg) (rep report.LegReport) {
	ctx = ctxlog.With(ctx, "leg", legID)
	logger := ctxlog.FromContext(ctx)

	rep = report.LegReport{
		ID:        legID,
		Job:       leg.Job,
		RunsOn:    leg.RunsOn,
		Matrix:    leg.Matrix,
		Status:    report.StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	defer func() { rep.Duration = time.Since(rep.StartedAt) }()

	workdir := filepath.Join(r.WorkRoot, storage.Sanitize(runID), storage.Sanitize(legID))
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		rep.Status = report.StatusFailure
		rep.Error = fmt.Sprintf("creating workspace: %v", err)
		return rep
	}

	inv := &action.Invocation{
		Workdir:     workdir,
		ProjectDir:  r.ProjectDir,
		OS:          leg.RunsOn,
		Env:         baseEnv(leg.Env),
		Provisioner: r.Provisioner,
		Cache:       r.Cache,
	}

	logger.Info("Leg started.", "runs_on", leg.RunsOn, "steps", len(leg.Steps))

	failed := false
	for i, step := range leg.Steps {
		name := stepName(step)

		if failed || ctx.Err() != nil {
			status := report.StatusSkipped
			if !failed {
				status = report.StatusCanceled
			}
			rep.Steps = append(rep.Steps, report.StepReport{Name: name, Status: status})
			continue
		}

		stepRep := r.runStep(ctx, inv, leg, step, name)
		if path, err := r.Logs.SaveStepLog(runID, legID, i, name, []byte(stepRep.Output)); err == nil {
			stepRep.LogPath = path
		} else {
			logger.Warn("Failed to persist step log.", "step", name, "error", err)
		}
		rep.Steps = append(rep.Steps, stepRep)

		if stepRep.Status != report.StatusSuccess {
			failed = true
			rep.Error = stepRep.Error
			logger.Error("Step failed, aborting remaining steps of this leg.", "step", name)
		}
	}

	switch {
	case failed:
		rep.Status = report.StatusFailure
	case ctx.Err() != nil:
		rep.Status = report.StatusCanceled
		rep.Error = ctx.Err().Error()
	default:
		rep.Status = report.StatusSuccess
		r.saveCache(ctx, inv)
	}

	logger.Info("Leg finished.", "status", rep.Status)
	return rep
}

// runStep executes a single run or uses step and reports its outcome.
func (r *Runner) runStep(ctx context.Context, inv *action.Invocation, leg *graph.Leg, step *config.Step, name string) report.StepReport {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Step started.", "step", name)

	start := time.Now()
	rep := report.StepReport{Name: name, Status: report.StatusSuccess}
	scope := expr.Scope(leg.Matrix, inv.Env)

	if step.Run != "" {
		command, err := expr.Eval(step.Run, scope)
		if err != nil {
			return failStep(rep, start, err)
		}
		res, err := r.Shell.Run(ctx, command, inv.Workdir, inv.Env)
		rep.Output = res.Output
		if err != nil {
			return failStep(rep, start, fmt.Errorf("command exited with code %d: %w", res.ExitCode, err))
		}
	} else {
		handler, err := r.Actions.Lookup(step.Uses)
		if err != nil {
			return failStep(rep, start, err)
		}
		with, err := expr.EvalMap(step.With, scope)
		if err != nil {
			return failStep(rep, start, err)
		}
		output, err := handler(ctx, inv, with)
		rep.Output = output
		if err != nil {
			return failStep(rep, start, err)
		}
	}

	rep.Duration = time.Since(start)
	logger.Info("Step succeeded.", "step", name, "duration", rep.Duration)
	return rep
}

// saveCache honors a cache request recorded during the leg. A failed save
// only costs the next run a cold start, so it is logged and swallowed.
func (r *Runner) saveCache(ctx context.Context, inv *action.Invocation) {
	if inv.CacheRequest == nil {
		return
	}
	logger := ctxlog.FromContext(ctx)
	src := filepath.Join(inv.Workdir, inv.CacheRequest.Path)
	if err := r.Cache.Save(ctx, inv.CacheRequest.Key, src); err != nil {
		logger.Warn("Failed to save cache entry.", "key", inv.CacheRequest.Key, "error", err)
		return
	}
	logger.Debug("Cache entry updated.", "key", inv.CacheRequest.Key)
}

func failStep(rep report.StepReport, start time.Time, err error) report.StepReport {
	rep.Status = report.StatusFailure
	rep.Error = err.Error()
	rep.Duration = time.Since(start)
	return rep
}

// baseEnv builds a leg's starting environment: PATH and HOME from the host
// (the shell needs them to resolve anything at all) overlaid with the
// workflow's explicit env block.
func baseEnv(workflowEnv map[string]string) map[string]string {
	env := map[string]string{
		"PATH": os.Getenv("PATH"),
		"HOME": os.Getenv("HOME"),
	}
	for k, v := range workflowEnv {
		env[k] = v
	}
	return env
}

// stepName falls back to the step's command or action when no display name
// was configured.
func stepName(step *config.Step) string {
	if step.Name != "" {
		return step.Name
	}
	if step.Uses != "" {
		return step.Uses
	}
	return step.Run
}
