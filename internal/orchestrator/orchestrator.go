// Package orchestrator ties the engine together: it matches trigger events
// against workflow subscriptions, expands each matching workflow into an
// execution graph, drives the graph through the executor, and aggregates the
// results into run reports.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/ctxlog"
	"github.com/pipewright/pipewright/internal/event"
	"github.com/pipewright/pipewright/internal/executor"
	"github.com/pipewright/pipewright/internal/graph"
	"github.com/pipewright/pipewright/internal/report"
	"github.com/pipewright/pipewright/internal/storage"
)

// Orchestrator dispatches trigger events against a loaded workflow model.
type Orchestrator struct {
	model  *config.Model
	runner executor.LegRunner
	store  *report.Store
	logs   *storage.LogStore
	cfg    executor.Config
}

// New creates an Orchestrator. The store may be shared with an HTTP status
// surface; every finished run is published to it and persisted as
// report.json next to the run's step logs.
func New(model *config.Model, runner executor.LegRunner, store *report.Store, logs *storage.LogStore, cfg executor.Config) *Orchestrator {
	return &Orchestrator{
		model:  model,
		runner: runner,
		store:  store,
		logs:   logs,
		cfg:    cfg,
	}
}

// Dispatch runs every workflow whose triggers match the event and returns
// their reports. Workflows run sequentially relative to each other; all
// parallelism lives inside a run, between independent jobs and legs. An
// event matching no workflow returns an empty slice, not an error.
func (o *Orchestrator) Dispatch(ctx context.Context, ev event.Event) ([]*report.RunReport, error) {
	logger := ctxlog.FromContext(ctx)

	var reports []*report.RunReport
	for _, wf := range o.model.Workflows {
		if !ev.Matches(wf.On) {
			logger.Debug("Workflow not subscribed to event, skipping.", "workflow", wf.Name, "event", ev.Type, "branch", ev.Branch)
			continue
		}

		rep, err := o.runWorkflow(ctx, wf, ev)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rep)
	}

	if len(reports) == 0 {
		logger.Info("Event matched no workflows.", "event", ev.Type, "branch", ev.Branch)
	}
	return reports, nil
}

// runWorkflow executes one workflow end to end and publishes its report.
func (o *Orchestrator) runWorkflow(ctx context.Context, wf *config.Workflow, ev event.Event) (*report.RunReport, error) {
	runID := uuid.NewString()
	ctx = ctxlog.With(ctx, "run", runID, "workflow", wf.Name)
	logger := ctxlog.FromContext(ctx)

	g, err := graph.Build(ctx, wf)
	if err != nil {
		return nil, fmt.Errorf("building graph for workflow %q: %w", wf.Name, err)
	}

	logger.Info("Run started.", "event", ev.Type, "branch", ev.Branch, "legs", len(g.Nodes))
	started := time.Now().UTC()

	legs := executor.New(g, o.runner, o.cfg).Run(ctx, runID)

	rep := &report.RunReport{
		ID:         runID,
		Workflow:   wf.Name,
		Event:      ev,
		Status:     report.Aggregate(legs),
		Legs:       legs,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
	rep.Duration = rep.FinishedAt.Sub(rep.StartedAt)

	o.store.Put(rep)
	// Persistence is best-effort: a full runs disk costs the report file,
	// not the run.
	if _, err := o.logs.SaveReport(rep); err != nil {
		logger.Warn("Failed to persist run report.", "error", err)
	}

	logger.Info("Run finished.", "status", rep.Status, "duration", rep.Duration)
	return rep, nil
}
