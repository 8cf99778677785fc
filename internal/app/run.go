package app

import (
	"context"
	"fmt"
	"time"

	"github.com/pipewright/pipewright/internal/ctxlog"
	"github.com/pipewright/pipewright/internal/event"
	"github.com/pipewright/pipewright/internal/report"
	"github.com/pipewright/pipewright/internal/server"
)

// Run executes the configured mode: a long-running webhook server when a
// listen address is set, otherwise a one-shot dispatch of the configured
// event. The one-shot mode returns a non-nil error when any run failed, so
// callers can map pipeline failure onto the process exit code.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run started.")

	if a.cfg.ListenAddr != "" {
		srv := server.New(a.cfg.ListenAddr, a.orch, a.store)
		return srv.Start(ctx)
	}

	typ, err := event.ParseType(a.cfg.EventType)
	if err != nil {
		return err
	}
	ev := event.Event{
		Type:       typ,
		Branch:     a.cfg.Branch,
		ReceivedAt: time.Now().UTC(),
	}

	reports, err := a.orch.Dispatch(ctx, ev)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		return fmt.Errorf("event %s on branch %s matched no workflows", ev.Type, ev.Branch)
	}

	failed := false
	for _, rep := range reports {
		a.printSummary(rep)
		if rep.Status != report.StatusSuccess {
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("pipeline failed")
	}
	return nil
}

// printSummary writes a human-readable run summary to the app's output.
func (a *App) printSummary(rep *report.RunReport) {
	fmt.Fprintf(a.outW, "\nrun %s  workflow=%s  status=%s  duration=%s\n", rep.ID, rep.Workflow, rep.Status, rep.Duration.Round(time.Millisecond))
	for _, leg := range rep.Legs {
		fmt.Fprintf(a.outW, "  %-9s %s\n", leg.Status, leg.ID)
		for _, step := range leg.Steps {
			fmt.Fprintf(a.outW, "    %-9s %s\n", step.Status, step.Name)
		}
		if leg.Error != "" {
			fmt.Fprintf(a.outW, "    error: %s\n", leg.Error)
		}
	}
}
