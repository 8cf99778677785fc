// Package executor schedules an execution graph over a pool of concurrent
// workers. Legs with no unmet dependencies run in parallel; a failing leg
// marks its dependents skipped but never cancels unrelated work. Sibling
// legs of a matrix job are canceled on failure only when the job's strategy
// explicitly enables fail-fast.
package executor

import (
	"context"
	"sync"

	"github.com/pipewright/pipewright/internal/ctxlog"
	"github.com/pipewright/pipewright/internal/graph"
	"github.com/pipewright/pipewright/internal/report"
)

// CancelPolicy decides what happens to in-flight legs when the whole run is
// canceled (e.g. a superseding push).
type CancelPolicy string

const (
	// CancelKill terminates in-flight legs immediately. This is the default.
	CancelKill CancelPolicy = "kill"
	// CancelDrain lets in-flight legs finish but schedules nothing new.
	CancelDrain CancelPolicy = "drain"
)

// ParseCancelPolicy validates a raw policy string, defaulting empty to kill.
func ParseCancelPolicy(s string) (CancelPolicy, bool) {
	switch CancelPolicy(s) {
	case "":
		return CancelKill, true
	case CancelKill, CancelDrain:
		return CancelPolicy(s), true
	default:
		return "", false
	}
}

// LegRunner executes a single leg to a terminal report. The production
// implementation shells out; tests substitute fakes.
type LegRunner interface {
	RunLeg(ctx context.Context, runID, legID string, leg *graph.Leg) report.LegReport
}

// Config tunes one Executor instance.
type Config struct {
	Workers      int
	CancelPolicy CancelPolicy
}

// Executor drives one graph to completion.
type Executor struct {
	graph  *graph.Graph
	runner LegRunner
	cfg    Config

	wg sync.WaitGroup
	// groupCancels holds one cancel func per fail-fast job group.
	groupCancels map[string]context.CancelFunc
	groupCtxs    map[string]context.Context
}

// New creates an Executor for the given graph.
func New(g *graph.Graph, runner LegRunner, cfg Config) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.CancelPolicy == "" {
		cfg.CancelPolicy = CancelKill
	}
	return &Executor{
		graph:        g,
		runner:       runner,
		cfg:          cfg,
		groupCancels: make(map[string]context.CancelFunc),
		groupCtxs:    make(map[string]context.Context),
	}
}

// Run executes the entire graph and returns one report per leg, in stable ID
// order. Every leg reaches a terminal status: success, failure, skipped, or
// canceled.
func (e *Executor) Run(ctx context.Context, runID string) []report.LegReport {
	logger := ctxlog.FromContext(ctx)

	// Leg execution contexts derive from base, not ctx: under the drain
	// policy a run cancellation must not reach into running legs.
	base := ctx
	if e.cfg.CancelPolicy == CancelDrain {
		base = context.WithoutCancel(ctx)
	}

	// One shared context per fail-fast job group, so a failing leg can take
	// its siblings down without touching unrelated jobs.
	for _, node := range e.graph.Nodes {
		if node.Leg.FailFast {
			if _, ok := e.groupCtxs[node.Leg.Job]; !ok {
				groupCtx, cancel := context.WithCancel(base)
				e.groupCtxs[node.Leg.Job] = groupCtx
				e.groupCancels[node.Leg.Job] = cancel
			}
		}
	}
	defer func() {
		for _, cancel := range e.groupCancels {
			cancel()
		}
	}()

	readyChan := make(chan *graph.Node, len(e.graph.Nodes))

	rootCount := 0
	for _, id := range e.graph.SortedIDs() {
		node := e.graph.Nodes[id]
		if len(node.Deps) == 0 {
			readyChan <- node
			rootCount++
		}
	}
	logger.Debug("Executor initialized.", "nodes", len(e.graph.Nodes), "roots", rootCount, "workers", e.cfg.Workers)

	e.wg.Add(len(e.graph.Nodes))
	for i := 0; i < e.cfg.Workers; i++ {
		go e.worker(ctx, base, readyChan, runID, i)
	}

	e.wg.Wait()
	close(readyChan)
	logger.Debug("All legs reached a terminal state.")

	return e.collect()
}

// worker is the processing loop for one concurrent worker. schedCtx carries
// run cancellation for scheduling decisions; execBase is what leg execution
// contexts derive from, which differs under the drain policy.
func (e *Executor) worker(schedCtx, execBase context.Context, readyChan chan *graph.Node, runID string, workerID int) {
	logger := ctxlog.FromContext(schedCtx).With("worker", workerID)

	for node := range readyChan {
		execCtx := execBase
		if node.Leg.FailFast {
			execCtx = e.groupCtxs[node.Leg.Job]
		}

		// A run cancellation or a fail-fast group cancellation stops
		// pending legs before they start; in-flight legs are governed by
		// their own execution context.
		if schedCtx.Err() != nil || execCtx.Err() != nil {
			e.finishCanceled(node)
			e.cascade(logger.With("leg", node.ID), node, readyChan)
			e.wg.Done()
			continue
		}

		logger.Debug("Leg picked up for execution.", "leg", node.ID)
		node.Start()
		rep := e.runner.RunLeg(execCtx, runID, node.ID, node.Leg)
		node.Finish(rep)

		if rep.Status == report.StatusFailure && node.Leg.FailFast {
			if cancel, ok := e.groupCancels[node.Leg.Job]; ok {
				logger.Warn("Leg failed with fail-fast enabled, canceling sibling legs.", "leg", node.ID, "job", node.Leg.Job)
				cancel()
			}
		}

		e.cascade(logger.With("leg", node.ID), node, readyChan)
		e.wg.Done()
	}
}
