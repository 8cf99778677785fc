package executor

import (
	"fmt"
	"log/slog"

	"github.com/pipewright/pipewright/internal/graph"
	"github.com/pipewright/pipewright/internal/report"
)

// finishCanceled marks a leg that was stopped before it started.
func (e *Executor) finishCanceled(node *graph.Node) {
	node.MarkTerminalOnce(report.LegReport{
		ID:     node.ID,
		Job:    node.Leg.Job,
		RunsOn: node.Leg.RunsOn,
		Matrix: node.Leg.Matrix,
		Status: report.StatusCanceled,
		Error:  "run canceled before leg started",
	})
}

// cascade propagates a finished node's outcome downstream: success unlocks
// dependents whose last dependency just cleared; any other terminal state
// skips the entire downstream subtree.
func (e *Executor) cascade(logger *slog.Logger, node *graph.Node, readyChan chan *graph.Node) {
	if node.State() == report.StatusSuccess {
		for _, dependent := range node.Dependents {
			if dependent.ClearDependency() {
				logger.Debug("Unlocking dependent leg.", "dependent", dependent.ID)
				readyChan <- dependent
			}
		}
		return
	}
	e.skipDependents(logger, node)
}

// skipDependents recursively marks downstream legs skipped. A leg whose
// dependency failed is a symptom, not a cause; its report says which
// upstream leg took it down.
func (e *Executor) skipDependents(logger *slog.Logger, node *graph.Node) {
	for _, dependent := range node.Dependents {
		skipped := dependent.MarkTerminalOnce(report.LegReport{
			ID:     dependent.ID,
			Job:    dependent.Leg.Job,
			RunsOn: dependent.Leg.RunsOn,
			Matrix: dependent.Leg.Matrix,
			Status: report.StatusSkipped,
			Error:  fmt.Sprintf("skipped due to upstream failure of %s", node.ID),
		})
		if skipped {
			logger.Warn("Skipping dependent leg due to upstream failure.", "dependent", dependent.ID, "upstream", node.ID)
			e.wg.Done()
			e.skipDependents(logger, dependent)
		}
	}
}

// collect gathers every node's terminal report in stable ID order.
func (e *Executor) collect() []report.LegReport {
	legs := make([]report.LegReport, 0, len(e.graph.Nodes))
	for _, id := range e.graph.SortedIDs() {
		legs = append(legs, e.graph.Nodes[id].Report)
	}
	return legs
}
