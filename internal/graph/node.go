package graph

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/report"
)

// Leg is the runtime configuration of one node: a single execution instance
// of a job bound to one matrix combination. Sibling legs of the same job are
// mutually independent unless the job's strategy enables fail-fast.
type Leg struct {
	// Job is the name of the job this leg was expanded from.
	Job string
	// RunsOn is the resolved execution environment label. Matrix references
	// in the job's runs_on template are already interpolated.
	RunsOn string
	// Matrix holds this leg's axis values, empty for non-matrix jobs.
	Matrix map[string]string
	// FailFast mirrors the job strategy flag: when true, a failure of this
	// leg cancels its sibling legs (never unrelated jobs).
	FailFast bool
	// Env is the workflow environment handed to every step of this leg.
	Env map[string]string
	// Steps is the ordered step sequence shared by all legs of the job.
	Steps []*config.Step
}

// Node is a single vertex in the execution graph.
type Node struct {
	// ID is the unique identifier, e.g. "job.build[os=ubuntu]".
	ID string
	// Leg holds the runtime configuration executed for this node.
	Leg *Leg

	// Deps holds the nodes this node waits for; Dependents the inverse.
	Deps       map[string]*Node
	Dependents map[string]*Node

	// Report is written by the executor once the node reaches a terminal
	// state. It must not be read while the node is still pending or running.
	Report report.LegReport

	// depCount is the number of unmet dependencies, decremented atomically
	// as upstream nodes finish.
	depCount atomic.Int32
	// state is the node's report.Status, transitioned by the executor.
	state atomic.Value
	// skipOnce ensures a node is marked skipped and counted exactly once.
	skipOnce sync.Once
}

func newNode(id string, leg *Leg) *Node {
	n := &Node{
		ID:         id,
		Leg:        leg,
		Deps:       make(map[string]*Node),
		Dependents: make(map[string]*Node),
	}
	n.state.Store(report.StatusPending)
	return n
}

// State returns the node's current status.
func (n *Node) State() report.Status {
	return n.state.Load().(report.Status)
}

// Start transitions the node to running.
func (n *Node) Start() {
	n.state.Store(report.StatusRunning)
}

// Finish records the node's terminal report after normal execution.
func (n *Node) Finish(rep report.LegReport) {
	n.Report = rep
	n.state.Store(rep.Status)
}

// MarkTerminalOnce records a terminal report for a node that never ran
// (skipped or canceled). It returns true only for the call that won; losing
// callers leave the node untouched, so a leg with several failed upstreams
// is accounted exactly once.
func (n *Node) MarkTerminalOnce(rep report.LegReport) bool {
	won := false
	n.skipOnce.Do(func() {
		n.Report = rep
		n.state.Store(rep.Status)
		won = true
	})
	return won
}

// ClearDependency atomically records that one upstream dependency finished
// successfully, reporting whether the node just became ready.
func (n *Node) ClearDependency() bool {
	return n.depCount.Add(-1) == 0
}

// Graph is the complete, validated execution graph for one workflow run.
type Graph struct {
	// Nodes holds every leg node, keyed by ID.
	Nodes map[string]*Node
}

// SortedIDs returns all node IDs in lexical order, for deterministic
// scheduling of roots and deterministic reporting.
func (g *Graph) SortedIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
