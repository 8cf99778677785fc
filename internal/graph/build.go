package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/ctxlog"
	"github.com/pipewright/pipewright/internal/expr"
)

// Build constructs a validated execution graph for one workflow. Matrix jobs
// are expanded into one node per axis combination; needs edges are linked
// against every leg of the needed job; cycles are rejected.
func Build(ctx context.Context, wf *config.Workflow) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting graph construction.", "workflow", wf.Name)

	g := &Graph{Nodes: make(map[string]*Node)}

	// First pass: expand every job into its legs and create nodes.
	legsByJob := make(map[string][]*Node, len(wf.Jobs))
	for _, job := range wf.Jobs {
		legs, err := expandJob(wf, job)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", wf.Name, err)
		}
		for _, leg := range legs {
			id := legID(job.Name, leg.Matrix)
			if _, exists := g.Nodes[id]; exists {
				return nil, fmt.Errorf("workflow %q: duplicate leg %s", wf.Name, id)
			}
			node := newNode(id, leg)
			g.Nodes[id] = node
			legsByJob[job.Name] = append(legsByJob[job.Name], node)
		}
	}
	logger.Debug("Node creation complete.", "node_count", len(g.Nodes))

	// Second pass: link needs edges. A node depends on every leg of each
	// job it needs.
	for _, job := range wf.Jobs {
		for _, need := range job.Needs {
			upstream, ok := legsByJob[need]
			if !ok {
				return nil, fmt.Errorf("workflow %q: job %q needs unknown job %q", wf.Name, job.Name, need)
			}
			for _, node := range legsByJob[job.Name] {
				for _, dep := range upstream {
					node.Deps[dep.ID] = dep
					dep.Dependents[node.ID] = node
				}
			}
		}
	}
	logger.Debug("Node linking complete.")

	// Third pass: initialize dependency counters.
	for _, node := range g.Nodes {
		node.depCount.Store(int32(len(node.Deps)))
	}

	if err := g.detectCycles(); err != nil {
		return nil, fmt.Errorf("workflow %q: invalid dependency graph: %w", wf.Name, err)
	}
	logger.Debug("Graph construction successful.", "workflow", wf.Name)

	return g, nil
}

// expandJob fans one job definition out into its legs: the cartesian product
// of all matrix axes, or a single leg for jobs without a matrix.
func expandJob(wf *config.Workflow, job *config.Job) ([]*Leg, error) {
	combos := matrixCombinations(job.Strategy)

	legs := make([]*Leg, 0, len(combos))
	for _, combo := range combos {
		scope := expr.Scope(combo, wf.Env)
		runsOn, err := expr.Eval(job.RunsOn, scope)
		if err != nil {
			return nil, fmt.Errorf("job %q: resolving runs_on: %w", job.Name, err)
		}
		if runsOn == "" {
			return nil, fmt.Errorf("job %q: runs_on resolved to an empty environment", job.Name)
		}

		failFast := job.Strategy != nil && job.Strategy.FailFast
		legs = append(legs, &Leg{
			Job:      job.Name,
			RunsOn:   runsOn,
			Matrix:   combo,
			FailFast: failFast,
			Env:      wf.Env,
			Steps:    job.Steps,
		})
	}
	return legs, nil
}

// matrixCombinations computes the cartesian product of the strategy's axes.
// Axis names are processed in sorted order so expansion is deterministic.
// A nil strategy or empty matrix yields one empty combination.
func matrixCombinations(s *config.Strategy) []map[string]string {
	if s == nil || len(s.Matrix) == 0 {
		return []map[string]string{{}}
	}

	axes := make([]string, 0, len(s.Matrix))
	for axis := range s.Matrix {
		axes = append(axes, axis)
	}
	sort.Strings(axes)

	combos := []map[string]string{{}}
	for _, axis := range axes {
		var next []map[string]string
		for _, base := range combos {
			for _, value := range s.Matrix[axis] {
				combo := make(map[string]string, len(base)+1)
				for k, v := range base {
					combo[k] = v
				}
				combo[axis] = value
				next = append(next, combo)
			}
		}
		combos = next
	}
	return combos
}

// legID renders a stable node identifier, e.g. "job.build[os=ubuntu]".
func legID(job string, matrix map[string]string) string {
	if len(matrix) == 0 {
		return fmt.Sprintf("job.%s", job)
	}

	axes := make([]string, 0, len(matrix))
	for axis := range matrix {
		axes = append(axes, axis)
	}
	sort.Strings(axes)

	parts := make([]string, 0, len(axes))
	for _, axis := range axes {
		parts = append(parts, fmt.Sprintf("%s=%s", axis, matrix[axis]))
	}
	return fmt.Sprintf("job.%s[%s]", job, strings.Join(parts, ","))
}
