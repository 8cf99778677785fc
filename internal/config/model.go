package config

import "context"

// Model is the root container for all workflows loaded from a configuration
// path. A single path may define any number of workflows across any number
// of files.
type Model struct {
	Workflows []*Workflow
}

// Workflow is one named pipeline definition: the events that trigger it, the
// environment applied to every job, and the jobs themselves.
type Workflow struct {
	Name string
	On   Triggers
	// Env is applied to every job and leg of this workflow. It is an
	// explicit map handed to each leg at start, never ambient process state,
	// so legs stay independently reproducible.
	Env  map[string]string
	Jobs []*Job
}

// Triggers declares which repository events start a workflow. A nil filter
// means the workflow does not subscribe to that event type at all.
type Triggers struct {
	Push        *BranchFilter
	PullRequest *BranchFilter
}

// BranchFilter narrows an event subscription to a set of branches. An empty
// Branches list matches every branch.
type BranchFilter struct {
	Branches []string
}

// Matches reports whether the filter accepts the given branch name.
func (f *BranchFilter) Matches(branch string) bool {
	if f == nil {
		return false
	}
	if len(f.Branches) == 0 {
		return true
	}
	for _, b := range f.Branches {
		if b == branch {
			return true
		}
	}
	return false
}

// Job is one schedulable unit of a workflow. A job with a matrix strategy is
// fanned out into one independent leg per matrix combination at graph-build
// time; a job without one becomes a single leg.
type Job struct {
	Name string
	// RunsOn names the execution environment. It may reference a matrix
	// axis through template interpolation, e.g. "${matrix.os}".
	RunsOn   string
	Needs    []string
	Strategy *Strategy
	Steps    []*Step
}

// Strategy controls matrix fan-out for a job.
type Strategy struct {
	// Matrix maps an axis name to its values. The cartesian product of all
	// axes yields the set of legs.
	Matrix map[string][]string
	// FailFast, when true, cancels a job's sibling legs as soon as one leg
	// fails. It defaults to false: every leg runs to completion and reports
	// its own status regardless of siblings.
	FailFast bool
}

// Step is a single instruction within a job. Exactly one of Run or Uses must
// be set: Run executes a shell command, Uses invokes a registered built-in
// action with the With arguments.
type Step struct {
	Name string
	Run  string
	Uses string
	With map[string]string
}

// Loader translates configuration files found under the given paths into the
// agnostic model. Implementations exist per source format.
type Loader interface {
	Load(ctx context.Context, paths ...string) (*Model, error)
}
