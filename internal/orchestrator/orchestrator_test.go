package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/event"
	"github.com/pipewright/pipewright/internal/executor"
	"github.com/pipewright/pipewright/internal/graph"
	"github.com/pipewright/pipewright/internal/report"
	"github.com/pipewright/pipewright/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRunner reports success for every leg and records what ran.
type stubRunner struct {
	mu  sync.Mutex
	ran []string
	// fail lists leg IDs that should report failure.
	fail map[string]bool
}

func (s *stubRunner) RunLeg(ctx context.Context, runID, legID string, leg *graph.Leg) report.LegReport {
	s.mu.Lock()
	s.ran = append(s.ran, legID)
	s.mu.Unlock()

	status := report.StatusSuccess
	if s.fail[legID] {
		status = report.StatusFailure
	}
	return report.LegReport{ID: legID, Job: leg.Job, Status: status}
}

func testModel() *config.Model {
	return &config.Model{Workflows: []*config.Workflow{
		{
			Name: "verify",
			On:   config.Triggers{Push: &config.BranchFilter{Branches: []string{"main"}}, PullRequest: &config.BranchFilter{Branches: []string{"main"}}},
			Jobs: []*config.Job{
				{Name: "lint", RunsOn: "ubuntu", Steps: []*config.Step{{Run: "cargo fmt"}}},
			},
		},
		{
			Name: "nightly",
			On:   config.Triggers{Push: &config.BranchFilter{Branches: []string{"nightly"}}},
			Jobs: []*config.Job{
				{Name: "soak", RunsOn: "ubuntu", Steps: []*config.Step{{Run: "cargo test"}}},
			},
		},
	}}
}

func TestDispatchRunsMatchingWorkflows(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{}
	store := report.NewStore()
	o := New(testModel(), runner, store, storage.NewLogStore(t.TempDir()), executor.Config{Workers: 2})

	reports, err := o.Dispatch(context.Background(), event.Event{Type: event.Push, Branch: "main"})
	require.NoError(t, err)

	require.Len(t, reports, 1, "only the workflow subscribed to main must run")
	rep := reports[0]
	assert.Equal(t, "verify", rep.Workflow)
	assert.Equal(t, report.StatusSuccess, rep.Status)
	assert.NotEmpty(t, rep.ID)
	require.Len(t, rep.Legs, 1)
	assert.Equal(t, "job.lint", rep.Legs[0].ID)

	stored, err := store.Get(rep.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.Status, stored.Status)
}

func TestDispatchNoMatchReturnsEmpty(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{}
	o := New(testModel(), runner, report.NewStore(), storage.NewLogStore(t.TempDir()), executor.Config{})

	reports, err := o.Dispatch(context.Background(), event.Event{Type: event.Push, Branch: "feature/x"})
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Empty(t, runner.ran)
}

func TestDispatchPullRequestUsesBaseBranchFilter(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{}
	o := New(testModel(), runner, report.NewStore(), storage.NewLogStore(t.TempDir()), executor.Config{})

	reports, err := o.Dispatch(context.Background(), event.Event{Type: event.PullRequest, Branch: "main"})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "verify", reports[0].Workflow)

	// The nightly workflow has no pull_request trigger at all.
	reports, err = o.Dispatch(context.Background(), event.Event{Type: event.PullRequest, Branch: "nightly"})
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestDispatchAggregatesFailure(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{fail: map[string]bool{"job.lint": true}}
	o := New(testModel(), runner, report.NewStore(), storage.NewLogStore(t.TempDir()), executor.Config{})

	reports, err := o.Dispatch(context.Background(), event.Event{Type: event.Push, Branch: "main"})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, report.StatusFailure, reports[0].Status)
}

func TestDispatchAssignsUniqueRunIDs(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{}
	o := New(testModel(), runner, report.NewStore(), storage.NewLogStore(t.TempDir()), executor.Config{})

	first, err := o.Dispatch(context.Background(), event.Event{Type: event.Push, Branch: "main"})
	require.NoError(t, err)
	second, err := o.Dispatch(context.Background(), event.Event{Type: event.Push, Branch: "main"})
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ID, second[0].ID)
}

func TestDispatchPersistsRunReport(t *testing.T) {
	t.Parallel()

	runsDir := t.TempDir()
	runner := &stubRunner{}
	o := New(testModel(), runner, report.NewStore(), storage.NewLogStore(runsDir), executor.Config{})

	reports, err := o.Dispatch(context.Background(), event.Event{Type: event.Push, Branch: "main"})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	data, err := os.ReadFile(filepath.Join(runsDir, storage.Sanitize(reports[0].ID), "report.json"))
	require.NoError(t, err, "each run must leave a report.json on disk")

	var saved report.RunReport
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, reports[0].ID, saved.ID)
	assert.Equal(t, "verify", saved.Workflow)
	assert.Equal(t, report.StatusSuccess, saved.Status)
}
