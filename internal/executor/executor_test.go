package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/graph"
	"github.com/pipewright/pipewright/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// legBehavior scripts the outcome of one leg for fakeRunner.
type legBehavior struct {
	status report.Status
	errMsg string
	// block, when non-nil, makes the leg wait until the channel closes or
	// the execution context is canceled, whichever comes first.
	block chan struct{}
}

// fakeRunner returns scripted reports and records which legs actually ran.
type fakeRunner struct {
	mu        sync.Mutex
	behaviors map[string]legBehavior
	ran       []string
	started   chan string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		behaviors: make(map[string]legBehavior),
		started:   make(chan string, 64),
	}
}

func (f *fakeRunner) RunLeg(ctx context.Context, runID, legID string, leg *graph.Leg) report.LegReport {
	f.mu.Lock()
	f.ran = append(f.ran, legID)
	behavior := f.behaviors[legID]
	f.mu.Unlock()
	f.started <- legID

	if behavior.block != nil {
		select {
		case <-behavior.block:
		case <-ctx.Done():
			return report.LegReport{ID: legID, Job: leg.Job, Status: report.StatusCanceled, Error: ctx.Err().Error()}
		}
	}

	status := behavior.status
	if status == "" {
		status = report.StatusSuccess
	}
	return report.LegReport{ID: legID, Job: leg.Job, Status: status, Error: behavior.errMsg}
}

func (f *fakeRunner) ranLegs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ran...)
}

func buildGraph(t *testing.T, wf *config.Workflow) *graph.Graph {
	t.Helper()
	g, err := graph.Build(context.Background(), wf)
	require.NoError(t, err)
	return g
}

func matrixJob(failFast bool) *config.Job {
	return &config.Job{
		Name:   "build",
		RunsOn: "${matrix.os}",
		Strategy: &config.Strategy{
			Matrix:   map[string][]string{"os": {"ubuntu", "windows", "macos"}},
			FailFast: failFast,
		},
		Steps: []*config.Step{{Name: "build", Run: "cargo build"}},
	}
}

func statusByID(legs []report.LegReport) map[string]report.Status {
	out := make(map[string]report.Status, len(legs))
	for _, leg := range legs {
		out[leg.ID] = leg.Status
	}
	return out
}

func TestRunAllLegsSucceed(t *testing.T) {
	t.Parallel()

	g := buildGraph(t, &config.Workflow{Name: "verify", Jobs: []*config.Job{
		{Name: "lint", RunsOn: "ubuntu", Steps: []*config.Step{{Run: "cargo fmt"}}},
		matrixJob(false),
	}})
	runner := newFakeRunner()

	legs := New(g, runner, Config{Workers: 4}).Run(context.Background(), "run-1")

	require.Len(t, legs, 4)
	for _, leg := range legs {
		assert.Equal(t, report.StatusSuccess, leg.Status, "leg %s", leg.ID)
	}
	assert.ElementsMatch(t, g.SortedIDs(), runner.ranLegs(), "every leg must run exactly once")
}

func TestRunLegFailureDoesNotCancelSiblings(t *testing.T) {
	t.Parallel()

	g := buildGraph(t, &config.Workflow{Name: "verify", Jobs: []*config.Job{matrixJob(false)}})
	runner := newFakeRunner()
	runner.behaviors["job.build[os=windows]"] = legBehavior{status: report.StatusFailure, errMsg: "linker error"}

	legs := New(g, runner, Config{Workers: 4}).Run(context.Background(), "run-1")

	statuses := statusByID(legs)
	assert.Equal(t, report.StatusFailure, statuses["job.build[os=windows]"])
	assert.Equal(t, report.StatusSuccess, statuses["job.build[os=ubuntu]"])
	assert.Equal(t, report.StatusSuccess, statuses["job.build[os=macos]"])
	assert.Len(t, runner.ranLegs(), 3, "all siblings must still execute")
}

func TestRunFailureSkipsDependents(t *testing.T) {
	t.Parallel()

	g := buildGraph(t, &config.Workflow{Name: "verify", Jobs: []*config.Job{
		{Name: "lint", RunsOn: "ubuntu", Steps: []*config.Step{{Run: "cargo fmt"}}},
		{Name: "test", RunsOn: "ubuntu", Needs: []string{"lint"}, Steps: []*config.Step{{Run: "cargo test"}}},
		{Name: "publish", RunsOn: "ubuntu", Needs: []string{"test"}, Steps: []*config.Step{{Run: "cargo publish"}}},
	}})
	runner := newFakeRunner()
	runner.behaviors["job.lint"] = legBehavior{status: report.StatusFailure, errMsg: "fmt violations"}

	legs := New(g, runner, Config{Workers: 2}).Run(context.Background(), "run-1")

	statuses := statusByID(legs)
	assert.Equal(t, report.StatusFailure, statuses["job.lint"])
	assert.Equal(t, report.StatusSkipped, statuses["job.test"])
	assert.Equal(t, report.StatusSkipped, statuses["job.publish"], "skips must cascade transitively")
	assert.Equal(t, []string{"job.lint"}, runner.ranLegs(), "skipped legs must never execute")

	for _, leg := range legs {
		if leg.Status == report.StatusSkipped {
			assert.Contains(t, leg.Error, "upstream failure")
		}
	}
}

func TestRunSkipAccountedOnceWithMultipleFailedUpstreams(t *testing.T) {
	t.Parallel()

	g := buildGraph(t, &config.Workflow{Name: "verify", Jobs: []*config.Job{
		{Name: "a", RunsOn: "ubuntu", Steps: []*config.Step{{Run: "true"}}},
		{Name: "b", RunsOn: "ubuntu", Steps: []*config.Step{{Run: "true"}}},
		{Name: "c", RunsOn: "ubuntu", Needs: []string{"a", "b"}, Steps: []*config.Step{{Run: "true"}}},
	}})
	runner := newFakeRunner()
	runner.behaviors["job.a"] = legBehavior{status: report.StatusFailure}
	runner.behaviors["job.b"] = legBehavior{status: report.StatusFailure}

	// Run must terminate without the WaitGroup going negative or hanging.
	legs := New(g, runner, Config{Workers: 2}).Run(context.Background(), "run-1")

	statuses := statusByID(legs)
	assert.Equal(t, report.StatusSkipped, statuses["job.c"])
}

func TestRunFailFastCancelsSiblingLegs(t *testing.T) {
	t.Parallel()

	g := buildGraph(t, &config.Workflow{Name: "verify", Jobs: []*config.Job{matrixJob(true)}})
	runner := newFakeRunner()
	runner.behaviors["job.build[os=macos]"] = legBehavior{block: make(chan struct{})}
	runner.behaviors["job.build[os=ubuntu]"] = legBehavior{block: make(chan struct{})}
	failing := legBehavior{status: report.StatusFailure, errMsg: "linker error", block: make(chan struct{})}
	runner.behaviors["job.build[os=windows]"] = failing

	done := make(chan []report.LegReport, 1)
	go func() {
		done <- New(g, runner, Config{Workers: 4}).Run(context.Background(), "run-1")
	}()

	// Wait until all three siblings are in flight, then let windows fail.
	for i := 0; i < 3; i++ {
		select {
		case <-runner.started:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for legs to start")
		}
	}
	close(failing.block)

	var legs []report.LegReport
	select {
	case legs = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run to finish")
	}

	statuses := statusByID(legs)
	assert.Equal(t, report.StatusFailure, statuses["job.build[os=windows]"])
	assert.Equal(t, report.StatusCanceled, statuses["job.build[os=ubuntu]"])
	assert.Equal(t, report.StatusCanceled, statuses["job.build[os=macos]"])
}

func TestRunFailFastGroupDoesNotTouchOtherJobs(t *testing.T) {
	t.Parallel()

	wf := &config.Workflow{Name: "verify", Jobs: []*config.Job{
		{Name: "lint", RunsOn: "ubuntu", Steps: []*config.Step{{Run: "cargo fmt"}}},
		matrixJob(true),
	}}
	g := buildGraph(t, wf)
	runner := newFakeRunner()
	runner.behaviors["job.build[os=ubuntu]"] = legBehavior{status: report.StatusFailure}

	legs := New(g, runner, Config{Workers: 1}).Run(context.Background(), "run-1")

	// With one worker the legs run serially in sorted order; lint runs last
	// and must be unaffected by the build group's cancellation.
	statuses := statusByID(legs)
	assert.Equal(t, report.StatusSuccess, statuses["job.lint"])
}

func TestRunKillPolicyStopsInFlightLegs(t *testing.T) {
	t.Parallel()

	g := buildGraph(t, &config.Workflow{Name: "verify", Jobs: []*config.Job{
		{Name: "build", RunsOn: "ubuntu", Steps: []*config.Step{{Run: "cargo build"}}},
	}})
	runner := newFakeRunner()
	runner.behaviors["job.build"] = legBehavior{block: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []report.LegReport, 1)
	go func() {
		done <- New(g, runner, Config{Workers: 1, CancelPolicy: CancelKill}).Run(ctx, "run-1")
	}()

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for leg to start")
	}
	cancel()

	var legs []report.LegReport
	select {
	case legs = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run to finish")
	}

	require.Len(t, legs, 1)
	assert.Equal(t, report.StatusCanceled, legs[0].Status)
}

func TestRunDrainPolicyLetsInFlightLegsFinish(t *testing.T) {
	t.Parallel()

	g := buildGraph(t, &config.Workflow{Name: "verify", Jobs: []*config.Job{
		{Name: "build", RunsOn: "ubuntu", Steps: []*config.Step{{Run: "cargo build"}}},
	}})
	runner := newFakeRunner()
	block := make(chan struct{})
	runner.behaviors["job.build"] = legBehavior{block: block}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []report.LegReport, 1)
	go func() {
		done <- New(g, runner, Config{Workers: 1, CancelPolicy: CancelDrain}).Run(ctx, "run-1")
	}()

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for leg to start")
	}
	cancel()
	close(block)

	var legs []report.LegReport
	select {
	case legs = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run to finish")
	}

	require.Len(t, legs, 1)
	assert.Equal(t, report.StatusSuccess, legs[0].Status, "drained legs must run to completion")
}

func TestRunDrainPolicySchedulesNothingNew(t *testing.T) {
	t.Parallel()

	g := buildGraph(t, &config.Workflow{Name: "verify", Jobs: []*config.Job{
		{Name: "build", RunsOn: "ubuntu", Steps: []*config.Step{{Run: "cargo build"}}},
		{Name: "test", RunsOn: "ubuntu", Needs: []string{"build"}, Steps: []*config.Step{{Run: "cargo test"}}},
	}})
	runner := newFakeRunner()
	block := make(chan struct{})
	runner.behaviors["job.build"] = legBehavior{block: block}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []report.LegReport, 1)
	go func() {
		done <- New(g, runner, Config{Workers: 1, CancelPolicy: CancelDrain}).Run(ctx, "run-1")
	}()

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for leg to start")
	}
	cancel()
	close(block)

	var legs []report.LegReport
	select {
	case legs = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run to finish")
	}

	statuses := statusByID(legs)
	assert.Equal(t, report.StatusSuccess, statuses["job.build"])
	assert.Equal(t, report.StatusCanceled, statuses["job.test"], "pending legs must not start after cancellation")
	assert.Equal(t, []string{"job.build"}, runner.ranLegs())
}

func TestParseCancelPolicy(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input  string
		want   CancelPolicy
		wantOK bool
	}{
		{input: "", want: CancelKill, wantOK: true},
		{input: "kill", want: CancelKill, wantOK: true},
		{input: "drain", want: CancelDrain, wantOK: true},
		{input: "pause", wantOK: false},
	}

	for _, tc := range testCases {
		t.Run("input_"+tc.input, func(t *testing.T) {
			got, ok := ParseCancelPolicy(tc.input)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}
