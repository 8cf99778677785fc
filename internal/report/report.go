// Package report defines the status surface of the engine: per-step, per-leg,
// and per-run results, plus an in-memory store the HTTP layer serves from.
package report

import (
	"time"

	"github.com/pipewright/pipewright/internal/event"
)

// Status is the terminal (or in-flight) state of a run, leg, or step.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	StatusSkipped  Status = "skipped"
	StatusCanceled Status = "canceled"
)

// StepReport is the outcome of a single step within a leg.
type StepReport struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	LogPath  string        `json:"log_path,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// LegReport is the outcome of one leg: a single execution instance of a job,
// bound to one matrix combination (or the job itself when it has no matrix).
type LegReport struct {
	ID        string            `json:"id"`
	Job       string            `json:"job"`
	RunsOn    string            `json:"runs_on"`
	Matrix    map[string]string `json:"matrix,omitempty"`
	Status    Status            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Steps     []StepReport      `json:"steps"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration_ns"`
}

// RunReport aggregates every leg of one workflow run. The run status is the
// conjunction of all leg statuses: success iff every leg succeeded.
type RunReport struct {
	ID         string        `json:"id"`
	Workflow   string        `json:"workflow"`
	Event      event.Event   `json:"event"`
	Status     Status        `json:"status"`
	Legs       []LegReport   `json:"legs"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`
}

// Aggregate computes the run status from its legs: any failure fails the
// run, any cancellation without failure marks it canceled, otherwise success.
func Aggregate(legs []LegReport) Status {
	status := StatusSuccess
	for _, leg := range legs {
		switch leg.Status {
		case StatusFailure, StatusSkipped:
			return StatusFailure
		case StatusCanceled:
			status = StatusCanceled
		}
	}
	return status
}
