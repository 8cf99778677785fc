// Package event models the repository activity that triggers pipeline runs:
// pushes and pull requests, filtered by target branch. Events arrive either
// as webhook payloads or as explicit CLI arguments for local one-shot runs.
package event

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pipewright/pipewright/internal/config"
)

// Type identifies the kind of repository activity.
type Type string

const (
	// Push is a branch push event.
	Push Type = "push"
	// PullRequest is a pull request opened or updated against a base branch.
	PullRequest Type = "pull_request"
)

// Event is one immutable trigger occurrence, consumed once per dispatch.
type Event struct {
	Type Type `json:"type"`
	// Branch is the pushed branch for push events, or the base branch the
	// pull request targets.
	Branch string `json:"branch"`
	// Commit is the head commit SHA, when the payload carries one.
	Commit string `json:"commit,omitempty"`
	// Delivery is the sender-assigned delivery identifier, when present.
	Delivery string `json:"delivery,omitempty"`
	// ReceivedAt records when the engine accepted the event.
	ReceivedAt time.Time `json:"received_at"`
}

// ParseType validates a raw event type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case Push, PullRequest:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown event type %q (want %q or %q)", s, Push, PullRequest)
	}
}

// Matches reports whether this event satisfies a workflow's trigger filters.
func (e Event) Matches(t config.Triggers) bool {
	switch e.Type {
	case Push:
		return t.Push.Matches(e.Branch)
	case PullRequest:
		return t.PullRequest.Matches(e.Branch)
	default:
		return false
	}
}

// pushPayload is the subset of a push webhook body the engine cares about.
type pushPayload struct {
	Ref   string `json:"ref"`
	After string `json:"after"`
}

// pullRequestPayload is the subset of a pull_request webhook body the engine
// cares about.
type pullRequestPayload struct {
	PullRequest struct {
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
}

// ParsePayload decodes a webhook request body for the given event type.
func ParsePayload(eventType string, delivery string, r io.Reader) (Event, error) {
	typ, err := ParseType(eventType)
	if err != nil {
		return Event{}, err
	}

	ev := Event{
		Type:       typ,
		Delivery:   delivery,
		ReceivedAt: time.Now().UTC(),
	}

	switch typ {
	case Push:
		var p pushPayload
		if err := json.NewDecoder(r).Decode(&p); err != nil {
			return Event{}, fmt.Errorf("decoding push payload: %w", err)
		}
		branch, ok := branchFromRef(p.Ref)
		if !ok {
			return Event{}, fmt.Errorf("push payload ref %q is not a branch ref", p.Ref)
		}
		ev.Branch = branch
		ev.Commit = p.After

	case PullRequest:
		var p pullRequestPayload
		if err := json.NewDecoder(r).Decode(&p); err != nil {
			return Event{}, fmt.Errorf("decoding pull_request payload: %w", err)
		}
		if p.PullRequest.Base.Ref == "" {
			return Event{}, fmt.Errorf("pull_request payload missing base ref")
		}
		ev.Branch = p.PullRequest.Base.Ref
		ev.Commit = p.PullRequest.Head.SHA
	}

	return ev, nil
}

// branchFromRef turns "refs/heads/main" into "main".
func branchFromRef(ref string) (string, bool) {
	const prefix = "refs/heads/"
	if !strings.HasPrefix(ref, prefix) {
		return "", false
	}
	branch := strings.TrimPrefix(ref, prefix)
	return branch, branch != ""
}
