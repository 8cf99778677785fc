// Package action provides the registry of built-in step actions invoked by
// `uses` steps: source checkout, toolchain provisioning, and dependency
// cache restore. Actions run in-process, unlike `run` steps which go through
// the shell.
package action

import (
	"context"
	"fmt"
	"sort"

	"github.com/pipewright/pipewright/internal/cache"
	"github.com/pipewright/pipewright/internal/toolchain"
)

// Invocation is the mutable per-leg state an action operates on. Actions may
// extend the environment (e.g. activating a toolchain on PATH) or record a
// cache save request for the leg runner to honor after success.
type Invocation struct {
	// Workdir is the leg's isolated workspace.
	Workdir string
	// ProjectDir is the source checkout the workspace is populated from.
	ProjectDir string
	// OS is the leg's environment label.
	OS string
	// Env is the leg's environment; actions mutate it in place.
	Env map[string]string
	// ToolchainVersion is set by the toolchain action and consumed by the
	// cache action's fingerprint.
	ToolchainVersion string
	// CacheRequest, when non-nil after a leg succeeds, asks the runner to
	// save the named path back under the key.
	CacheRequest *cache.Request

	Provisioner *toolchain.Provisioner
	Cache       *cache.Manager
}

// Handler executes one built-in action. The returned string is the action's
// human-readable output, captured like command output.
type Handler func(ctx context.Context, inv *Invocation, with map[string]string) (string, error)

// Registry maps action names to handlers for a single engine instance.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a named handler. Registering a duplicate name panics: that
// is a programmer error, not a runtime condition.
func (r *Registry) Register(name string, h Handler) {
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("action %q registered twice", name))
	}
	r.handlers[name] = h
}

// Lookup resolves an action name.
func (r *Registry) Lookup(name string) (Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown action %q (registered: %v)", name, r.Names())
	}
	return h, nil
}

// Names returns all registered action names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a registry populated with the engine's built-in actions.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register("checkout", checkoutHandler)
	r.Register("toolchain", toolchainHandler)
	r.Register("cache", cacheHandler)
	return r
}
