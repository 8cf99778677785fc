// Package toolchain resolves and activates pinned compiler toolchains for a
// target environment. Installed toolchains live under an installation root
// laid out as <root>/<version>/<os>/bin; provisioning a version that is not
// present for the requested environment is a typed provisioning error, kept
// distinct from build and test failures for diagnostics.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/pipewright/pipewright/internal/ctxlog"
)

// ErrUnavailable marks a requested toolchain version that is not installed
// for the target environment.
var ErrUnavailable = errors.New("toolchain unavailable")

// ErrNotPinned marks a version identifier that is floating (e.g. "stable",
// "1.x"). The provisioner only accepts exact versions so that two runs with
// the same identifier always see the same toolchain.
var ErrNotPinned = errors.New("toolchain version is not pinned")

// pinnedVersion matches exact semantic versions like "1.80.1".
var pinnedVersion = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Toolchain is an activated, resolved toolchain installation.
type Toolchain struct {
	Version string
	OS      string
	// BinDir is prepended to a leg's PATH to activate the toolchain.
	BinDir string
}

// Provisioner resolves pinned versions against a local installation root.
type Provisioner struct {
	root string
}

// New creates a Provisioner over the given installation root.
func New(root string) *Provisioner {
	return &Provisioner{root: root}
}

// Provision resolves the exact version for the given environment and returns
// the activated toolchain. The same (version, os) pair always resolves to
// the same installation.
func (p *Provisioner) Provision(ctx context.Context, version, osLabel string) (*Toolchain, error) {
	logger := ctxlog.FromContext(ctx)

	if !pinnedVersion.MatchString(version) {
		return nil, fmt.Errorf("%w: %q must be an exact version like 1.80.1", ErrNotPinned, version)
	}
	if osLabel == "" {
		return nil, fmt.Errorf("%w: empty target environment", ErrUnavailable)
	}

	binDir := filepath.Join(p.root, version, osLabel, "bin")
	info, err := os.Stat(binDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: version %s for %s not installed under %s", ErrUnavailable, version, osLabel, p.root)
	}

	logger.Debug("Toolchain provisioned.", "version", version, "os", osLabel, "bin_dir", binDir)
	return &Toolchain{Version: version, OS: osLabel, BinDir: binDir}, nil
}

// Install registers a toolchain installation under the root, creating its
// bin directory. It exists for bootstrapping local roots and for tests.
func (p *Provisioner) Install(version, osLabel string) (string, error) {
	if !pinnedVersion.MatchString(version) {
		return "", fmt.Errorf("%w: %q", ErrNotPinned, version)
	}
	binDir := filepath.Join(p.root, version, osLabel, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return "", err
	}
	return binDir, nil
}
