package action

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pipewright/pipewright/internal/cache"
	"github.com/pipewright/pipewright/internal/fsutil"
)

// checkoutHandler populates the leg's isolated workspace from the project
// checkout. Legs never share a working tree, matching the isolation model of
// one environment per leg.
func checkoutHandler(ctx context.Context, inv *Invocation, with map[string]string) (string, error) {
	if inv.ProjectDir == "" {
		return "", fmt.Errorf("checkout: no project directory configured")
	}
	if _, err := os.Stat(inv.ProjectDir); err != nil {
		return "", fmt.Errorf("checkout: project directory: %w", err)
	}
	if err := fsutil.CopyTree(inv.ProjectDir, inv.Workdir); err != nil {
		return "", fmt.Errorf("checkout: %w", err)
	}
	return fmt.Sprintf("checked out %s into %s", inv.ProjectDir, inv.Workdir), nil
}

// toolchainHandler provisions the pinned toolchain version for the leg's
// environment and activates it by prepending its bin directory to PATH.
func toolchainHandler(ctx context.Context, inv *Invocation, with map[string]string) (string, error) {
	version := with["version"]
	if version == "" {
		return "", fmt.Errorf("toolchain: missing required argument version")
	}

	tc, err := inv.Provisioner.Provision(ctx, version, inv.OS)
	if err != nil {
		return "", fmt.Errorf("toolchain: %w", err)
	}

	path := tc.BinDir
	if existing := inv.Env["PATH"]; existing != "" {
		path += string(os.PathListSeparator) + existing
	}
	inv.Env["PATH"] = path
	inv.ToolchainVersion = version

	return fmt.Sprintf("activated toolchain %s for %s (%s)", version, inv.OS, tc.BinDir), nil
}

// cacheHandler restores the dependency cache entry for the leg's lock file
// and records a save request honored after the leg succeeds. Misses degrade
// to a full dependency resolution; they never fail the step.
func cacheHandler(ctx context.Context, inv *Invocation, with map[string]string) (string, error) {
	lockFile := with["lock_file"]
	path := with["path"]
	if lockFile == "" || path == "" {
		return "", fmt.Errorf("cache: lock_file and path arguments are required")
	}

	lock, err := os.ReadFile(filepath.Join(inv.Workdir, lockFile))
	if err != nil {
		return "", fmt.Errorf("cache: reading lock file: %w", err)
	}

	key := cache.Fingerprint(lock, inv.ToolchainVersion, inv.OS)
	hit, err := inv.Cache.Restore(ctx, key, filepath.Join(inv.Workdir, path))
	if err != nil {
		return "", fmt.Errorf("cache: %w", err)
	}

	inv.CacheRequest = &cache.Request{Key: key, Path: path}

	if hit {
		return fmt.Sprintf("cache hit for key %s", key), nil
	}
	return fmt.Sprintf("cache miss for key %s, dependencies will be resolved from scratch", key), nil
}
