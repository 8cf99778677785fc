// Package cache persists build-dependency artifacts between runs. Entries
// are keyed by a fingerprint of the dependency-lock file, the toolchain
// version, and the environment label, so concurrent legs on different
// environments never contend for the same entry. Restoration is best-effort:
// a miss or a corrupted entry degrades to a full dependency resolution, it
// never fails the job.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pipewright/pipewright/internal/ctxlog"
	"github.com/pipewright/pipewright/internal/fsutil"
	"gopkg.in/yaml.v3"
)

const metaFile = "meta.yaml"

// entryMeta describes a saved entry. A readable meta file is what makes an
// entry trustworthy; an entry without one is treated as corrupted.
type entryMeta struct {
	Key     string    `yaml:"key"`
	SavedAt time.Time `yaml:"saved_at"`
}

// Request records a leg's wish to save its dependency artifacts after a
// successful run. It is produced by the cache action and consumed by the
// leg runner.
type Request struct {
	Key string
	// Path is the artifact directory, relative to the leg workdir.
	Path string
}

// Manager stores cache entries as directories under a root.
type Manager struct {
	root string
}

// New creates a Manager over the given cache root.
func New(root string) *Manager {
	return &Manager{root: root}
}

// Fingerprint derives a cache key from the dependency-lock content, the
// toolchain version, and the environment label.
func Fingerprint(lock []byte, toolchainVersion, osLabel string) string {
	h := sha256.New()
	h.Write(lock)
	fmt.Fprintf(h, "|%s|%s", toolchainVersion, osLabel)
	return hex.EncodeToString(h.Sum(nil))
}

// Restore copies the entry for key into dest, reporting whether it was a
// hit. Misses and corrupted entries return (false, nil); a corrupted entry
// is evicted so the next save starts clean. Only an unusable destination is
// a real error.
func (m *Manager) Restore(ctx context.Context, key, dest string) (bool, error) {
	logger := ctxlog.FromContext(ctx)

	entryDir := filepath.Join(m.root, key)
	if _, err := os.Stat(entryDir); err != nil {
		logger.Debug("Cache miss.", "key", key)
		return false, nil
	}

	meta, err := readMeta(entryDir)
	if err != nil || meta.Key != key {
		logger.Warn("Evicting corrupted cache entry.", "key", key, "error", err)
		_ = os.RemoveAll(entryDir)
		return false, nil
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return false, fmt.Errorf("preparing cache restore target: %w", err)
	}
	if err := fsutil.CopyTree(filepath.Join(entryDir, "data"), dest); err != nil {
		logger.Warn("Cache restore failed, falling back to full resolution.", "key", key, "error", err)
		return false, nil
	}

	logger.Debug("Cache hit.", "key", key, "saved_at", meta.SavedAt)
	return true, nil
}

// Save writes the contents of src as the entry for key, replacing any
// previous entry atomically enough for a single writer per key: data first,
// meta last, so a half-written entry reads as corrupted, not stale.
func (m *Manager) Save(ctx context.Context, key, src string) error {
	logger := ctxlog.FromContext(ctx)

	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("cache source %s: %w", src, err)
	}

	entryDir := filepath.Join(m.root, key)
	if err := os.RemoveAll(entryDir); err != nil {
		return err
	}
	if err := fsutil.CopyTree(src, filepath.Join(entryDir, "data")); err != nil {
		return fmt.Errorf("copying cache entry: %w", err)
	}

	data, err := yaml.Marshal(entryMeta{Key: key, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(entryDir, metaFile), data, 0o644); err != nil {
		return err
	}

	logger.Debug("Cache entry saved.", "key", key)
	return nil
}

func readMeta(entryDir string) (entryMeta, error) {
	var meta entryMeta
	data, err := os.ReadFile(filepath.Join(entryDir, metaFile))
	if err != nil {
		return meta, err
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return meta, err
	}
	return meta, nil
}
