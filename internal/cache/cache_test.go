package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifacts(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "debug"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "debug", "libserde.rlib"), []byte("object code"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CACHEDIR.TAG"), []byte("Signature"), 0o644))
}

func TestFingerprintVariesByInputs(t *testing.T) {
	t.Parallel()

	lock := []byte("[[package]]\nname = \"serde\"\n")
	base := Fingerprint(lock, "1.80.1", "ubuntu")

	assert.Equal(t, base, Fingerprint(lock, "1.80.1", "ubuntu"), "same inputs must yield the same key")
	assert.NotEqual(t, base, Fingerprint([]byte("other"), "1.80.1", "ubuntu"))
	assert.NotEqual(t, base, Fingerprint(lock, "1.81.0", "ubuntu"))
	assert.NotEqual(t, base, Fingerprint(lock, "1.80.1", "windows"), "each environment gets its own entry")
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	m := New(t.TempDir())
	src := t.TempDir()
	writeArtifacts(t, src)

	key := Fingerprint([]byte("lock"), "1.80.1", "ubuntu")
	require.NoError(t, m.Save(context.Background(), key, src))

	dest := filepath.Join(t.TempDir(), "target")
	hit, err := m.Restore(context.Background(), key, dest)
	require.NoError(t, err)
	assert.True(t, hit)

	data, err := os.ReadFile(filepath.Join(dest, "debug", "libserde.rlib"))
	require.NoError(t, err)
	assert.Equal(t, "object code", string(data))
}

func TestRestoreMissIsNotAnError(t *testing.T) {
	t.Parallel()

	m := New(t.TempDir())

	hit, err := m.Restore(context.Background(), Fingerprint([]byte("lock"), "1.80.1", "ubuntu"), filepath.Join(t.TempDir(), "target"))
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRestoreMissingMetaIsTreatedAsCorrupted(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m := New(root)
	key := Fingerprint([]byte("lock"), "1.80.1", "ubuntu")

	// An entry directory without a meta file, as a crashed save leaves it.
	require.NoError(t, os.MkdirAll(filepath.Join(root, key, "data"), 0o755))

	hit, err := m.Restore(context.Background(), key, filepath.Join(t.TempDir(), "target"))
	require.NoError(t, err)
	assert.False(t, hit, "a half-written entry must degrade to a miss")

	_, statErr := os.Stat(filepath.Join(root, key))
	assert.True(t, os.IsNotExist(statErr), "corrupted entries must be evicted")
}

func TestRestoreMismatchedMetaKeyIsEvicted(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m := New(root)
	src := t.TempDir()
	writeArtifacts(t, src)

	key := Fingerprint([]byte("lock"), "1.80.1", "ubuntu")
	require.NoError(t, m.Save(context.Background(), key, src))

	// Tamper with the meta file so the recorded key no longer matches.
	require.NoError(t, os.WriteFile(filepath.Join(root, key, metaFile), []byte("key: wrong\n"), 0o644))

	hit, err := m.Restore(context.Background(), key, filepath.Join(t.TempDir(), "target"))
	require.NoError(t, err)
	assert.False(t, hit)

	_, statErr := os.Stat(filepath.Join(root, key))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSaveReplacesPreviousEntry(t *testing.T) {
	t.Parallel()

	m := New(t.TempDir())
	key := Fingerprint([]byte("lock"), "1.80.1", "ubuntu")

	first := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(first, "artifact"), []byte("v1"), 0o644))
	require.NoError(t, m.Save(context.Background(), key, first))

	second := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(second, "artifact"), []byte("v2"), 0o644))
	require.NoError(t, m.Save(context.Background(), key, second))

	dest := filepath.Join(t.TempDir(), "target")
	hit, err := m.Restore(context.Background(), key, dest)
	require.NoError(t, err)
	require.True(t, hit)

	data, err := os.ReadFile(filepath.Join(dest, "artifact"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestSaveMissingSourceFails(t *testing.T) {
	t.Parallel()

	m := New(t.TempDir())
	err := m.Save(context.Background(), "somekey", filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}
