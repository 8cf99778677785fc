// Package storage persists captured step output and run reports under a
// runs directory, one subtree per run.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pipewright/pipewright/internal/report"
)

// LogStore writes step logs and report files for completed runs.
type LogStore struct {
	root string
}

// NewLogStore creates a LogStore rooted at the given directory.
func NewLogStore(root string) *LogStore {
	return &LogStore{root: root}
}

// SaveStepLog writes one step's captured output and returns the file path.
// The layout is <root>/<runID>/<legID>/<NN>-<step>.log so logs sort in
// execution order.
func (s *LogStore) SaveStepLog(runID, legID string, stepIndex int, stepName string, output []byte) (string, error) {
	dir := filepath.Join(s.root, Sanitize(runID), Sanitize(legID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, fmt.Sprintf("%02d-%s.log", stepIndex, Sanitize(stepName)))
	if err := os.WriteFile(path, output, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// SaveReport writes the aggregate run report as JSON next to the run's logs.
func (s *LogStore) SaveReport(r *report.RunReport) (string, error) {
	dir := filepath.Join(s.root, Sanitize(r.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, "report.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Sanitize maps an identifier onto a safe path segment.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}
