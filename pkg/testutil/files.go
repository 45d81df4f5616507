// Package testutil provides common helpers for tests that work on input and
// output files.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteFile writes content to dir/name, creating parent directories, and
// returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755), "failed to create parent directory")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "failed to write %s", name)
	return path
}

// ReadFile returns the content of path, failing the test if it is missing.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read %s", path)
	return string(data)
}

// JSONLines marshals each value onto its own line.
func JSONLines(t *testing.T, values ...any) string {
	t.Helper()
	var b strings.Builder
	for _, v := range values {
		line, err := json.Marshal(v)
		require.NoError(t, err, "failed to marshal value")
		b.Write(line)
		b.WriteByte('\n')
	}
	return b.String()
}
