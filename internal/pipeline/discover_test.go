package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "mailanon/pkg/domain-errors"
)

func TestDiscoverInputs(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "anon")
	require.NoError(t, os.MkdirAll(out, 0o755))
	for _, name := range []string{"mails.inbox.csv", "mails.sent.CSV", "notes.txt", "anon/mails.inbox.anon.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	t.Run("directory expands to csv files", func(t *testing.T) {
		files, err := DiscoverInputs([]string{dir}, ".csv", out)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{
			filepath.Join(dir, "mails.inbox.csv"),
			filepath.Join(dir, "mails.sent.CSV"),
		}, files)
	})

	t.Run("explicit files are kept once", func(t *testing.T) {
		f := filepath.Join(dir, "notes.txt")
		files, err := DiscoverInputs([]string{f, f}, ".csv", out)
		require.NoError(t, err)
		assert.Equal(t, []string{f}, files)
	})

	t.Run("output directory is excluded", func(t *testing.T) {
		_, err := DiscoverInputs([]string{out}, ".csv", out)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := DiscoverInputs([]string{filepath.Join(dir, "absent")}, ".csv", "")
		assert.Error(t, err)
	})
}
