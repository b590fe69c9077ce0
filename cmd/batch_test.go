package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
versions:
  - id: 1.20.1
  - root: /nowhere
  - id: 1.8.9
    root: /games/legacy
    source: official-only
`), 0644))

	entries, err := readBatchFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1.20.1", entries[0].VersionID)
	assert.Equal(t, "/games/legacy", entries[1].Root)
	assert.Equal(t, "official-only", entries[1].Source)
}

func TestReadBatchFileErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0644))
		return p
	}

	_, err := readBatchFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
	_, err = readBatchFile(write("empty.yaml", "versions: []\n"))
	assert.ErrorContains(t, err, "no versions")
	_, err = readBatchFile(write("source.yaml", "versions:\n  - id: 1.0\n    source: fastest\n"))
	assert.ErrorContains(t, err, "fastest")
	_, err = readBatchFile(write("bad.yaml", "versions: [\n"))
	assert.ErrorContains(t, err, "parsing")
}
