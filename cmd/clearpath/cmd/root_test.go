package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_HasAllSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"serve", "ingest", "query", "status", "logs", "version"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "missing subcommand %q", name)
	}
}

func TestCollectPDFs_MixedArgs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.PDF"), []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	single := filepath.Join(dir, "single.pdf")
	require.NoError(t, os.WriteFile(single, []byte("%PDF"), 0o644))

	paths, err := collectPDFs([]string{dir, single})
	require.NoError(t, err)

	assert.Contains(t, paths, filepath.Join(dir, "a.pdf"))
	assert.Contains(t, paths, filepath.Join(dir, "b.PDF"))
	assert.Contains(t, paths, single)
	assert.NotContains(t, paths, filepath.Join(dir, "notes.txt"))
}

func TestCollectPDFs_MissingPath(t *testing.T) {
	_, err := collectPDFs([]string{"/does/not/exist"})
	require.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a very ...", truncate("a very long query here", 10))
}
