package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig(root, db string) Config {
	return Config{
		Roots:            []string{root},
		IOThreads:        2,
		HasherThreads:    2,
		MaxBufferSize:    64 << 10,
		MaxBuffersMemory: 4 << 20,
		DatabasePath:     db,
	}
}

// TestIncrementalSkipsUnchangedFiles: a re-scan against the same index
// must not re-hash anything when the tree is untouched.
func TestIncrementalSkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("world!"), 0o644))

	db := filepath.Join(t.TempDir(), "index.db")

	first, err := Run(baseConfig(dir, db))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), first.FilesHashed)
	assert.Equal(t, uint64(0), first.FilesUnchanged)

	second, err := Run(baseConfig(dir, db))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), second.FilesHashed, "no file changed, so nothing should be re-hashed")
	assert.Equal(t, uint64(0), second.BytesRead, "hasher's total bytes-processed counter must be zero on the unchanged re-scan")
	assert.Equal(t, uint64(2), second.FilesUnchanged)
}

// TestPruneRemovesDeletedFile: after a file is deleted from disk, a
// re-scan must prune its prior record and leave every other record
// untouched.
func TestPruneRemovesDeletedFile(t *testing.T) {
	dir := t.TempDir()
	keptPath := filepath.Join(dir, "kept.txt")
	gonePath := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(keptPath, []byte("keep me"), 0o644))
	require.NoError(t, os.WriteFile(gonePath, []byte("delete me"), 0o644))

	db := filepath.Join(t.TempDir(), "index.db")

	_, err := Run(baseConfig(dir, db))
	require.NoError(t, err)

	require.NoError(t, os.Remove(gonePath))

	second, err := Run(baseConfig(dir, db))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), second.FilesPruned)
	assert.Equal(t, uint64(1), second.FilesUnchanged, "the surviving file must still be recognized as unchanged")
}

// TestEphemeralIndexSkipsPersistenceAndPruning: an empty --database
// means no persistence (so a second run re-hashes everything) and no
// pruning (there is nothing to prune against).
func TestEphemeralIndexSkipsPersistenceAndPruning(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	cfg := baseConfig(dir, "")
	first, err := Run(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.FilesHashed)

	second, err := Run(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), second.FilesHashed, "an in-memory run must not persist across invocations")
	assert.Equal(t, uint64(0), second.FilesPruned)
}

// TestConfigErrorOnInvalidBufferSizes: a buffer-pool construction
// error must be reported as a ConfigError so the CLI layer can map it
// to exit code 2.
func TestConfigErrorOnInvalidBufferSizes(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig(dir, filepath.Join(t.TempDir(), "index.db"))
	cfg.MaxBufferSize = 1 << 20
	cfg.MaxBuffersMemory = 100 // smaller than a single buffer: rejected at construction

	_, err := Run(cfg)
	require.Error(t, err)
	var ce ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.ExitCode())
}
