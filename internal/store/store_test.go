package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/tormol/dscan/common"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWriterPersistsAndIndexReloads(t *testing.T) {
	db := openTestDB(t)

	root, err := common.Canonicalize(t.TempDir())
	require.NoError(t, err)
	file := root.Join("a.txt")

	records := make(chan Record, 4)
	w := NewWriter(db)
	w.batchInterval = 20 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- w.Run(records) }()

	modified := common.ClampToStoredPrecision(time.Now())
	records <- Record{Path: file, Modified: modified, ApparentSize: 5, ReadSize: 5, Digest: [32]byte{1, 2, 3}}
	close(records)
	require.NoError(t, <-done)

	idx := common.NewPreviouslyReadIndex()
	require.NoError(t, LoadPreviouslyRead(db, root, idx))

	entry, found := idx.Lookup(file)
	require.True(t, found)
	assert.Equal(t, uint64(5), entry.ApparentSize)
	assert.True(t, entry.Modified.Equal(modified))
	assert.False(t, entry.Seen(), "loading must not itself mark entries seen")
}

func TestLoadPreviouslyReadScopesToRootPrefix(t *testing.T) {
	db := openTestDB(t)

	dirA := filepath.Join(t.TempDir(), "a")
	dirB := filepath.Join(t.TempDir(), "b")
	require.NoError(t, os.Mkdir(dirA, 0o755))
	require.NoError(t, os.Mkdir(dirB, 0o755))

	rootA, err := common.Canonicalize(dirA)
	require.NoError(t, err)
	rootB, err := common.Canonicalize(dirB)
	require.NoError(t, err)

	records := make(chan Record, 4)
	w := NewWriter(db)
	done := make(chan error, 1)
	go func() { done <- w.Run(records) }()

	records <- Record{Path: rootA.Join("x.txt"), ApparentSize: 1}
	records <- Record{Path: rootB.Join("y.txt"), ApparentSize: 2}
	close(records)
	require.NoError(t, <-done)

	idx := common.NewPreviouslyReadIndex()
	require.NoError(t, LoadPreviouslyRead(db, rootA, idx))

	assert.Equal(t, 1, idx.Len(), "loading root A must not pull in root B's entries")
	_, found := idx.Lookup(rootA.Join("x.txt"))
	assert.True(t, found)
}

func TestPruneRemovesUnseenEntries(t *testing.T) {
	db := openTestDB(t)

	root, err := common.Canonicalize(t.TempDir())
	require.NoError(t, err)
	stale := root.Join("gone.txt")
	kept := root.Join("kept.txt")

	records := make(chan Record, 4)
	w := NewWriter(db)
	done := make(chan error, 1)
	go func() { done <- w.Run(records) }()
	records <- Record{Path: stale, ApparentSize: 1}
	records <- Record{Path: kept, ApparentSize: 2}
	close(records)
	require.NoError(t, <-done)

	idx := common.NewPreviouslyReadIndex()
	require.NoError(t, LoadPreviouslyRead(db, root, idx))

	keptEntry, found := idx.Lookup(kept)
	require.True(t, found)
	keptEntry.MarkSeen()
	// stale's entry is deliberately left unmarked, simulating a file
	// that no longer exists on disk this run.

	unseen := idx.Unseen()
	require.Len(t, unseen, 1)
	require.NoError(t, Prune(db, [][]byte{unseen[0].Path.Key()}))

	idx2 := common.NewPreviouslyReadIndex()
	require.NoError(t, LoadPreviouslyRead(db, root, idx2))
	assert.Equal(t, 1, idx2.Len())
	_, found = idx2.Lookup(stale)
	assert.False(t, found)
	_, found = idx2.Lookup(kept)
	assert.True(t, found)
}
