package scan

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tormol/dscan/common"
	"github.com/tormol/dscan/internal/bufferpool"
)

func newTestShared(t *testing.T, maxSingleBuffer int64) (*SharedState, <-chan HashedRecord, <-chan string) {
	t.Helper()
	pool, err := bufferpool.New(8<<20, maxSingleBuffer)
	require.NoError(t, err)

	results := make(chan HashedRecord, 16)
	errs := make(chan string, 16)
	shared := NewSharedState(pool, common.NewPreviouslyReadIndex(), results, errs)
	return shared, results, errs
}

// runOneFile pushes dir as the sole root, runs a single reader and a
// single hasher to completion, and returns whatever HashedRecord (if
// any) came out the other end.
func runOneFile(t *testing.T, shared *SharedState, results <-chan HashedRecord, root common.Path) *HashedRecord {
	t.Helper()
	shared.ReadQ.Push(DirItem(root))

	readerInfo := NewThreadInfo("reader-0", make(chan string, 16))
	hasherInfo := NewThreadInfo("hasher-0", make(chan string, 16))

	done := make(chan struct{})
	go func() {
		Reader(shared, readerInfo)
		shared.HashQ.StopWhenEmpty()
		close(done)
	}()

	var got *HashedRecord
	hasherDone := make(chan struct{})
	go func() {
		Hasher(shared, hasherInfo)
		close(hasherDone)
	}()

	<-done
	<-hasherDone

	select {
	case r := <-results:
		got = &r
	default:
	}
	return got
}

func TestReaderHasherEmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), nil, 0o644))

	shared, results, _ := newTestShared(t, 64<<10)
	root, err := common.Canonicalize(dir)
	require.NoError(t, err)

	rec := runOneFile(t, shared, results, root)
	require.NotNil(t, rec)
	assert.Equal(t, uint64(0), rec.ReadSize)
	// SHA-256 of the empty string.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hex.EncodeToString(rec.Digest[:]))
}

func TestReaderHasherSmallFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("the quick brown fox")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), content, 0o644))

	shared, results, _ := newTestShared(t, 64<<10)
	root, err := common.Canonicalize(dir)
	require.NoError(t, err)

	rec := runOneFile(t, shared, results, root)
	require.NotNil(t, rec)
	assert.Equal(t, uint64(len(content)), rec.ReadSize)
	assert.Equal(t, uint64(len(content)), rec.ApparentSize)
}

func TestReaderHasherChunkSizeIndependence(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 300*1024)
	for i := range content {
		content[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.bin"), content, 0o644))
	root, err := common.Canonicalize(dir)
	require.NoError(t, err)

	var digests [][32]byte
	for _, chunkSize := range []int64{4 << 10, 64 << 10, 1 << 20} {
		shared, results, _ := newTestShared(t, chunkSize)
		rec := runOneFile(t, shared, results, root)
		require.NotNil(t, rec)
		assert.Equal(t, uint64(len(content)), rec.ReadSize)
		digests = append(digests, rec.Digest)
	}
	for i := 1; i < len(digests); i++ {
		assert.Equal(t, digests[0], digests[i], "digest must not depend on chunk size")
	}
}

func TestReaderSkipsUnchangedPriorEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	info, err := os.Stat(path)
	require.NoError(t, err)

	filePath := common.NewPath(path)
	prior := common.NewPreviouslyReadIndex()
	prior.Load(filePath, common.ClampToStoredPrecision(info.ModTime()), uint64(info.Size()))

	pool, err := bufferpool.New(8<<20, 64<<10)
	require.NoError(t, err)
	results := make(chan HashedRecord, 4)
	errs := make(chan string, 4)
	shared := NewSharedState(pool, prior, results, errs)

	root, err := common.Canonicalize(dir)
	require.NoError(t, err)
	rec := runOneFile(t, shared, results, root)

	assert.Nil(t, rec, "unchanged file must not be re-hashed")
	entry, found := prior.Lookup(filePath)
	require.True(t, found)
	assert.True(t, entry.Seen())
}
