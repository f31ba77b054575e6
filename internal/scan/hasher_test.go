package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tormol/dscan/common"
	"github.com/tormol/dscan/internal/bufferpool"
)

// TestHasherAbandonsFileOnIoError: a chunk stream that ends in an
// error chunk must not produce a HashedRecord, and the running byte
// count up to the failure must still be reported in the log line.
func TestHasherAbandonsFileOnIoError(t *testing.T) {
	pool, err := bufferpool.New(1<<20, 64<<10)
	require.NoError(t, err)

	chunks := make(chan FileChunk, 4)
	buf := pool.Acquire(1024)
	copy(buf.Bytes(), []byte("partial data"))
	chunks <- FileChunk{Buffer: buf, Length: len("partial data")}
	chunks <- FileChunk{Err: errors.New("disk fell over")}
	close(chunks)

	results := make(chan HashedRecord, 1)
	errs := make(chan string, 4)
	shared := NewSharedState(pool, common.NewPreviouslyReadIndex(), results, errs)

	file := FileDescriptorRecord{
		Path:         common.NewPath("/tmp/doesnotmatter.bin"),
		Modified:     common.ClampToStoredPrecision(time.Now()),
		ApparentSize: 4096,
	}
	hashOne(shared, NewThreadInfo("hasher-0", make(chan string, 4)), HashQueueItem{File: file, Chunks: chunks}, sha256.New())

	select {
	case rec := <-results:
		t.Fatalf("expected no HashedRecord after an IoError chunk, got %+v", rec)
	default:
	}

	assert.Equal(t, uint64(1), shared.Skipped.Load())
	assert.Equal(t, "/tmp/doesnotmatter.bin got IO error after 12 of 4096 bytes: disk fell over", <-errs)
}

// TestEmptyStreamYieldsEmptyDigest: a chunk stream that closes having
// sent nothing (the empty-file case) must still finalize to the
// SHA-256 of the empty string.
func TestEmptyStreamYieldsEmptyDigest(t *testing.T) {
	pool, err := bufferpool.New(1<<20, 64<<10)
	require.NoError(t, err)

	chunks := make(chan FileChunk)
	close(chunks)

	results := make(chan HashedRecord, 1)
	errs := make(chan string, 4)
	shared := NewSharedState(pool, common.NewPreviouslyReadIndex(), results, errs)

	file := FileDescriptorRecord{Path: common.NewPath("/tmp/empty.bin")}
	hashOne(shared, NewThreadInfo("hasher-0", make(chan string, 4)), HashQueueItem{File: file, Chunks: chunks}, sha256.New())

	rec := <-results
	assert.Equal(t, uint64(0), rec.ReadSize)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		hex.EncodeToString(rec.Digest[:]))
}
