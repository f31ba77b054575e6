// Copyright © 2017 Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package scan

import (
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/tormol/dscan/common"
)

// Hasher runs one hasher worker's body until the hash queue reports
// there is no more work. A single sha256.Hash is allocated once for
// the worker's whole lifetime and reset between files, rather than
// paying for a fresh one on every HashQueueItem. Each item is consumed
// to completion one chunk at a time, every buffer being returned to
// the shared pool the moment its bytes are folded into the digest.
func Hasher(shared *SharedState, info *ThreadInfo) {
	h := sha256.New()
	for {
		item, ok := shared.HashQ.Pop()
		if !ok {
			info.SetState(common.EThreadState.Stopped())
			return
		}

		info.SetState(common.EThreadState.Hashing())
		info.SetCurrentPath(item.File.Path)
		hashOne(shared, info, item, h)
		h.Reset()
	}
}

// hashOne drains item.Chunks to completion even on error, so the
// reader that produced them never blocks trying to send into a
// channel nobody is still reading. h is assumed freshly reset by the
// caller.
func hashOne(shared *SharedState, info *ThreadInfo, item HashQueueItem, h hash.Hash) {
	var readSize uint64
	var failed error

	for chunk := range item.Chunks {
		if chunk.IsError() {
			if failed == nil {
				failed = chunk.Err
			}
			continue
		}
		if failed == nil {
			h.Write(chunk.Buffer.Bytes()[:chunk.Length])
			readSize += uint64(chunk.Length)
			info.AddBytes(int64(chunk.Length))
		}
		shared.Pool.Release(chunk.Buffer)
	}

	if failed != nil {
		shared.Skipped.Add(1)
		shared.logError(fmt.Sprintf("%s got IO error after %d of %d bytes: %v",
			item.File.Path.Printable(), readSize, item.File.ApparentSize, failed))
		return
	}

	if readSize != item.File.ApparentSize {
		shared.logError(fmt.Sprintf("%s size changed during read: apparent %d, read %d bytes",
			item.File.Path.Printable(), item.File.ApparentSize, readSize))
	}

	var digest [32]byte
	copy(digest[:], h.Sum(nil))

	record := HashedRecord{
		Path:         item.File.Path,
		Modified:     item.File.Modified,
		ApparentSize: item.File.ApparentSize,
		ReadSize:     readSize,
		Digest:       digest,
	}

	shared.Prior.Forget(item.File.Path)
	shared.Results <- record
}
