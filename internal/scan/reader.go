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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/tormol/dscan/common"
)

// chunkChannelDepth bounds how far a reader can run ahead of the
// hasher consuming its file: enough to hide one disk read behind one
// hash update, not so much that a slow hasher lets one reader hoard
// most of the buffer pool's budget.
const chunkChannelDepth = 2

// Reader runs one reader worker's body until the read queue reports
// there is no more work, or stop_now fires. It is meant to be launched
// once per io-threads worker by the coordinator.
func Reader(shared *SharedState, info *ThreadInfo) {
	for {
		item, ok := shared.ReadQ.Pop()
		if !ok {
			info.SetState(common.EThreadState.Stopped())
			return
		}

		if item.IsDir() {
			info.SetState(common.EThreadState.Reading())
			info.SetCurrentPath(item.Dir)
			readDirectory(shared, info, item.Dir)
		} else {
			info.SetState(common.EThreadState.Reading())
			info.SetCurrentPath(item.File.Path)
			streamFile(shared, info, *item.File)
		}

		shared.ReadQ.Done()
	}
}

// readDirectory enumerates one directory's immediate children,
// pushing subdirectories back onto the read queue and turning regular
// files into read work, unless a previously-read entry shows the file
// is unchanged. Symlinks are never followed, only recorded as
// skipped, per the no-symlink-loop-traversal policy.
func readDirectory(shared *SharedState, info *ThreadInfo, dir common.Path) {
	entries, err := os.ReadDir(dir.String())
	if err != nil {
		shared.logError(fmt.Sprintf("cannot list directory %s: %v", dir.Printable(), err))
		return
	}

	for _, entry := range entries {
		child := dir.Join(entry.Name())

		if entry.Type()&fs.ModeSymlink != 0 {
			shared.Skipped.Add(1)
			shared.logError(fmt.Sprintf("skipped symlink %s", child.Printable()))
			continue
		}

		if entry.IsDir() {
			shared.ReadQ.Push(DirItem(child))
			continue
		}

		if !entry.Type().IsRegular() {
			shared.Skipped.Add(1)
			shared.logError(fmt.Sprintf("skipped non-regular file %s", child.Printable()))
			continue
		}

		info_, err := entry.Info()
		if err != nil {
			shared.Skipped.Add(1)
			shared.logError(fmt.Sprintf("cannot stat %s: %v", child.Printable(), err))
			continue
		}

		descriptor := FileDescriptorRecord{
			Path:         child,
			Modified:     common.ClampToStoredPrecision(info_.ModTime()),
			ApparentSize: uint64(info_.Size()),
		}

		if prior, found := shared.Prior.Lookup(child); found &&
			prior.Modified.Equal(descriptor.Modified) && prior.ApparentSize == descriptor.ApparentSize {
			prior.MarkSeen()
			shared.Unchanged.Add(1)
			continue
		}

		shared.ReadQ.Push(FileItem(descriptor))
	}
}

// streamFile opens one file, then reads it chunk by chunk using
// buffers borrowed from the shared pool. The HashQueueItem is only
// pushed once the first chunk has actually been sent on the channel,
// so a hasher that pops it always sees at least one chunk immediately
// instead of racing an empty channel; a file that turns out to be
// empty still gets its (now closed) channel pushed once reading is
// done, so its digest resolves to the hash of zero bytes rather than
// being silently dropped. If the file can't even be opened, nothing is
// ever placed on the hash queue.
func streamFile(shared *SharedState, info *ThreadInfo, file FileDescriptorRecord) {
	f, err := os.Open(file.Path.String())
	if err != nil {
		shared.logError(fmt.Sprintf("cannot open %s: %v", file.Path.Printable(), err))
		return
	}
	defer f.Close()

	chunks := make(chan FileChunk, chunkChannelDepth)
	enqueued := false
	pushOnce := func() {
		if !enqueued {
			shared.HashQ.Push(HashQueueItem{File: file, Chunks: chunks})
			enqueued = true
		}
	}

	remaining := int64(file.ApparentSize)
	hint := remaining
	if hint <= 0 || hint > shared.Pool.MaxSingleBuffer() {
		hint = shared.Pool.MaxSingleBuffer()
	}

	for {
		buf := shared.Pool.Acquire(hint)
		n, readErr := f.Read(buf.Bytes())
		if n > 0 {
			info.AddBytes(int64(n))
			chunks <- FileChunk{Buffer: buf, Length: n}
			pushOnce()
			remaining -= int64(n)
			hint = remaining
			if hint <= 0 || hint > shared.Pool.MaxSingleBuffer() {
				hint = shared.Pool.MaxSingleBuffer()
			}
		} else {
			shared.Pool.Release(buf)
		}

		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				chunks <- FileChunk{Err: readErr}
				shared.logError(fmt.Sprintf("read error in %s: %v", file.Path.Printable(), readErr))
			}
			break
		}
	}
	close(chunks)
	pushOnce() // empty file: channel closes having sent nothing
}
