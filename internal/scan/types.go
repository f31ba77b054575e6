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

// Package scan holds the two-stage producer/consumer pipeline: the
// read queue and hash queue, the reader and hasher worker bodies, and
// the record/chunk types that flow between them.
package scan

import (
	"reflect"
	"time"

	"github.com/JeffreyRichter/enum/enum"

	"github.com/tormol/dscan/common"
	"github.com/tormol/dscan/internal/bufferpool"
)

// ReadItemKind discriminates the two shapes a ReadQueueItem can take.
var EReadItemKind = ReadItemKind(0)

type ReadItemKind uint8

func (ReadItemKind) Dir() ReadItemKind  { return ReadItemKind(0) }
func (ReadItemKind) File() ReadItemKind { return ReadItemKind(1) }

func (k ReadItemKind) String() string {
	return enum.StringInt(k, reflect.TypeOf(k))
}

// FileDescriptorRecord is what a reader builds while enumerating a
// directory: everything needed to decide later whether the file has
// changed, without yet having opened or read it.
type FileDescriptorRecord struct {
	Path         common.Path
	Modified     time.Time // already clamped to stored precision
	ApparentSize uint64
}

// FileChunk is one buffer's worth of a file's bytes, or a poison value
// signaling that reading the file failed partway through. Exactly one
// of Err or (Buffer, Length) is meaningful; Err takes priority when set.
type FileChunk struct {
	Buffer *bufferpool.Buffer
	Length int
	Err    error
}

// IsError reports whether this chunk is the IoError variant.
func (c FileChunk) IsError() bool { return c.Err != nil }

// HashedRecord is produced only when a file's chunk stream ended
// without an IoError chunk.
type HashedRecord struct {
	Path         common.Path
	Modified     time.Time
	ApparentSize uint64
	ReadSize     uint64
	Digest       [32]byte
}

// ReadQueueItem is either a directory to expand or a file descriptor
// ready to be opened and streamed. Kind says which; Dir/File hold
// whichever payload Kind names.
type ReadQueueItem struct {
	Kind ReadItemKind
	Dir  common.Path           // valid iff Kind == EReadItemKind.Dir()
	File *FileDescriptorRecord // valid iff Kind == EReadItemKind.File()
}

func DirItem(p common.Path) ReadQueueItem {
	return ReadQueueItem{Kind: EReadItemKind.Dir(), Dir: p}
}
func FileItem(f FileDescriptorRecord) ReadQueueItem {
	return ReadQueueItem{Kind: EReadItemKind.File(), File: &f}
}

func (i ReadQueueItem) IsDir() bool { return i.Kind == EReadItemKind.Dir() }

// HashQueueItem pairs a file's descriptor with the receive end of its
// single-producer/single-consumer chunk channel. Exactly one hasher
// ever claims it.
type HashQueueItem struct {
	File   FileDescriptorRecord
	Chunks <-chan FileChunk
}
