// Copyright © Microsoft <wastore@microsoft.com>
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

package common

import (
	"sync"
	"sync/atomic"
	"time"
)

// PriorEntry is what the scanner remembers about a file from the
// previous run: its last-known (modified, size), and whether this
// run's readers have re-encountered it unchanged. Seen is a relaxed
// atomic so readers can set it without taking any additional lock.
type PriorEntry struct {
	Path         Path
	Modified     time.Time
	ApparentSize uint64
	seen         atomic.Bool
}

// MarkSeen records that a reader re-encountered this file unchanged
// during the current run.
func (e *PriorEntry) MarkSeen() { e.seen.Store(true) }

// Seen reports whether MarkSeen has been called this run.
func (e *PriorEntry) Seen() bool { return e.seen.Load() }

// PreviouslyReadIndex is the in-memory mapping, loaded from the
// durable index at startup, that readers consult to skip unchanged
// files and that the coordinator consults at shutdown to prune
// records for files no longer present on disk.
type PreviouslyReadIndex struct {
	mu      sync.RWMutex
	entries map[string]*PriorEntry
}

func NewPreviouslyReadIndex() *PreviouslyReadIndex {
	return &PreviouslyReadIndex{entries: make(map[string]*PriorEntry)}
}

// Load adds or overwrites an entry, as used while populating the
// index from the durable store's prefix scan.
func (idx *PreviouslyReadIndex) Load(p Path, modified time.Time, apparentSize uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[string(p.Key())] = &PriorEntry{Path: p, Modified: modified, ApparentSize: apparentSize}
}

// Lookup returns the entry for p, if any. The returned pointer is
// stable for the lifetime of the scan; callers may call MarkSeen on it
// without re-taking any lock on the index itself.
func (idx *PreviouslyReadIndex) Lookup(p Path) (*PriorEntry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[string(p.Key())]
	return e, ok
}

// Forget removes p's entry entirely, used after a HashedRecord is
// written for a file so a later, unrelated Lookup of the same path
// within the same run can't see stale prior-run metadata.
func (idx *PreviouslyReadIndex) Forget(p Path) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, string(p.Key()))
}

// Unseen returns every entry whose seen flag was never set during
// this run, i.e. the set that the durable writer should prune.
func (idx *PreviouslyReadIndex) Unseen() []*PriorEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []*PriorEntry
	for _, e := range idx.entries {
		if !e.Seen() {
			out = append(out, e)
		}
	}
	return out
}

// Len reports how many entries are currently loaded.
func (idx *PreviouslyReadIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}
