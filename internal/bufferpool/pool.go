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

// Package bufferpool lends and reclaims fixed-capacity, fully
// initialized byte buffers under a global memory budget, indexed by
// size so an acquire can be satisfied by the nearest free buffer
// instead of always allocating fresh.
package bufferpool

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MinBufferSize is the smallest capacity the pool will ever hand out
// or retain.
const MinBufferSize = 512

// MaxSingleBufferCeiling is the hard ceiling on max_single_buffer.
const MaxSingleBufferCeiling = 4 << 30 // 4 GiB

// Buffer is an owned, fixed-capacity byte region. Its backing slice
// always has len == cap; callers index into Bytes() with whatever
// logical length they themselves are tracking (e.g. a FileChunk's
// read count).
type Buffer struct {
	data []byte
}

// Bytes returns the full backing slice (len == cap).
func (b *Buffer) Bytes() []byte { return b.data }

// Cap returns the buffer's capacity.
func (b *Buffer) Cap() int64 { return int64(cap(b.data)) }

// Pool is a size-indexed multiset of buffers: acquire finds a
// nearest-fit buffer or allocates/grows one within budget; release
// returns a buffer for reuse and wakes every blocked acquirer to
// re-check.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	maxTotalBytes    int64
	maxSingleBuffer  int64
	currentTotal     int64

	// bySize holds, for each distinct capacity currently pooled, the
	// buffers of that capacity (a multimap so identical capacities
	// never get discarded on insert). sizes is bySize's key set, kept
	// sorted so nearest-fit lookups are a binary search rather than a
	// full scan.
	bySize map[int64][]*Buffer
	sizes  []int64
}

// New constructs a Pool. maxSingleBuffer must be between MinBufferSize
// and MaxSingleBufferCeiling inclusive; maxTotalBytes must be at least
// maxSingleBuffer (otherwise no single buffer could ever be
// allocated).
func New(maxTotalBytes, maxSingleBuffer int64) (*Pool, error) {
	if maxSingleBuffer < MinBufferSize || maxSingleBuffer > MaxSingleBufferCeiling {
		return nil, errors.Errorf(
			"max_single_buffer must be between %d and %d bytes, got %d",
			MinBufferSize, MaxSingleBufferCeiling, maxSingleBuffer)
	}
	if maxTotalBytes < maxSingleBuffer {
		return nil, errors.Errorf(
			"max_buffers_memory (%d) must be at least max_buffer_size (%d)",
			maxTotalBytes, maxSingleBuffer)
	}

	p := &Pool{
		maxTotalBytes:   maxTotalBytes,
		maxSingleBuffer: maxSingleBuffer,
		bySize:          make(map[int64][]*Buffer),
	}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

// clampRequest bounds a requested size into the pool's acceptable
// range before looking for a nearest-fit buffer.
func (p *Pool) clampRequest(requested int64) int64 {
	floor := p.maxSingleBuffer / 128
	if floor < MinBufferSize {
		floor = MinBufferSize
	}
	if requested < floor {
		requested = floor
	}
	if requested > p.maxSingleBuffer {
		requested = p.maxSingleBuffer
	}
	return requested
}

// Acquire returns a buffer of at least approximately requestedSize,
// blocking until the budget allows one if necessary. It never fails
// short of the process running out of memory entirely.
func (p *Pool) Acquire(requestedSize int64) *Buffer {
	requested := p.clampRequest(requestedSize)

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if b := p.takeNearestFit(requested); b != nil {
			return b
		}
		if p.currentTotal+requested <= p.maxTotalBytes {
			p.currentTotal += requested
			return &Buffer{data: make([]byte, requested)}
		}
		if b := p.takeAndGrow(requested); b != nil {
			return b
		}
		p.cond.Wait()
	}
}

// takeNearestFit implements acquire() steps 1-2: an exact-ish fit in
// [requested, 2*requested], else an acceptable under-provisioned one
// in [0.9*requested, requested).
func (p *Pool) takeNearestFit(requested int64) *Buffer {
	// Step 1: smallest capacity >= requested that is also <= 2*requested.
	idx := sort.Search(len(p.sizes), func(i int) bool { return p.sizes[i] >= requested })
	if idx < len(p.sizes) && p.sizes[idx] <= 2*requested {
		return p.popAt(idx)
	}

	// Step 2: largest capacity < requested that is also >= 0.9*requested.
	lowerBound := (requested * 9) / 10
	if idx > 0 {
		candidate := idx - 1
		if p.sizes[candidate] >= lowerBound && p.sizes[candidate] < requested {
			return p.popAt(candidate)
		}
	}
	return nil
}

// takeAndGrow implements acquire() step 4: find any pooled buffer
// whose growth to `requested` bytes fits within the remaining budget,
// and reallocate it.
func (p *Pool) takeAndGrow(requested int64) *Buffer {
	remaining := p.maxTotalBytes - p.currentTotal
	for i, size := range p.sizes {
		if size >= requested {
			continue // would have been caught by takeNearestFit
		}
		growth := requested - size
		if growth <= remaining {
			b := p.popAt(i)
			p.currentTotal += growth
			grown := make([]byte, requested)
			copy(grown, b.data)
			b.data = grown
			return b
		}
	}
	return nil
}

// popAt removes and returns one buffer from the bucket at p.sizes[idx],
// deleting the bucket (and its size entry) if it becomes empty.
func (p *Pool) popAt(idx int) *Buffer {
	size := p.sizes[idx]
	bucket := p.bySize[size]
	b := bucket[len(bucket)-1]
	bucket = bucket[:len(bucket)-1]
	if len(bucket) == 0 {
		delete(p.bySize, size)
		p.sizes = append(p.sizes[:idx], p.sizes[idx+1:]...)
	} else {
		p.bySize[size] = bucket
	}
	return b
}

// Release returns a buffer to the pool for reuse. Buffers outside
// [MinBufferSize, maxSingleBuffer] are dropped (the pool's budget no
// longer accounts for them) rather than retained, since they could
// only have arrived there via a configuration change between
// acquire and release, or a caller passing in a foreign buffer.
func (p *Pool) Release(b *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := b.Cap()
	if cp < MinBufferSize || cp > p.maxSingleBuffer {
		p.currentTotal -= cp
		p.cond.Broadcast()
		return
	}

	if cap(b.data) != len(b.data) {
		// defensive: keep the pool's invariant that every pooled
		// buffer has length == capacity, in case a caller shrank the
		// slice header before returning it.
		b.data = b.data[:cap(b.data)]
	}

	if _, exists := p.bySize[cp]; !exists {
		idx := sort.Search(len(p.sizes), func(i int) bool { return p.sizes[i] >= cp })
		p.sizes = append(p.sizes, 0)
		copy(p.sizes[idx+1:], p.sizes[idx:])
		p.sizes[idx] = cp
	}
	p.bySize[cp] = append(p.bySize[cp], b)

	// Broadcast rather than Signal: we cannot cheaply tell which
	// waiter (if any) this capacity satisfies, so wake them all and
	// let each re-check from the top.
	p.cond.Broadcast()
}

// CurrentBytes reports current budget consumption, for telemetry.
func (p *Pool) CurrentBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTotal
}

// MaxSingleBuffer reports the configured per-buffer cap, used by
// readers to size their initial acquisition hint.
func (p *Pool) MaxSingleBuffer() int64 {
	return p.maxSingleBuffer
}
