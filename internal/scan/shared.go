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

package scan

import (
	"sync/atomic"

	"github.com/tormol/dscan/common"
	"github.com/tormol/dscan/internal/bufferpool"
)

// SharedState is the single owner of everything reader and hasher
// workers touch concurrently: the buffer pool, both work queues, and
// the previously-read index. Workers only ever hold a pointer to it;
// nothing about a worker's own identity lives here.
type SharedState struct {
	Pool  *bufferpool.Pool
	ReadQ *readQueue
	HashQ *hashQueue
	Prior *common.PreviouslyReadIndex

	// Results receives a HashedRecord for every file a hasher finishes
	// without error. The coordinator owns the receive end and forwards
	// to the durable writer; closing it is the coordinator's job once
	// every hasher has exited.
	Results chan<- HashedRecord

	// Errors receives one line of human-readable detail for every
	// skip, truncation, or I/O error a worker encounters, independent
	// of each worker's own ThreadInfo.LogLines feed, so a single
	// collector can render a run-wide event log.
	Errors chan<- string

	// Unchanged and Skipped feed the coordinator's end-of-run
	// ScanStats. Unchanged is incremented by readers, Skipped by both
	// readers and hashers; a plain atomic is enough for either.
	Unchanged atomic.Uint64
	Skipped   atomic.Uint64
}

// NewSharedState wires up a fresh pool and pair of empty queues around
// an already-loaded previously-read index. Readers size their buffer
// acquisitions per file (remaining expected bytes, clamped to the
// pool's own maxSingleBuffer), so no separate chunk-size knob is
// needed here; see streamFile in reader.go.
func NewSharedState(pool *bufferpool.Pool, prior *common.PreviouslyReadIndex, results chan<- HashedRecord, errors chan<- string) *SharedState {
	return &SharedState{
		Pool:    pool,
		ReadQ:   newReadQueue(),
		HashQ:   newHashQueue(),
		Prior:   prior,
		Results: results,
		Errors:  errors,
	}
}

// logError forwards a detail line to the Errors channel without ever
// blocking the caller: if the channel's buffer is full, the line is
// dropped.
func (s *SharedState) logError(line string) {
	select {
	case s.Errors <- line:
	default:
	}
}

// StopNow cancels both queues immediately: blocked and future Pop
// calls return ok=false right away, so no worker starts another item.
// An item a worker has already popped (a directory being listed, a
// file being read or hashed) is still processed to the end. Used when
// the run is interrupted from outside (e.g. a Ctrl-C).
func (s *SharedState) StopNow() {
	s.ReadQ.StopNow()
	s.HashQ.StopNow()
}
