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

import "sync"

// readQueue is a LIFO work queue of ReadQueueItems, guarded by a
// sync.Cond. working counts readers that have popped an item but not
// yet finished producing all of its follow-up work (enqueueing a
// directory's children, or closing a file's chunk channel). Without
// it, "queue empty" alone could be
// observed while a sibling reader is mid-expansion of a directory that
// is about to enqueue more work, causing a premature exit.
type readQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []ReadQueueItem
	working int
	stopNow bool
}

func newReadQueue() *readQueue {
	q := &readQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues an item and wakes one waiting reader.
func (q *readQueue) Push(item ReadQueueItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until an item is available, the queue is done, or
// stop_now fires. ok is false exactly when the reader should exit.
// Popping increments `working`; the caller must call Done() once it
// has finished producing all follow-up work for the popped item.
func (q *readQueue) Pop() (item ReadQueueItem, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.stopNow {
			return ReadQueueItem{}, false
		}
		if n := len(q.items); n > 0 {
			item = q.items[n-1] // LIFO, for locality of recently-enumerated paths
			q.items = q.items[:n-1]
			q.working++
			return item, true
		}
		if q.working == 0 {
			return ReadQueueItem{}, false
		}
		q.cond.Wait()
	}
}

// Done marks the follow-up work for a popped item as finished.
func (q *readQueue) Done() {
	q.mu.Lock()
	q.working--
	done := q.working == 0 && len(q.items) == 0
	q.mu.Unlock()
	if done {
		q.cond.Broadcast() // let idle siblings notice termination
	}
}

// StopNow requests immediate termination of all readers.
func (q *readQueue) StopNow() {
	q.mu.Lock()
	q.stopNow = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *readQueue) IsIdle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0 && q.working == 0
}

// hashQueue is a LIFO work queue of HashQueueItems with its own
// termination protocol: stop_now for immediate cancellation, or
// stop_when_empty (set once all readers have joined) to drain
// already-queued work and then stop.
type hashQueue struct {
	mu            sync.Mutex
	cond          *sync.Cond
	items         []HashQueueItem
	stopNow       bool
	stopWhenEmpty bool
}

func newHashQueue() *hashQueue {
	q := &hashQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *hashQueue) Push(item HashQueueItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *hashQueue) Pop() (item HashQueueItem, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.stopNow {
			return HashQueueItem{}, false
		}
		if n := len(q.items); n > 0 {
			item = q.items[n-1]
			q.items = q.items[:n-1]
			return item, true
		}
		if q.stopWhenEmpty {
			return HashQueueItem{}, false
		}
		q.cond.Wait()
	}
}

func (q *hashQueue) StopNow() {
	q.mu.Lock()
	q.stopNow = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// StopWhenEmpty is called by the coordinator once all readers have
// joined: no more HashQueueItems will ever be pushed, so hashers
// should drain what's left and then exit.
func (q *hashQueue) StopWhenEmpty() {
	q.mu.Lock()
	q.stopWhenEmpty = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
