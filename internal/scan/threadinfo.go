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
)

// ThreadInfo is a per-worker telemetry record. Only the owning
// goroutine ever writes to it; the coordinator's poll loop and
// internal/status only read it. All fields are therefore either
// atomics or written-once-at-construction, so no mutex is needed.
type ThreadInfo struct {
	Name string

	state       atomic.Uint32
	currentPath atomic.Value // common.Path
	bytesDone   atomic.Int64

	// LogLines carries human-readable event lines (file skipped,
	// truncated, I/O error...) out to whatever external collaborator
	// renders or persists them; the core only produces lines and
	// hands them off.
	LogLines chan string
}

// NewThreadInfo constructs telemetry for a worker named name. logLines
// is a shared, buffered channel so a worker logging a burst of skipped
// files never blocks on a slow consumer for long.
func NewThreadInfo(name string, logLines chan string) *ThreadInfo {
	ti := &ThreadInfo{Name: name, LogLines: logLines}
	ti.state.Store(uint32(common.EThreadState.Idle()))
	ti.currentPath.Store(common.Path{})
	return ti
}

func (t *ThreadInfo) SetState(s common.ThreadState) {
	t.state.Store(uint32(s))
}

func (t *ThreadInfo) State() common.ThreadState {
	return common.ThreadState(t.state.Load())
}

func (t *ThreadInfo) SetCurrentPath(p common.Path) {
	t.currentPath.Store(p)
}

func (t *ThreadInfo) CurrentPath() common.Path {
	return t.currentPath.Load().(common.Path)
}

func (t *ThreadInfo) AddBytes(n int64) {
	t.bytesDone.Add(n)
}

func (t *ThreadInfo) BytesProcessed() int64 {
	return t.bytesDone.Load()
}

// Log emits a log line without ever blocking the worker:
// if the channel is full, the line is dropped rather than stalling
// I/O or hashing.
func (t *ThreadInfo) Log(line string) {
	select {
	case t.LogLines <- line:
	default:
	}
}
