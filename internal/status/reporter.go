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

// Package status periodically renders the state every worker's
// ThreadInfo reports into a single log line. It is deliberately just
// that: a line emitter, not a terminal UI. Rendering a live-updating
// terminal display is explicitly out of scope; anything richer than a
// line per tick belongs in a separate tool consuming the same
// ThreadInfo data.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/tormol/dscan/common"
	"github.com/tormol/dscan/internal/scan"
)

// StartPoller launches a goroutine that writes one summary line to
// log every interval, until the returned stop function is called.
func StartPoller(threads []*scan.ThreadInfo, interval time.Duration, log common.ILogger) func() {
	stopCh := make(chan struct{})
	stoppedCh := make(chan struct{})

	go func() {
		defer close(stoppedCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				log.Log(common.ELogLevel.Info(), render(threads))
			}
		}
	}()

	return func() {
		close(stopCh)
		<-stoppedCh
	}
}

// render formats a compact one-line summary: per-worker state and
// current path, plus a running total of bytes processed.
func render(threads []*scan.ThreadInfo) string {
	var b strings.Builder
	var totalBytes int64
	for i, t := range threads {
		if i > 0 {
			b.WriteString("  ")
		}
		path := t.CurrentPath()
		fmt.Fprintf(&b, "%s:%s", t.Name, t.State())
		if !path.IsZero() {
			fmt.Fprintf(&b, "(%s)", path.PrintableName())
		}
		totalBytes += t.BytesProcessed()
	}
	fmt.Fprintf(&b, "  total=%s", common.HumanByteSize(totalBytes))
	return b.String()
}
