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

package common

import (
	"reflect"

	"github.com/JeffreyRichter/enum/enum"
)

// ThreadState describes what a reader or hasher goroutine is presently
// doing. It's written only by the owning goroutine and read by the
// coordinator's poll loop and by internal/status.
var EThreadState = ThreadState(0)

type ThreadState uint8

func (ThreadState) Idle() ThreadState    { return ThreadState(0) }
func (ThreadState) Reading() ThreadState { return ThreadState(1) }
func (ThreadState) Hashing() ThreadState { return ThreadState(2) }
func (ThreadState) Writing() ThreadState { return ThreadState(3) }
func (ThreadState) Stopped() ThreadState { return ThreadState(4) }

func (s ThreadState) String() string {
	return enum.StringInt(s, reflect.TypeOf(s))
}
