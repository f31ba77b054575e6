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
	"fmt"
	"time"
)

// StoredTimeLayout is the fixed 19-character form ("YYYY-MM-DD
// HH:MM:SS") every modification timestamp takes in the durable index.
const StoredTimeLayout = "2006-01-02 15:04:05"

// ClampToStoredPrecision drops sub-second precision and clamps the
// year into [0, 9999] so a modification time always round-trips
// through the fixed-width stored layout without overflowing it. Using
// time.Time's own Date()/Clock() keeps this a few lines of stdlib
// arithmetic rather than a hand-rolled calendar.
func ClampToStoredPrecision(t time.Time) time.Time {
	u := t.UTC().Truncate(time.Second)
	year := u.Year()
	if year < 0 {
		year = 0
	} else if year > 9999 {
		year = 9999
	}
	if year == u.Year() {
		return u
	}
	return time.Date(year, u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), 0, time.UTC)
}

// FormatStoredTime renders t (already clamped) in the durable index's
// fixed layout.
func FormatStoredTime(t time.Time) string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// ParseStoredTime is the inverse of FormatStoredTime.
func ParseStoredTime(s string) (time.Time, error) {
	return time.Parse(StoredTimeLayout, s)
}
