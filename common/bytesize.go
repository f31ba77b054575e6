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

// Package common holds the small pieces of ambient machinery (logging,
// byte-size parsing, path handling, time handling, thread telemetry)
// shared by every other package in this module.
package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// byteUnits maps every accepted unit spelling (already upper-cased) to
// its base-1024 multiplier. K/M/G/T/P/E, their "B" forms, and their
// "iB" forms are all synonyms for the same multiplier: the grammar has
// no distinction between "decimal-looking" and "binary-looking" units,
// everything is base 1024.
var byteUnits = map[string]int64{
	"B":   1,
	"K":   1 << 10,
	"KB":  1 << 10,
	"KIB": 1 << 10,
	"M":   1 << 20,
	"MB":  1 << 20,
	"MIB": 1 << 20,
	"G":   1 << 30,
	"GB":  1 << 30,
	"GIB": 1 << 30,
	"T":   1 << 40,
	"TB":  1 << 40,
	"TIB": 1 << 40,
	"P":   1 << 50,
	"PB":  1 << 50,
	"PIB": 1 << 50,
	"E":   1 << 60,
	"EB":  1 << 60,
	"EIB": 1 << 60,
}

// orderedUnitNames is consulted (largest first) when rendering a
// canonical string, so that FormatByteSize prefers the biggest unit
// that divides the value exactly.
var orderedUnitNames = []string{"EB", "PB", "TB", "GB", "MB", "KB"}

// ParseByteSize parses the grammar described in the CLI's byte-size
// flags: <integer><unit>, case-insensitive, unit required except for a
// literal "0". Returns an error on overflow, a missing unit, or an
// unrecognized unit.
func ParseByteSize(s string) (int64, error) {
	raw := s
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, errors.Errorf("invalid byte size %q: no leading integer", raw)
	}
	digits, unit := s[:i], strings.ToUpper(s[i:])

	if unit == "" {
		if digits == "0" {
			return 0, nil
		}
		return 0, errors.Errorf("invalid byte size %q: missing unit", raw)
	}

	mult, ok := byteUnits[unit]
	if !ok {
		return 0, errors.Errorf("invalid byte size %q: unknown unit %q", raw, s[i:])
	}

	value, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid byte size %q", raw)
	}

	if mult > 1 && value > uint64(math.MaxInt64)/uint64(mult) {
		return 0, errors.Errorf("invalid byte size %q: overflow", raw)
	}

	return int64(value) * mult, nil
}

// FormatByteSize renders v in the grammar's canonical form: the
// largest unit that divides v exactly, uppercase, no "i", no space
// (e.g. "1MB", "1536KB", "0B"). ParseByteSize(FormatByteSize(v)) == v
// for every representable v.
func FormatByteSize(v int64) string {
	if v == 0 {
		return "0B"
	}
	for _, name := range orderedUnitNames {
		mult := byteUnits[name]
		if v%mult == 0 {
			return fmt.Sprintf("%d%s", v/mult, name)
		}
	}
	return fmt.Sprintf("%dB", v)
}

// HumanByteSize renders v for a human-facing summary line, not for
// round-tripping: "<whole>.<tenth> <unit>B", e.g. "3.5 MB".
func HumanByteSize(v int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}
	unit := 0
	f := float64(v)
	for f >= 1024 && unit < len(units)-1 {
		f /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d B", v)
	}
	return fmt.Sprintf("%.1f %s", f, units[unit])
}
