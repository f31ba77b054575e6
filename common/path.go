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
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Path is an immutable, canonicalized filesystem path. Its equality and
// hash-map key use the raw on-disk byte form (see Key, which is
// platform-specific: raw bytes on POSIX-like systems, UTF-16 on
// Windows-like ones) rather than the decoded Go string, so that
// round-tripping through the index never mangles a name the native
// filesystem considers perfectly valid.
type Path struct {
	raw string
}

// Canonicalize turns a user-supplied root into an absolute, cleaned
// Path. It fails fast if the path cannot be resolved or does not exist,
// so a typo'd root is reported once at startup instead of silently
// producing an empty scan.
func Canonicalize(root string) (Path, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Path{}, errors.Wrapf(err, "canonicalizing root %q", root)
	}
	abs = filepath.Clean(abs)
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return Path{}, errors.Errorf("root %q does not exist", root)
		}
		return Path{}, errors.Wrapf(err, "canonicalizing root %q", root)
	}
	return Path{raw: abs}, nil
}

// NewPath wraps an already-absolute path string without re-resolving
// it. Used when building a child path from a parent Path that has
// already been canonicalized.
func NewPath(raw string) Path {
	return Path{raw: raw}
}

// Join returns the Path for name inside the directory p.
func (p Path) Join(name string) Path {
	return Path{raw: filepath.Join(p.raw, name)}
}

// String returns the path in the form the local OS filesystem calls
// accept directly.
func (p Path) String() string {
	return p.raw
}

// IsZero reports whether p is the zero Path.
func (p Path) IsZero() bool {
	return p.raw == ""
}

// HasPrefixDir reports whether p is root or a descendant of root.
func (p Path) HasPrefixDir(root Path) bool {
	if p.raw == root.raw {
		return true
	}
	return strings.HasPrefix(p.raw, root.raw+string(filepath.Separator))
}

// Printable renders p for logs and status output, replacing ASCII
// control characters (which are legal in POSIX filenames but make log
// lines unreadable or spoofable) with their Unicode control-picture
// glyphs so a hostile filename can't forge extra log lines.
func (p Path) Printable() string {
	var b strings.Builder
	b.Grow(len(p.raw))
	for _, r := range p.raw {
		if r == 0x7f {
			b.WriteRune(0x2421) // control picture for DEL
		} else if r < 0x20 {
			b.WriteRune(0x2400 + r) // Unicode "control pictures" block
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PrintableDir and PrintableName split p's printable rendering into
// the directory and base name portions stored alongside a hashed
// record, for convenient display without re-deriving it from raw
// bytes every time.
func (p Path) PrintableDir() string {
	return NewPath(filepath.Dir(p.raw)).Printable()
}

func (p Path) PrintableName() string {
	return NewPath(filepath.Base(p.raw)).Printable()
}
