//go:build windows

package common

import "golang.org/x/sys/windows"

// Key returns the raw byte form used for equality, hashing, and as the
// durable index's primary key. On Windows, paths are natively UTF-16,
// so two names that decode to the same Go string but differ in their
// on-disk UTF-16 representation (surrogate handling, case folding
// quirks) should still be told apart; we re-encode through UTF-16 to
// get that native byte form rather than keying on the decoded UTF-8.
func (p Path) Key() []byte {
	u16, err := windows.UTF16FromString(p.raw)
	if err != nil {
		// Not valid UTF-16-representable text (shouldn't happen for a
		// path the OS itself handed us); fall back to raw UTF-8 bytes.
		return []byte(p.raw)
	}
	buf := make([]byte, 0, len(u16)*2)
	for _, u := range u16 {
		buf = append(buf, byte(u), byte(u>>8))
	}
	return buf
}

// PathFromKey reverses Key for a key read back out of the durable
// index. Trailing NUL (the UTF16FromString terminator) is dropped
// before decoding back to UTF-8.
func PathFromKey(key []byte) Path {
	u16 := make([]uint16, 0, len(key)/2)
	for i := 0; i+1 < len(key); i += 2 {
		u16 = append(u16, uint16(key[i])|uint16(key[i+1])<<8)
	}
	if n := len(u16); n > 0 && u16[n-1] == 0 {
		u16 = u16[:n-1]
	}
	return Path{raw: windows.UTF16ToString(u16)}
}
