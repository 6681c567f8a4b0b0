// Package sizedbytes implements the length-prefixed binary framing used
// throughout LetsConfide's ciphertexts: a byte sequence formed by
// concatenating <len:u16 big-endian><bytes> segments. It is built on
// golang.org/x/crypto/cryptobyte's bounds-checked reader/builder.
package sizedbytes

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// MaxPartSize is the largest byte slice that can be encoded as a single
// segment; its length must fit in a uint16.
const MaxPartSize = 65535

// Encode concatenates parts into a sized-byte-array. It errors if any part
// exceeds MaxPartSize bytes.
func Encode(parts ...[]byte) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	for i, p := range parts {
		if len(p) > MaxPartSize {
			return nil, fmt.Errorf("sizedbytes: part %d is %d bytes, exceeds %d", i, len(p), MaxPartSize)
		}
		b.AddUint16(uint16(len(p)))
		b.AddBytes(p)
	}
	return b.BytesOrPanic(), nil
}

// Decode walks buf left to right, reading a u16 big-endian length followed
// by that many bytes at each position, until every byte of buf has been
// consumed. A length prefix whose upper bits would make it negative cannot
// occur here — Go's uint16 is already unsigned — but a length that would
// run past the end of buf is reported as an oversized segment, matching
// the wire format's "too large" failure mode.
func Decode(buf []byte) ([][]byte, error) {
	s := cryptobyte.String(buf)
	var parts [][]byte
	pos := 0
	for !s.Empty() {
		var length uint16
		if !s.ReadUint16(&length) {
			return nil, fmt.Errorf("Invalid sized byte array, truncated length prefix at index %d", pos)
		}
		pos += 2
		if int(length) > len(s) {
			return nil, fmt.Errorf("Invalid sized byte array, byte segment size %d at index %d is too large", length, pos)
		}
		var part []byte
		if !s.ReadBytes(&part, int(length)) {
			return nil, fmt.Errorf("Invalid sized byte array, byte segment size %d at index %d is too large", length, pos)
		}
		parts = append(parts, part)
		pos += int(length)
	}
	return parts, nil
}
