package crypto

import (
	"bytes"
	"testing"
)

func TestPadUnpadRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 31, 32, 33, 64, 96, 128, 200} {
		data := bytes.Repeat([]byte{0x5a}, n)
		padded := Pad(data, 32)
		if len(padded)%32 != 0 {
			t.Fatalf("n=%d: padded length %d not a multiple of 32", n, len(padded))
		}
		if len(padded) == len(data) {
			t.Fatalf("n=%d: padding was not appended", n)
		}
		got, err := Unpad(padded, 32)
		if err != nil {
			t.Fatalf("n=%d: Unpad: %v", n, err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("n=%d: round trip mismatch: want %v, got %v", n, data, got)
		}
	}
}

func TestPadExactMultipleAddsFullBlock(t *testing.T) {
	data := bytes.Repeat([]byte{0x20}, 64)
	padded := Pad(data, 32)
	if len(padded) != 96 {
		t.Errorf("want padded length 96, got %d", len(padded))
	}
	for _, b := range padded[64:] {
		if b != 32 {
			t.Errorf("want pad byte 32, got %d", b)
		}
	}
}

func TestUnpadRejectsBadPadding(t *testing.T) {
	bad := bytes.Repeat([]byte{0x01}, 31)
	bad = append(bad, 0x00) // pad length 0 is invalid
	if _, err := Unpad(bad, 32); err != ErrInvalidPadding {
		t.Errorf("want ErrInvalidPadding, got %v", err)
	}

	inconsistent := bytes.Repeat([]byte{0x01}, 30)
	inconsistent = append(inconsistent, 0x02, 0x03)
	if _, err := Unpad(inconsistent, 32); err != ErrInvalidPadding {
		t.Errorf("want ErrInvalidPadding, got %v", err)
	}
}
