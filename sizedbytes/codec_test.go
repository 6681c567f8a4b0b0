package sizedbytes

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][][]byte{
		nil,
		{[]byte("")},
		{[]byte("a"), []byte("bb"), []byte("ccc")},
		{make([]byte, 0), make([]byte, 1), make([]byte, 65535)},
	}
	for i, parts := range cases {
		enc, err := Encode(parts...)
		if err != nil {
			t.Fatalf("case %d: Encode: %v", i, err)
		}
		got, err := Decode(enc)
		if err != nil {
			t.Fatalf("case %d: Decode: %v", i, err)
		}
		if len(got) != len(parts) {
			t.Fatalf("case %d: want %d parts, got %d", i, len(parts), len(got))
		}
		for j := range parts {
			if !bytes.Equal(got[j], parts[j]) {
				t.Errorf("case %d part %d: want %v, got %v", i, j, parts[j], got[j])
			}
		}
	}
}

func TestEncodeRejectsOversizedPart(t *testing.T) {
	if _, err := Encode(make([]byte, MaxPartSize+1)); err == nil {
		t.Error("want error for oversized part")
	}
}

func TestDecodeRejectsTruncatedTail(t *testing.T) {
	enc, err := Encode([]byte("hello"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(enc[:len(enc)-1]); err == nil {
		t.Error("want error decoding a truncated tail")
	}
}

func TestDecodeRejectsOversizedLength(t *testing.T) {
	buf := make([]byte, 32)
	buf[0] = 0
	buf[1] = 33 // claims a 33-byte segment in a 32-byte buffer
	if _, err := Decode(buf); err == nil {
		t.Error("want error for oversized segment length")
	}
}

func TestDecodeIsTotal(t *testing.T) {
	enc, err := Encode([]byte("x"), []byte("y"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(append(enc, 0x00)); err == nil {
		t.Error("want error when trailing bytes remain after decoding")
	}
}
