package tpm

import (
	"bytes"
	"testing"
)

func TestEphemeralKeyAESWrapUnwrapRoundTrip(t *testing.T) {
	gw := newTestGateway(t)
	ek, err := NewEphemeralKey(gw, AES256)
	if err != nil {
		t.Fatalf("NewEphemeralKey: %v", err)
	}
	dek, err := gw.randomBytes(32)
	if err != nil {
		t.Fatalf("randomBytes: %v", err)
	}
	wrapped, err := ek.Wrap(dek)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	got, err := ek.Unwrap(wrapped)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if !bytes.Equal(got, dek) {
		t.Errorf("got %x, want %x", got, dek)
	}
}

func TestEphemeralKeyReuseSameIVAcrossWraps(t *testing.T) {
	gw := newTestGateway(t)
	ek, err := NewEphemeralKey(gw, AES128)
	if err != nil {
		t.Fatalf("NewEphemeralKey: %v", err)
	}
	iv := append([]byte{}, ek.iv...)

	dek1, _ := gw.randomBytes(32)
	if _, err := ek.Wrap(dek1); err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	dek2, _ := gw.randomBytes(32)
	if _, err := ek.Wrap(dek2); err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if !bytes.Equal(iv, ek.iv) {
		t.Error("ephemeral key IV changed across wraps")
	}
}

func TestEphemeralKeyReloadFromTokens(t *testing.T) {
	gw := newTestGateway(t)
	ek, err := NewEphemeralKey(gw, AES256)
	if err != nil {
		t.Fatalf("NewEphemeralKey: %v", err)
	}
	tokens := ek.Tokens()

	reloaded, err := LoadEphemeralKey(gw, AES256, tokens)
	if err != nil {
		t.Fatalf("LoadEphemeralKey: %v", err)
	}

	dek, err := gw.randomBytes(32)
	if err != nil {
		t.Fatalf("randomBytes: %v", err)
	}
	wrapped, err := ek.Wrap(dek)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	got, err := reloaded.Unwrap(wrapped)
	if err != nil {
		t.Fatalf("Unwrap via reloaded key: %v", err)
	}
	if !bytes.Equal(got, dek) {
		t.Errorf("got %x, want %x", got, dek)
	}
}

func TestEphemeralKeyRSAWrapUnwrapRoundTrip(t *testing.T) {
	gw := newTestGateway(t)
	ek, err := NewEphemeralKey(gw, RSA2048)
	if err != nil {
		t.Fatalf("NewEphemeralKey: %v", err)
	}
	dek, err := gw.randomBytes(32)
	if err != nil {
		t.Fatalf("randomBytes: %v", err)
	}
	wrapped, err := ek.Wrap(dek)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	got, err := ek.Unwrap(wrapped)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if !bytes.Equal(got, dek) {
		t.Errorf("got %x, want %x", got, dek)
	}
}

func TestLoadEphemeralKeyRejectsWrongTokenArity(t *testing.T) {
	gw := newTestGateway(t)
	if _, err := LoadEphemeralKey(gw, AES256, [][]byte{{1}, {2}}); err != ErrWrongTokenArity {
		t.Errorf("want ErrWrongTokenArity, got %v", err)
	}
	if _, err := LoadEphemeralKey(gw, RSA2048, [][]byte{{1}, {2}, {3}}); err != ErrWrongTokenArity {
		t.Errorf("want ErrWrongTokenArity, got %v", err)
	}
}
