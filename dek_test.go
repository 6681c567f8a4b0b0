package letsconfide

import (
	"bytes"
	"testing"

	"github.com/wbibile/LetsConfide/tpm"
)

func openTestDevice(t *testing.T) *tpm.Device {
	t.Helper()
	dev, _, _, err := tpm.Open(testFactory, testHeaders().deviceConfig())
	if err != nil {
		t.Fatalf("tpm.Open: %v", err)
	}
	return dev
}

func TestHostDEKSeedDerivesIVAndAAD(t *testing.T) {
	seed := make([]byte, dekSeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	d, err := newHostDEKFromSeed(false, []byte("wrapped"), seed)
	if err != nil {
		t.Fatalf("newHostDEKFromSeed: %v", err)
	}
	if !bytes.Equal(d.iv[:], seed[:12]) {
		t.Errorf("iv mismatch: want %v, got %v", seed[:12], d.iv[:])
	}
	if !bytes.Equal(d.aad, seed[12:]) {
		t.Errorf("aad mismatch: want %v, got %v", seed[12:], d.aad)
	}
	if !bytes.Equal(d.Seed(), seed) {
		t.Errorf("Seed() did not reconstruct the original 64 bytes")
	}
}

func TestNewHostDEKFromSeedRejectsWrongSize(t *testing.T) {
	if _, err := newHostDEKFromSeed(false, nil, make([]byte, 63)); err != ErrInvalidSeedSize {
		t.Errorf("want ErrInvalidSeedSize, got %v", err)
	}
}

func TestGenerateHostDEKPersistentRoundTrip(t *testing.T) {
	dev := openTestDevice(t)

	d, err := generateHostDEK(dev, false, nil)
	if err != nil {
		t.Fatalf("generateHostDEK: %v", err)
	}
	if len(d.Seed()) != dekSeedSize {
		t.Fatalf("want a %d-byte seed, got %d", dekSeedSize, len(d.Seed()))
	}

	resolved, err := d.resolve(dev)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer resolved.Close()

	plaintext := []byte("hello, sealed world")
	ct, err := resolved.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := resolved.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Errorf("round trip mismatch: want %q, got %q", plaintext, pt)
	}
}

func TestGenerateHostDEKEphemeralRoundTrip(t *testing.T) {
	dev := openTestDevice(t)

	d, err := generateHostDEK(dev, true, nil)
	if err != nil {
		t.Fatalf("generateHostDEK: %v", err)
	}
	resolved, err := d.resolve(dev)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer resolved.Close()

	ct, err := resolved.Encrypt([]byte("ephemeral payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := resolved.Decrypt(ct); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
}

func TestResolvedDEKDecryptRejectsTamperedCiphertext(t *testing.T) {
	dev := openTestDevice(t)

	d, err := generateHostDEK(dev, true, nil)
	if err != nil {
		t.Fatalf("generateHostDEK: %v", err)
	}
	resolved, err := d.resolve(dev)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer resolved.Close()

	ct, err := resolved.Encrypt([]byte("tamper me"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ct[len(ct)-1] ^= 0xFF

	if _, err := resolved.Decrypt(ct); err != ErrDecryptFailed {
		t.Errorf("want ErrDecryptFailed, got %v", err)
	}
}

func TestResolvedDEKCloseZeroesKey(t *testing.T) {
	dev := openTestDevice(t)

	d, err := generateHostDEK(dev, true, nil)
	if err != nil {
		t.Fatalf("generateHostDEK: %v", err)
	}
	resolved, err := d.resolve(dev)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	resolved.Close()

	var zero [dekKeySize]byte
	if !bytes.Equal(resolved.key[:], zero[:]) {
		t.Errorf("want key zeroed after Close, got %v", resolved.key)
	}
}
