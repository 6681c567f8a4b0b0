package letsconfide

import (
	"fmt"
	"runtime"

	"github.com/wbibile/LetsConfide/crypto"
	"github.com/wbibile/LetsConfide/tpm"
)

const (
	dekKeySize  = 32
	dekSeedSize = 64
	dekIVSize   = 12
)

// HostDEK is an AES-256-GCM Data-Encryption-Key held only in
// device-wrapped form (§4.G): it never carries plaintext key material
// outside a ResolvedDEK's scope.
type HostDEK struct {
	isEphemeral bool
	wrapped     []byte
	iv          [dekIVSize]byte
	aad         []byte
}

// newHostDEKFromSeed derives iv/aad from a 64-byte seed: iv = seed[0:12],
// aad = seed[12:64].
func newHostDEKFromSeed(isEphemeral bool, wrapped, seed []byte) (*HostDEK, error) {
	if len(seed) != dekSeedSize {
		return nil, ErrInvalidSeedSize
	}
	d := &HostDEK{isEphemeral: isEphemeral, wrapped: wrapped, aad: append([]byte{}, seed[12:]...)}
	copy(d.iv[:], seed[:12])
	return d, nil
}

// generateHostDEK draws a fresh seed (if none supplied) and a fresh DEK
// from the device RNG, rejecting any candidate DEK whose first 16 bytes
// are all zero, wraps it via the device's ephemeral or persistent KEK, and
// zeroes the plaintext DEK before returning.
func generateHostDEK(dev *tpm.Device, isEphemeral bool, seed []byte) (*HostDEK, error) {
	if seed == nil {
		s, err := dev.RandomBytes(dekSeedSize)
		if err != nil {
			return nil, err
		}
		seed = s
	} else if len(seed) != dekSeedSize {
		return nil, ErrInvalidSeedSize
	}

	var dek []byte
	for {
		candidate, err := dev.RandomBytes(dekKeySize)
		if err != nil {
			return nil, err
		}
		if !leadingBytesAllZero(candidate, 16) {
			dek = candidate
			break
		}
	}
	defer crypto.Wipe(dek)

	var wrapped []byte
	var err error
	if isEphemeral {
		wrapped, err = dev.WrapEphemeral(dek)
	} else {
		wrapped, err = dev.WrapPersistent(dek)
	}
	if err != nil {
		return nil, fmt.Errorf("wrapping DEK: %w", err)
	}
	return newHostDEKFromSeed(isEphemeral, wrapped, seed)
}

func leadingBytesAllZero(b []byte, n int) bool {
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if b[i] != 0 {
			return false
		}
	}
	return true
}

// Wrapped returns the device-wrapped key, for persistence in an
// EncryptedBlob.
func (d *HostDEK) Wrapped() []byte { return d.wrapped }

// Seed reconstructs the 64-byte seed iv/aad were derived from.
func (d *HostDEK) Seed() []byte {
	seed := make([]byte, dekSeedSize)
	copy(seed[:12], d.iv[:])
	copy(seed[12:], d.aad)
	return seed
}

// ResolvedDEK holds cleartext DEK material for the minimum window needed.
// Close must run on every exit path of the scope that resolved it.
type ResolvedDEK struct {
	key        [dekKeySize]byte
	iv         [dekIVSize]byte
	aad        []byte
	logger     crypto.Logger
	strictWipe bool
}

// resolve unwraps d's DEK via the appropriate device operation and arms a
// finalizer that flags a ResolvedDEK garbage-collected without Close
// having zeroed it, honoring opts' WithStrictWipe the way the teacher's
// AESKey.setFinalizer does.
func (d *HostDEK) resolve(dev *tpm.Device, opts ...crypto.Option) (*ResolvedDEK, error) {
	var plain []byte
	var err error
	if d.isEphemeral {
		plain, err = dev.UnwrapEphemeral(d.wrapped)
	} else {
		plain, err = dev.UnwrapPersistent(d.wrapped)
	}
	if err != nil {
		return nil, ErrDecryptFailed
	}
	defer crypto.Wipe(plain)
	if len(plain) != dekKeySize {
		return nil, ErrDecryptFailed
	}

	logger, strictWipe := crypto.ResolveOptions(opts...)
	r := &ResolvedDEK{iv: d.iv, aad: d.aad, logger: logger, strictWipe: strictWipe}
	copy(r.key[:], plain)
	r.setFinalizer()
	return r, nil
}

func (r *ResolvedDEK) setFinalizer() {
	runtime.SetFinalizer(r, func(obj interface{}) {
		rd := obj.(*ResolvedDEK)
		for _, b := range rd.key {
			if b != 0 {
				if rd.strictWipe {
					rd.logger.Fatalf("WIPEME: ResolvedDEK not wiped before being garbage collected")
				}
				rd.logger.Errorf("WIPEME: ResolvedDEK not wiped before being garbage collected")
				crypto.Wipe(rd.key[:])
				return
			}
		}
	})
}

// Close zeroes the cleartext key and disarms the leak-detection finalizer.
// Safe to call more than once.
func (r *ResolvedDEK) Close() {
	crypto.Wipe(r.key[:])
	runtime.SetFinalizer(r, nil)
}

// Encrypt seals plaintext under r's key, iv, and aad (§4.B).
func (r *ResolvedDEK) Encrypt(plaintext []byte) ([]byte, error) {
	return crypto.SealGCM(r.key[:], r.iv[:], r.aad, plaintext)
}

// Decrypt opens ciphertext sealed by Encrypt. A tag mismatch surfaces as
// ErrDecryptFailed without echoing any plaintext or key material.
func (r *ResolvedDEK) Decrypt(ciphertext []byte) ([]byte, error) {
	pt, err := crypto.OpenGCM(r.key[:], r.iv[:], r.aad, ciphertext)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return pt, nil
}
