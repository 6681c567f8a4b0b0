package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PassphraseSaltSize is the size of the random salt generated for a
	// new passphrase-derived key.
	PassphraseSaltSize = 16
	passphraseIterations = 200_000
)

// DeriveRewrapKey stretches an operator-supplied passphrase into a
// GCMKeySize-byte key using PBKDF2-HMAC-SHA256. If salt is nil, a fresh
// random salt is generated and returned alongside the key; otherwise the
// given salt is reused (to reproduce a previously derived key).
//
// This exists only to gate the `letsconfide rewrap` maintenance path — it
// never touches the TPM-resident key hierarchy. The rewrap command stores
// the derived key, hex-encoded beside its salt, as the verifier it checks
// later passphrases against.
func DeriveRewrapKey(passphrase, salt []byte) ([]byte, []byte, error) {
	if len(passphrase) == 0 {
		return nil, nil, fmt.Errorf("crypto: empty passphrase")
	}
	if salt == nil {
		salt = make([]byte, PassphraseSaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, fmt.Errorf("crypto: generating salt: %w", err)
		}
	}
	key := pbkdf2.Key(passphrase, salt, passphraseIterations, GCMKeySize, sha256.New)
	return key, salt, nil
}
