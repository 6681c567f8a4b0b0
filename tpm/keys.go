package tpm

import "github.com/google/go-tpm/tpm2"

// KeyType identifies the algorithm and size of a TPM key object, matching
// ConfigHeaders' {AES128, AES256, RSA1024, RSA2048} vocabulary.
type KeyType int

const (
	AES128 KeyType = iota
	AES256
	RSA1024
	RSA2048
)

func (t KeyType) bits() int {
	switch t {
	case AES128:
		return 128
	case AES256:
		return 256
	case RSA1024:
		return 1024
	case RSA2048:
		return 2048
	default:
		return 0
	}
}

func (t KeyType) isRSA() bool {
	return t == RSA1024 || t == RSA2048
}

// String renders the key type the way it appears in the sealed YAML
// headers.
func (t KeyType) String() string {
	switch t {
	case AES128:
		return "AES128"
	case AES256:
		return "AES256"
	case RSA1024:
		return "RSA1024"
	case RSA2048:
		return "RSA2048"
	default:
		return "unknown"
	}
}

// PCRHash identifies the hash algorithm a PCR policy session is bound to.
type PCRHash int

const (
	SHA1 PCRHash = iota
	SHA256
)

func (h PCRHash) alg() tpm2.TPMAlgID {
	if h == SHA1 {
		return tpm2.TPMAlgSHA1
	}
	return tpm2.TPMAlgSHA256
}

func (h PCRHash) String() string {
	if h == SHA1 {
		return "SHA1"
	}
	return "SHA256"
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
