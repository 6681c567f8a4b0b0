package letsconfide

import (
	"github.com/wbibile/LetsConfide/tpm"
)

// defaultPCRSelection selects PCR 16 (bit 16 of the 24-bit mask), matching
// spec.md's documented default of 0x10000.
const defaultPCRSelection uint32 = 0x10000

// ConfigHeaders is the sealed file's headers mapping (§3, §6). Equal
// deliberately ignores EphemeralKeyType: the ephemeral KEK's type
// choice does not partition any persisted state, since the ephemeral key
// never survives past one process run.
type ConfigHeaders struct {
	PrimaryKeyType   tpm.KeyType
	StorageKeyType   tpm.KeyType
	EphemeralKeyType tpm.KeyType
	PCRSelection     uint32
	PCRHash          tpm.PCRHash
}

// DefaultConfigHeaders returns the spec-mandated default record: AES256 for
// all three key types, PCR 16, SHA256.
func DefaultConfigHeaders() ConfigHeaders {
	return ConfigHeaders{
		PrimaryKeyType:   tpm.AES256,
		StorageKeyType:   tpm.AES256,
		EphemeralKeyType: tpm.AES256,
		PCRSelection:     defaultPCRSelection,
		PCRHash:          tpm.SHA256,
	}
}

// Equal reports whether h and other describe the same persisted key
// hierarchy, ignoring EphemeralKeyType.
func (h ConfigHeaders) Equal(other ConfigHeaders) bool {
	return h.PrimaryKeyType == other.PrimaryKeyType &&
		h.StorageKeyType == other.StorageKeyType &&
		h.PCRSelection == other.PCRSelection &&
		h.PCRHash == other.PCRHash
}

func (h ConfigHeaders) deviceConfig() tpm.Config {
	return tpm.Config{
		PrimaryKeyType:   h.PrimaryKeyType,
		StorageKeyType:   h.StorageKeyType,
		EphemeralKeyType: h.EphemeralKeyType,
		PCRSelection:     h.PCRSelection,
		PCRHash:          h.PCRHash,
	}
}
