// Package letsconfide binds a small collection of named secrets to a TPM
// 2.0 module: the first parse of a plaintext YAML configuration seals it
// in place into ciphertext plus the key material needed to reconstitute
// decryption, bound to TPM-resident keys and platform measurement state.
// Subsequent runs reopen the sealed file, re-bind to the TPM, and permit
// decrypting individual secrets on demand.
package letsconfide

import "errors"

var (
	// ErrKeyNotFound is returned by Session.Decrypt for an unknown name. Its
	// message deliberately does not echo the name that was looked up.
	ErrKeyNotFound = errors.New("Key not found")
	// ErrDuplicateKey indicates a YAML mapping with the same key twice.
	ErrDuplicateKey = errors.New("Duplicate key")
	// ErrInvalidHeader indicates an unrecognized key under the config's
	// headers mapping.
	ErrInvalidHeader = errors.New("Invalid config header")
	// ErrUnexpectedEntry indicates a non-mapping value where a mapping was
	// required.
	ErrUnexpectedEntry = errors.New("Unexpected entry")
	// ErrConfigTooLarge indicates a configuration stream over the 256 KiB
	// read limit.
	ErrConfigTooLarge = errors.New("The config is too large")
	// ErrFieldNotDefined indicates a sealed YAML document missing one of
	// encryptedData's four required fields.
	ErrFieldNotDefined = errors.New("field not defined")
	// ErrMissingDataSection indicates a plaintext document with neither
	// data nor encryptedData after headers.
	ErrMissingDataSection = errors.New("missing data section")
	// ErrAliasNotAllowed indicates a YAML alias node, which the parser
	// rejects outright.
	ErrAliasNotAllowed = errors.New("YAML aliases are not allowed")
	// ErrDecryptFailed indicates a GCM tag mismatch or other opaque
	// cryptographic failure. Never wraps plaintext or key material.
	ErrDecryptFailed = errors.New("decryption failed")
	// ErrInvalidSizedByteArray indicates that the decrypted key/value list
	// is not a well-formed sized-byte-array; the decoder's error is appended
	// to its message.
	ErrInvalidSizedByteArray = errors.New("Encrypted key format is invalid")
	// ErrOddKeyValueList indicates a decrypted key/value list with an odd
	// number of sized-byte-array segments.
	ErrOddKeyValueList = errors.New("key/value list has an odd number of entries")
	// ErrInvalidSeedSize indicates a seed other than exactly 64 bytes.
	ErrInvalidSeedSize = errors.New("seed must be exactly 64 bytes")
	// ErrSessionClosed indicates a call on a Session after Close.
	ErrSessionClosed = errors.New("session is closed")
)
