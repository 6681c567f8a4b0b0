package tpm

import "errors"

var (
	// ErrUnavailable indicates the TPM transport could not be opened.
	ErrUnavailable = errors.New("tpm: device not available")
	// ErrInvalidPCRSelection indicates a pcrSelection value outside
	// 1..0x00FFFFFF.
	ErrInvalidPCRSelection = errors.New("tpm: invalid PCR selection")
	// ErrWrongKeySize indicates a DEK of a length the wrap protocol does
	// not accept.
	ErrWrongKeySize = errors.New("tpm: wrong key size")
	// ErrUnwrapFormat indicates a wrapped-key buffer that does not decode
	// to the expected shape.
	ErrUnwrapFormat = errors.New("Encrypted key format is invalid")
	// ErrWrongTokenArity indicates an ephemeral-key token list with the
	// wrong number of elements for the requested key type.
	ErrWrongTokenArity = errors.New("tpm: wrong number of ephemeral tokens")
	// ErrUnsupportedKeyType indicates a ConfigHeaders key type this
	// package does not implement.
	ErrUnsupportedKeyType = errors.New("tpm: unsupported key type")
)
