package tpm

import (
	"fmt"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"

	"github.com/wbibile/LetsConfide/crypto"
	"github.com/wbibile/LetsConfide/sizedbytes"
)

// EphemeralKey is a null-hierarchy TPM key whose authority disappears on
// the TPM's next reset. Its tokens (iv, authValue, secretData for the AES
// form; authValue, secretData for the RSA form) are enough to
// deterministically recreate the identical primary any number of times
// within one TPM boot cycle, since its sensitive area is supplied by the
// caller rather than generated on the TPM.
type EphemeralKey struct {
	gw   *gateway
	kt   KeyType
	iv   []byte // AES only, drawn once and reused across every Wrap call
	auth []byte
	data []byte
}

// NewEphemeralKey draws fresh tokens from the TPM RNG for a new ephemeral
// key of the given type.
func NewEphemeralKey(gw *gateway, kt KeyType) (*EphemeralKey, error) {
	auth, err := gw.randomBytes(32)
	if err != nil {
		return nil, err
	}

	dataSize := 32
	if !kt.isRSA() {
		dataSize = kt.bits() / 8
	}
	data, err := gw.randomBytes(dataSize)
	if err != nil {
		return nil, err
	}

	k := &EphemeralKey{gw: gw, kt: kt, auth: auth, data: data}
	if !kt.isRSA() {
		iv, err := gw.randomBytes(16)
		if err != nil {
			return nil, err
		}
		k.iv = iv
	}
	return k, nil
}

// LoadEphemeralKey recreates an EphemeralKey from its persisted tokens.
func LoadEphemeralKey(gw *gateway, kt KeyType, tokens [][]byte) (*EphemeralKey, error) {
	if kt.isRSA() {
		if len(tokens) != 2 {
			return nil, ErrWrongTokenArity
		}
		return &EphemeralKey{gw: gw, kt: kt, auth: tokens[0], data: tokens[1]}, nil
	}
	if len(tokens) != 3 {
		return nil, ErrWrongTokenArity
	}
	return &EphemeralKey{gw: gw, kt: kt, iv: tokens[0], auth: tokens[1], data: tokens[2]}, nil
}

// Tokens returns the ordered token list to persist for the lifetime of
// this process run.
func (k *EphemeralKey) Tokens() [][]byte {
	if k.kt.isRSA() {
		return [][]byte{k.auth, k.data}
	}
	return [][]byte{k.iv, k.auth, k.data}
}

func (k *EphemeralKey) template() tpm2.TPMTPublic {
	if k.kt.isRSA() {
		return tpm2.TPMTPublic{
			Type:    tpm2.TPMAlgRSA,
			NameAlg: tpm2.TPMAlgSHA256,
			ObjectAttributes: tpm2.TPMAObject{
				FixedTPM:     true,
				FixedParent:  true,
				UserWithAuth: true,
				Decrypt:      true,
			},
			Parameters: tpm2.NewTPMUPublicParms(tpm2.TPMAlgRSA, &tpm2.TPMSRSAParms{
				Scheme: tpm2.TPMTRSAScheme{
					Scheme:  tpm2.TPMAlgOAEP,
					Details: tpm2.NewTPMUAsymScheme(tpm2.TPMAlgOAEP, &tpm2.TPMSEncSchemeOAEP{HashAlg: tpm2.TPMAlgSHA256}),
				},
				KeyBits:  tpm2.TPMKeyBits(k.kt.bits()),
				Exponent: 65537,
			}),
		}
	}
	return tpm2.TPMTPublic{
		Type:    tpm2.TPMAlgSymCipher,
		NameAlg: tpm2.TPMAlgSHA256,
		ObjectAttributes: tpm2.TPMAObject{
			FixedTPM:     true,
			FixedParent:  true,
			UserWithAuth: true,
			Decrypt:      true,
			SignEncrypt:  true,
		},
		Parameters: tpm2.NewTPMUPublicParms(tpm2.TPMAlgSymCipher, &tpm2.TPMSSymCipherParms{
			Sym: tpm2.TPMTSymDefObject{
				Algorithm: tpm2.TPMAlgAES,
				KeyBits:   tpm2.NewTPMUSymKeyBits(tpm2.TPMAlgAES, tpm2.TPMKeyBits(k.kt.bits())),
				Mode:      tpm2.NewTPMUSymMode(tpm2.TPMAlgAES, tpm2.TPMAlgCFB),
			},
		}),
	}
}

// createAndLoad recreates the deterministic null-hierarchy primary for
// this ephemeral key and returns its handle and name. The caller must
// flush the handle.
func (k *EphemeralKey) createAndLoad(tr transport.TPMCloser) (tpm2.TPMHandle, tpm2.TPM2BName, error) {
	cmd := tpm2.CreatePrimary{
		PrimaryHandle: tpm2.TPMRHNull,
		InSensitive: tpm2.TPM2BSensitiveCreate{
			Sensitive: &tpm2.TPMSSensitiveCreate{
				UserAuth: tpm2.TPM2BAuth{Buffer: k.auth},
				Data:     tpm2.NewTPMUSensitiveCreate(&tpm2.TPM2BSensitiveData{Buffer: k.data}),
			},
		},
		InPublic: tpm2.New2B(k.template()),
	}
	rsp, err := cmd.Execute(tr)
	if err != nil {
		return 0, tpm2.TPM2BName{}, fmt.Errorf("tpm: CreatePrimary ephemeral key: %w", err)
	}
	return rsp.ObjectHandle, rsp.Name, nil
}

// Wrap implements the §4.F wrap protocol against the ephemeral key.
func (k *EphemeralKey) Wrap(dek []byte) ([]byte, error) {
	if len(dek) != 32 {
		return nil, ErrWrongKeySize
	}
	padding, err := k.gw.randomBytes(32)
	if err != nil {
		return nil, err
	}
	plaintext := append(append([]byte{}, dek...), padding...)
	defer crypto.Wipe(plaintext)

	if k.kt.isRSA() {
		return k.wrapRSA(plaintext)
	}
	return k.wrapAES(plaintext)
}

// Unwrap reverses Wrap.
func (k *EphemeralKey) Unwrap(wrapped []byte) ([]byte, error) {
	if k.kt.isRSA() {
		return k.unwrapRSA(wrapped)
	}
	return k.unwrapAES(wrapped)
}

func (k *EphemeralKey) wrapAES(plaintext []byte) ([]byte, error) {
	var ciphertext []byte
	err := k.gw.execute(func(tr transport.TPMCloser) error {
		handle, name, err := k.createAndLoad(tr)
		if err != nil {
			return err
		}
		defer func() {
			fc := tpm2.FlushContext{FlushHandle: handle}
			fc.Execute(tr)
		}()
		cmd := tpm2.EncryptDecrypt2{
			KeyHandle: tpm2.AuthHandle{Handle: handle, Name: name, Auth: tpm2.PasswordAuth(k.auth)},
			Message:   tpm2.TPM2BMaxBuffer{Buffer: plaintext},
			Decrypt:   false,
			Mode:      tpm2.TPMAlgCFB,
			IV:        tpm2.TPM2BIV{Buffer: k.iv},
		}
		rsp, err := cmd.Execute(tr)
		if err != nil {
			return fmt.Errorf("tpm: EncryptDecrypt2 ephemeral wrap: %w", err)
		}
		ciphertext = rsp.OutData.Buffer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sizedbytes.Encode(k.iv, ciphertext)
}

func (k *EphemeralKey) unwrapAES(wrapped []byte) ([]byte, error) {
	parts, err := sizedbytes.Decode(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrapFormat, err)
	}
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: expected 2 parts, got %d", ErrUnwrapFormat, len(parts))
	}
	iv, ciphertext := parts[0], parts[1]
	var plaintext []byte
	err = k.gw.execute(func(tr transport.TPMCloser) error {
		handle, name, err := k.createAndLoad(tr)
		if err != nil {
			return err
		}
		defer func() {
			fc := tpm2.FlushContext{FlushHandle: handle}
			fc.Execute(tr)
		}()
		cmd := tpm2.EncryptDecrypt2{
			KeyHandle: tpm2.AuthHandle{Handle: handle, Name: name, Auth: tpm2.PasswordAuth(k.auth)},
			Message:   tpm2.TPM2BMaxBuffer{Buffer: ciphertext},
			Decrypt:   true,
			Mode:      tpm2.TPMAlgCFB,
			IV:        tpm2.TPM2BIV{Buffer: iv},
		}
		rsp, err := cmd.Execute(tr)
		if err != nil {
			return fmt.Errorf("tpm: EncryptDecrypt2 ephemeral unwrap: %w", err)
		}
		plaintext = rsp.OutData.Buffer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return finishUnwrap(plaintext)
}

func (k *EphemeralKey) wrapRSA(plaintext []byte) ([]byte, error) {
	var ciphertext []byte
	err := k.gw.execute(func(tr transport.TPMCloser) error {
		handle, name, err := k.createAndLoad(tr)
		if err != nil {
			return err
		}
		defer func() {
			fc := tpm2.FlushContext{FlushHandle: handle}
			fc.Execute(tr)
		}()
		cmd := tpm2.RSAEncrypt{
			KeyHandle: tpm2.NamedHandle{Handle: handle, Name: name},
			Message:   tpm2.TPM2BPublicKeyRSA{Buffer: plaintext},
			InScheme: tpm2.TPMTRSADecrypt{
				Scheme:  tpm2.TPMAlgOAEP,
				Details: tpm2.NewTPMUAsymScheme(tpm2.TPMAlgOAEP, &tpm2.TPMSEncSchemeOAEP{HashAlg: tpm2.TPMAlgSHA256}),
			},
		}
		rsp, err := cmd.Execute(tr)
		if err != nil {
			return fmt.Errorf("tpm: RSAEncrypt ephemeral wrap: %w", err)
		}
		ciphertext = rsp.OutData.Buffer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sizedbytes.Encode(ciphertext)
}

func (k *EphemeralKey) unwrapRSA(wrapped []byte) ([]byte, error) {
	parts, err := sizedbytes.Decode(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrapFormat, err)
	}
	if len(parts) != 1 {
		return nil, fmt.Errorf("%w: expected 1 part, got %d", ErrUnwrapFormat, len(parts))
	}
	ciphertext := parts[0]
	var plaintext []byte
	err = k.gw.execute(func(tr transport.TPMCloser) error {
		handle, name, err := k.createAndLoad(tr)
		if err != nil {
			return err
		}
		defer func() {
			fc := tpm2.FlushContext{FlushHandle: handle}
			fc.Execute(tr)
		}()
		cmd := tpm2.RSADecrypt{
			KeyHandle:  tpm2.AuthHandle{Handle: handle, Name: name, Auth: tpm2.PasswordAuth(k.auth)},
			CipherText: tpm2.TPM2BPublicKeyRSA{Buffer: ciphertext},
			InScheme: tpm2.TPMTRSADecrypt{
				Scheme:  tpm2.TPMAlgOAEP,
				Details: tpm2.NewTPMUAsymScheme(tpm2.TPMAlgOAEP, &tpm2.TPMSEncSchemeOAEP{HashAlg: tpm2.TPMAlgSHA256}),
			},
		}
		rsp, err := cmd.Execute(tr)
		if err != nil {
			return fmt.Errorf("tpm: RSADecrypt ephemeral unwrap: %w", err)
		}
		plaintext = rsp.Message.Buffer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return finishUnwrap(plaintext)
}
