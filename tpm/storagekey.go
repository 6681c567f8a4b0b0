package tpm

import (
	"fmt"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"

	"github.com/wbibile/LetsConfide/crypto"
	"github.com/wbibile/LetsConfide/sizedbytes"
)

// StorageKey is the persistent TPM key, gated by a PCR policy, that wraps
// and unwraps the persistent Host DEK. Its tokens — the private and public
// blobs returned by Create — are the blob's deviceTokens field; everything
// else about the key is recreated deterministically from ConfigHeaders.
type StorageKey struct {
	gw       *gateway
	kt       KeyType
	hash     tpm2.TPMAlgID
	pcrMask  uint32
	parent   tpm2.TPMHandle
	parentNm tpm2.TPM2BName
	private  tpm2.TPM2BPrivate
	public   tpm2.TPM2BPublic
}

// CreateStorageKey creates a brand-new storage key as a child of parent,
// with its AuthPolicy bound to a fresh PCR policy over hash/pcrMask.
func CreateStorageKey(gw *gateway, parent tpm2.TPMHandle, parentName tpm2.TPM2BName, kt KeyType, hash tpm2.TPMAlgID, pcrMask uint32) (*StorageKey, error) {
	pg, err := startPolicySession(gw, hash, pcrMask)
	if err != nil {
		return nil, err
	}
	defer pg.flush()

	template, err := storageKeyTemplate(kt, pg.digest)
	if err != nil {
		return nil, err
	}

	var private tpm2.TPM2BPrivate
	var public tpm2.TPM2BPublic
	err = gw.execute(func(tr transport.TPMCloser) error {
		cmd := tpm2.Create{
			ParentHandle: tpm2.AuthHandle{
				Handle: parent,
				Name:   parentName,
				Auth:   tpm2.PasswordAuth(nil),
			},
			InSensitive: tpm2.TPM2BSensitiveCreate{Sensitive: &tpm2.TPMSSensitiveCreate{}},
			InPublic:    tpm2.New2B(template),
		}
		rsp, err := cmd.Execute(tr)
		if err != nil {
			return fmt.Errorf("tpm: Create storage key: %w", err)
		}
		private = rsp.OutPrivate
		public = rsp.OutPublic
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &StorageKey{gw: gw, kt: kt, hash: hash, pcrMask: pcrMask, parent: parent, parentNm: parentName, private: private, public: public}, nil
}

// LoadStorageKey recreates a StorageKey from its persisted {private,
// public} token pair.
func LoadStorageKey(gw *gateway, parent tpm2.TPMHandle, parentName tpm2.TPM2BName, kt KeyType, hash tpm2.TPMAlgID, pcrMask uint32, tokens [][]byte) (*StorageKey, error) {
	if len(tokens) != 2 {
		return nil, ErrWrongTokenArity
	}
	priv, err := tpm2.Unmarshal[tpm2.TPM2BPrivate](tokens[0])
	if err != nil {
		return nil, fmt.Errorf("tpm: unmarshal storage key private blob: %w", err)
	}
	pub, err := tpm2.Unmarshal[tpm2.TPM2BPublic](tokens[1])
	if err != nil {
		return nil, fmt.Errorf("tpm: unmarshal storage key public blob: %w", err)
	}
	return &StorageKey{gw: gw, kt: kt, hash: hash, pcrMask: pcrMask, parent: parent, parentNm: parentName, private: *priv, public: *pub}, nil
}

// Tokens returns the ordered {private, public} blob pair to persist as the
// blob's deviceTokens field.
func (k *StorageKey) Tokens() [][]byte {
	return [][]byte{tpm2.Marshal(k.private), tpm2.Marshal(k.public)}
}

func (k *StorageKey) load(tr transport.TPMCloser) (tpm2.TPMHandle, tpm2.TPM2BName, error) {
	cmd := tpm2.Load{
		ParentHandle: tpm2.AuthHandle{
			Handle: k.parent,
			Name:   k.parentNm,
			Auth:   tpm2.PasswordAuth(nil),
		},
		InPrivate: k.private,
		InPublic:  k.public,
	}
	rsp, err := cmd.Execute(tr)
	if err != nil {
		return 0, tpm2.TPM2BName{}, fmt.Errorf("tpm: Load storage key: %w", err)
	}
	return rsp.ObjectHandle, rsp.Name, nil
}

func storageKeyTemplate(kt KeyType, policyDigest []byte) (tpm2.TPMTPublic, error) {
	switch kt {
	case AES128, AES256:
		return tpm2.TPMTPublic{
			Type:    tpm2.TPMAlgSymCipher,
			NameAlg: tpm2.TPMAlgSHA256,
			ObjectAttributes: tpm2.TPMAObject{
				FixedTPM:            true,
				FixedParent:         true,
				SensitiveDataOrigin: true,
				Decrypt:             true,
				SignEncrypt:         true,
			},
			AuthPolicy: tpm2.TPM2BDigest{Buffer: policyDigest},
			Parameters: tpm2.NewTPMUPublicParms(tpm2.TPMAlgSymCipher, &tpm2.TPMSSymCipherParms{
				Sym: tpm2.TPMTSymDefObject{
					Algorithm: tpm2.TPMAlgAES,
					KeyBits:   tpm2.NewTPMUSymKeyBits(tpm2.TPMAlgAES, tpm2.TPMKeyBits(kt.bits())),
					Mode:      tpm2.NewTPMUSymMode(tpm2.TPMAlgAES, tpm2.TPMAlgCFB),
				},
			}),
		}, nil
	case RSA1024, RSA2048:
		return tpm2.TPMTPublic{
			Type:    tpm2.TPMAlgRSA,
			NameAlg: tpm2.TPMAlgSHA256,
			ObjectAttributes: tpm2.TPMAObject{
				FixedTPM:            true,
				FixedParent:         true,
				SensitiveDataOrigin: true,
				Decrypt:             true,
			},
			AuthPolicy: tpm2.TPM2BDigest{Buffer: policyDigest},
			Parameters: tpm2.NewTPMUPublicParms(tpm2.TPMAlgRSA, &tpm2.TPMSRSAParms{
				Scheme: tpm2.TPMTRSAScheme{
					Scheme:  tpm2.TPMAlgOAEP,
					Details: tpm2.NewTPMUAsymScheme(tpm2.TPMAlgOAEP, &tpm2.TPMSEncSchemeOAEP{HashAlg: tpm2.TPMAlgSHA256}),
				},
				KeyBits:  tpm2.TPMKeyBits(kt.bits()),
				Exponent: 65537,
			}),
		}, nil
	default:
		return tpm2.TPMTPublic{}, ErrUnsupportedKeyType
	}
}

// Wrap implements the §4.F wrap protocol: pad dek out to 64 bytes with
// random padding and hand it to the backing AES-CFB or RSA-OAEP op.
func (k *StorageKey) Wrap(dek []byte) ([]byte, error) {
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
func (k *StorageKey) Unwrap(wrapped []byte) ([]byte, error) {
	if k.kt.isRSA() {
		return k.unwrapRSA(wrapped)
	}
	return k.unwrapAES(wrapped)
}

func (k *StorageKey) wrapAES(plaintext []byte) ([]byte, error) {
	var iv []byte
	for {
		candidate, err := k.gw.randomBytes(16)
		if err != nil {
			return nil, err
		}
		if !allZero(candidate) {
			iv = candidate
			break
		}
	}

	pg, err := startPolicySession(k.gw, k.hash, k.pcrMask)
	if err != nil {
		return nil, err
	}
	defer pg.flush()

	var ciphertext []byte
	err = k.gw.execute(func(tr transport.TPMCloser) error {
		objHandle, objName, err := k.load(tr)
		if err != nil {
			return err
		}
		defer func() {
			fc := tpm2.FlushContext{FlushHandle: objHandle}
			fc.Execute(tr)
		}()
		cmd := tpm2.EncryptDecrypt2{
			KeyHandle: tpm2.AuthHandle{Handle: objHandle, Name: objName, Auth: pg.session},
			Message:   tpm2.TPM2BMaxBuffer{Buffer: plaintext},
			Decrypt:   false,
			Mode:      tpm2.TPMAlgCFB,
			IV:        tpm2.TPM2BIV{Buffer: iv},
		}
		rsp, err := cmd.Execute(tr)
		if err != nil {
			return fmt.Errorf("tpm: EncryptDecrypt2 wrap: %w", err)
		}
		ciphertext = rsp.OutData.Buffer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sizedbytes.Encode(iv, ciphertext)
}

func (k *StorageKey) unwrapAES(wrapped []byte) ([]byte, error) {
	parts, err := sizedbytes.Decode(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrapFormat, err)
	}
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: expected 2 parts, got %d", ErrUnwrapFormat, len(parts))
	}
	iv, ciphertext := parts[0], parts[1]

	pg, err := startPolicySession(k.gw, k.hash, k.pcrMask)
	if err != nil {
		return nil, err
	}
	defer pg.flush()

	var plaintext []byte
	err = k.gw.execute(func(tr transport.TPMCloser) error {
		objHandle, objName, err := k.load(tr)
		if err != nil {
			return err
		}
		defer func() {
			fc := tpm2.FlushContext{FlushHandle: objHandle}
			fc.Execute(tr)
		}()
		cmd := tpm2.EncryptDecrypt2{
			KeyHandle: tpm2.AuthHandle{Handle: objHandle, Name: objName, Auth: pg.session},
			Message:   tpm2.TPM2BMaxBuffer{Buffer: ciphertext},
			Decrypt:   true,
			Mode:      tpm2.TPMAlgCFB,
			IV:        tpm2.TPM2BIV{Buffer: iv},
		}
		rsp, err := cmd.Execute(tr)
		if err != nil {
			return fmt.Errorf("tpm: EncryptDecrypt2 unwrap: %w", err)
		}
		plaintext = rsp.OutData.Buffer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return finishUnwrap(plaintext)
}

func (k *StorageKey) wrapRSA(plaintext []byte) ([]byte, error) {
	var ciphertext []byte
	err := k.gw.execute(func(tr transport.TPMCloser) error {
		objHandle, objName, err := k.load(tr)
		if err != nil {
			return err
		}
		defer func() {
			fc := tpm2.FlushContext{FlushHandle: objHandle}
			fc.Execute(tr)
		}()
		cmd := tpm2.RSAEncrypt{
			KeyHandle: tpm2.NamedHandle{Handle: objHandle, Name: objName},
			Message:   tpm2.TPM2BPublicKeyRSA{Buffer: plaintext},
			InScheme: tpm2.TPMTRSADecrypt{
				Scheme:  tpm2.TPMAlgOAEP,
				Details: tpm2.NewTPMUAsymScheme(tpm2.TPMAlgOAEP, &tpm2.TPMSEncSchemeOAEP{HashAlg: tpm2.TPMAlgSHA256}),
			},
		}
		rsp, err := cmd.Execute(tr)
		if err != nil {
			return fmt.Errorf("tpm: RSAEncrypt wrap: %w", err)
		}
		ciphertext = rsp.OutData.Buffer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sizedbytes.Encode(ciphertext)
}

func (k *StorageKey) unwrapRSA(wrapped []byte) ([]byte, error) {
	parts, err := sizedbytes.Decode(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrapFormat, err)
	}
	if len(parts) != 1 {
		return nil, fmt.Errorf("%w: expected 1 part, got %d", ErrUnwrapFormat, len(parts))
	}
	ciphertext := parts[0]

	pg, err := startPolicySession(k.gw, k.hash, k.pcrMask)
	if err != nil {
		return nil, err
	}
	defer pg.flush()

	var plaintext []byte
	err = k.gw.execute(func(tr transport.TPMCloser) error {
		objHandle, objName, err := k.load(tr)
		if err != nil {
			return err
		}
		defer func() {
			fc := tpm2.FlushContext{FlushHandle: objHandle}
			fc.Execute(tr)
		}()
		cmd := tpm2.RSADecrypt{
			KeyHandle:  tpm2.AuthHandle{Handle: objHandle, Name: objName, Auth: pg.session},
			CipherText: tpm2.TPM2BPublicKeyRSA{Buffer: ciphertext},
			InScheme: tpm2.TPMTRSADecrypt{
				Scheme:  tpm2.TPMAlgOAEP,
				Details: tpm2.NewTPMUAsymScheme(tpm2.TPMAlgOAEP, &tpm2.TPMSEncSchemeOAEP{HashAlg: tpm2.TPMAlgSHA256}),
			},
		}
		rsp, err := cmd.Execute(tr)
		if err != nil {
			return fmt.Errorf("tpm: RSADecrypt unwrap: %w", err)
		}
		plaintext = rsp.Message.Buffer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return finishUnwrap(plaintext)
}

// finishUnwrap checks the decrypted padded plaintext is exactly 64 bytes,
// returns the leading 32-byte DEK, and zeroes the rest (including the
// trailing padding) either way.
func finishUnwrap(plaintext []byte) ([]byte, error) {
	defer crypto.Wipe(plaintext)
	if len(plaintext) != 64 {
		return nil, fmt.Errorf("%w: decrypted length %d, want 64", ErrUnwrapFormat, len(plaintext))
	}
	return append([]byte{}, plaintext[:32]...), nil
}
