package tpm

import (
	"fmt"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
)

// createPrimary creates a primary key in the owner hierarchy per the
// configured key type. The AES form is restricted and used only as a
// parent for the storage key; the RSA form is restricted with AES-128-CFB
// parameter encryption, following the shape inovacc-clonr's
// createPrimaryKey builds for its RSA-2048 primary.
func createPrimary(gw *gateway, kt KeyType) (tpm2.TPMHandle, tpm2.TPM2BName, error) {
	template, err := primaryTemplate(kt)
	if err != nil {
		return 0, tpm2.TPM2BName{}, err
	}
	var handle tpm2.TPMHandle
	var name tpm2.TPM2BName
	err = gw.execute(func(tr transport.TPMCloser) error {
		cmd := tpm2.CreatePrimary{
			PrimaryHandle: tpm2.TPMRHOwner,
			InPublic:      tpm2.New2B(template),
		}
		rsp, err := cmd.Execute(tr)
		if err != nil {
			return fmt.Errorf("tpm: CreatePrimary: %w", err)
		}
		handle = rsp.ObjectHandle
		name = rsp.Name
		return nil
	})
	if err != nil {
		return 0, tpm2.TPM2BName{}, err
	}
	return handle, name, nil
}

func primaryTemplate(kt KeyType) (tpm2.TPMTPublic, error) {
	switch kt {
	case AES128, AES256:
		return aesPrimaryTemplate(kt), nil
	case RSA1024, RSA2048:
		return rsaPrimaryTemplate(kt), nil
	default:
		return tpm2.TPMTPublic{}, ErrUnsupportedKeyType
	}
}

// aesPrimaryTemplate builds a restricted, fixed AES-CFB parent: PCR 0
// bound, no data-origin choice left to the caller.
func aesPrimaryTemplate(kt KeyType) tpm2.TPMTPublic {
	return tpm2.TPMTPublic{
		Type:    tpm2.TPMAlgSymCipher,
		NameAlg: tpm2.TPMAlgSHA256,
		ObjectAttributes: tpm2.TPMAObject{
			FixedTPM:            true,
			FixedParent:         true,
			SensitiveDataOrigin: true,
			UserWithAuth:        true,
			Decrypt:             true,
			Restricted:          true,
		},
		Parameters: tpm2.NewTPMUPublicParms(tpm2.TPMAlgSymCipher, &tpm2.TPMSSymCipherParms{
			Sym: tpm2.TPMTSymDefObject{
				Algorithm: tpm2.TPMAlgAES,
				KeyBits:   tpm2.NewTPMUSymKeyBits(tpm2.TPMAlgAES, tpm2.TPMKeyBits(kt.bits())),
				Mode:      tpm2.NewTPMUSymMode(tpm2.TPMAlgAES, tpm2.TPMAlgCFB),
			},
		}),
		PCRSelection: tpm2.TPMLPCRSelection{
			PCRSelections: []tpm2.TPMSPCRSelection{
				{Hash: tpm2.TPMAlgSHA256, PCRSelect: tpm2.PCClientCompatible.PCRs(0)},
			},
		},
	}
}

// rsaPrimaryTemplate builds a restricted decryption-only RSA parent with
// AES-128-CFB parameter encryption and no PCR binding of its own — the PCR
// policy is enforced on the child storage key, not on the parent.
func rsaPrimaryTemplate(kt KeyType) tpm2.TPMTPublic {
	return tpm2.TPMTPublic{
		Type:    tpm2.TPMAlgRSA,
		NameAlg: tpm2.TPMAlgSHA256,
		ObjectAttributes: tpm2.TPMAObject{
			FixedTPM:            true,
			FixedParent:         true,
			SensitiveDataOrigin: true,
			UserWithAuth:        true,
			NoDA:                true,
			Decrypt:             true,
			Restricted:          true,
		},
		Parameters: tpm2.NewTPMUPublicParms(tpm2.TPMAlgRSA, &tpm2.TPMSRSAParms{
			Symmetric: tpm2.TPMTSymDefObject{
				Algorithm: tpm2.TPMAlgAES,
				KeyBits:   tpm2.NewTPMUSymKeyBits(tpm2.TPMAlgAES, tpm2.TPMKeyBits(128)),
				Mode:      tpm2.NewTPMUSymMode(tpm2.TPMAlgAES, tpm2.TPMAlgCFB),
			},
			Scheme: tpm2.TPMTRSAScheme{
				Scheme: tpm2.TPMAlgNull,
			},
			KeyBits:  tpm2.TPMKeyBits(kt.bits()),
			Exponent: 65537,
		}),
	}
}
