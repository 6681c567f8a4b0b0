package tpm

import (
	"fmt"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
)

// pcrNonceSize is the size, in bytes, of the caller nonce used to start a
// policy session.
const pcrNonceSize = 16

// pcrSelectionFor builds a TPMLPCRSelection for hash and a 24-bit
// pcrSelection bitmask (bit i selects PCR i; byte 0 of the resulting
// TPMS_PCR_SELECT mask covers PCRs 0-7, as the TPM wire format requires).
func pcrSelectionFor(hash tpm2.TPMAlgID, mask uint32) (tpm2.TPMLPCRSelection, error) {
	if mask == 0 || mask > 0x00FFFFFF {
		return tpm2.TPMLPCRSelection{}, ErrInvalidPCRSelection
	}
	var pcrs []uint
	for i := uint(0); i < 24; i++ {
		if mask&(1<<i) != 0 {
			pcrs = append(pcrs, i)
		}
	}
	return tpm2.TPMLPCRSelection{
		PCRSelections: []tpm2.TPMSPCRSelection{
			{
				Hash:      hash,
				PCRSelect: tpm2.PCClientCompatible.PCRs(pcrs...),
			},
		},
	}, nil
}

// policyGuard holds a started PCR policy session. digest is what
// CreateStorageKey embeds as a new storage key's AuthPolicy; session
// implements tpm2.Session and is passed as the Auth of the EncryptDecrypt2
// and RSADecrypt commands against that key (Create and Load authorize the
// parent with a password instead). It must be closed on every exit path of
// the scope that started it.
type policyGuard struct {
	gw      *gateway
	session tpm2.Session
	close   func() error
	digest  []byte
}

// startPolicySession starts a POLICY auth session bound to the given PCR
// selection and hash: StartAuthSession with null bind/salt/symmetric
// (handled internally by tpm2.PolicySession), then PolicyPCR with an empty
// digest — which instructs the TPM to compute the current PCR digest
// itself — then PolicyGetDigest to read back the resulting policy digest.
func startPolicySession(gw *gateway, hash tpm2.TPMAlgID, mask uint32) (*policyGuard, error) {
	sel, err := pcrSelectionFor(hash, mask)
	if err != nil {
		return nil, err
	}

	var pg *policyGuard
	err = gw.execute(func(tr transport.TPMCloser) error {
		// The session's own auth hash is fixed at SHA256 regardless of the
		// configured PCR bank (hash, used only for the PCR selection digest
		// below) — it round-trips fine either way, but pinning it keeps the
		// session algorithm independent of a caller's SHA1 bank choice.
		session, closeSession, err := tpm2.PolicySession(tr, tpm2.TPMAlgSHA256, pcrNonceSize)
		if err != nil {
			return fmt.Errorf("tpm: StartAuthSession: %w", err)
		}
		pg = &policyGuard{gw: gw, session: session, close: closeSession}

		policyPCR := tpm2.PolicyPCR{
			PolicySession: session.Handle(),
			Pcrs:          sel,
		}
		if _, err := policyPCR.Execute(tr); err != nil {
			closeSession()
			return fmt.Errorf("tpm: PolicyPCR: %w", err)
		}

		getDigest := tpm2.PolicyGetDigest{PolicySession: session.Handle()}
		rsp, err := getDigest.Execute(tr)
		if err != nil {
			closeSession()
			return fmt.Errorf("tpm: PolicyGetDigest: %w", err)
		}
		pg.digest = rsp.PolicyDigest.Buffer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pg, nil
}

// flush releases the session. Safe, and required, to call on every exit
// path — success or error — of the caller's scope.
func (pg *policyGuard) flush() {
	if pg == nil || pg.close == nil {
		return
	}
	if err := pg.close(); err != nil {
		pg.gw.logger.Errorf("tpm: failed to flush policy session: %v", err)
	}
	pg.close = nil
}
