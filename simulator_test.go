package letsconfide

import (
	"io"
	"sync"

	"github.com/google/go-tpm-tools/simulator"
	"github.com/google/go-tpm/tpm2/transport"

	"github.com/wbibile/LetsConfide/tpm"
)

// testFactory opens a fresh software TPM simulator transport per call,
// sharing one simulator instance per test binary via sync.Once, matching
// the teacher's tpmEncryptionKey/globalTPM helper in storage_test.go.
var (
	simOnce sync.Once
	simRWC  *simulator.Simulator
	simErr  error
)

func testFactory() (transport.TPMCloser, error) {
	simOnce.Do(func() {
		simRWC, simErr = simulator.Get()
	})
	if simErr != nil {
		return nil, simErr
	}
	return simTransport{TPM: transport.FromReadWriter(simRWC), closer: simRWC}, nil
}

// simTransport adapts the simulator's io.ReadWriteCloser into a
// transport.TPMCloser. Close is a deliberate no-op: production code opens
// and closes a Device per operation, but the simulator instance is shared
// across every test in this binary, and actually closing it here would
// tear down the shared simulator the first time any test exercises a
// Device.Close() path (ingest, reopen, StartDataAccessSession all close
// their device). The underlying simulator is torn down only by process
// exit.
type simTransport struct {
	transport.TPM
	closer io.Closer
}

func (s simTransport) Close() error { return nil }

func testHeaders() ConfigHeaders {
	h := DefaultConfigHeaders()
	h.PCRSelection = 1 // PCR 0
	h.PrimaryKeyType = tpm.AES128
	h.StorageKeyType = tpm.AES128
	h.EphemeralKeyType = tpm.AES128
	return h
}
