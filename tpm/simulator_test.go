package tpm

import (
	"io"
	"sync"

	"github.com/google/go-tpm-tools/simulator"
	"github.com/google/go-tpm/tpm2/transport"
)

// testFactory opens a fresh software TPM simulator transport per call. The
// simulator itself is shared across the package's tests via sync.Once,
// following the teacher's tpmEncryptionKey helper, since spinning one up is
// expensive; tests never call Device.Close on it so the shared instance
// outlives any one test.
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
// transport.TPMCloser: transport.FromReadWriter only wraps the read/write
// half. Close is a deliberate no-op rather than forwarding to the
// simulator: the simulator instance is shared across every test in this
// binary, and tearing it down on the first Device.Close() would break
// every test that runs after it. The underlying simulator is torn down
// only by process exit.
type simTransport struct {
	transport.TPM
	closer io.Closer
}

func (s simTransport) Close() error { return nil }

func testConfig(primary, storage, ephemeral KeyType) Config {
	return Config{
		PrimaryKeyType:   primary,
		StorageKeyType:   storage,
		EphemeralKeyType: ephemeral,
		PCRSelection:     1, // PCR 0
		PCRHash:          SHA256,
	}
}
