// Package tpm implements the device-bound layer of the key hierarchy: a
// mutex-serialized gateway to a single TPM 2.0 handle per process, a PCR
// policy session lifecycle, the primary/storage/ephemeral key objects, and
// the AES-CFB wrap/unwrap handler used to move a Data-Encryption-Key on and
// off the TPM. It is built directly on github.com/google/go-tpm/tpm2's
// struct-based command API.
package tpm

import (
	"fmt"
	"sync"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"

	"github.com/wbibile/LetsConfide/crypto"
)

// maxRandomBytesPerCall is the largest number of bytes a single GetRandom
// command is guaranteed to return in one response; larger requests are
// chunked by the gateway.
const maxRandomBytesPerCall = 48

// gateway serializes every TPM command behind one mutex. TPM hardware is
// not reentrant: the spec requires a single shared handle per process with
// commands strictly ordered, so concurrent callers are safe but fully
// serialized rather than parallelized.
type gateway struct {
	mu     sync.Mutex
	tr     transport.TPMCloser
	logger crypto.Logger
}

func newGateway(tr transport.TPMCloser, logger crypto.Logger) *gateway {
	if logger == nil {
		logger = crypto.StdLogger()
	}
	return &gateway{tr: tr, logger: logger}
}

// execute runs fn while holding the gateway's lock so every TPM command,
// regardless of which goroutine issued it, observes one process-wide total
// order.
func (g *gateway) execute(fn func(transport.TPMCloser) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g.tr)
}

// randomBytes draws n bytes from the TPM RNG, looping because a single
// GetRandom command only guarantees up to maxRandomBytesPerCall bytes.
func (g *gateway) randomBytes(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	err := g.execute(func(tr transport.TPMCloser) error {
		for len(out) < n {
			want := n - len(out)
			if want > maxRandomBytesPerCall {
				want = maxRandomBytesPerCall
			}
			cmd := tpm2.GetRandom{BytesRequested: uint16(want)}
			rsp, err := cmd.Execute(tr)
			if err != nil {
				return fmt.Errorf("tpm: GetRandom: %w", err)
			}
			if len(rsp.RandomBytes.Buffer) == 0 {
				return fmt.Errorf("tpm: GetRandom returned no bytes")
			}
			out = append(out, rsp.RandomBytes.Buffer...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.logger.Debugf("tpm: drew %d random bytes", n)
	return out[:n], nil
}

// flush flushes a transient handle (object or session). Every scoped guard
// in this package calls flush on all of its exit paths; a missed flush
// leaks a TPM slot and is considered a bug, never a recoverable condition.
func (g *gateway) flush(h tpm2.TPMHandle) error {
	return g.execute(func(tr transport.TPMCloser) error {
		cmd := tpm2.FlushContext{FlushHandle: h}
		_, err := cmd.Execute(tr)
		return err
	})
}

// close closes the underlying transport.
func (g *gateway) close() error {
	return g.tr.Close()
}
