package tpm

import (
	"fmt"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
	"github.com/google/go-tpm/tpm2/transport/linuxtpm"

	"github.com/wbibile/LetsConfide/crypto"
)

// Config carries the subset of ConfigHeaders the device layer needs to
// reconstruct the key hierarchy: the key types for the three KEKs and the
// PCR policy the persistent storage KEK is gated by.
type Config struct {
	PrimaryKeyType   KeyType
	StorageKeyType   KeyType
	EphemeralKeyType KeyType
	PCRSelection     uint32
	PCRHash          PCRHash
}

// Device is the opened TPM device layer: a primary key plus the persistent
// storage KEK loaded or created under it, and the null-hierarchy ephemeral
// KEK for the current process run. The gateway's mutex makes sharing one
// Device across goroutines safe. Each Open or OpenWithTokens builds its own
// gateway, so two Devices over one transport do not serialize against each
// other.
type Device struct {
	gw          *gateway
	cfg         Config
	primary     tpm2.TPMHandle
	primaryName tpm2.TPM2BName
	storage     *StorageKey
	ephemeral   *EphemeralKey
}

// DeviceFactory opens a transport to a TPM — hardware, or the software
// simulator in tests.
type DeviceFactory func() (transport.TPMCloser, error)

// DefaultDeviceFactory opens the Linux TPM resource manager device.
func DefaultDeviceFactory() (transport.TPMCloser, error) {
	tr, err := linuxtpm.Open("/dev/tpmrm0")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tr, nil
}

// Open creates a brand-new device: a fresh primary key, a fresh persistent
// storage KEK gated by cfg's PCR policy, and a fresh ephemeral KEK. It
// returns the device, the storage KEK's tokens (the blob's deviceTokens
// field), and the ephemeral KEK's tokens.
func Open(factory DeviceFactory, cfg Config, opts ...crypto.Option) (dev *Device, storageTokens, ephemeralTokens [][]byte, err error) {
	// Device holds no cleartext DEK of its own to leak-check; the strict
	// flag is only meaningful where a ResolvedDEK is minted.
	logger, _ := crypto.ResolveOptions(opts...)
	tr, err := factory()
	if err != nil {
		return nil, nil, nil, err
	}
	gw := newGateway(tr, logger)

	primary, primaryName, err := createPrimary(gw, cfg.PrimaryKeyType)
	if err != nil {
		gw.close()
		return nil, nil, nil, err
	}

	storage, err := CreateStorageKey(gw, primary, primaryName, cfg.StorageKeyType, cfg.PCRHash.alg(), cfg.PCRSelection)
	if err != nil {
		gw.flush(primary)
		gw.close()
		return nil, nil, nil, err
	}

	ephemeral, err := NewEphemeralKey(gw, cfg.EphemeralKeyType)
	if err != nil {
		gw.flush(primary)
		gw.close()
		return nil, nil, nil, err
	}

	dev = &Device{gw: gw, cfg: cfg, primary: primary, primaryName: primaryName, storage: storage, ephemeral: ephemeral}
	return dev, storage.Tokens(), ephemeral.Tokens(), nil
}

// OpenWithTokens reconstitutes a device from a previously-created storage
// KEK's tokens. The primary key is recreated deterministically from cfg
// alone. If ephemeralTokens is non-nil the ephemeral KEK from an earlier
// Open in this same TPM boot cycle is restored; otherwise a fresh one is
// drawn (the usual case: the ephemeral KEK does not survive a TPM reset,
// so there is rarely anything valid to restore across process runs).
func OpenWithTokens(factory DeviceFactory, cfg Config, storageTokens, ephemeralTokens [][]byte, opts ...crypto.Option) (*Device, error) {
	// Device holds no cleartext DEK of its own to leak-check; the strict
	// flag is only meaningful where a ResolvedDEK is minted.
	logger, _ := crypto.ResolveOptions(opts...)
	tr, err := factory()
	if err != nil {
		return nil, err
	}
	gw := newGateway(tr, logger)

	primary, primaryName, err := createPrimary(gw, cfg.PrimaryKeyType)
	if err != nil {
		gw.close()
		return nil, err
	}

	storage, err := LoadStorageKey(gw, primary, primaryName, cfg.StorageKeyType, cfg.PCRHash.alg(), cfg.PCRSelection, storageTokens)
	if err != nil {
		gw.flush(primary)
		gw.close()
		return nil, err
	}

	var ephemeral *EphemeralKey
	if ephemeralTokens != nil {
		ephemeral, err = LoadEphemeralKey(gw, cfg.EphemeralKeyType, ephemeralTokens)
	} else {
		ephemeral, err = NewEphemeralKey(gw, cfg.EphemeralKeyType)
	}
	if err != nil {
		gw.flush(primary)
		gw.close()
		return nil, err
	}

	return &Device{gw: gw, cfg: cfg, primary: primary, primaryName: primaryName, storage: storage, ephemeral: ephemeral}, nil
}

// Close flushes the primary handle and closes the transport. The storage
// and ephemeral keys are only ever loaded transiently inside Wrap/Unwrap,
// so there is nothing else to flush here.
func (d *Device) Close() error {
	ferr := d.gw.flush(d.primary)
	cerr := d.gw.close()
	if ferr != nil {
		return ferr
	}
	return cerr
}

// RandomBytes draws n bytes from the TPM RNG (component C's random-byte
// generation).
func (d *Device) RandomBytes(n int) ([]byte, error) {
	return d.gw.randomBytes(n)
}

// WrapPersistent wraps a 32-byte DEK under the persistent storage KEK.
func (d *Device) WrapPersistent(dek []byte) ([]byte, error) {
	return d.storage.Wrap(dek)
}

// UnwrapPersistent reverses WrapPersistent; it only succeeds if the
// current PCR values satisfy the policy the storage KEK was created
// under.
func (d *Device) UnwrapPersistent(wrapped []byte) ([]byte, error) {
	return d.storage.Unwrap(wrapped)
}

// WrapEphemeral wraps a 32-byte DEK under the process's ephemeral KEK.
func (d *Device) WrapEphemeral(dek []byte) ([]byte, error) {
	return d.ephemeral.Wrap(dek)
}

// UnwrapEphemeral reverses WrapEphemeral.
func (d *Device) UnwrapEphemeral(wrapped []byte) ([]byte, error) {
	return d.ephemeral.Unwrap(wrapped)
}

// EphemeralTokens returns the current ephemeral KEK's token list.
func (d *Device) EphemeralTokens() [][]byte {
	return d.ephemeral.Tokens()
}

// StorageTokens returns the persistent storage KEK's token list — the
// blob's deviceTokens field.
func (d *Device) StorageTokens() [][]byte {
	return d.storage.Tokens()
}
