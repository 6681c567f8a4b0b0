package letsconfide

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/wbibile/LetsConfide/crypto"
	"github.com/wbibile/LetsConfide/sizedbytes"
	"github.com/wbibile/LetsConfide/tpm"
)

// maxConfigSize bounds how much of a candidate config file Parse will read,
// guarding against an oversized or malformed input (§6, ErrConfigTooLarge).
const maxConfigSize = 256 * 1024

// Manager holds one sealed secrets file: the persisted headers and
// encrypted blob, plus the in-memory state needed to start decrypt
// sessions without decrypting the persisted cipherData again each time.
type Manager struct {
	path    string
	factory tpm.DeviceFactory
	headers ConfigHeaders
	opts    []crypto.Option

	mu              sync.Mutex
	blob            EncryptedBlob
	ephemeral       *HostDEK
	ephemeralTokens [][]byte
	cipher          map[string][]byte // name -> GCM ciphertext of its PKCS#7-padded value, under ephemeral
}

// Parse opens path. A plaintext config (a "data" section) is sealed in
// place on first use; a sealed config (an "encryptedData" section) is
// reopened and re-bound to the TPM. opts configures the Logger and
// strict-wipe behavior used by the device layer and the resolved DEKs;
// absent opts, StdLogger() and a non-strict wipe policy are used.
func Parse(ctx context.Context, path string, factory tpm.DeviceFactory, opts ...crypto.Option) (*Manager, error) {
	raw, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	pc, err := parseConfigDocument(raw)
	if err != nil {
		return nil, err
	}

	if pc.blob != nil {
		return reopen(path, factory, pc.headers, *pc.blob, opts...)
	}
	return ingest(path, factory, pc.headers, pc.entries, opts...)
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > maxConfigSize {
		return nil, ErrConfigTooLarge
	}
	buf := make([]byte, info.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ingest implements the first-run path (§4.H): a fresh persistent DEK P
// and ephemeral DEK E are minted, every entry is padded and encrypted
// under both, and the sealed document replaces path on disk.
func ingest(path string, factory tpm.DeviceFactory, headers ConfigHeaders, entries []configEntry, opts ...crypto.Option) (*Manager, error) {
	dev, storageTokens, _, err := tpm.Open(factory, headers.deviceConfig(), opts...)
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	ephemeral, err := generateHostDEK(dev, true, nil)
	if err != nil {
		return nil, err
	}
	eph, err := ephemeral.resolve(dev, opts...)
	if err != nil {
		return nil, err
	}
	defer eph.Close()

	persistent, err := generateHostDEK(dev, false, nil)
	if err != nil {
		return nil, err
	}
	per, err := persistent.resolve(dev, opts...)
	if err != nil {
		return nil, err
	}
	defer per.Close()

	cipher := make(map[string][]byte, len(entries))
	parts := make([][]byte, 0, len(entries)*2)
	for _, e := range entries {
		paddedName := crypto.Pad([]byte(e.Name), 32)
		paddedValue := crypto.Pad([]byte(e.Value), 32)
		ct, err := eph.Encrypt(paddedValue)
		if err != nil {
			return nil, err
		}
		cipher[e.Name] = ct
		parts = append(parts, paddedName, paddedValue)
	}

	list, err := sizedbytes.Encode(parts...)
	if err != nil {
		return nil, err
	}
	cipherData, err := per.Encrypt(list)
	if err != nil {
		return nil, err
	}

	blob := EncryptedBlob{
		Seed:         persistent.Seed(),
		EncryptedKey: persistent.Wrapped(),
		CipherData:   cipherData,
		DeviceTokens: storageTokens,
	}

	out, err := marshalSealed(headers, &blob)
	if err != nil {
		return nil, err
	}
	if _, err := backupAndReplace(path, out); err != nil {
		return nil, err
	}

	return &Manager{
		path:            path,
		factory:         factory,
		headers:         headers,
		opts:            opts,
		blob:            blob,
		ephemeral:       ephemeral,
		ephemeralTokens: dev.EphemeralTokens(),
		cipher:          cipher,
	}, nil
}

// reopen implements the already-sealed path (§4.H): the persistent DEK P
// is reconstituted from the stored seed and wrapped key, the key/value
// list is decrypted and split, and a brand-new ephemeral DEK E is minted
// to re-encrypt every value for this process's lifetime.
func reopen(path string, factory tpm.DeviceFactory, headers ConfigHeaders, blob EncryptedBlob, opts ...crypto.Option) (*Manager, error) {
	dev, err := tpm.OpenWithTokens(factory, headers.deviceConfig(), blob.DeviceTokens, nil, opts...)
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	persistent, err := newHostDEKFromSeed(false, blob.EncryptedKey, blob.Seed)
	if err != nil {
		return nil, err
	}
	per, err := persistent.resolve(dev, opts...)
	if err != nil {
		return nil, err
	}
	defer per.Close()

	list, err := per.Decrypt(blob.CipherData)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(list)

	parts, err := sizedbytes.Decode(list)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSizedByteArray, err)
	}
	if len(parts)%2 != 0 {
		return nil, ErrOddKeyValueList
	}

	ephemeral, err := generateHostDEK(dev, true, nil)
	if err != nil {
		return nil, err
	}
	eph, err := ephemeral.resolve(dev, opts...)
	if err != nil {
		return nil, err
	}
	defer eph.Close()

	cipher := make(map[string][]byte, len(parts)/2)
	for i := 0; i+1 < len(parts); i += 2 {
		name, err := crypto.Unpad(parts[i], 32)
		if err != nil {
			return nil, err
		}
		ct, err := eph.Encrypt(parts[i+1])
		if err != nil {
			return nil, err
		}
		cipher[string(name)] = ct
	}

	return &Manager{
		path:            path,
		factory:         factory,
		headers:         headers,
		opts:            opts,
		blob:            blob,
		ephemeral:       ephemeral,
		ephemeralTokens: dev.EphemeralTokens(),
		cipher:          cipher,
	}, nil
}

// Headers returns the sealed file's header record.
func (m *Manager) Headers() ConfigHeaders {
	return m.headers
}

// SecretNames returns the names currently held by the manager, in no
// particular order.
func (m *Manager) SecretNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.cipher))
	for n := range m.cipher {
		names = append(names, n)
	}
	return names
}

// Reseal re-runs the ingest path against plain, replacing the sealed file
// on disk and the manager's in-memory state with a freshly wrapped
// persistent DEK, ephemeral DEK, and storage key hierarchy — used by the
// `rewrap` maintenance path after a platform measurement change.
func (m *Manager) Reseal(ctx context.Context, plain map[string]string) error {
	entries := make([]configEntry, 0, len(plain))
	for k, v := range plain {
		entries = append(entries, configEntry{Name: k, Value: v})
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fresh, err := ingest(m.path, m.factory, m.headers, entries, m.opts...)
	if err != nil {
		return err
	}
	m.blob = fresh.blob
	m.ephemeral = fresh.ephemeral
	m.ephemeralTokens = fresh.ephemeralTokens
	m.cipher = fresh.cipher
	return nil
}

// EncryptedData returns the sealed file's persisted blob.
func (m *Manager) EncryptedData() EncryptedBlob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blob
}

// StartDataAccessSession opens a fresh device bound to this manager's
// persisted storage key and reconstituted ephemeral key, resolves the
// ephemeral DEK, and closes the device again — the returned Session holds
// only the resolved cleartext key for its lifetime, never a live device.
func (m *Manager) StartDataAccessSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, err := tpm.OpenWithTokens(m.factory, m.headers.deviceConfig(), m.blob.DeviceTokens, m.ephemeralTokens, m.opts...)
	if err != nil {
		return nil, err
	}
	resolved, resolveErr := m.ephemeral.resolve(dev, m.opts...)
	closeErr := dev.Close()
	if resolveErr != nil {
		return nil, resolveErr
	}
	if closeErr != nil {
		resolved.Close()
		return nil, closeErr
	}
	return &Session{manager: m, resolved: resolved}, nil
}
