package letsconfide

import (
	"sync"

	"github.com/wbibile/LetsConfide/crypto"
)

// Session is a bounded window for decrypting secrets from a Manager
// without re-touching the TPM per lookup. Close must run on every exit
// path; a closed Session rejects further decrypts.
type Session struct {
	mu       sync.Mutex
	manager  *Manager
	resolved *ResolvedDEK
	closed   bool
}

// Decrypt returns the cleartext value for name. An unknown name fails
// with exactly ErrKeyNotFound, never revealing which name was looked up
// or how many names exist.
func (s *Session) Decrypt(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}

	s.manager.mu.Lock()
	ct, ok := s.manager.cipher[name]
	s.manager.mu.Unlock()
	if !ok {
		return "", ErrKeyNotFound
	}

	padded, err := s.resolved.Decrypt(ct)
	if err != nil {
		return "", ErrDecryptFailed
	}
	defer crypto.Wipe(padded)

	value, err := crypto.Unpad(padded, 32)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(value), nil
}

// Close zeroes the session's resolved key. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.resolved.Close()
	return nil
}
