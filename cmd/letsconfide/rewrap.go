package main

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	letsconfide "github.com/wbibile/LetsConfide"
	"github.com/wbibile/LetsConfide/crypto"
	"github.com/wbibile/LetsConfide/tpm"
)

// rewrapVerifierSuffix names the sibling file holding the PBKDF2 salt and
// derived-key verifier that gates subsequent rewraps of a given config.
const rewrapVerifierSuffix = ".rewrap-verifier"

// runRewrap re-binds the persistent storage DEK to the current PCR policy
// after a platform measurement change, without altering the wrap/unwrap
// protocol itself: every secret is recovered under the existing policy,
// then the file is resealed from scratch under a freshly minted persistent
// and ephemeral DEK.
func runRewrap(args []string) error {
	fs := flag.NewFlagSet("rewrap", flag.ExitOnError)
	path := fs.String("config", "", "path to the sealed secrets YAML file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("rewrap requires -config")
	}

	passphrase, err := readPassphrase()
	if err != nil {
		return err
	}
	defer crypto.Wipe(passphrase)

	if err := gatePassphrase(*path, passphrase); err != nil {
		return err
	}

	ctx := context.Background()
	mgr, err := letsconfide.Parse(ctx, *path, tpm.DefaultDeviceFactory)
	if err != nil {
		return err
	}

	sess, err := mgr.StartDataAccessSession(ctx)
	if err != nil {
		return err
	}

	names := mgr.SecretNames()
	plain := make(map[string]string, len(names))
	for _, n := range names {
		v, err := sess.Decrypt(n)
		if err != nil {
			sess.Close()
			return err
		}
		plain[n] = v
	}
	sess.Close()

	if err := mgr.Reseal(ctx, plain); err != nil {
		return err
	}
	fmt.Println("rewrap complete")
	return nil
}

func readPassphrase() ([]byte, error) {
	fmt.Fprint(os.Stderr, "rewrap passphrase: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// gatePassphrase requires the operator to reproduce the passphrase set on
// the first rewrap of path, stored as a PBKDF2 salt/verifier pair
// alongside the sealed file. It never persists the passphrase itself.
func gatePassphrase(path string, passphrase []byte) error {
	verifierPath := path + rewrapVerifierSuffix

	existing, err := os.ReadFile(verifierPath)
	if errors.Is(err, os.ErrNotExist) {
		key, salt, err := crypto.DeriveRewrapKey(passphrase, nil)
		if err != nil {
			return err
		}
		defer crypto.Wipe(key)
		contents := hex.EncodeToString(salt) + ":" + hex.EncodeToString(key)
		return os.WriteFile(verifierPath, []byte(contents), 0o600)
	}
	if err != nil {
		return err
	}

	salt, verifier, err := splitVerifier(existing)
	if err != nil {
		return err
	}
	key, _, err := crypto.DeriveRewrapKey(passphrase, salt)
	if err != nil {
		return err
	}
	defer crypto.Wipe(key)
	if subtle.ConstantTimeCompare(key, verifier) != 1 {
		return fmt.Errorf("rewrap: passphrase does not match")
	}
	return nil
}

func splitVerifier(b []byte) (salt, verifier []byte, err error) {
	parts := strings.SplitN(string(b), ":", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("rewrap: malformed verifier file")
	}
	if salt, err = hex.DecodeString(parts[0]); err != nil {
		return nil, nil, err
	}
	if verifier, err = hex.DecodeString(parts[1]); err != nil {
		return nil, nil, err
	}
	return salt, verifier, nil
}
