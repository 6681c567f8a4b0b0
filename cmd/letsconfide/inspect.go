package main

import (
	"context"
	"flag"
	"fmt"

	letsconfide "github.com/wbibile/LetsConfide"
	"github.com/wbibile/LetsConfide/tpm"
)

// runInspect prints ConfigHeaders and blob field lengths for operational
// debugging. It never prints plaintext or key bytes.
func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	path := fs.String("config", "", "path to the secrets YAML file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("inspect requires -config")
	}

	ctx := context.Background()
	mgr, err := letsconfide.Parse(ctx, *path, tpm.DefaultDeviceFactory)
	if err != nil {
		return err
	}

	h := mgr.Headers()
	blob := mgr.EncryptedData()

	fmt.Printf("primaryKeyType:   %s\n", h.PrimaryKeyType)
	fmt.Printf("storageKeyType:   %s\n", h.StorageKeyType)
	fmt.Printf("ephemeralKeyType: %s\n", h.EphemeralKeyType)
	fmt.Printf("pcrSelection:     0x%X\n", h.PCRSelection)
	fmt.Printf("pcrHash:          %s\n", h.PCRHash)
	fmt.Printf("seed:             %d bytes\n", len(blob.Seed))
	fmt.Printf("encryptedKey:     %d bytes\n", len(blob.EncryptedKey))
	fmt.Printf("cipherData:       %d bytes\n", len(blob.CipherData))
	fmt.Printf("deviceTokens:     %d blobs\n", len(blob.DeviceTokens))
	fmt.Printf("secrets:          %d\n", len(mgr.SecretNames()))
	return nil
}
