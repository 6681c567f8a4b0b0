package tpm

import (
	"bytes"
	"testing"
)

func TestDeviceOpenAndWrapPersistent(t *testing.T) {
	cfg := testConfig(AES128, AES256, AES128)
	dev, storageTokens, _, err := Open(testFactory, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(storageTokens) != 2 {
		t.Fatalf("want 2 storage tokens, got %d", len(storageTokens))
	}

	dek, err := dev.RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	wrapped, err := dev.WrapPersistent(dek)
	if err != nil {
		t.Fatalf("WrapPersistent: %v", err)
	}
	got, err := dev.UnwrapPersistent(wrapped)
	if err != nil {
		t.Fatalf("UnwrapPersistent: %v", err)
	}
	if !bytes.Equal(got, dek) {
		t.Errorf("got %x, want %x", got, dek)
	}
}

func TestDeviceOpenWithTokensReconstitutes(t *testing.T) {
	cfg := testConfig(RSA2048, RSA2048, RSA2048)
	dev, storageTokens, _, err := Open(testFactory, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	dek, err := dev.RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	wrapped, err := dev.WrapPersistent(dek)
	if err != nil {
		t.Fatalf("WrapPersistent: %v", err)
	}

	reopened, err := OpenWithTokens(testFactory, cfg, storageTokens, nil)
	if err != nil {
		t.Fatalf("OpenWithTokens: %v", err)
	}
	got, err := reopened.UnwrapPersistent(wrapped)
	if err != nil {
		t.Fatalf("UnwrapPersistent on reopened device: %v", err)
	}
	if !bytes.Equal(got, dek) {
		t.Errorf("got %x, want %x", got, dek)
	}
}

func TestDeviceEphemeralWrapUnwrap(t *testing.T) {
	cfg := testConfig(AES256, AES256, AES256)
	dev, _, _, err := Open(testFactory, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	dek, err := dev.RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	wrapped, err := dev.WrapEphemeral(dek)
	if err != nil {
		t.Fatalf("WrapEphemeral: %v", err)
	}
	got, err := dev.UnwrapEphemeral(wrapped)
	if err != nil {
		t.Fatalf("UnwrapEphemeral: %v", err)
	}
	if !bytes.Equal(got, dek) {
		t.Errorf("got %x, want %x", got, dek)
	}
}
