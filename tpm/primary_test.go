package tpm

import "testing"

func TestCreatePrimaryAES(t *testing.T) {
	gw := newTestGateway(t)
	handle, name, err := createPrimary(gw, AES128)
	if err != nil {
		t.Fatalf("createPrimary: %v", err)
	}
	defer gw.flush(handle)
	if len(name.Buffer) == 0 {
		t.Error("want a non-empty primary name")
	}
}

func TestCreatePrimaryRSA(t *testing.T) {
	gw := newTestGateway(t)
	handle, name, err := createPrimary(gw, RSA2048)
	if err != nil {
		t.Fatalf("createPrimary: %v", err)
	}
	defer gw.flush(handle)
	if len(name.Buffer) == 0 {
		t.Error("want a non-empty primary name")
	}
}

func TestCreatePrimaryRejectsUnsupportedKeyType(t *testing.T) {
	gw := newTestGateway(t)
	if _, _, err := createPrimary(gw, KeyType(99)); err != ErrUnsupportedKeyType {
		t.Errorf("want ErrUnsupportedKeyType, got %v", err)
	}
}
