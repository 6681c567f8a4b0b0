package crypto

import "testing"

func TestDeriveRewrapKeyDeterministic(t *testing.T) {
	k1, salt, err := DeriveRewrapKey([]byte("hunter2"), nil)
	if err != nil {
		t.Fatalf("DeriveRewrapKey: %v", err)
	}
	if len(k1) != GCMKeySize {
		t.Fatalf("want key size %d, got %d", GCMKeySize, len(k1))
	}
	k2, _, err := DeriveRewrapKey([]byte("hunter2"), salt)
	if err != nil {
		t.Fatalf("DeriveRewrapKey: %v", err)
	}
	for i := range k1 {
		if k1[i] != k2[i] {
			t.Fatalf("derived keys differ at byte %d with the same salt", i)
		}
	}
}

func TestDeriveRewrapKeyRejectsEmptyPassphrase(t *testing.T) {
	if _, _, err := DeriveRewrapKey(nil, nil); err == nil {
		t.Error("want error for empty passphrase")
	}
}
