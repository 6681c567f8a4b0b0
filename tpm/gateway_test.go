package tpm

import (
	"testing"

	"github.com/wbibile/LetsConfide/crypto"
)

func newTestGateway(t *testing.T) *gateway {
	t.Helper()
	tr, err := testFactory()
	if err != nil {
		t.Fatalf("testFactory: %v", err)
	}
	return newGateway(tr, crypto.StdLogger())
}

func TestGatewayRandomBytesLength(t *testing.T) {
	gw := newTestGateway(t)
	for _, n := range []int{1, 16, 32, 48, 49, 100} {
		got, err := gw.randomBytes(n)
		if err != nil {
			t.Fatalf("randomBytes(%d): %v", n, err)
		}
		if len(got) != n {
			t.Errorf("randomBytes(%d): got %d bytes", n, len(got))
		}
	}
}

func TestGatewayRandomBytesVary(t *testing.T) {
	gw := newTestGateway(t)
	a, err := gw.randomBytes(32)
	if err != nil {
		t.Fatalf("randomBytes: %v", err)
	}
	b, err := gw.randomBytes(32)
	if err != nil {
		t.Fatalf("randomBytes: %v", err)
	}
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("two successive draws produced identical bytes")
	}
}
