package crypto

import "runtime"

// Wipe overwrites b with zero bytes in place. runtime.KeepAlive pins b past
// the loop so the compiler cannot prove the writes are dead and elide them.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
