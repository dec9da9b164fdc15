package occipher

import (
	"crypto/subtle"
	"hash"
)

// SecureZero overwrites b with zeros using a constant-time copy so the
// compiler cannot optimize the write away. Go's garbage collector may
// still leave copies behind; this reduces, but does not eliminate, the
// window key material is recoverable from memory.
func SecureZero(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}

// SecureZeroMultiple zeros each slice in turn.
func SecureZeroMultiple(slices ...[]byte) {
	for _, s := range slices {
		SecureZero(s)
	}
}

// SecureZeroHash resets a hash.Hash so partial state doesn't linger.
func SecureZeroHash(h hash.Hash) {
	if h != nil {
		h.Reset()
	}
}
