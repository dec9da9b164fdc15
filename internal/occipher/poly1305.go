package occipher

import (
	"bytes"
	"hash"

	"golang.org/x/crypto/poly1305"
)

// poly1305Hash adapts golang.org/x/crypto/poly1305's one-shot Sum (it has
// no incremental API, unlike restic's poly1305_sign which the MAC
// construction here is grounded on) into the streaming hash.Hash shape
// the rest of occipher's MAC machinery expects. Message bytes are
// buffered in memory until Sum is called — acceptable since EtM only ever
// calls Sum once, at finalize.
type poly1305Hash struct {
	key [32]byte
	buf bytes.Buffer
}

func newPoly1305Hash(key []byte) (hash.Hash, error) {
	if len(key) != 32 {
		return nil, errPoly1305KeySize
	}
	h := &poly1305Hash{}
	copy(h.key[:], key)
	return h, nil
}

func (h *poly1305Hash) Write(p []byte) (int, error) { return h.buf.Write(p) }

func (h *poly1305Hash) Sum(b []byte) []byte {
	var out [16]byte
	poly1305.Sum(&out, h.buf.Bytes(), &h.key)
	return append(b, out[:]...)
}

func (h *poly1305Hash) Reset()      { h.buf.Reset() }
func (h *poly1305Hash) Size() int      { return poly1305.TagSize }
func (h *poly1305Hash) BlockSize() int { return 16 }
