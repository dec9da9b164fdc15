package ocrand

import (
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"
)

// PRNGConfig names and seeds the multiplexer's scheduling PRNG. The same
// config on writer and reader must produce the same selection sequence
// (spec §4.4: "the same PRNG state must produce the same selection
// sequence on writer and reader").
type PRNGConfig struct {
	Name  string `json:"name"` // "XChaCha20-CSPRNG"
	Key   []byte `json:"key"`
	Nonce []byte `json:"nonce"`
}

// Scheduler is a deterministic byte-stream source used for item selection
// and Frameshift/Fabric length sampling. It is keyed, not seeded from an
// EntropySource, so that a writer and a reader holding the same key/nonce
// derive an identical sequence.
type Scheduler struct {
	stream io.Reader
}

// NewScheduler builds a Scheduler from cfg. The underlying keystream is
// XChaCha20 keyed from cfg.Key/cfg.Nonce (drawn fresh from entropy by the
// writer and carried in the encrypted manifest) — the same cipher
// family already used for the manifest and, commonly, item ciphertext,
// so the multiplexer doesn't introduce a second cryptographic primitive
// purely for scheduling.
func NewScheduler(cfg *PRNGConfig) (*Scheduler, error) {
	if cfg.Name != "XChaCha20-CSPRNG" {
		return nil, fmt.Errorf("ocrand: unknown prng %q", cfg.Name)
	}
	c, err := chacha20.NewUnauthenticatedCipher(cfg.Key, cfg.Nonce)
	if err != nil {
		return nil, fmt.Errorf("ocrand: prng init: %w", err)
	}
	return &Scheduler{stream: &keystreamReader{cipher: c}}, nil
}

// keystreamReader adapts a cipher.Stream (which only XORs) into an
// io.Reader that emits raw keystream bytes by XORing against zeros.
type keystreamReader struct {
	cipher interface{ XORKeyStream(dst, src []byte) }
}

func (k *keystreamReader) Read(p []byte) (int, error) {
	zero := make([]byte, len(p))
	k.cipher.XORKeyStream(p, zero)
	return len(p), nil
}

// nextUint32 reads 4 keystream bytes as a big-endian uint32.
func (s *Scheduler) nextUint32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(s.stream, buf[:]); err != nil {
		return 0, fmt.Errorf("ocrand: keystream read: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// NextInRange returns a value uniform in [min, max) via rejection
// sampling, so the distribution isn't skewed by a modulo bias.
func (s *Scheduler) NextInRange(min, max int) (int, error) {
	if max <= min {
		return 0, fmt.Errorf("ocrand: empty range [%d, %d)", min, max)
	}
	span := uint32(max - min)
	limit := (1 << 32) - ((1 << 32) % uint64(span))
	for {
		v, err := s.nextUint32()
		if err != nil {
			return 0, err
		}
		if uint64(v) < limit {
			return min + int(uint64(v)%uint64(span)), nil
		}
	}
}

// NextItemIndex picks an item uniform in [0, len(active)), skipping
// entries already Closed, bounded by the number of entries still active
// per spec §4.4 ("items whose pipeline has completed are skipped; look
// again, bounded by remaining active count"). If every bounded attempt
// lands on a closed entry, it falls back to a uniform pick among the
// active entries, so it fails only when no entry is active.
func (s *Scheduler) NextItemIndex(active []bool) (int, error) {
	remaining := 0
	for _, a := range active {
		if a {
			remaining++
		}
	}
	if remaining == 0 {
		return -1, fmt.Errorf("ocrand: no active items to select")
	}
	for attempt := 0; attempt < len(active)+remaining; attempt++ {
		idx, err := s.NextInRange(0, len(active))
		if err != nil {
			return -1, err
		}
		if active[idx] {
			return idx, nil
		}
	}
	nth, err := s.NextInRange(0, remaining)
	if err != nil {
		return -1, err
	}
	for i, a := range active {
		if !a {
			continue
		}
		if nth == 0 {
			return i, nil
		}
		nth--
	}
	return -1, fmt.Errorf("ocrand: could not select an active item")
}
