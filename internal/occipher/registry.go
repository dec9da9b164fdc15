package occipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/Picocrypt/serpent"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/sha3"
)

// cipherDescriptor records the allowable parameter sets for a named cipher
// and how to construct a keystream from a key and nonce/IV. Block ciphers
// are exposed as a cipher.Stream too: CTR mode needs no padding and is
// handled uniformly with stream ciphers by the EtM decorator (occipher's
// CBC path wraps the same block constructor with PKCS7 padding instead).
type cipherDescriptor struct {
	kind           CipherKind
	keySizesBits   []int
	nonceSizesBits []int
	blockSizeBits  int // 0 for stream ciphers
	newBlock       func(key []byte) (cipher.Block, error)
	newStream      func(key, nonce []byte) (cipher.Stream, error)
}

var cipherRegistry = map[string]cipherDescriptor{
	"AES": {
		kind:           CipherKindBlock,
		keySizesBits:   []int{128, 192, 256},
		nonceSizesBits: []int{128},
		blockSizeBits:  128,
		newBlock: func(key []byte) (cipher.Block, error) {
			return aes.NewCipher(key)
		},
	},
	"Serpent": {
		kind:           CipherKindBlock,
		keySizesBits:   []int{128, 192, 256},
		nonceSizesBits: []int{128},
		blockSizeBits:  128,
		newBlock: func(key []byte) (cipher.Block, error) {
			return serpent.NewCipher(key)
		},
	},
	"ChaCha20": {
		kind:           CipherKindStream,
		keySizesBits:   []int{256},
		nonceSizesBits: []int{96},
		newStream: func(key, nonce []byte) (cipher.Stream, error) {
			return chacha20.NewUnauthenticatedCipher(key, nonce)
		},
	},
	"XChaCha20": {
		kind:           CipherKindStream,
		keySizesBits:   []int{256},
		nonceSizesBits: []int{192},
		newStream: func(key, nonce []byte) (cipher.Stream, error) {
			return chacha20.NewUnauthenticatedCipher(key, nonce)
		},
	},
}

// NewStream returns the cipher.Stream for cfg, constructing a CTR-mode
// stream around a block cipher when cfg.Kind is Block. PKCS7-padded CBC is
// handled separately by the EtM decorator's block path, not through this
// keystream accessor.
func NewStream(cfg *CipherConfig, key []byte) (cipher.Stream, error) {
	desc, ok := cipherRegistry[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("occipher: unknown cipher %q", cfg.Name)
	}
	switch desc.kind {
	case CipherKindStream:
		return desc.newStream(key, cfg.IVOrNonce)
	case CipherKindBlock:
		block, err := desc.newBlock(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewCTR(block, cfg.IVOrNonce), nil
	default:
		return nil, fmt.Errorf("occipher: cipher %q has no recognized kind", cfg.Name)
	}
}

// NewBlock returns the underlying block cipher for cfg, for callers (the
// CBC+PKCS7 path) that need direct block access rather than a keystream.
func NewBlock(cfg *CipherConfig, key []byte) (cipher.Block, error) {
	desc, ok := cipherRegistry[cfg.Name]
	if !ok || desc.newBlock == nil {
		return nil, fmt.Errorf("occipher: %q is not a block cipher", cfg.Name)
	}
	return desc.newBlock(key)
}

// authDescriptor records how to construct a keyed MAC or unkeyed digest.
type authDescriptor struct {
	kind       AuthenticationKind
	needsKey   bool
	outputSize int
	newKeyed   func(key []byte) (hash.Hash, error)
	newUnkeyed func() hash.Hash
}

var authRegistry = map[string]authDescriptor{
	"Keyed-BLAKE2b-512": {
		kind:       AuthKindMac,
		needsKey:   true,
		outputSize: 64,
		newKeyed:   func(key []byte) (hash.Hash, error) { return blake2b.New512(key) },
	},
	"HMAC-SHA3-512": {
		kind:       AuthKindMac,
		needsKey:   true,
		outputSize: 64,
		newKeyed:   func(key []byte) (hash.Hash, error) { return hmac.New(sha3.New512, key), nil },
	},
	"HMAC-SHA256": {
		kind:       AuthKindMac,
		needsKey:   true,
		outputSize: 32,
		newKeyed:   func(key []byte) (hash.Hash, error) { return hmac.New(sha256.New, key), nil },
	},
	"Keccak-256": {
		kind:       AuthKindDigest,
		needsKey:   false,
		outputSize: 32,
		newUnkeyed: sha3.NewLegacyKeccak256,
	},
	"Poly1305": {
		kind:       AuthKindMac,
		needsKey:   true,
		outputSize: 16,
		newKeyed:   newPoly1305Hash,
	},
	"Keccak-512": {
		kind:       AuthKindDigest,
		needsKey:   false,
		outputSize: 64,
		newUnkeyed: sha3.NewLegacyKeccak512,
	},
}

// hashFuncRegistry names the plain (non-MAC) hash constructors available to
// PBKDF2's inner_hash_name field.
var hashFuncRegistry = map[string]func() hash.Hash{
	"SHA-256":    sha256.New,
	"SHA3-256":   sha3.New256,
	"SHA3-512":   sha3.New512,
}

// NewHashFunc resolves a PBKDF2 inner hash name to its constructor.
func NewHashFunc(name string) (func() hash.Hash, error) {
	fn, ok := hashFuncRegistry[name]
	if !ok {
		return nil, fmt.Errorf("occipher: unknown hash function %q", name)
	}
	return fn, nil
}

// NewMAC constructs the keyed hash.Hash for cfg. Unkeyed digests (used as a
// MAC over a secret prefix per spec §4.1) are constructed with NewDigest
// instead.
func NewMAC(cfg *AuthenticationConfig, key []byte) (hash.Hash, error) {
	desc, ok := authRegistry[cfg.Name]
	if !ok || desc.newKeyed == nil {
		return nil, fmt.Errorf("occipher: %q is not a keyed MAC", cfg.Name)
	}
	return desc.newKeyed(key)
}

// NewDigest constructs the unkeyed hash.Hash for cfg.
func NewDigest(cfg *AuthenticationConfig) (hash.Hash, error) {
	desc, ok := authRegistry[cfg.Name]
	if !ok || desc.newUnkeyed == nil {
		return nil, fmt.Errorf("occipher: %q is not an unkeyed digest", cfg.Name)
	}
	return desc.newUnkeyed(), nil
}
