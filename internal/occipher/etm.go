package occipher

import (
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"hash"

	"github.com/ocpkg/ocpkg/internal/ocerrors"
)

// EtM is the streaming Encrypt-then-MAC decorator shared by the manifest
// cipher and every item pipeline. In encrypt mode, plaintext flows through
// the inner cipher to produce ciphertext, which is then absorbed by the
// outer MAC. In decrypt mode, ciphertext is absorbed by the MAC first,
// then passed through the inner cipher to recover plaintext. This order
// is load-bearing and must never be swapped.
//
// Block ciphers in CTR mode are treated identically to stream ciphers
// (both implement cipher.Stream via occipher.NewStream). CBC mode buffers
// internally since its padding can only be resolved once the caller
// signals end-of-data via Finalize.
type EtM struct {
	stream    cipher.Stream
	cbc       cipher.BlockMode
	blockSize int
	pending   []byte // CBC only: plaintext awaiting a full block (encrypt) or ciphertext held back a block (decrypt)

	mac hash.Hash

	bytesIn   uint64
	bytesOut  uint64
	finalized bool
}

// NewEncryptor builds an EtM in encrypt mode for cfg/authCfg with the given
// working keys (from the key stretcher, C2).
func NewEncryptor(cfg *CipherConfig, authCfg *AuthenticationConfig, cipherKey, macKey []byte) (*EtM, error) {
	return newEtM(cfg, authCfg, cipherKey, macKey, true)
}

// NewDecryptor builds an EtM in decrypt mode.
func NewDecryptor(cfg *CipherConfig, authCfg *AuthenticationConfig, cipherKey, macKey []byte) (*EtM, error) {
	return newEtM(cfg, authCfg, cipherKey, macKey, false)
}

func newEtM(cfg *CipherConfig, authCfg *AuthenticationConfig, cipherKey, macKey []byte, encrypting bool) (*EtM, error) {
	mac, err := NewMAC(authCfg, macKey)
	if err != nil {
		return nil, ocerrors.NewCryptoError("etm-init", err)
	}

	e := &EtM{mac: mac}

	if cfg.Kind == CipherKindBlock && cfg.ModeName == ModeCBC {
		block, err := NewBlock(cfg, cipherKey)
		if err != nil {
			return nil, ocerrors.NewCryptoError("etm-init", err)
		}
		e.blockSize = block.BlockSize()
		if encrypting {
			e.cbc = cipher.NewCBCEncrypter(block, cfg.IVOrNonce)
		} else {
			e.cbc = cipher.NewCBCDecrypter(block, cfg.IVOrNonce)
		}
		return e, nil
	}

	stream, err := NewStream(cfg, cipherKey)
	if err != nil {
		return nil, ocerrors.NewCryptoError("etm-init", err)
	}
	e.stream = stream
	return e, nil
}

func (e *EtM) BytesIn() uint64  { return e.bytesIn }
func (e *EtM) BytesOut() uint64 { return e.bytesOut }

// AbsorbExtra feeds data directly into the MAC without passing it through
// the cipher and without counting it toward BytesOut. Used by the payload
// multiplexer's Frameshift variant, whose random padding brackets are
// authenticated but never encrypted (spec §4.4: "the header and the
// trailer padding bytes ARE fed into the item's MAC").
func (e *EtM) AbsorbExtra(data []byte) {
	e.mac.Write(data)
}

// Encrypt transforms a chunk of plaintext into ciphertext, feeding the
// produced ciphertext into the MAC. For stream/CTR ciphers the returned
// ciphertext is exactly len(plaintext) bytes; for CBC it is the largest
// whole-block multiple available, with any remainder buffered until the
// next call or Finalize.
func (e *EtM) Encrypt(plaintext []byte) ([]byte, error) {
	if e.finalized {
		return nil, ocerrors.NewCryptoError("etm-encrypt", errAlreadyFinalized)
	}
	e.bytesIn += uint64(len(plaintext))

	if e.stream != nil {
		ct := make([]byte, len(plaintext))
		e.stream.XORKeyStream(ct, plaintext)
		e.absorb(ct)
		return ct, nil
	}

	e.pending = append(e.pending, plaintext...)
	n := (len(e.pending) / e.blockSize) * e.blockSize
	if n == 0 {
		return nil, nil
	}
	ct := make([]byte, n)
	e.cbc.CryptBlocks(ct, e.pending[:n])
	e.pending = append(e.pending[:0], e.pending[n:]...)
	e.absorb(ct)
	return ct, nil
}

// Decrypt transforms a chunk of ciphertext into plaintext. The MAC absorbs
// ciphertext as it arrives, before decryption, matching the verify-before-
// decrypt ordering. For CBC, the final full block is always withheld
// (plaintext for it is only known to be correctly-unpadded at Finalize).
func (e *EtM) Decrypt(ciphertext []byte) ([]byte, error) {
	if e.finalized {
		return nil, ocerrors.NewCryptoError("etm-decrypt", errAlreadyFinalized)
	}
	e.absorb(ciphertext)

	if e.stream != nil {
		e.bytesIn += uint64(len(ciphertext))
		pt := make([]byte, len(ciphertext))
		e.stream.XORKeyStream(pt, ciphertext)
		return pt, nil
	}

	e.bytesIn += uint64(len(ciphertext))
	e.pending = append(e.pending, ciphertext...)
	// Keep at least one full block buffered: it may be the final block,
	// whose padding can only be stripped once Finalize confirms there is
	// no more data.
	keep := e.blockSize
	if len(e.pending) <= keep {
		return nil, nil
	}
	n := ((len(e.pending) - keep) / e.blockSize) * e.blockSize
	if n == 0 {
		return nil, nil
	}
	pt := make([]byte, n)
	e.cbc.CryptBlocks(pt, e.pending[:n])
	e.pending = append(e.pending[:0], e.pending[n:]...)
	return pt, nil
}

func (e *EtM) absorb(ciphertext []byte) {
	e.bytesOut += uint64(len(ciphertext))
	e.mac.Write(ciphertext)
}

// FinalizeEncrypt pads and encrypts any buffered plaintext (CBC only),
// then writes the fixed trailer (ciphertext length prefix, then meta) into
// the MAC and returns the final ciphertext chunk plus the MAC tag.
func (e *EtM) FinalizeEncrypt(meta []byte) (finalCiphertext, tag []byte, err error) {
	if e.finalized {
		return nil, nil, ocerrors.NewCryptoError("etm-finalize", errAlreadyFinalized)
	}
	e.finalized = true

	if e.cbc != nil {
		padded := pkcs7Pad(e.pending, e.blockSize)
		finalCiphertext = make([]byte, len(padded))
		e.cbc.CryptBlocks(finalCiphertext, padded)
		e.absorb(finalCiphertext)
	}

	e.writeTrailer(meta)
	return finalCiphertext, e.mac.Sum(nil), nil
}

// FinalizeDecrypt decrypts and unpads the withheld final block (CBC only),
// then verifies the MAC tag in constant time.
func (e *EtM) FinalizeDecrypt(meta, expectedTag []byte) (finalPlaintext []byte, err error) {
	if e.finalized {
		return nil, ocerrors.NewCryptoError("etm-finalize", errAlreadyFinalized)
	}
	e.finalized = true

	if e.cbc != nil {
		if len(e.pending) != e.blockSize {
			return nil, ocerrors.NewCryptoError("etm-finalize", errTruncatedCiphertext)
		}
		padded := make([]byte, e.blockSize)
		e.cbc.CryptBlocks(padded, e.pending)
		unpadded, err := pkcs7Unpad(padded, e.blockSize)
		if err != nil {
			return nil, ocerrors.NewCryptoError("etm-finalize", err)
		}
		finalPlaintext = unpadded
	}

	e.writeTrailer(meta)
	tag := e.mac.Sum(nil)
	if subtle.ConstantTimeCompare(tag, expectedTag) != 1 {
		return nil, ocerrors.ErrAuth
	}
	return finalPlaintext, nil
}

func (e *EtM) writeTrailer(meta []byte) {
	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(e.bytesOut))
	e.mac.Write(lenPrefix[:])
	e.mac.Write(meta)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errBadPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, errBadPadding
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errBadPadding
		}
	}
	return data[:len(data)-padLen], nil
}
