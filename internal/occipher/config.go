// Package occipher provides the cryptographic primitives layer: cipher,
// MAC/digest, and KDF configuration plus their concrete implementations,
// the Encrypt-then-MAC streaming decorator (C1), the key stretcher (C2),
// key confirmation (C3), and the UM1-hybrid ECC key establishment scheme.
//
// This is AUDIT-CRITICAL code - changes here directly affect the
// cryptographic pipeline shared by the manifest cipher and every item.
package occipher

import (
	"fmt"

	"github.com/ocpkg/ocpkg/internal/ocerrors"
)

// CipherKind distinguishes block ciphers (which need an explicit mode and
// padding policy) from stream ciphers (which are used directly as a
// keystream XOR).
type CipherKind string

const (
	CipherKindBlock  CipherKind = "block"
	CipherKindStream CipherKind = "stream"
)

// BlockMode names the chaining mode used by a Block cipher.
type BlockMode string

const (
	ModeCTR BlockMode = "CTR" // no padding required; behaves like a stream cipher
	ModeCBC BlockMode = "CBC" // padding required
)

// PaddingScheme names the padding applied before a block-mode cipher
// operates on a short final chunk.
type PaddingScheme string

const (
	PaddingNone  PaddingScheme = "None"
	PaddingPKCS7 PaddingScheme = "PKCS7"
)

// CipherConfig describes one item's or the manifest's confidentiality
// transform. See spec §3 "CipherConfig".
type CipherConfig struct {
	Kind         CipherKind    `json:"kind"`
	Name         string        `json:"name"`
	KeySizeBits  int           `json:"key_size_bits"`
	IVOrNonce    []byte        `json:"iv_or_nonce"`
	ModeName     BlockMode     `json:"mode_name,omitempty"`
	PaddingName  PaddingScheme `json:"padding_name,omitempty"`
	BlockSizeBits int          `json:"block_size_bits,omitempty"`
}

// Validate checks CipherConfig invariants from spec §3: key size and
// IV/nonce length must be within the named cipher's allowable set, and a
// block cipher whose mode requires padding must not declare PaddingNone.
func (c *CipherConfig) Validate() error {
	desc, ok := cipherRegistry[c.Name]
	if !ok {
		return ocerrors.NewConfigFieldError("cipher.name", fmt.Errorf("unknown cipher %q", c.Name))
	}
	if desc.kind != c.Kind {
		return ocerrors.NewConfigFieldError("cipher.kind", fmt.Errorf("cipher %q is %s, not %s", c.Name, desc.kind, c.Kind))
	}
	if !intInSet(c.KeySizeBits, desc.keySizesBits) {
		return ocerrors.NewConfigFieldError("cipher.key_size_bits", fmt.Errorf("%d not in allowed set %v for %q", c.KeySizeBits, desc.keySizesBits, c.Name))
	}
	if !intInSet(len(c.IVOrNonce)*8, desc.nonceSizesBits) {
		return ocerrors.NewConfigFieldError("cipher.iv_or_nonce", fmt.Errorf("length %d bytes not in allowed set for %q", len(c.IVOrNonce), c.Name))
	}
	if c.Kind == CipherKindBlock {
		if c.ModeName == ModeCBC && c.PaddingName == PaddingNone {
			return ocerrors.NewConfigFieldError("cipher.padding_name", fmt.Errorf("mode %s requires padding", c.ModeName))
		}
	}
	return nil
}

func intInSet(v int, set []int) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

// AuthenticationKind distinguishes a keyed MAC, an unkeyed digest used as a
// MAC over a secret prefix, or a KDF-derived authentication tag.
type AuthenticationKind string

const (
	AuthKindMac    AuthenticationKind = "mac"
	AuthKindDigest AuthenticationKind = "digest"
	AuthKindKdf    AuthenticationKind = "kdf"
)

// AuthenticationConfig describes the MAC used to authenticate an item's or
// the manifest's ciphertext. See spec §3 "AuthenticationConfig".
type AuthenticationConfig struct {
	Kind            AuthenticationKind `json:"kind"`
	Name            string             `json:"name"`
	KeySizeBits     int                `json:"key_size_bits,omitempty"`
	Nonce           []byte             `json:"nonce,omitempty"`
	Salt            []byte             `json:"salt,omitempty"`
	InnerFunctionCfg *InnerFunctionConfig `json:"inner_function_cfg,omitempty"`
}

// InnerFunctionConfig names the hash wrapped by a generic construction such
// as HMAC.
type InnerFunctionConfig struct {
	Name string `json:"name"`
}

// OutputSize returns the MAC/digest output size in bytes, derived from Name
// (and InnerFunctionCfg for HMAC-style constructions), per spec §3.
func (a *AuthenticationConfig) OutputSize() (int, error) {
	desc, ok := authRegistry[a.Name]
	if !ok {
		return 0, ocerrors.NewConfigFieldError("auth.name", fmt.Errorf("unknown authentication function %q", a.Name))
	}
	return desc.outputSize, nil
}

// Validate checks AuthenticationConfig invariants.
func (a *AuthenticationConfig) Validate() error {
	desc, ok := authRegistry[a.Name]
	if !ok {
		return ocerrors.NewConfigFieldError("auth.name", fmt.Errorf("unknown authentication function %q", a.Name))
	}
	if desc.kind != a.Kind {
		return ocerrors.NewConfigFieldError("auth.kind", fmt.Errorf("function %q is %s, not %s", a.Name, desc.kind, a.Kind))
	}
	if desc.needsKey && a.KeySizeBits == 0 {
		return ocerrors.NewConfigFieldError("auth.key_size_bits", fmt.Errorf("%q requires a key size", a.Name))
	}
	return nil
}

// KDFName enumerates the supported key derivation functions for
// low-entropy pre-key stretching (spec §3 "KeyDerivationConfig").
type KDFName string

const (
	KDFScrypt KDFName = "Scrypt"
	KDFPBKDF2 KDFName = "PBKDF2"
)

// ScryptConfig carries scrypt's cost parameters. N is stored as the
// iteration power: actual cost is 2^IterPower (spec §4.2).
type ScryptConfig struct {
	IterPower int `json:"iter_power"`
	R         int `json:"r"`
	P         int `json:"p"`
}

// PBKDF2Config carries PBKDF2's cost parameter and inner hash choice.
type PBKDF2Config struct {
	Iterations    int    `json:"iterations"`
	InnerHashName string `json:"inner_hash_name"`
}

// KeyDerivationConfig describes how a manifest or item pre-key is stretched
// into working key material. See spec §3 and §4.2.
type KeyDerivationConfig struct {
	Name         KDFName       `json:"name"`
	Salt         []byte        `json:"salt"`
	ScryptCfg    *ScryptConfig `json:"scrypt_cfg,omitempty"`
	PBKDF2Cfg    *PBKDF2Config `json:"pbkdf2_cfg,omitempty"`
}

// Validate checks KeyDerivationConfig invariants: scrypt's iteration power
// must fall in [5, 20] (spec §4.2).
func (k *KeyDerivationConfig) Validate() error {
	switch k.Name {
	case KDFScrypt:
		if k.ScryptCfg == nil {
			return ocerrors.NewConfigFieldError("kdf.scrypt_cfg", fmt.Errorf("missing scrypt config"))
		}
		if k.ScryptCfg.IterPower < 5 || k.ScryptCfg.IterPower > 20 {
			return ocerrors.NewConfigFieldError("kdf.scrypt_cfg.iter_power", fmt.Errorf("%d not in [5, 20]", k.ScryptCfg.IterPower))
		}
		if k.ScryptCfg.R <= 0 || k.ScryptCfg.P <= 0 {
			return ocerrors.NewConfigFieldError("kdf.scrypt_cfg", fmt.Errorf("r and p must be positive"))
		}
	case KDFPBKDF2:
		if k.PBKDF2Cfg == nil {
			return ocerrors.NewConfigFieldError("kdf.pbkdf2_cfg", fmt.Errorf("missing pbkdf2 config"))
		}
		if k.PBKDF2Cfg.Iterations <= 0 {
			return ocerrors.NewConfigFieldError("kdf.pbkdf2_cfg.iterations", fmt.Errorf("must be positive"))
		}
		if _, ok := authRegistry[k.PBKDF2Cfg.InnerHashName]; !ok {
			return ocerrors.NewConfigFieldError("kdf.pbkdf2_cfg.inner_hash_name", fmt.Errorf("unknown hash %q", k.PBKDF2Cfg.InnerHashName))
		}
	default:
		return ocerrors.NewConfigFieldError("kdf.name", fmt.Errorf("unknown KDF %q", k.Name))
	}
	return nil
}

// Default scrypt tiers from spec §6 "Variant selection defaults":
// weaker for low-entropy (passphrase) pre-keys needs the stronger tier,
// the opposite of what one might expect at first glance — low-entropy
// input needs MORE stretching work to compensate for its smaller search
// space, so DefaultScryptStrong is selected for passphrases and
// DefaultScryptNormal for raw high-entropy key material.
var (
	DefaultScryptStrong = ScryptConfig{IterPower: 16, R: 16, P: 2}
	DefaultScryptNormal = ScryptConfig{IterPower: 10, R: 8, P: 2}
)
