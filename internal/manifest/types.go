// Package manifest holds the container's data model: the manifest header,
// the per-item catalogue, the payload multiplexer's configuration, and
// their versioned JSON wire framing. Keys are deliberately serialised
// inline (PayloadItem.CipherKey/AuthenticationKey, confirmation tags) —
// this is safe because the manifest as a whole is only ever written out
// after C5 has encrypted it; nothing in this package writes plaintext
// JSON to an external sink.
package manifest

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ocpkg/ocpkg/internal/occipher"
	"github.com/ocpkg/ocpkg/internal/ocrand"
)

// FixedWidthLength is a uint64 that always marshals to a constant-width
// JSON string (zero-padded to the digit count of MaxUint64), regardless of
// its value. The container writer's placeholder-length computation (spec
// §4.6 step 4) reserves space for the manifest before internal_length is
// known; a plain JSON number would change byte width as its value grows
// from 0 to the real ciphertext length, breaking the exact-size invariant
// step 4 depends on.
type FixedWidthLength uint64

const fixedWidthLengthDigits = 20 // len(strconv.FormatUint(math.MaxUint64, 10))

func (f FixedWidthLength) MarshalJSON() ([]byte, error) {
	s := strconv.FormatUint(uint64(f), 10)
	for len(s) < fixedWidthLengthDigits {
		s = "0" + s
	}
	return []byte(`"` + s + `"`), nil
}

func (f *FixedWidthLength) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return err
	}
	*f = FixedWidthLength(v)
	return nil
}

// SchemeKind selects how the manifest pre-key is established.
type SchemeKind string

const (
	SchemeSymmetric SchemeKind = "Symmetric"
	SchemeUM1Hybrid SchemeKind = "UM1Hybrid"
)

// CryptoConfig is the manifest header's scheme_config: the Symmetric
// variant leaves EphemeralPublicKey empty, UM1Hybrid populates it. One
// flat struct rather than two types keeps the JSON framing simple; see
// Validate for the per-scheme field requirements spec §3 names.
type CryptoConfig struct {
	Scheme SchemeKind `json:"scheme"`

	CipherCfg         occipher.CipherConfig         `json:"cipher_cfg"`
	AuthenticationCfg occipher.AuthenticationConfig `json:"authentication_cfg"`
	KDFCfg            occipher.KeyDerivationConfig  `json:"kdf_cfg"`

	KeyConfirmationCfg            occipher.AuthenticationConfig `json:"key_confirmation_cfg"`
	KeyConfirmationExpectedOutput []byte                        `json:"key_confirmation_expected_output"`

	// AuthenticationVerifiedOutput is the manifest MAC tag. For pre-flight
	// placeholder sizing (C6 step 4) the writer fills it with a zero buffer
	// of the full tag length, and the real tag replaces it once the payload
	// has been written.
	AuthenticationVerifiedOutput []byte `json:"authentication_verified_output"`

	// EphemeralPublicKey is populated only when Scheme == UM1Hybrid; it
	// carries the sender's one-shot ECDH public key (marshalled form of a
	// point on occipher.UM1Curve).
	EphemeralPublicKey []byte `json:"ephemeral_public_key,omitempty"`
}

// Validate checks the per-scheme field requirements named in spec §3.
func (c *CryptoConfig) Validate() error {
	if err := c.CipherCfg.Validate(); err != nil {
		return err
	}
	if err := c.AuthenticationCfg.Validate(); err != nil {
		return err
	}
	if err := c.KDFCfg.Validate(); err != nil {
		return err
	}
	if err := c.KeyConfirmationCfg.Validate(); err != nil {
		return err
	}
	switch c.Scheme {
	case SchemeSymmetric:
		// no extra fields
	case SchemeUM1Hybrid:
		if len(c.EphemeralPublicKey) == 0 {
			return errMissingEphemeralKey
		}
	default:
		return errUnknownScheme
	}
	return nil
}

// ManifestHeader is the small record preceding the encrypted manifest.
type ManifestHeader struct {
	FormatVersion uint32       `json:"format_version"`
	Scheme        SchemeKind   `json:"scheme"`
	SchemeConfig  CryptoConfig `json:"scheme_config"`
}

// PayloadItem describes one bundled item. Stream bindings (the actual
// source/sink bytes) are attached only at runtime by the caller and are
// never part of this serialised form.
type PayloadItem struct {
	Identifier   uuid.UUID `json:"identifier"`
	Type         string    `json:"type"`
	RelativePath string    `json:"relative_path"`

	ExternalLength uint64           `json:"external_length"`
	InternalLength FixedWidthLength `json:"internal_length"`

	CipherCfg         occipher.CipherConfig         `json:"cipher_cfg"`
	AuthenticationCfg occipher.AuthenticationConfig `json:"authentication_cfg"`

	CipherKey         []byte `json:"cipher_key,omitempty"`
	AuthenticationKey []byte `json:"authentication_key,omitempty"`

	KDFCfg                        *occipher.KeyDerivationConfig  `json:"kdf_cfg,omitempty"`
	KeyConfirmationCfg            *occipher.AuthenticationConfig `json:"key_confirmation_cfg,omitempty"`
	KeyConfirmationExpectedOutput []byte                         `json:"key_confirmation_expected_output,omitempty"`

	AuthenticationVerifiedOutput []byte `json:"authentication_verified_output"`
}

// HasDirectKeys reports whether the item carries its cipher/MAC keys
// inline rather than through a registered pre-key.
func (p *PayloadItem) HasDirectKeys() bool {
	return len(p.CipherKey) > 0 && len(p.AuthenticationKey) > 0
}

// ValidatePath rejects the ".." segment per spec §3/§6, except for item
// types explicitly marked as non-filesystem (key-action items carry no
// filesystem meaning and are exempt).
func (p *PayloadItem) ValidatePath(nonFilesystemTypes map[string]bool) error {
	if nonFilesystemTypes[p.Type] {
		return nil
	}
	for _, seg := range strings.Split(p.RelativePath, "/") {
		if seg == ".." {
			return errPathTraversal
		}
	}
	return nil
}

// PayloadScheme selects the multiplexer layout variant (C4).
type PayloadScheme string

const (
	SchemeSimple     PayloadScheme = "Simple"
	SchemeFrameshift PayloadScheme = "Frameshift"
	SchemeFabric     PayloadScheme = "Fabric"
)

// FrameshiftConfig bounds the random padding bracketing each item.
type FrameshiftConfig struct {
	Min int `json:"min"` // >= 8
	Max int `json:"max"` // <= 512
}

// FabricConfig bounds each selection's stripe length.
type FabricConfig struct {
	Min int `json:"min"` // >= 8
	Max int `json:"max"` // <= 32768
}

// PayloadConfig is the manifest's payload_cfg.
type PayloadConfig struct {
	Scheme PayloadScheme `json:"scheme"`

	FrameshiftCfg *FrameshiftConfig `json:"frameshift_cfg,omitempty"`
	FabricCfg     *FabricConfig     `json:"fabric_cfg,omitempty"`

	PRNGCfg ocrand.PRNGConfig `json:"prng_cfg"`

	Offset uint64 `json:"offset"`
}

// Validate checks the scheme-appropriate bound constraints from spec §4.4.
func (p *PayloadConfig) Validate() error {
	switch p.Scheme {
	case SchemeSimple:
		return nil
	case SchemeFrameshift:
		if p.FrameshiftCfg == nil {
			return errMissingSchemeConfig
		}
		if p.FrameshiftCfg.Min < 8 || p.FrameshiftCfg.Max > 512 || p.FrameshiftCfg.Min > p.FrameshiftCfg.Max {
			return errSchemeConfigOutOfRange
		}
		return nil
	case SchemeFabric:
		if p.FabricCfg == nil {
			return errMissingSchemeConfig
		}
		if p.FabricCfg.Min < 8 || p.FabricCfg.Max > 32768 || p.FabricCfg.Min > p.FabricCfg.Max {
			return errSchemeConfigOutOfRange
		}
		return nil
	default:
		return errUnknownPayloadScheme
	}
}

// Manifest is the fully assembled, never-plaintext-exposed catalogue of a
// package: every item plus the payload layout configuration.
type Manifest struct {
	PayloadItems []*PayloadItem `json:"payload_items"`
	PayloadCfg   PayloadConfig  `json:"payload_cfg"`
}

// Validate checks the package-wide invariants from spec §3: unique
// identifiers and per-item config consistency. It does not check stream
// bindings or pre-key registration — those are the writer's pre-flight
// concern (internal/container).
func (m *Manifest) Validate(nonFilesystemTypes map[string]bool) error {
	if len(m.PayloadItems) == 0 {
		return errNoItems
	}
	seen := make(map[uuid.UUID]bool, len(m.PayloadItems))
	for _, item := range m.PayloadItems {
		if seen[item.Identifier] {
			return errDuplicateIdentifier
		}
		seen[item.Identifier] = true
		if err := item.CipherCfg.Validate(); err != nil {
			return err
		}
		if err := item.AuthenticationCfg.Validate(); err != nil {
			return err
		}
		if err := item.ValidatePath(nonFilesystemTypes); err != nil {
			return err
		}
	}
	return m.PayloadCfg.Validate()
}
