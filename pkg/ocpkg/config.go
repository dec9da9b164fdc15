package ocpkg

import (
	"github.com/ocpkg/ocpkg/internal/manifest"
	"github.com/ocpkg/ocpkg/internal/occipher"
	"github.com/ocpkg/ocpkg/internal/ocrand"
)

// Mode selects a cipher/MAC tier, mirroring the teacher's standard/paranoid
// split (cmd/picocrypt's "Paranoid mode: Serpent + XChaCha20, HMAC-SHA3"):
// Standard is XChaCha20 with a keyed BLAKE2b-512 MAC, Paranoid swaps in
// Serpent-CTR and HMAC-SHA3-512. Neither layers both ciphers at once — the
// EtM decorator (C1) only ever wraps a single cipher — so Paranoid here
// means "the stronger of the two single-cipher choices", not double
// encryption.
type Mode int

const (
	ModeStandard Mode = iota
	ModeParanoid
)

// NewCipherConfig builds the CipherConfig for mode, drawing its nonce/IV
// from entropy.
func NewCipherConfig(entropy ocrand.EntropySource, mode Mode) (*occipher.CipherConfig, error) {
	switch mode {
	case ModeParanoid:
		iv, err := entropy.Read(16)
		if err != nil {
			return nil, err
		}
		return &occipher.CipherConfig{
			Kind:          occipher.CipherKindBlock,
			Name:          "Serpent",
			KeySizeBits:   256,
			IVOrNonce:     iv,
			ModeName:      occipher.ModeCTR,
			BlockSizeBits: 128,
		}, nil
	default:
		nonce, err := entropy.Read(24)
		if err != nil {
			return nil, err
		}
		return &occipher.CipherConfig{
			Kind:        occipher.CipherKindStream,
			Name:        "XChaCha20",
			KeySizeBits: 256,
			IVOrNonce:   nonce,
		}, nil
	}
}

// NewAuthenticationConfig builds the EtM outer MAC config for mode.
func NewAuthenticationConfig(mode Mode) *occipher.AuthenticationConfig {
	if mode == ModeParanoid {
		return &occipher.AuthenticationConfig{Kind: occipher.AuthKindMac, Name: "HMAC-SHA3-512", KeySizeBits: 512}
	}
	return &occipher.AuthenticationConfig{Kind: occipher.AuthKindMac, Name: "Keyed-BLAKE2b-512", KeySizeBits: 512}
}

// NewKeyConfirmationConfig builds a fresh, salted key-confirmation config
// (C3): an unkeyed Keccak-256 digest over salt || candidate_key || nonce,
// per occipher.ExpectedOutput's AuthKindDigest branch.
func NewKeyConfirmationConfig(entropy ocrand.EntropySource) (*occipher.AuthenticationConfig, error) {
	salt, err := entropy.Read(16)
	if err != nil {
		return nil, err
	}
	nonce, err := entropy.Read(16)
	if err != nil {
		return nil, err
	}
	return &occipher.AuthenticationConfig{Kind: occipher.AuthKindDigest, Name: "Keccak-256", Salt: salt, Nonce: nonce}, nil
}

// NewKDFConfig builds a scrypt-based KeyDerivationConfig, picking the
// stretching tier from candidatePassphrase's estimated strength (spec
// §4.2: low-entropy input needs the stronger tier). Pass "" when preKey is
// already high-entropy key material rather than a human-chosen passphrase;
// ScryptTierForEntropy then defaults to the strong tier, which costs extra
// compute but never weakens security.
func NewKDFConfig(entropy ocrand.EntropySource, candidatePassphrase string) (*occipher.KeyDerivationConfig, error) {
	salt, err := entropy.Read(16)
	if err != nil {
		return nil, err
	}
	tier := occipher.ScryptTierForEntropy(candidatePassphrase)
	return &occipher.KeyDerivationConfig{Name: occipher.KDFScrypt, Salt: salt, ScryptCfg: &tier}, nil
}

// NewPRNGConfig generates a fresh key/nonce pair for the payload
// multiplexer's scheduling PRNG (ocrand.Scheduler). The same values must be
// carried in the manifest so a reader can reconstruct the identical
// selection sequence (spec §4.4).
func NewPRNGConfig(entropy ocrand.EntropySource) (*ocrand.PRNGConfig, error) {
	key, err := entropy.Read(32)
	if err != nil {
		return nil, err
	}
	nonce, err := entropy.Read(24)
	if err != nil {
		return nil, err
	}
	return &ocrand.PRNGConfig{Name: "XChaCha20-CSPRNG", Key: key, Nonce: nonce}, nil
}

// NewSimplePayloadConfig builds a PayloadConfig selecting the Simple
// layout: items stream whole, back to back, with no padding or striping.
func NewSimplePayloadConfig(entropy ocrand.EntropySource) (*manifest.PayloadConfig, error) {
	prngCfg, err := NewPRNGConfig(entropy)
	if err != nil {
		return nil, err
	}
	return &manifest.PayloadConfig{Scheme: manifest.SchemeSimple, PRNGCfg: *prngCfg}, nil
}

// NewFrameshiftPayloadConfig builds a PayloadConfig selecting Frameshift:
// each item is bracketed by min..max bytes of random padding, sampled
// per-item from the scheduling PRNG.
func NewFrameshiftPayloadConfig(entropy ocrand.EntropySource, min, max int) (*manifest.PayloadConfig, error) {
	prngCfg, err := NewPRNGConfig(entropy)
	if err != nil {
		return nil, err
	}
	return &manifest.PayloadConfig{
		Scheme:        manifest.SchemeFrameshift,
		FrameshiftCfg: &manifest.FrameshiftConfig{Min: min, Max: max},
		PRNGCfg:       *prngCfg,
	}, nil
}

// NewFabricPayloadConfig builds a PayloadConfig selecting Fabric: every
// selection turn emits a min..max byte stripe from whichever item the PRNG
// picks, interleaving all items' ciphertext.
func NewFabricPayloadConfig(entropy ocrand.EntropySource, min, max int) (*manifest.PayloadConfig, error) {
	prngCfg, err := NewPRNGConfig(entropy)
	if err != nil {
		return nil, err
	}
	return &manifest.PayloadConfig{
		Scheme:    manifest.SchemeFabric,
		FabricCfg: &manifest.FabricConfig{Min: min, Max: max},
		PRNGCfg:   *prngCfg,
	}, nil
}
