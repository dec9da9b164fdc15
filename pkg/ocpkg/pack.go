// Package ocpkg is the public facade over the container pipeline: Pack
// writes a manifest plus its multiplexed payload (C6), Unpack parses and
// verifies one back out (C7). The request/Item shape generalises the
// teacher's single-volume EncryptRequest/DecryptRequest pair
// (internal/volume/context.go) to N independently-keyed bundled streams.
package ocpkg

import (
	"crypto/ecdh"
	"io"

	"github.com/google/uuid"

	"github.com/ocpkg/ocpkg/internal/container"
	"github.com/ocpkg/ocpkg/internal/manifest"
	"github.com/ocpkg/ocpkg/internal/mux"
	"github.com/ocpkg/ocpkg/internal/occipher"
	"github.com/ocpkg/ocpkg/internal/ocrand"
)

// PackRequest assembles everything Pack needs: the items to bundle, the
// payload layout, and how the manifest's own pre-key is established.
//
// Exactly one of the two manifest key-establishment paths is used:
//   - Symmetric: set ManifestPreKey to the shared secret (password-derived
//     or a raw high-entropy key — caller's choice).
//   - UM1Hybrid: set SenderStatic and RecipientPublic instead; Pack derives
//     ManifestPreKey itself and fills the header's ephemeral public key.
type PackRequest struct {
	Output io.WriteSeeker
	Items  []*Item

	// PayloadCfg selects the multiplexer layout; a fresh Simple config is
	// generated if left nil.
	PayloadCfg *manifest.PayloadConfig

	Mode Mode

	ManifestPreKey         []byte
	ManifestPassphraseHint string // used only for the manifest KDF's tier scoring

	SenderStatic    *ecdh.PrivateKey
	RecipientPublic *ecdh.PublicKey
	PreKeyLen       int // UM1 pre-key length in bytes; defaults to 32

	Resolver           mux.PreKeyResolver // per-item pre-key resolver; nil if every Item carries direct keys
	NonFilesystemTypes map[string]bool

	Entropy ocrand.EntropySource // defaults to ocrand.NewCryptoSource()
}

// Pack drives the full write (C6) and returns the manifest that was
// written, for callers that want to inspect identifiers or lengths
// afterward. req.Output is exclusively owned for the duration of the call.
func Pack(req *PackRequest) (*manifest.Manifest, error) {
	entropy := req.Entropy
	if entropy == nil {
		entropy = ocrand.NewCryptoSource()
	}

	payloadItems := make([]*manifest.PayloadItem, len(req.Items))
	sources := make(map[uuid.UUID]io.Reader, len(req.Items))
	for i, it := range req.Items {
		pi, err := it.toPayloadItem(entropy)
		if err != nil {
			return nil, err
		}
		payloadItems[i] = pi
		sources[pi.Identifier] = it.Source
	}

	payloadCfg := req.PayloadCfg
	if payloadCfg == nil {
		var err error
		payloadCfg, err = NewSimplePayloadConfig(entropy)
		if err != nil {
			return nil, err
		}
	}

	m := &manifest.Manifest{PayloadItems: payloadItems, PayloadCfg: *payloadCfg}

	manifestPreKey := req.ManifestPreKey
	scheme := manifest.SchemeSymmetric
	var ephemeralPub []byte
	if req.SenderStatic != nil && req.RecipientPublic != nil {
		preKeyLen := req.PreKeyLen
		if preKeyLen == 0 {
			preKeyLen = 32
		}
		pub, preKey, err := occipher.UM1GenerateEphemeral(req.SenderStatic, req.RecipientPublic, preKeyLen)
		if err != nil {
			return nil, err
		}
		manifestPreKey = preKey
		ephemeralPub = pub.Bytes()
		scheme = manifest.SchemeUM1Hybrid
	}

	cipherCfg, err := NewCipherConfig(entropy, req.Mode)
	if err != nil {
		return nil, err
	}
	authCfg := NewAuthenticationConfig(req.Mode)
	kdfCfg, err := NewKDFConfig(entropy, req.ManifestPassphraseHint)
	if err != nil {
		return nil, err
	}
	confirmCfg, err := NewKeyConfirmationConfig(entropy)
	if err != nil {
		return nil, err
	}
	// Computed before manifestPreKey is handed to the writer: occipher.Stretch
	// zeroes its preKey argument in place once Write runs.
	expected, err := occipher.ExpectedOutput(confirmCfg, manifestPreKey)
	if err != nil {
		return nil, err
	}

	cryptoCfg := &manifest.CryptoConfig{
		Scheme:                        scheme,
		CipherCfg:                     *cipherCfg,
		AuthenticationCfg:             *authCfg,
		KDFCfg:                        *kdfCfg,
		KeyConfirmationCfg:            *confirmCfg,
		KeyConfirmationExpectedOutput: expected,
		EphemeralPublicKey:            ephemeralPub,
	}

	w := container.NewWriter(req.Output, m, cryptoCfg, manifestPreKey, sources, req.Resolver, req.NonFilesystemTypes)
	if err := w.Write(); err != nil {
		return nil, err
	}
	return m, nil
}
