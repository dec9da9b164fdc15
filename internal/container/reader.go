package container

import (
	"crypto/ecdh"
	"io"

	"github.com/google/uuid"

	"github.com/ocpkg/ocpkg/internal/manifest"
	"github.com/ocpkg/ocpkg/internal/mux"
	"github.com/ocpkg/ocpkg/internal/obslog"
	"github.com/ocpkg/ocpkg/internal/occipher"
	"github.com/ocpkg/ocpkg/internal/ocerrors"
)

// Reader is C7. A Symmetric container only needs CandidatePreKeys; a
// UM1Hybrid container needs SenderPubs/RecipientPrivs/PreKeyLen instead.
type Reader struct {
	source io.ReadSeeker

	CandidatePreKeys [][]byte
	SenderPubs       []*ecdh.PublicKey
	RecipientPrivs   []*ecdh.PrivateKey
	PreKeyLen        int

	sinks              map[uuid.UUID]io.Writer
	resolver           mux.PreKeyResolver
	nonFilesystemTypes map[string]bool

	// SinkResolver, when set, is consulted for any item missing from
	// sinks once the manifest has been decrypted and verified - useful
	// for callers (such as a filesystem-unpacking CLI) that don't know
	// an item's RelativePath until the manifest itself reveals it.
	SinkResolver func(item *manifest.PayloadItem) (io.Writer, error)
}

// NewReader builds a Reader over source. Candidate manifest pre-keys or
// UM1 key lists are set on the returned value's exported fields before
// calling Read.
func NewReader(source io.ReadSeeker, sinks map[uuid.UUID]io.Writer, resolver mux.PreKeyResolver, nonFilesystemTypes map[string]bool) *Reader {
	return &Reader{source: source, sinks: sinks, resolver: resolver, nonFilesystemTypes: nonFilesystemTypes}
}

// Read drives the full C7 sequence (spec §4.7) and returns the decrypted,
// fully-verified manifest. Every item's plaintext has already been
// delivered to its sink by the time Read returns successfully.
func (r *Reader) Read() (*manifest.Manifest, error) {
	var tag [8]byte
	if _, err := io.ReadFull(r.source, tag[:]); err != nil {
		return nil, ocerrors.Wrap(err, "container: read header tag")
	}
	if tag != HeaderTag {
		return nil, ocerrors.ErrFormat
	}

	header, err := readFramedManifestHeader(r.source)
	if err != nil {
		return nil, err
	}
	if header.FormatVersion > manifest.MaxSupportedFormatVersion {
		return nil, ocerrors.ErrFormat
	}

	preKey, err := r.resolveManifestPreKey(header)
	if err != nil {
		return nil, err
	}
	defer occipher.SecureZero(preKey)

	cipherLen := header.SchemeConfig.CipherCfg.KeySizeBits / 8
	macLen := header.SchemeConfig.AuthenticationCfg.KeySizeBits / 8
	cipherKey, macKey, err := occipher.Stretch(preKey, cipherLen, macLen, &header.SchemeConfig.KDFCfg)
	if err != nil {
		return nil, err
	}
	defer occipher.SecureZeroMultiple(cipherKey, macKey)

	var obf [4]byte
	if _, err := io.ReadFull(r.source, obf[:]); err != nil {
		return nil, ocerrors.Wrap(err, "container: read manifest length prefix")
	}
	ctLen, err := manifest.DeobfuscateLengthPrefix(obf[:], macKey)
	if err != nil {
		return nil, err
	}
	ciphertext := make([]byte, ctLen)
	if _, err := io.ReadFull(r.source, ciphertext); err != nil {
		return nil, ocerrors.Wrap(err, "container: read manifest ciphertext")
	}

	m, err := manifest.DecryptManifest(ciphertext, &header.SchemeConfig, cipherKey, macKey, header.SchemeConfig.AuthenticationVerifiedOutput)
	if err != nil {
		return nil, err
	}

	if err := m.Validate(r.nonFilesystemTypes); err != nil {
		return nil, err
	}

	if m.PayloadCfg.Offset > 0 {
		if _, err := r.source.Seek(int64(m.PayloadCfg.Offset), io.SeekCurrent); err != nil {
			return nil, ocerrors.Wrap(err, "container: seek payload offset")
		}
	}

	sinks := r.sinks
	if r.SinkResolver != nil {
		sinks = make(map[uuid.UUID]io.Writer, len(m.PayloadItems))
		for k, v := range r.sinks {
			sinks[k] = v
		}
		for _, item := range m.PayloadItems {
			if _, ok := sinks[item.Identifier]; ok {
				continue
			}
			sink, err := r.SinkResolver(item)
			if err != nil {
				return nil, err
			}
			sinks[item.Identifier] = sink
		}
	}

	bindings := mux.Bindings{Sinks: sinks}
	mplex, err := mux.New(m.PayloadItems, &m.PayloadCfg, bindings, false, r.resolver, mux.ReaderStream(r.source))
	if err != nil {
		return nil, err
	}
	if err := mplex.Run(); err != nil {
		return nil, err
	}

	var trailer [8]byte
	if _, err := io.ReadFull(r.source, trailer[:]); err != nil {
		obslog.Warn("container: trailer tag missing", obslog.Err(err))
		return m, nil
	}
	if trailer != TrailerTag {
		obslog.Warn("container: trailer tag mismatch")
	}
	return m, nil
}

// resolveManifestPreKey implements spec §4.7 step 3: branch on scheme,
// then hand candidates to C3 (occipher.MatchCandidate or
// UM1MatchCandidates).
func (r *Reader) resolveManifestPreKey(header *manifest.ManifestHeader) ([]byte, error) {
	switch header.Scheme {
	case manifest.SchemeSymmetric:
		preKey, ok, err := occipher.MatchCandidate(&header.SchemeConfig.KeyConfirmationCfg, r.CandidatePreKeys, header.SchemeConfig.KeyConfirmationExpectedOutput)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ocerrors.ErrKeyConfirmation
		}
		return preKey, nil

	case manifest.SchemeUM1Hybrid:
		ephemeralPub, err := occipher.UM1Curve.NewPublicKey(header.SchemeConfig.EphemeralPublicKey)
		if err != nil {
			return nil, ocerrors.Wrap(err, "container: decode ephemeral public key")
		}
		preKey, ok, err := occipher.UM1MatchCandidates(&header.SchemeConfig.KeyConfirmationCfg, r.SenderPubs, r.RecipientPrivs, ephemeralPub, r.PreKeyLen, header.SchemeConfig.KeyConfirmationExpectedOutput)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ocerrors.ErrKeyConfirmation
		}
		return preKey, nil

	default:
		return nil, ocerrors.ErrFormat
	}
}
