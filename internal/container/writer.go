package container

import (
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/ocpkg/ocpkg/internal/manifest"
	"github.com/ocpkg/ocpkg/internal/mux"
	"github.com/ocpkg/ocpkg/internal/obslog"
	"github.com/ocpkg/ocpkg/internal/occipher"
	"github.com/ocpkg/ocpkg/internal/ocerrors"
	"github.com/ocpkg/ocpkg/internal/ocrand"
)

// Writer is C6: single-use, call Write at most once. It owns sink
// exclusively for the duration of that call (spec §3 "Ownership and
// lifetime").
type Writer struct {
	sink               io.WriteSeeker
	manifest           *manifest.Manifest
	cryptoCfg          *manifest.CryptoConfig
	manifestPreKey     []byte
	sources            map[uuid.UUID]io.Reader
	resolver           mux.PreKeyResolver
	nonFilesystemTypes map[string]bool
	used               bool
}

// NewWriter builds a Writer. manifestPreKey is the already-established
// manifest pre-key: for Symmetric it is the caller's shared secret
// directly, for UM1Hybrid it is the value UM1GenerateEphemeral returned
// (with cryptoCfg.EphemeralPublicKey already populated by the caller).
func NewWriter(sink io.WriteSeeker, m *manifest.Manifest, cryptoCfg *manifest.CryptoConfig, manifestPreKey []byte, sources map[uuid.UUID]io.Reader, resolver mux.PreKeyResolver, nonFilesystemTypes map[string]bool) *Writer {
	return &Writer{
		sink:               sink,
		manifest:           m,
		cryptoCfg:          cryptoCfg,
		manifestPreKey:     manifestPreKey,
		sources:            sources,
		resolver:           resolver,
		nonFilesystemTypes: nonFilesystemTypes,
	}
}

// Write drives the full C6 sequence (spec §4.6). Any error leaves the
// Writer unusable; a second call always fails.
func (w *Writer) Write() error {
	if w.used {
		return ocerrors.NewCryptoError("container-write", fmt.Errorf("writer already used"))
	}
	w.used = true

	if err := w.preflight(); err != nil {
		return err
	}

	cipherLen := w.cryptoCfg.CipherCfg.KeySizeBits / 8
	macLen := w.cryptoCfg.AuthenticationCfg.KeySizeBits / 8
	cipherKey, macKey, err := occipher.Stretch(w.manifestPreKey, cipherLen, macLen, &w.cryptoCfg.KDFCfg)
	if err != nil {
		return err
	}
	defer occipher.SecureZeroMultiple(cipherKey, macKey)

	if _, err := w.sink.Write(HeaderTag[:]); err != nil {
		return ocerrors.Wrap(err, "container: write header tag")
	}

	placeholderLen, err := computePlaceholderLength(w.manifest, w.cryptoCfg)
	if err != nil {
		return err
	}
	if _, err := w.sink.Write(make([]byte, placeholderLen)); err != nil {
		return ocerrors.Wrap(err, "container: write manifest placeholder")
	}

	// Optional payload_cfg.offset bytes of random, unauthenticated padding
	// between the manifest ciphertext and the payload region (spec §6);
	// the reader seeks forward by the same amount before it starts
	// reading items, so both sides must agree on this gap's presence.
	if w.manifest.PayloadCfg.Offset > 0 {
		padding, err := ocrand.NewCryptoSource().Read(int(w.manifest.PayloadCfg.Offset))
		if err != nil {
			return err
		}
		if _, err := w.sink.Write(padding); err != nil {
			return ocerrors.Wrap(err, "container: write payload offset padding")
		}
	}

	bindings := mux.Bindings{Sources: w.sources}
	mplex, err := mux.New(w.manifest.PayloadItems, &w.manifest.PayloadCfg, bindings, true, w.resolver, mux.WriterStream(w.sink))
	if err != nil {
		return err
	}
	if err := mplex.Run(); err != nil {
		return err
	}

	payloadEnd, err := w.sink.Seek(0, io.SeekCurrent)
	if err != nil {
		return ocerrors.Wrap(err, "container: seek to payload end")
	}

	if _, err := w.sink.Seek(int64(len(HeaderTag)), io.SeekStart); err != nil {
		return ocerrors.Wrap(err, "container: seek back to placeholder")
	}

	ciphertext, obfLenPrefix, tag, err := manifest.EncryptManifest(w.manifest, w.cryptoCfg, cipherKey, macKey)
	if err != nil {
		return err
	}
	w.cryptoCfg.AuthenticationVerifiedOutput = tag

	header := &manifest.ManifestHeader{
		FormatVersion: manifest.MaxSupportedFormatVersion,
		Scheme:        w.cryptoCfg.Scheme,
		SchemeConfig:  *w.cryptoCfg,
	}

	var buf writeBuffer
	if _, err := writeFramedManifestHeader(&buf, header); err != nil {
		return err
	}
	buf.b = append(buf.b, obfLenPrefix...)
	buf.b = append(buf.b, ciphertext...)

	if len(buf.b) != placeholderLen {
		return ocerrors.NewCryptoError("container-write", fmt.Errorf("placeholder length mismatch: reserved %d, computed %d", placeholderLen, len(buf.b)))
	}
	if _, err := w.sink.Write(buf.b); err != nil {
		return ocerrors.Wrap(err, "container: write finalised manifest")
	}

	if _, err := w.sink.Seek(payloadEnd, io.SeekStart); err != nil {
		return ocerrors.Wrap(err, "container: seek to trailer position")
	}
	if _, err := w.sink.Write(TrailerTag[:]); err != nil {
		return ocerrors.Wrap(err, "container: write trailer tag")
	}

	obslog.Info("container written", obslog.Int("items", len(w.manifest.PayloadItems)))
	return nil
}

// preflight validates spec §4.6 step 1: at least one item; every item has
// a stream binding and either direct keys or a registered pre-key;
// manifest crypto config is valid. All failures are aggregated into one
// PreflightError rather than stopping at the first (spec §7).
func (w *Writer) preflight() error {
	var errs []error

	if err := w.manifest.Validate(w.nonFilesystemTypes); err != nil {
		errs = append(errs, err)
	}
	if err := w.cryptoCfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	for _, item := range w.manifest.PayloadItems {
		if _, ok := w.sources[item.Identifier]; !ok {
			errs = append(errs, ocerrors.NewItemError(item.Identifier.String(), ocerrors.ErrStreamBindingMissing))
			continue
		}
		if item.HasDirectKeys() {
			continue
		}
		if item.KDFCfg == nil {
			errs = append(errs, ocerrors.NewItemError(item.Identifier.String(), ocerrors.ErrKeyMissing))
			continue
		}
		if w.resolver == nil {
			errs = append(errs, ocerrors.NewItemError(item.Identifier.String(), ocerrors.ErrKeyMissing))
			continue
		}
		if _, ok := w.resolver(item.Identifier); !ok {
			errs = append(errs, ocerrors.NewItemError(item.Identifier.String(), ocerrors.ErrKeyMissing))
		}
	}

	return ocerrors.NewPreflightError(errs)
}

// computePlaceholderLength implements spec §4.6 step 4: the combined size
// of ManifestHeader || ManifestLengthPrefix || ManifestCiphertext, computed
// from field sizes alone rather than by actually encrypting — every field
// whose content is still unknown at this point (AuthenticationVerifiedOutput
// on the manifest header and on every item) is fixed-size regardless of
// content, and InternalLength's manifest.FixedWidthLength encoding keeps
// its JSON width constant too, so the real values substituted later never
// change the byte count.
func computePlaceholderLength(m *manifest.Manifest, cryptoCfg *manifest.CryptoConfig) (int, error) {
	cryptoCfgClone := *cryptoCfg
	manifestTagLen, err := cryptoCfgClone.AuthenticationCfg.OutputSize()
	if err != nil {
		return 0, err
	}
	cryptoCfgClone.AuthenticationVerifiedOutput = make([]byte, manifestTagLen)

	header := &manifest.ManifestHeader{
		FormatVersion: manifest.MaxSupportedFormatVersion,
		Scheme:        cryptoCfgClone.Scheme,
		SchemeConfig:  cryptoCfgClone,
	}
	headerBytes, err := manifest.EncodeManifestHeader(header)
	if err != nil {
		return 0, err
	}

	placeholderItems := make([]*manifest.PayloadItem, len(m.PayloadItems))
	for i, item := range m.PayloadItems {
		clone := *item
		tagLen, err := clone.AuthenticationCfg.OutputSize()
		if err != nil {
			return 0, err
		}
		clone.AuthenticationVerifiedOutput = make([]byte, tagLen)
		placeholderItems[i] = &clone
	}
	placeholderManifest := &manifest.Manifest{PayloadItems: placeholderItems, PayloadCfg: m.PayloadCfg}
	plaintext, err := manifest.EncodeManifest(placeholderManifest)
	if err != nil {
		return 0, err
	}

	ctLen := cipherTextLength(&cryptoCfg.CipherCfg, len(plaintext))

	// 4 bytes for the manifest header's own length prefix, 4 bytes for
	// the obfuscated manifest ciphertext length prefix.
	return 4 + len(headerBytes) + 4 + ctLen, nil
}

// cipherTextLength predicts the EtM ciphertext length for plainLen bytes
// under cfg, without running the cipher: stream/CTR ciphers never change
// length, CBC+PKCS7 always adds between 1 and blockSize bytes of padding.
func cipherTextLength(cfg *occipher.CipherConfig, plainLen int) int {
	if cfg.Kind == occipher.CipherKindBlock && cfg.ModeName == occipher.ModeCBC {
		blockSize := cfg.BlockSizeBits / 8
		return plainLen + blockSize - (plainLen % blockSize)
	}
	return plainLen
}

// writeBuffer is a minimal io.Writer accumulating into a byte slice,
// avoiding a second dependency on bytes.Buffer just for this one spot.
type writeBuffer struct{ b []byte }

func (w *writeBuffer) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}
