// Package container is the outer container writer/reader: C6 drives the
// header -> placeholder -> payload -> finalised-manifest-rewrite -> trailer
// sequence; C7 parses it back, trying candidate keys via occipher's C3
// before running the payload multiplexer in read mode.
package container

import (
	"encoding/binary"
	"io"

	"github.com/ocpkg/ocpkg/internal/manifest"
	"github.com/ocpkg/ocpkg/internal/ocerrors"
)

// HeaderTag and TrailerTag bracket every container, bit-exact per spec §6.
var (
	HeaderTag  = [8]byte{0x4F, 0x43, 0x70, 0x6B, 0x67, 0x56, 0x31, 0x3E}  // "OCpkgV1>"
	TrailerTag = [8]byte{0x3C, 0x7C, 0x4F, 0x43, 0x70, 0x6B, 0x67, 0x7C} // "<|OCpkg|"
)

// writeFramedManifestHeader writes h as a u32-LE length prefix followed by
// its JSON encoding (spec §6: "ManifestHeader serialised with an outer
// length prefix using the chosen DTO framing").
func writeFramedManifestHeader(w io.Writer, h *manifest.ManifestHeader) ([]byte, error) {
	body, err := manifest.EncodeManifestHeader(h)
	if err != nil {
		return nil, err
	}
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(body)))
	combined := append(append([]byte{}, prefix[:]...), body...)
	if _, err := w.Write(combined); err != nil {
		return nil, ocerrors.Wrap(err, "container: write manifest header")
	}
	return combined, nil
}

// readFramedManifestHeader reverses writeFramedManifestHeader.
func readFramedManifestHeader(r io.Reader) (*manifest.ManifestHeader, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, ocerrors.Wrap(err, "container: read manifest header length")
	}
	n := binary.LittleEndian.Uint32(prefix[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, ocerrors.Wrap(err, "container: read manifest header body")
	}
	return manifest.DecodeManifestHeader(body)
}
