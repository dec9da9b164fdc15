package manifest

import (
	"encoding/json"
	"fmt"
)

// MaxSupportedFormatVersion is the highest ManifestHeader.format_version
// this reader understands. Spec §4.7 step 2: "reject if format_version > 1".
const MaxSupportedFormatVersion = 1

// versionSniff mirrors the teacher corpus's "peek the version field before
// committing to a full decode" pattern (aviddiviner-inc's ParseVersionJSON):
// it lets the reader reject an unsupported future format before spending
// effort parsing fields that may not exist yet.
type versionSniff struct {
	FormatVersion uint32 `json:"format_version"`
}

// DecodeManifestHeader unmarshals a ManifestHeader, first checking
// format_version so an unsupported future version fails fast with a clear
// error rather than a confusing field-mismatch decode error.
func DecodeManifestHeader(data []byte) (*ManifestHeader, error) {
	var sniff versionSniff
	if err := json.Unmarshal(data, &sniff); err != nil {
		return nil, fmt.Errorf("manifest: malformed header: %w", err)
	}
	if sniff.FormatVersion > MaxSupportedFormatVersion {
		return nil, fmt.Errorf("manifest: unsupported format_version %d", sniff.FormatVersion)
	}

	var h ManifestHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("manifest: malformed header: %w", err)
	}
	return &h, nil
}

// EncodeManifestHeader serialises h to its wire JSON form.
func EncodeManifestHeader(h *ManifestHeader) ([]byte, error) {
	return json.Marshal(h)
}

// DecodeManifest unmarshals the decrypted manifest plaintext.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: malformed manifest: %w", err)
	}
	return &m, nil
}

// EncodeManifest serialises m to its plaintext wire form, prior to C5
// encryption.
func EncodeManifest(m *Manifest) ([]byte, error) {
	return json.Marshal(m)
}
