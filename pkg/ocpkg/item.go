package ocpkg

import (
	"io"

	"github.com/google/uuid"

	"github.com/ocpkg/ocpkg/internal/manifest"
	"github.com/ocpkg/ocpkg/internal/occipher"
	"github.com/ocpkg/ocpkg/internal/ocrand"
)

// Item describes one bundled stream, independent of which direction it's
// being used in. Pack reads Source; Unpack ignores it (sinks are supplied
// separately, via UnpackRequest.Sinks/SinkResolver, since a reader doesn't
// know where to write until the manifest names the item). Identifier is
// generated if left zero.
type Item struct {
	Identifier     uuid.UUID
	Type           string
	RelativePath   string
	ExternalLength uint64

	// Source is the plaintext this item reads from during Pack.
	Source io.Reader

	Mode Mode // only consulted when CipherCfg/AuthCfg are nil

	CipherCfg *occipher.CipherConfig
	AuthCfg   *occipher.AuthenticationConfig

	// Exactly one of the two key-establishment paths below is used:
	// direct keys, or a pre-key stretched through KDFCfg. HasDirectKeys
	// mirrors manifest.PayloadItem.HasDirectKeys.
	CipherKey         []byte
	AuthenticationKey []byte

	KDFCfg *occipher.KeyDerivationConfig
	PreKey []byte // not read by Pack; item pre-keys reach the pipeline only via PackRequest.Resolver
}

func (it *Item) hasDirectKeys() bool {
	return len(it.CipherKey) > 0 && len(it.AuthenticationKey) > 0
}

// toPayloadItem builds the manifest.PayloadItem for it, generating a
// cipher/auth config from Mode when the caller didn't supply one
// explicitly, and an Identifier when left zero.
func (it *Item) toPayloadItem(entropy ocrand.EntropySource) (*manifest.PayloadItem, error) {
	id := it.Identifier
	if id == uuid.Nil {
		id = uuid.New()
	}

	cipherCfg := it.CipherCfg
	if cipherCfg == nil {
		var err error
		cipherCfg, err = NewCipherConfig(entropy, it.Mode)
		if err != nil {
			return nil, err
		}
	}
	authCfg := it.AuthCfg
	if authCfg == nil {
		authCfg = NewAuthenticationConfig(it.Mode)
	}

	item := &manifest.PayloadItem{
		Identifier:        id,
		Type:              it.Type,
		RelativePath:      it.RelativePath,
		ExternalLength:    it.ExternalLength,
		CipherCfg:         *cipherCfg,
		AuthenticationCfg: *authCfg,
	}

	if it.hasDirectKeys() {
		item.CipherKey = it.CipherKey
		item.AuthenticationKey = it.AuthenticationKey
		return item, nil
	}

	if it.KDFCfg != nil {
		item.KDFCfg = it.KDFCfg
	}
	return item, nil
}
