package mux

import (
	"io"

	"github.com/google/uuid"

	"github.com/ocpkg/ocpkg/internal/manifest"
	"github.com/ocpkg/ocpkg/internal/ocerrors"
	"github.com/ocpkg/ocpkg/internal/occipher"
)

// State is a pipeline's position in the per-item state machine from spec
// §4.4: New -> Headered -> (Streaming)* -> Trailered -> Authenticated ->
// Closed.
type State int

const (
	StateNew State = iota
	StateHeadered
	StateStreaming
	StateTrailered
	StateAuthenticated
	StateClosed
)

// PreKeyResolver looks up the registered pre-key for an item that carries
// no direct keys. Returns ok=false if none is registered.
type PreKeyResolver func(id uuid.UUID) (preKey []byte, ok bool)

// pipeline is one item's live Encrypt-then-MAC state within the
// multiplexer. New constructs one for every item before the first
// selection turn; construction is not deferred to an item's first
// selection.
type pipeline struct {
	item  *manifest.PayloadItem
	state State
	etm   *occipher.EtM

	source io.Reader // write mode: plaintext source
	sink   io.Writer // read mode: plaintext sink

	// fabricSpill buffers Fabric-mode ciphertext that has been encrypted
	// on write but not yet emitted in a stripe. Read mode does not use it:
	// each stripe is decrypted straight into the sink.
	fabricSpill []byte
}

func newPipeline(item *manifest.PayloadItem, source io.Reader, sink io.Writer, encrypting bool, resolver PreKeyResolver) (*pipeline, error) {
	cipherKey, macKey, err := resolveItemKeys(item, resolver)
	if err != nil {
		return nil, err
	}

	var etm *occipher.EtM
	if encrypting {
		etm, err = occipher.NewEncryptor(&item.CipherCfg, &item.AuthenticationCfg, cipherKey, macKey)
	} else {
		etm, err = occipher.NewDecryptor(&item.CipherCfg, &item.AuthenticationCfg, cipherKey, macKey)
	}
	if err != nil {
		return nil, ocerrors.NewItemError(item.Identifier.String(), err)
	}

	return &pipeline{item: item, state: StateNew, etm: etm, source: source, sink: sink}, nil
}

func resolveItemKeys(item *manifest.PayloadItem, resolver PreKeyResolver) (cipherKey, macKey []byte, err error) {
	if item.HasDirectKeys() {
		return item.CipherKey, item.AuthenticationKey, nil
	}
	if item.KDFCfg == nil {
		return nil, nil, ocerrors.NewItemError(item.Identifier.String(), ocerrors.ErrKeyMissing)
	}
	preKey, ok := resolver(item.Identifier)
	if !ok {
		return nil, nil, ocerrors.NewItemError(item.Identifier.String(), ocerrors.ErrKeyMissing)
	}
	cipherLen := item.CipherCfg.KeySizeBits / 8
	macLen := item.AuthenticationCfg.KeySizeBits / 8
	return occipher.Stretch(preKey, cipherLen, macLen, item.KDFCfg)
}

// closed reports whether this pipeline has finished and should no longer
// be selected.
func (p *pipeline) closed() bool { return p.state == StateClosed }

// bytesRemainingWrite returns how much more plaintext this item expects
// to contribute before its Streaming phase ends.
func (p *pipeline) bytesRemainingWrite() uint64 {
	in := p.etm.BytesIn()
	if in >= p.item.ExternalLength {
		return 0
	}
	return p.item.ExternalLength - in
}

// bytesRemainingRead returns how much more ciphertext this item expects
// to consume before its Streaming phase ends.
func (p *pipeline) bytesRemainingRead() uint64 {
	in := p.etm.BytesIn()
	internalLength := uint64(p.item.InternalLength)
	if in >= internalLength {
		return 0
	}
	return internalLength - in
}
