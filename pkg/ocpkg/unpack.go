package ocpkg

import (
	"crypto/ecdh"
	"io"

	"github.com/google/uuid"

	"github.com/ocpkg/ocpkg/internal/container"
	"github.com/ocpkg/ocpkg/internal/manifest"
	"github.com/ocpkg/ocpkg/internal/mux"
)

// UnpackRequest supplies everything Unpack needs to recover a container's
// manifest and deliver every item's plaintext to its Sink.
//
// For a Symmetric container, set CandidatePreKeys. For a UM1Hybrid
// container, set SenderPubs, RecipientPrivs, and PreKeyLen instead — Unpack
// tries every sender/recipient pair (internal/container.Reader).
type UnpackRequest struct {
	Source io.ReadSeeker
	Sinks  map[uuid.UUID]io.Writer

	// SinkResolver, when set, supplies a sink for any item not already
	// present in Sinks once the manifest has been decrypted - the
	// filesystem CLI uses this to open output files named from each
	// item's RelativePath.
	SinkResolver func(item *manifest.PayloadItem) (io.Writer, error)

	CandidatePreKeys [][]byte

	SenderPubs     []*ecdh.PublicKey
	RecipientPrivs []*ecdh.PrivateKey
	PreKeyLen      int

	Resolver           mux.PreKeyResolver
	NonFilesystemTypes map[string]bool
}

// Unpack drives the full read (C7): header parse, candidate key-confirmation
// match, manifest decrypt-and-verify, then the payload multiplexer in read
// mode. Every item's plaintext has already reached its Sink by the time
// Unpack returns successfully.
func Unpack(req *UnpackRequest) (*manifest.Manifest, error) {
	r := container.NewReader(req.Source, req.Sinks, req.Resolver, req.NonFilesystemTypes)
	r.SinkResolver = req.SinkResolver
	r.CandidatePreKeys = req.CandidatePreKeys
	r.SenderPubs = req.SenderPubs
	r.RecipientPrivs = req.RecipientPrivs
	r.PreKeyLen = req.PreKeyLen
	return r.Read()
}
