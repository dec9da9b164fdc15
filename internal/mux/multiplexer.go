package mux

import (
	"encoding/json"
	"io"

	"github.com/google/uuid"

	"github.com/ocpkg/ocpkg/internal/manifest"
	"github.com/ocpkg/ocpkg/internal/obslog"
	"github.com/ocpkg/ocpkg/internal/ocerrors"
	"github.com/ocpkg/ocpkg/internal/ocrand"
)

// Bindings maps an item's identifier to its runtime stream. Exactly one of
// Sources (write mode) or Sinks (read mode) is populated by the caller.
type Bindings struct {
	Sources map[uuid.UUID]io.Reader
	Sinks   map[uuid.UUID]io.Writer
}

// Multiplexer is C4: it drives every item's pipeline to completion,
// interleaved under the PRNG schedule, single-threaded and cooperative
// (spec §5: "single-threaded, cooperative... selection repeats").
type Multiplexer struct {
	cfg        *manifest.PayloadConfig
	encrypting bool
	stream     io.ReadWriter // write mode uses Write, read mode uses Read

	pipelines []*pipeline
	active    []bool
	scheduler *ocrand.Scheduler
}

// New constructs a Multiplexer for the given manifest items. stream is the
// container's payload region: an io.Writer in write mode, an io.Reader in
// read mode (callers pass a value satisfying whichever side they need;
// the unused half of io.ReadWriter is never invoked).
func New(items []*manifest.PayloadItem, cfg *manifest.PayloadConfig, bindings Bindings, encrypting bool, resolver PreKeyResolver, stream io.ReadWriter) (*Multiplexer, error) {
	scheduler, err := ocrand.NewScheduler(&cfg.PRNGCfg)
	if err != nil {
		return nil, err
	}

	m := &Multiplexer{cfg: cfg, encrypting: encrypting, stream: stream, scheduler: scheduler}
	for _, item := range items {
		var source io.Reader
		var sink io.Writer
		if encrypting {
			source = bindings.Sources[item.Identifier]
			if source == nil {
				return nil, ocerrors.NewItemError(item.Identifier.String(), ocerrors.ErrStreamBindingMissing)
			}
		} else {
			sink = bindings.Sinks[item.Identifier]
			if sink == nil {
				return nil, ocerrors.NewItemError(item.Identifier.String(), ocerrors.ErrStreamBindingMissing)
			}
		}
		p, err := newPipeline(item, source, sink, encrypting, resolver)
		if err != nil {
			return nil, err
		}
		m.pipelines = append(m.pipelines, p)
		m.active = append(m.active, true)
	}
	return m, nil
}

// Run drives every pipeline to StateClosed, one selection turn at a time.
func (m *Multiplexer) Run() error {
	for m.anyActive() {
		idx, err := m.scheduler.NextItemIndex(m.active)
		if err != nil {
			return err
		}
		if err := m.step(m.pipelines[idx]); err != nil {
			return err
		}
		if m.pipelines[idx].closed() {
			m.active[idx] = false
		}
	}
	obslog.Debug("multiplexer run complete", obslog.Int("items", len(m.pipelines)))
	return nil
}

func (m *Multiplexer) anyActive() bool {
	for _, a := range m.active {
		if a {
			return true
		}
	}
	return false
}

// step advances p by exactly one selection turn, per its layout variant
// and current state.
func (m *Multiplexer) step(p *pipeline) error {
	switch m.cfg.Scheme {
	case manifest.SchemeSimple:
		return m.stepSimple(p)
	case manifest.SchemeFrameshift:
		return m.stepFrameshift(p)
	case manifest.SchemeFabric:
		return m.stepFabric(p)
	default:
		return errUnknownVariant
	}
}

// stepSimple processes the item's entire length in one turn: no
// header/trailer, then immediately authenticates and closes.
func (m *Multiplexer) stepSimple(p *pipeline) error {
	if err := m.streamWholeItem(p); err != nil {
		return err
	}
	return m.finalize(p, nil)
}

// stepFrameshift brackets the item with authenticated random padding,
// each phase its own turn: New->Headered (header), Headered->Trailered
// (body), Trailered->Authenticated->Closed (trailer + finalize).
func (m *Multiplexer) stepFrameshift(p *pipeline) error {
	switch p.state {
	case StateNew:
		pad, err := frameshiftLen(m.cfg.FrameshiftCfg, m.scheduler)
		if err != nil {
			return err
		}
		if err := m.padAuthenticated(p, pad); err != nil {
			return err
		}
		p.state = StateHeadered
		return nil
	case StateHeadered:
		if err := m.streamWholeItem(p); err != nil {
			return err
		}
		p.state = StateTrailered
		return nil
	case StateTrailered:
		pad, err := frameshiftLen(m.cfg.FrameshiftCfg, m.scheduler)
		if err != nil {
			return err
		}
		if err := m.padAuthenticated(p, pad); err != nil {
			return err
		}
		return m.finalize(p, nil)
	default:
		return nil
	}
}

// stepFabric processes one bounded-length stripe per turn: on write it
// tops up and drains a per-item spill buffer, on read it decrypts the
// stripe straight into the sink. Stripe lengths never correlate with item
// boundaries except unavoidably on an item's very last stripe.
func (m *Multiplexer) stepFabric(p *pipeline) error {
	stripeLen, err := fabricLen(m.cfg.FabricCfg, m.scheduler)
	if err != nil {
		return err
	}

	if m.encrypting {
		if err := m.fabricWriteStripe(p, stripeLen); err != nil {
			return err
		}
		if p.bytesRemainingWrite() == 0 && len(p.fabricSpill) == 0 {
			return m.finalize(p, nil)
		}
		return nil
	}

	if err := m.fabricReadStripe(p, stripeLen); err != nil {
		return err
	}
	if p.bytesRemainingRead() == 0 {
		return m.finalize(p, nil)
	}
	return nil
}

func (m *Multiplexer) fabricWriteStripe(p *pipeline, stripeLen int) error {
	need := stripeLen - len(p.fabricSpill)
	if need > 0 {
		remaining := p.bytesRemainingWrite()
		toRead := uint64(need)
		if toRead > remaining {
			toRead = remaining
		}
		if toRead > 0 {
			buf := make([]byte, toRead)
			if _, err := io.ReadFull(p.source, buf); err != nil {
				return ocerrors.NewItemError(p.item.Identifier.String(), ocerrors.ErrPayloadLength)
			}
			ct, err := p.etm.Encrypt(buf)
			if err != nil {
				return ocerrors.NewItemError(p.item.Identifier.String(), err)
			}
			p.fabricSpill = append(p.fabricSpill, ct...)
		}
	}

	emitLen := stripeLen
	if emitLen > len(p.fabricSpill) {
		emitLen = len(p.fabricSpill)
	}
	if emitLen == 0 {
		return nil
	}
	if _, err := m.stream.Write(p.fabricSpill[:emitLen]); err != nil {
		return ocerrors.NewItemError(p.item.Identifier.String(), ocerrors.ErrIO)
	}
	p.fabricSpill = append(p.fabricSpill[:0], p.fabricSpill[emitLen:]...)
	return nil
}

func (m *Multiplexer) fabricReadStripe(p *pipeline, stripeLen int) error {
	remaining := p.bytesRemainingRead()
	toRead := uint64(stripeLen)
	if toRead > remaining {
		toRead = remaining
	}
	if toRead == 0 {
		return nil
	}
	buf := make([]byte, toRead)
	if _, err := io.ReadFull(m.stream, buf); err != nil {
		return ocerrors.NewItemError(p.item.Identifier.String(), ocerrors.ErrIO)
	}
	pt, err := p.etm.Decrypt(buf)
	if err != nil {
		return ocerrors.NewItemError(p.item.Identifier.String(), err)
	}
	if len(pt) > 0 {
		if _, err := p.sink.Write(pt); err != nil {
			return ocerrors.NewItemError(p.item.Identifier.String(), ocerrors.ErrIO)
		}
	}
	return nil
}

// streamWholeItem performs Simple/Frameshift's one-shot whole-item pass.
func (m *Multiplexer) streamWholeItem(p *pipeline) error {
	if m.encrypting {
		remaining := p.bytesRemainingWrite()
		buf := make([]byte, remaining)
		if _, err := io.ReadFull(p.source, buf); err != nil {
			return ocerrors.NewItemError(p.item.Identifier.String(), ocerrors.ErrPayloadLength)
		}
		ct, err := p.etm.Encrypt(buf)
		if err != nil {
			return ocerrors.NewItemError(p.item.Identifier.String(), err)
		}
		if _, err := m.stream.Write(ct); err != nil {
			return ocerrors.NewItemError(p.item.Identifier.String(), ocerrors.ErrIO)
		}
		return nil
	}

	remaining := p.bytesRemainingRead()
	buf := make([]byte, remaining)
	if _, err := io.ReadFull(m.stream, buf); err != nil {
		return ocerrors.NewItemError(p.item.Identifier.String(), ocerrors.ErrIO)
	}
	pt, err := p.etm.Decrypt(buf)
	if err != nil {
		return ocerrors.NewItemError(p.item.Identifier.String(), err)
	}
	if _, err := p.sink.Write(pt); err != nil {
		return ocerrors.NewItemError(p.item.Identifier.String(), ocerrors.ErrIO)
	}
	return nil
}

// padAuthenticated emits (write) or consumes (read) pad bytes of
// Frameshift bracket padding, authenticated but never encrypted.
func (m *Multiplexer) padAuthenticated(p *pipeline, pad int) error {
	if m.encrypting {
		buf, err := randomPadding(pad)
		if err != nil {
			return err
		}
		if _, err := m.stream.Write(buf); err != nil {
			return ocerrors.NewItemError(p.item.Identifier.String(), ocerrors.ErrIO)
		}
		p.etm.AbsorbExtra(buf)
		return nil
	}

	buf := make([]byte, pad)
	if _, err := io.ReadFull(m.stream, buf); err != nil {
		return ocerrors.NewItemError(p.item.Identifier.String(), ocerrors.ErrIO)
	}
	p.etm.AbsorbExtra(buf)
	return nil
}

// finalize feeds the item's metadata clone into the MAC and either
// stores (write) or verifies (read) the resulting tag, per spec §4.4.
// internal_length and authentication_verified_output are blanked in the
// clone on BOTH sides: the writer can't authenticate its own
// not-yet-computed tag, and the reader must reconstruct the exact same
// blanked bytes the writer authenticated, not the real stored values
// (mirrors manifest.configWithoutAuthTag's blank-on-both-sides approach).
func (m *Multiplexer) finalize(p *pipeline, _ []byte) error {
	if m.encrypting {
		meta, err := itemMetaClone(p.item, 0, nil)
		if err != nil {
			return err
		}
		_, tag, err := p.etm.FinalizeEncrypt(meta)
		if err != nil {
			return ocerrors.NewItemError(p.item.Identifier.String(), err)
		}
		p.item.InternalLength = manifest.FixedWidthLength(p.etm.BytesOut())
		p.item.AuthenticationVerifiedOutput = tag
		p.state = StateClosed
		return nil
	}

	meta, err := itemMetaClone(p.item, 0, nil)
	if err != nil {
		return err
	}
	finalPt, err := p.etm.FinalizeDecrypt(meta, p.item.AuthenticationVerifiedOutput)
	if err != nil {
		return ocerrors.NewItemError(p.item.Identifier.String(), err)
	}
	if len(finalPt) > 0 {
		if _, err := p.sink.Write(finalPt); err != nil {
			return ocerrors.NewItemError(p.item.Identifier.String(), ocerrors.ErrIO)
		}
	}
	p.state = StateClosed
	return nil
}

// writeOnlyStream adapts an io.Writer to io.ReadWriter for callers that
// only ever run the multiplexer in write mode.
type writeOnlyStream struct{ io.Writer }

func (writeOnlyStream) Read([]byte) (int, error) { return 0, io.EOF }

// readOnlyStream adapts an io.Reader to io.ReadWriter for read mode.
type readOnlyStream struct{ io.Reader }

func (readOnlyStream) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

// WriterStream wraps w so it can be passed as New's stream argument when
// constructing a write-mode Multiplexer.
func WriterStream(w io.Writer) io.ReadWriter { return writeOnlyStream{w} }

// ReaderStream wraps r so it can be passed as New's stream argument when
// constructing a read-mode Multiplexer.
func ReaderStream(r io.Reader) io.ReadWriter { return readOnlyStream{r} }

// itemMetaClone serialises a clone of item with InternalLength and
// AuthenticationVerifiedOutput overridden, so both writer and reader feed
// byte-identical metadata into the MAC.
func itemMetaClone(item *manifest.PayloadItem, internalLength uint64, authOutput []byte) ([]byte, error) {
	clone := *item
	clone.InternalLength = manifest.FixedWidthLength(internalLength)
	clone.AuthenticationVerifiedOutput = authOutput
	return json.Marshal(&clone)
}
