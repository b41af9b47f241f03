package tlspipe

import (
	"context"
	"fmt"

	"github.com/tlspipe/tlspipe/pkg/bio"
	"github.com/tlspipe/tlspipe/pkg/engine"
	"github.com/tlspipe/tlspipe/pkg/log"
	"github.com/tlspipe/tlspipe/pkg/pipe"
	"github.com/tlspipe/tlspipe/pkg/record"
)

func (p *ClientPipeline) runHandshake() {
	defer p.wg.Done()

	err := p.handshake(p.ctx)

	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if err == nil && p.closed {
		err = ErrCancelled
	}
	if err != nil {
		p.failHandshake(err)
		return
	}

	p.casState(StateHandshaking, StateComplete, "handshake complete")
	p.outcome.resolve(nil)
	p.logger.Debug("handshake complete", "version", p.session.ConnectionState().Version)
	p.startPumpsLocked()
}

// failHandshake resolves the outcome with err and releases the engine.
// lifecycle must be held.
func (p *ClientPipeline) failHandshake(err error) {
	if p.casState(StateHandshaking, StateFailed, err.Error()) {
		p.setErr(err)
		p.logError(log.LayerPipeline, err, "handshake")
		p.logger.Warn("handshake failed", "error", err)
	}
	p.outcome.resolve(err)

	p.input.Writer().Complete(err)
	p.output.Reader().Complete()
	p.release()
	p.finish()
}

// handshake drives the session until it completes or fails. Each step
// feeds one record; the first step feeds nothing so the engine emits
// its first flight unprompted.
func (p *ClientPipeline) handshake(ctx context.Context) error {
	in := p.transport.Input()
	out := p.transport.Output()

	var (
		raw      []byte
		consumed int
	)
	for {
		code, err := p.session.Handshake(bio.NewSource(raw), p.sink)
		if consumed > 0 {
			// Later bytes stay unexamined so the next read (or the
			// inbound pump) sees them without waiting.
			in.AdvanceTo(consumed, consumed)
			raw, consumed = nil, 0
		}

		// Flush after every step, even when nothing was written.
		if ferr := out.Flush(ctx); ferr != nil && code != engine.CodeFatal {
			if ctx.Err() != nil {
				return ErrCancelled
			}
			return fmt.Errorf("%w: %w", ErrClosedBeforeHandshake, ferr)
		}

		switch code {
		case engine.CodeOK:
			return nil
		case engine.CodeWantRead:
		default:
			return fmt.Errorf("%w: %w", ErrHandshakeFailed, &engine.CodeError{Code: code, Err: err})
		}

		rec, err := p.nextHandshakeRecord(ctx, in)
		if err != nil {
			return err
		}
		raw, consumed = rec.Raw, rec.Size()
	}
}

// nextHandshakeRecord waits for one complete record that is acceptable
// in the handshake.
func (p *ClientPipeline) nextHandshakeRecord(ctx context.Context, in *pipe.Reader) (record.Record, error) {
	for {
		res, err := in.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return record.Record{}, ErrCancelled
			}
			return record.Record{}, fmt.Errorf("%w: %w", ErrClosedBeforeHandshake, err)
		}

		rec, ok, err := record.TryFrame(res.Buffer)
		if err != nil {
			return record.Record{}, err
		}
		if ok {
			p.logRecord(log.DirectionIn, rec)
			if err := p.checkHandshakeRecord(rec); err != nil {
				return record.Record{}, err
			}
			return rec, nil
		}

		if res.Completed {
			if len(res.Buffer) == 0 {
				return record.Record{}, ErrClosedBeforeHandshake
			}
			return record.Record{}, fmt.Errorf("%w: %w", ErrClosedBeforeHandshake, ErrTruncated)
		}
		in.AdvanceTo(0, len(res.Buffer))
	}
}

// checkHandshakeRecord accepts handshake and change_cipher_spec records.
// Once the ServerHello selected TLS 1.3, application_data records are
// accepted too since they carry the encrypted rest of the handshake.
// The ServerHello may span several handshake records.
func (p *ClientPipeline) checkHandshakeRecord(rec record.Record) error {
	switch rec.Type {
	case record.TypeHandshake:
		if p.hello.Done() {
			return nil
		}
		v, done, err := p.hello.Feed(rec.Payload())
		if err != nil {
			return err
		}
		if done {
			p.version = v
			p.logger.Debug("server hello", "version", v.String())
		}
		return nil
	case record.TypeChangeCipherSpec:
		return nil
	case record.TypeApplicationData:
		if p.version == record.VersionTLS13 {
			return nil
		}
	case record.TypeAlert:
		if pl := rec.Payload(); len(pl) == 2 {
			return fmt.Errorf("%w: %s (level %d, description %d)", ErrUnexpectedRecord, rec.Type, pl[0], pl[1])
		}
	}
	return fmt.Errorf("%w: %s", ErrUnexpectedRecord, rec.Type)
}
