package tlspipe

import (
	"context"
	"fmt"

	"github.com/tlspipe/tlspipe/pkg/bio"
	"github.com/tlspipe/tlspipe/pkg/engine"
	"github.com/tlspipe/tlspipe/pkg/log"
	"github.com/tlspipe/tlspipe/pkg/record"
)

func (p *ClientPipeline) runInbound() {
	defer p.wg.Done()
	defer p.pumpDone()
	p.logState(log.StateEntityInbound, "", "RUNNING", "")

	err := p.inbound(p.ctx)

	app := p.input.Writer()
	switch {
	case err == nil:
		app.Complete(nil)
		p.logState(log.StateEntityInbound, "RUNNING", "DONE", "end of stream")
	case p.ctx.Err() != nil:
		app.Complete(ErrClosed)
		p.logState(log.StateEntityInbound, "RUNNING", "DONE", "closed")
	default:
		p.setErr(err)
		app.Complete(err)
		p.logError(log.LayerPipeline, err, "inbound")
		p.logState(log.StateEntityInbound, "RUNNING", "FAILED", err.Error())
		p.logger.Warn("inbound pump failed", "error", err)
	}
	p.transport.Input().Complete()
}

// inbound decrypts transport records into the application input until
// the peer closes or an error occurs.
func (p *ClientPipeline) inbound(ctx context.Context) error {
	in := p.transport.Input()

	for {
		res, err := in.Read(ctx)
		if err != nil {
			return fmt.Errorf("transport read: %w", err)
		}

		cur := record.NewCursor(res.Buffer)
		for {
			rec, ok, err := cur.Next()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			p.logRecord(log.DirectionIn, rec)

			switch rec.Type {
			case record.TypeApplicationData, record.TypeAlert:
			case record.TypeHandshake, record.TypeChangeCipherSpec:
				return fmt.Errorf("%w: %s record", ErrRenegotiation, rec.Type)
			default:
				return fmt.Errorf("%w: %s after handshake", ErrUnexpectedRecord, rec.Type)
			}

			closed, err := p.decryptRecord(ctx, rec)
			if err != nil {
				return err
			}
			if closed {
				in.AdvanceTo(cur.Consumed(), cur.Consumed())
				p.logger.Debug("peer sent close_notify")
				return nil
			}
		}

		consumed := cur.Consumed()
		in.AdvanceTo(consumed, len(res.Buffer))
		if res.Completed {
			if len(res.Buffer) > consumed {
				return ErrTruncated
			}
			return nil
		}
	}
}

// decryptRecord feeds one record to the session and moves all plaintext
// it yields into the application input. It reports whether the peer
// closed the connection.
func (p *ClientPipeline) decryptRecord(ctx context.Context, rec record.Record) (bool, error) {
	app := p.input.Writer()
	src := bio.NewSource(rec.Raw)

	for {
		span := app.Alloc(p.cfg.decryptSpan())
		n, code, err := p.session.Decrypt(src, span, p.sink)
		if n > 0 {
			app.Advance(n)
		}

		switch code {
		case engine.CodeOK:
			continue
		case engine.CodeWantRead:
			if err := app.Flush(ctx); err != nil {
				return false, fmt.Errorf("application input: %w", err)
			}
			return false, nil
		case engine.CodeClosed:
			if err := app.Flush(ctx); err != nil {
				return false, fmt.Errorf("application input: %w", err)
			}
			return true, nil
		default:
			return false, &engine.CodeError{Code: code, Err: err}
		}
	}
}

func (p *ClientPipeline) runOutbound() {
	defer p.wg.Done()
	defer p.pumpDone()
	p.logState(log.StateEntityOutbound, "", "RUNNING", "")

	err := p.outbound(p.ctx)

	switch {
	case err == nil:
		p.logState(log.StateEntityOutbound, "RUNNING", "DONE", "close_notify sent")
	case p.ctx.Err() != nil:
		p.logState(log.StateEntityOutbound, "RUNNING", "DONE", "closed")
	default:
		p.setErr(err)
		p.transport.Output().Complete(err)
		p.logError(log.LayerPipeline, err, "outbound")
		p.logState(log.StateEntityOutbound, "RUNNING", "FAILED", err.Error())
		p.logger.Warn("outbound pump failed", "error", err)
	}
	p.output.Reader().Complete()
}

// outbound encrypts application output onto the transport until the
// application completes its output or an error occurs.
func (p *ClientPipeline) outbound(ctx context.Context) error {
	src := p.output.Reader()
	out := p.transport.Output()
	chunk := p.cfg.encryptChunk()

	for {
		res, err := src.Read(ctx)
		if err != nil {
			return fmt.Errorf("application output: %w", err)
		}

		buf := res.Buffer
		for off := 0; off < len(buf); {
			end := min(off+chunk, len(buf))
			if err := p.encrypt(buf[off:end]); err != nil {
				return err
			}
			off = end
		}
		src.Advance(len(buf))

		if len(buf) > 0 {
			if err := out.Flush(ctx); err != nil {
				return fmt.Errorf("transport flush: %w", err)
			}
		}

		if res.Completed {
			if err := p.session.CloseWrite(p.sink); err != nil {
				return err
			}
			if err := out.Flush(ctx); err != nil {
				return fmt.Errorf("transport flush: %w", err)
			}
			out.Complete(nil)
			return nil
		}
	}
}

// encrypt hands b to the session until all of it is consumed.
func (p *ClientPipeline) encrypt(b []byte) error {
	for len(b) > 0 {
		n, code, err := p.session.Encrypt(b, p.sink)
		if code != engine.CodeOK || err != nil {
			return &engine.CodeError{Code: code, Err: err}
		}
		if n == 0 {
			return ErrNoProgress
		}
		b = b[n:]
	}
	return nil
}
