package tlspipe

import (
	"errors"
	"time"

	"github.com/tlspipe/tlspipe/pkg/bio"
	"github.com/tlspipe/tlspipe/pkg/engine"
	"github.com/tlspipe/tlspipe/pkg/log"
	"github.com/tlspipe/tlspipe/pkg/record"
)

// MaxLogRecordDataSize is the maximum record data included in protocol
// events. Larger records are truncated.
const MaxLogRecordDataSize = 4096

func (p *ClientPipeline) event(dir log.Direction, layer log.Layer, cat log.Category) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: p.connID,
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		RemoteAddr:   p.cfg.RemoteAddr,
		ServerName:   p.cfg.Engine.ServerName,
	}
}

// logRecord emits a record event. Raw aliases pipe memory, so the data
// is copied.
func (p *ClientPipeline) logRecord(dir log.Direction, rec record.Record) {
	if p.plog == nil {
		return
	}

	data := rec.Raw
	truncated := false
	if len(data) > MaxLogRecordDataSize {
		data = data[:MaxLogRecordDataSize]
		truncated = true
	}

	ev := p.event(dir, log.LayerTransport, log.CategoryRecord)
	ev.Record = &log.RecordEvent{
		ContentType: uint8(rec.Type),
		Version:     uint16(rec.Version),
		Size:        rec.Size(),
		Data:        append([]byte(nil), data...),
		Truncated:   truncated,
	}
	p.plog.Log(ev)
}

// observeShim is the session observer when protocol logging is on.
func (p *ClientPipeline) observeShim(c bio.ShimCall) {
	dir, op := log.DirectionIn, log.ShimRead
	if c.Op == bio.OpWrite {
		dir, op = log.DirectionOut, log.ShimWrite
	}
	ev := p.event(dir, log.LayerEngine, log.CategoryShim)
	ev.Shim = &log.ShimEvent{
		Op:          op,
		Requested:   c.Requested,
		Transferred: c.N,
		WouldBlock:  c.WouldBlock(),
	}
	p.plog.Log(ev)
}

func (p *ClientPipeline) logState(entity log.StateEntity, oldState, newState, reason string) {
	if p.plog == nil {
		return
	}
	ev := p.event(log.DirectionIn, log.LayerPipeline, log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{
		Entity:   entity,
		OldState: oldState,
		NewState: newState,
		Reason:   reason,
	}
	p.plog.Log(ev)
}

func (p *ClientPipeline) logError(layer log.Layer, err error, context string) {
	if p.plog == nil {
		return
	}
	var code *int
	var ce *engine.CodeError
	if errors.As(err, &ce) {
		c := int(ce.Code)
		code, layer = &c, log.LayerEngine
	}

	ev := p.event(log.DirectionIn, layer, log.CategoryError)
	ev.Error = &log.ErrorEventData{
		Layer:   layer,
		Message: err.Error(),
		Code:    code,
		Context: context,
	}
	p.plog.Log(ev)
}

// recordSink forwards engine output to the transport and emits a record
// event for every complete record committed. Engine calls are
// serialized by the session, so it needs no lock of its own.
type recordSink struct {
	bio.Sink
	p *ClientPipeline

	span []byte
	buf  []byte
}

func (s *recordSink) Alloc(n int) []byte {
	s.span = s.Sink.Alloc(n)
	return s.span
}

func (s *recordSink) Advance(n int) {
	if n > 0 && n <= len(s.span) {
		s.buf = append(s.buf, s.span[:n]...)
	}
	s.Sink.Advance(n)
}

func (s *recordSink) Commit() {
	s.Sink.Commit()

	cur := record.NewCursor(s.buf)
	for {
		rec, ok, err := cur.Next()
		if err != nil {
			// Not record-shaped; stop capturing rather than guess.
			s.buf = s.buf[:0]
			return
		}
		if !ok {
			break
		}
		s.p.logRecord(log.DirectionOut, rec)
	}
	n := copy(s.buf, cur.Remaining())
	s.buf = s.buf[:n]
}
