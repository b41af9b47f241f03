package pipe

import (
	"context"
	"errors"
	"sync"
)

// Default pipe configuration values.
const (
	DefaultPauseThreshold  = 64 * 1024
	DefaultResumeThreshold = 32 * 1024
	DefaultMinAllocSize    = 4096
)

// Pipe errors.
var (
	// ErrReaderCompleted is returned to the writer once the reader side has
	// been completed, and to the reader when it reads after completing.
	ErrReaderCompleted = errors.New("pipe reader completed")

	// ErrWriterCompleted is returned when writing after Complete.
	ErrWriterCompleted = errors.New("pipe writer completed")
)

// Options configures a Pipe.
type Options struct {
	// PauseThreshold is the number of unconsumed bytes at which Flush
	// starts waiting for the reader. Zero disables backpressure.
	PauseThreshold int

	// ResumeThreshold is the number of unconsumed bytes below which a
	// paused Flush resumes.
	ResumeThreshold int

	// MinAllocSize is the minimum span size returned by Writer.Alloc.
	MinAllocSize int
}

// DefaultOptions returns the default pipe options.
func DefaultOptions() Options {
	return Options{
		PauseThreshold:  DefaultPauseThreshold,
		ResumeThreshold: DefaultResumeThreshold,
		MinAllocSize:    DefaultMinAllocSize,
	}
}

func (o Options) normalize() Options {
	if o.MinAllocSize <= 0 {
		o.MinAllocSize = DefaultMinAllocSize
	}
	if o.PauseThreshold > 0 && (o.ResumeThreshold <= 0 || o.ResumeThreshold > o.PauseThreshold) {
		o.ResumeThreshold = o.PauseThreshold
	}
	return o
}

// ReadResult is the outcome of Reader.Read.
type ReadResult struct {
	// Buffer holds every committed byte not yet consumed. It is valid
	// until the next call to Advance, AdvanceTo or Complete.
	Buffer []byte

	// Completed reports that the writer has completed; no more bytes
	// will follow Buffer.
	Completed bool
}

// Pipe is a single-producer single-consumer byte pipe with explicit
// commit and backpressure. Reader and Writer may be used from different
// goroutines.
type Pipe struct {
	opts Options

	mu        sync.Mutex
	buf       []byte // committed, unconsumed
	pending   []byte // advanced, not yet committed
	examined  int    // prefix of buf the reader has already seen
	readerSet bool
	writerErr error
	writerSet bool
	changed   chan struct{}

	reader Reader
	writer Writer
}

// New creates a pipe.
func New(opts Options) *Pipe {
	p := &Pipe{
		opts:    opts.normalize(),
		changed: make(chan struct{}),
	}
	p.reader.p = p
	p.writer.p = p
	return p
}

// Reader returns the consuming end.
func (p *Pipe) Reader() *Reader {
	return &p.reader
}

// Writer returns the producing end.
func (p *Pipe) Writer() *Writer {
	return &p.writer
}

// Len returns the number of committed bytes not yet consumed.
func (p *Pipe) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// signalLocked wakes every goroutine waiting on the pipe.
func (p *Pipe) signalLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

// wait blocks until the pipe changes or ctx is done. Must be called with
// the mutex held; it is held again on return.
func (p *Pipe) wait(ctx context.Context) error {
	ch := p.changed
	p.mu.Unlock()
	defer p.mu.Lock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reader is the consuming end of a Pipe.
type Reader struct {
	p *Pipe
}

// Read waits until unexamined bytes are available or the writer has
// completed, and returns everything buffered.
//
// If the writer completed with an error, Read returns that error along
// with any remaining bytes.
func (r *Reader) Read(ctx context.Context) (ReadResult, error) {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.readerSet {
			return ReadResult{}, ErrReaderCompleted
		}
		if p.writerSet {
			return ReadResult{Buffer: p.buf, Completed: true}, p.writerErr
		}
		if len(p.buf) > p.examined {
			return ReadResult{Buffer: p.buf}, nil
		}
		if err := p.wait(ctx); err != nil {
			return ReadResult{}, err
		}
	}
}

// Advance releases the first consumed bytes of the last read buffer and
// marks the rest as examined, so the next Read waits for new bytes.
func (r *Reader) Advance(consumed int) {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	r.advanceLocked(consumed, len(p.buf))
}

// AdvanceTo releases consumed bytes and marks examined bytes as seen.
// examined is measured from the start of the last read buffer and is
// clamped to [consumed, len(buffer)].
func (r *Reader) AdvanceTo(consumed, examined int) {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	r.advanceLocked(consumed, examined)
}

func (r *Reader) advanceLocked(consumed, examined int) {
	p := r.p
	if consumed < 0 {
		consumed = 0
	}
	if consumed > len(p.buf) {
		consumed = len(p.buf)
	}
	if examined < consumed {
		examined = consumed
	}
	if examined > len(p.buf) {
		examined = len(p.buf)
	}

	p.examined = examined - consumed
	if consumed == 0 {
		return
	}

	remaining := len(p.buf) - consumed
	if remaining == 0 {
		p.buf = p.buf[:0]
	} else {
		// Compact so the backing array does not grow without bound.
		n := copy(p.buf, p.buf[consumed:])
		p.buf = p.buf[:n]
	}
	p.signalLocked()
}

// Complete marks the reader as done. Pending and future writes are
// discarded and the writer observes ErrReaderCompleted.
func (r *Reader) Complete() {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readerSet {
		return
	}
	p.readerSet = true
	p.buf = nil
	p.pending = nil
	p.examined = 0
	p.signalLocked()
}

// Writer is the producing end of a Pipe.
//
// Alloc and Advance use a scratch span owned by the writer and must not
// be called concurrently with each other. Commit, Flush and Complete may
// be called from any goroutine.
type Writer struct {
	p       *Pipe
	scratch []byte
}

// Alloc returns a writable span of at least n bytes. The span stays
// valid until the next Alloc or Advance call.
func (w *Writer) Alloc(n int) []byte {
	size := n
	if size < w.p.opts.MinAllocSize {
		size = w.p.opts.MinAllocSize
	}
	if cap(w.scratch) < size {
		w.scratch = make([]byte, size)
	}
	return w.scratch[:size]
}

// Advance appends the first n bytes of the last allocated span to the
// uncommitted data.
func (w *Writer) Advance(n int) {
	if n <= 0 {
		return
	}
	if n > len(w.scratch) {
		n = len(w.scratch)
	}

	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readerSet || p.writerSet {
		return
	}
	p.pending = append(p.pending, w.scratch[:n]...)
}

// Commit makes advanced data visible to the reader without waiting.
func (w *Writer) Commit() {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	w.commitLocked()
}

func (w *Writer) commitLocked() {
	p := w.p
	if len(p.pending) == 0 {
		return
	}
	p.buf = append(p.buf, p.pending...)
	p.pending = p.pending[:0]
	p.signalLocked()
}

// Flush commits advanced data, wakes the reader and waits while the
// unconsumed byte count is above the pause threshold.
func (w *Writer) Flush(ctx context.Context) error {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writerSet {
		return ErrWriterCompleted
	}
	w.commitLocked()

	paused := p.opts.PauseThreshold > 0 && len(p.buf) >= p.opts.PauseThreshold
	for {
		if p.readerSet {
			return ErrReaderCompleted
		}
		if !paused || len(p.buf) < p.opts.ResumeThreshold {
			return nil
		}
		if err := p.wait(ctx); err != nil {
			return err
		}
	}
}

// Write copies b into the pipe and flushes. It implements io.Writer.
func (w *Writer) Write(b []byte) (int, error) {
	return w.WriteContext(context.Background(), b)
}

// WriteContext copies b into the pipe and flushes under ctx.
func (w *Writer) WriteContext(ctx context.Context, b []byte) (int, error) {
	p := w.p
	p.mu.Lock()
	switch {
	case p.writerSet:
		p.mu.Unlock()
		return 0, ErrWriterCompleted
	case p.readerSet:
		p.mu.Unlock()
		return 0, ErrReaderCompleted
	}
	p.pending = append(p.pending, b...)
	p.mu.Unlock()

	if err := w.Flush(ctx); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Complete marks the writer as done. Uncommitted data is committed; the
// reader sees Completed once it has drained the buffer, and err (if any)
// from its next Read.
func (w *Writer) Complete(err error) {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writerSet {
		return
	}
	w.commitLocked()
	p.writerSet = true
	p.writerErr = err
	p.signalLocked()
}

// IsCompleted reports whether the writer has completed.
func (w *Writer) IsCompleted() bool {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writerSet
}

// ReaderCompleted reports whether the reader has completed.
func (w *Writer) ReaderCompleted() bool {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readerSet
}

// WaitReaderCompleted blocks until the reader has completed or ctx is
// done.
func (w *Writer) WaitReaderCompleted(ctx context.Context) error {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.readerSet {
		if err := p.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
