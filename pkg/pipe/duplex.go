package pipe

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Duplex is a bidirectional byte stream made of two pipes: Input carries
// bytes toward the holder, Output carries bytes away from it.
type Duplex interface {
	Input() *Reader
	Output() *Writer
}

// Conn is a Duplex assembled from one pipe's reader and another pipe's
// writer.
type Conn struct {
	in  *Reader
	out *Writer
}

var _ Duplex = (*Conn)(nil)

// NewConn assembles a Duplex from in and out.
func NewConn(in *Reader, out *Writer) *Conn {
	return &Conn{in: in, out: out}
}

// Input returns the reading side.
func (c *Conn) Input() *Reader { return c.in }

// Output returns the writing side.
func (c *Conn) Output() *Writer { return c.out }

// NewDuplexPair creates two connected in-memory duplex streams. Bytes
// written to a's output are read from b's input and vice versa.
func NewDuplexPair(opts Options) (a, b *Conn) {
	ab := New(opts)
	ba := New(opts)
	return NewConn(ba.Reader(), ab.Writer()), NewConn(ab.Reader(), ba.Writer())
}

// Stream adapts a Duplex to io.ReadWriteCloser.
type Stream struct {
	d Duplex

	readMu sync.Mutex
	closed sync.Once
}

var _ io.ReadWriteCloser = (*Stream)(nil)

// NewStream wraps d.
func NewStream(d Duplex) *Stream {
	return &Stream{d: d}
}

// Read copies buffered input into p. It returns io.EOF once the input
// completed cleanly and has been drained.
func (s *Stream) Read(p []byte) (int, error) {
	return s.ReadContext(context.Background(), p)
}

// ReadContext is Read bounded by ctx.
func (s *Stream) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	s.readMu.Lock()
	defer s.readMu.Unlock()

	in := s.d.Input()
	res, err := in.Read(ctx)
	if len(res.Buffer) > 0 {
		n := copy(p, res.Buffer)
		in.AdvanceTo(n, n)
		return n, nil
	}
	if err != nil {
		if errors.Is(err, ErrReaderCompleted) {
			return 0, io.ErrClosedPipe
		}
		return 0, err
	}
	return 0, io.EOF
}

// Write copies p into the output and flushes.
func (s *Stream) Write(p []byte) (int, error) {
	return s.WriteContext(context.Background(), p)
}

// WriteContext is Write bounded by ctx.
func (s *Stream) WriteContext(ctx context.Context, p []byte) (int, error) {
	n, err := s.d.Output().WriteContext(ctx, p)
	if errors.Is(err, ErrWriterCompleted) || errors.Is(err, ErrReaderCompleted) {
		return n, io.ErrClosedPipe
	}
	return n, err
}

// CloseWrite completes the output, signalling end of stream to the peer.
func (s *Stream) CloseWrite() error {
	s.d.Output().Complete(nil)
	return nil
}

// Close completes both directions.
func (s *Stream) Close() error {
	s.closed.Do(func() {
		s.d.Output().Complete(nil)
		s.d.Input().Complete()
	})
	return nil
}
