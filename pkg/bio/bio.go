package bio

import (
	"errors"
	"sync"
)

// WriteChunkSize is the largest span requested from a Sink per Alloc.
const WriteChunkSize = 4096 - 64

// Bridge errors.
var (
	// ErrWouldBlock is returned by the read shim when no input is bound or
	// the bound input is exhausted. It implements net.Error with
	// Timeout and Temporary reporting true, so TLS engines treat it as a
	// retryable condition rather than a broken connection.
	ErrWouldBlock error = wouldBlockError{}

	// ErrNoSink is returned by the write shim when no output is bound.
	ErrNoSink = errors.New("bio: no output bound")

	// ErrAlreadyBound is returned by Slot.Bind when a binding is active.
	ErrAlreadyBound = errors.New("bio: slot already bound")
)

type wouldBlockError struct{}

func (wouldBlockError) Error() string   { return "bio: operation would block" }
func (wouldBlockError) Timeout() bool   { return true }
func (wouldBlockError) Temporary() bool { return true }

// Source is a consumable view over inbound ciphertext.
type Source struct {
	buf []byte
}

// NewSource creates a source over b. The source does not copy b.
func NewSource(b []byte) *Source {
	return &Source{buf: b}
}

// Len returns the number of unread bytes.
func (s *Source) Len() int {
	if s == nil {
		return 0
	}
	return len(s.buf)
}

// Read copies up to len(p) bytes and consumes them.
func (s *Source) Read(p []byte) int {
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n
}

// Sink receives outbound ciphertext. *pipe.Writer implements it.
type Sink interface {
	// Alloc returns a writable span of at least n bytes.
	Alloc(n int) []byte
	// Advance marks the first n bytes of the last span as written.
	Advance(n int)
	// Commit publishes advanced bytes to the consumer.
	Commit()
}

// Binding pairs the input and output an engine call may touch.
type Binding struct {
	In  *Source
	Out Sink
}

// ReadShim satisfies an engine read from the bound source.
func ReadShim(b *Binding, p []byte) (int, error) {
	if b == nil || b.In.Len() == 0 {
		return 0, ErrWouldBlock
	}
	if len(p) == 0 {
		return 0, nil
	}
	return b.In.Read(p), nil
}

// WriteShim satisfies an engine write into the bound sink. Data is
// copied in spans of at most WriteChunkSize bytes and committed once.
func WriteShim(b *Binding, p []byte) (int, error) {
	if b == nil || b.Out == nil {
		return 0, ErrNoSink
	}

	total := 0
	for total < len(p) {
		n := len(p) - total
		if n > WriteChunkSize {
			n = WriteChunkSize
		}
		span := b.Out.Alloc(n)
		n = copy(span, p[total:total+n])
		b.Out.Advance(n)
		total += n
	}
	b.Out.Commit()
	return total, nil
}

// Slot holds the binding of one engine session. Each session owns its
// own slot; there is no process-wide binding state.
type Slot struct {
	mu  sync.Mutex
	cur *Binding
}

// Bind installs in and out for the duration of one engine call. The
// returned release func clears both and must always be called.
func (s *Slot) Bind(in *Source, out Sink) (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		return nil, ErrAlreadyBound
	}
	b := &Binding{In: in, Out: out}
	s.cur = b

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.cur == b {
				s.cur = nil
			}
			s.mu.Unlock()
		})
	}, nil
}

// Current returns the active binding, or nil.
func (s *Slot) Current() *Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Bound reports whether a binding is active.
func (s *Slot) Bound() bool {
	return s.Current() != nil
}
