package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/tlspipe/tlspipe/pkg/bio"
)

// tlsConn is the subset of a TLS client connection a session drives.
type tlsConn interface {
	Handshake() error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	CloseWrite() error
	ConnectionState() tls.ConnectionState
}

// stepResult is what the handshake goroutine reports to a stepping caller.
type stepResult struct {
	done bool
	err  error
}

// session drives a blocking TLS client over a bio.Conn.
//
// The engine handshake blocks on reads, so it runs on its own goroutine.
// When the read shim would block, the goroutine parks and hands control
// back to Handshake, which returns CodeWantRead. The next Handshake call
// binds fresh input and resumes it. After completion, Read and Write are
// called directly and surface bio.ErrWouldBlock as CodeWantRead.
type session struct {
	slot bio.Slot
	conn *bio.Conn
	tls  tlsConn

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	started  bool
	hsDone   bool
	hsErr    error
	closed   bool
	resume   chan struct{}
	yield    chan stepResult
	finished chan struct{}

	// onClose runs once when the session is closed. Optional.
	onClose func()
}

var _ Session = (*session)(nil)

func newSession(observer bio.Observer) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		ctx:      ctx,
		cancel:   cancel,
		resume:   make(chan struct{}),
		yield:    make(chan stepResult),
		finished: make(chan struct{}),
	}
	s.conn = bio.NewConn(&s.slot, observer)
	return s
}

// Handshake implements Session.
func (s *session) Handshake(in *bio.Source, out bio.Sink) (Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return CodeFatal, ErrSessionClosed
	}
	if s.hsDone {
		if s.hsErr != nil {
			return CodeFatal, s.hsErr
		}
		return CodeOK, nil
	}

	release, err := s.slot.Bind(in, out)
	if err != nil {
		return CodeFatal, err
	}
	defer release()

	if !s.started {
		s.started = true
		s.conn.SetParker(s.park)
		go s.runHandshake()
	} else {
		select {
		case s.resume <- struct{}{}:
		case <-s.ctx.Done():
			<-s.finished
			return CodeFatal, ErrSessionClosed
		}
	}

	select {
	case r := <-s.yield:
		if !r.done {
			return CodeWantRead, nil
		}
		s.hsDone = true
		s.conn.SetParker(nil)
		if r.err != nil {
			s.hsErr = fmt.Errorf("handshake: %w", r.err)
			return CodeFatal, s.hsErr
		}
		return CodeOK, nil
	case <-s.ctx.Done():
		// Keep the binding until the goroutine has let go of it.
		<-s.finished
		return CodeFatal, ErrSessionClosed
	}
}

func (s *session) runHandshake() {
	defer close(s.finished)
	err := s.tls.Handshake()
	select {
	case s.yield <- stepResult{done: true, err: err}:
	case <-s.ctx.Done():
	}
}

// park runs on the handshake goroutine when the read shim would block.
func (s *session) park() error {
	select {
	case s.yield <- stepResult{}:
	case <-s.ctx.Done():
		return net.ErrClosed
	}
	select {
	case <-s.resume:
		return nil
	case <-s.ctx.Done():
		return net.ErrClosed
	}
}

// ready must be called with mu held.
func (s *session) ready() error {
	switch {
	case s.closed:
		return ErrSessionClosed
	case !s.hsDone:
		return ErrHandshakeIncomplete
	case s.hsErr != nil:
		return s.hsErr
	}
	return nil
}

// Encrypt implements Session.
func (s *session) Encrypt(p []byte, out bio.Sink) (int, Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return 0, CodeFatal, err
	}

	release, err := s.slot.Bind(nil, out)
	if err != nil {
		return 0, CodeFatal, err
	}
	defer release()

	n, err := s.tls.Write(p)
	if err != nil {
		return n, CodeFatal, fmt.Errorf("failed to encrypt: %w", err)
	}
	return n, CodeOK, nil
}

// Decrypt implements Session.
func (s *session) Decrypt(in *bio.Source, p []byte, out bio.Sink) (int, Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return 0, CodeFatal, err
	}

	release, err := s.slot.Bind(in, out)
	if err != nil {
		return 0, CodeFatal, err
	}
	defer release()

	n, err := s.tls.Read(p)
	switch {
	case err == nil:
		return n, CodeOK, nil
	case errors.Is(err, bio.ErrWouldBlock):
		if n > 0 {
			return n, CodeOK, nil
		}
		return 0, CodeWantRead, nil
	case errors.Is(err, io.EOF):
		return n, CodeClosed, nil
	default:
		return n, CodeFatal, fmt.Errorf("failed to decrypt: %w", err)
	}
}

// CloseWrite implements Session.
func (s *session) CloseWrite(out bio.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}

	release, err := s.slot.Bind(nil, out)
	if err != nil {
		return err
	}
	defer release()

	if err := s.tls.CloseWrite(); err != nil {
		return fmt.Errorf("failed to send close_notify: %w", err)
	}
	return nil
}

// ConnectionState implements Session.
func (s *session) ConnectionState() tls.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hsDone || s.hsErr != nil || s.closed {
		return tls.ConnectionState{}
	}
	return s.tls.ConnectionState()
}

// Close implements Session.
func (s *session) Close() error {
	// Cancel first so a parked or stepping handshake lets go of mu.
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.started {
		<-s.finished
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}
