package engine

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tlspipe/tlspipe/pkg/bio"
)

// Engine errors.
var (
	// ErrInvalidConfig indicates an inconsistent Config.
	ErrInvalidConfig = errors.New("invalid engine config")

	// ErrContextClosed is returned by NewSession after Close.
	ErrContextClosed = errors.New("engine context closed")

	// ErrSessionClosed is returned by session calls after Close.
	ErrSessionClosed = errors.New("engine session closed")

	// ErrHandshakeIncomplete is returned by data calls before the
	// handshake has succeeded.
	ErrHandshakeIncomplete = errors.New("handshake not complete")
)

// Code is the result of one engine step.
type Code uint8

const (
	// CodeOK indicates the call made progress and needs nothing further.
	CodeOK Code = iota
	// CodeWantRead indicates the engine needs more inbound ciphertext.
	CodeWantRead
	// CodeClosed indicates the peer sent close_notify.
	CodeClosed
	// CodeFatal indicates an unrecoverable engine error.
	CodeFatal
)

// String returns the code name.
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeWantRead:
		return "WANT_READ"
	case CodeClosed:
		return "CLOSED"
	case CodeFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(c))
	}
}

// CodeError is a failed engine step: the code it returned and the
// library error behind it, if any.
type CodeError struct {
	Code Code
	Err  error
}

func (e *CodeError) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return e.Err.Error()
}

func (e *CodeError) Unwrap() error { return e.Err }

// Session is one client TLS connection driven step by step. Every call
// binds in/out to the session's memory bridge for its duration only.
// Implementations serialize all calls.
type Session interface {
	// Handshake advances the handshake with the bytes in in, writing any
	// produced records to out.
	Handshake(in *bio.Source, out bio.Sink) (Code, error)

	// Encrypt seals plaintext p into records written to out and returns
	// the number of plaintext bytes consumed.
	Encrypt(p []byte, out bio.Sink) (int, Code, error)

	// Decrypt opens records from in into p. out receives any records the
	// engine must send in response (for example key updates).
	Decrypt(in *bio.Source, p []byte, out bio.Sink) (int, Code, error)

	// CloseWrite sends close_notify to out.
	CloseWrite(out bio.Sink) error

	// ConnectionState returns the negotiated parameters. It is the zero
	// value until the handshake has completed.
	ConnectionState() tls.ConnectionState

	// Close releases the session. It is idempotent.
	Close() error
}

// SessionOptions configures one session.
type SessionOptions struct {
	// GetClientCertificate is called when the server requests a client
	// certificate. Nil offers none.
	GetClientCertificate func(*tls.CertificateRequestInfo) (*tls.Certificate, error)

	// Observer is notified of every shim call. Optional.
	Observer bio.Observer
}

// Context holds the client configuration shared by sessions.
type Context struct {
	cfg       Config
	tlsConfig *tls.Config
	helloID   *helloPreset
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
	// live counts sessions created and not yet closed.
	live int
}

// NewContext validates cfg and creates a context. logger may be nil.
func NewContext(cfg Config, logger *slog.Logger) (*Context, error) {
	tlsConfig, err := BuildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Context{
		cfg:       cfg,
		tlsConfig: tlsConfig,
		logger:    logger,
	}
	if id, ok := lookupFingerprint(cfg.Fingerprint); ok {
		c.helloID = &helloPreset{id: id}
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Context) Config() Config {
	return c.cfg
}

// NewSession creates a client session.
func (c *Context) NewSession(opts SessionOptions) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	c.live++

	s := newSession(opts.Observer)
	s.onClose = c.sessionClosed
	if c.helloID != nil {
		s.tls = newUTLSConn(s.conn, c.cfg, c.helloID.id, opts.GetClientCertificate)
	} else {
		cfg := c.tlsConfig.Clone()
		cfg.GetClientCertificate = opts.GetClientCertificate
		s.tls = newStdConn(s.conn, cfg)
	}

	if c.logger != nil {
		c.logger.Debug("engine session created",
			"server_name", c.cfg.ServerName,
			"fingerprint", c.cfg.Fingerprint,
			"live_sessions", c.live)
	}
	return s, nil
}

func (c *Context) sessionClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live--
}

// Sessions returns the number of sessions created from c and not yet
// closed.
func (c *Context) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Close releases the context. Existing sessions stay usable; new ones
// cannot be created. It is idempotent.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed && c.logger != nil {
		c.logger.Debug("engine context closed", "live_sessions", c.live)
	}
	c.closed = true
	return nil
}
