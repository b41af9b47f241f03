package tlspipe

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tlspipe/tlspipe/pkg/bio"
	"github.com/tlspipe/tlspipe/pkg/engine"
	"github.com/tlspipe/tlspipe/pkg/log"
	"github.com/tlspipe/tlspipe/pkg/pipe"
	"github.com/tlspipe/tlspipe/pkg/record"
)

// ClientPipeline is a TLS client running over a duplex transport.
// It implements pipe.Duplex on the application side.
type ClientPipeline struct {
	transport pipe.Duplex
	cfg       Config
	eng       Engine
	session   engine.Session

	logger *slog.Logger
	plog   log.Logger
	connID string

	// sink is where the engine writes ciphertext: the transport output,
	// wrapped for record capture when protocol logging is on.
	sink bio.Sink

	input  *pipe.Pipe // decrypted bytes for the application
	output *pipe.Pipe // application bytes to encrypt
	app    *pipe.Conn

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32

	// version is the protocol version announced in the ServerHello,
	// reassembled by hello. Only the handshake goroutine touches them.
	version record.Version
	hello   record.HelloReader

	// lifecycle serializes handshake start, pump start and Close.
	lifecycle sync.Mutex
	outcome   *Outcome
	closed    bool
	wg        sync.WaitGroup
	active    atomic.Int32

	errMu sync.Mutex
	err   error

	releaseOnce sync.Once
	done        chan struct{}
	doneOnce    sync.Once
}

var _ pipe.Duplex = (*ClientPipeline)(nil)

// New creates a client pipeline over transport with its own engine
// context built from cfg.Engine.
func New(transport pipe.Duplex, cfg Config, opts ClientOptions) (*ClientPipeline, error) {
	eng, err := engine.NewContext(cfg.Engine, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	p, err := NewWithEngine(transport, eng, cfg, opts)
	if err != nil {
		eng.Close()
		return nil, err
	}
	return p, nil
}

// NewWithEngine creates a client pipeline using eng for its session.
// The pipeline takes ownership of eng and closes it on release.
func NewWithEngine(transport pipe.Duplex, eng Engine, cfg Config, opts ClientOptions) (*ClientPipeline, error) {
	if cfg.ConnectionID == "" {
		cfg.ConnectionID = uuid.NewString()
	}
	if cfg.Pipe == (pipe.Options{}) {
		cfg.Pipe = pipe.DefaultOptions()
	}

	p := &ClientPipeline{
		transport: transport,
		cfg:       cfg,
		eng:       eng,
		logger:    cfg.Logger,
		plog:      cfg.ProtocolLogger,
		connID:    cfg.ConnectionID,
		input:     pipe.New(cfg.inputOptions()),
		output:    pipe.New(cfg.Pipe),
		done:      make(chan struct{}),
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	p.logger = p.logger.With("conn_id", p.connID)
	p.app = pipe.NewConn(p.input.Reader(), p.output.Writer())
	p.ctx, p.cancel = context.WithCancel(context.Background())

	if !log.Enabled(p.plog) {
		p.plog = nil
	}
	p.sink = transport.Output()
	sessOpts := engine.SessionOptions{GetClientCertificate: opts.ClientCertificate}
	if p.plog != nil {
		p.sink = &recordSink{Sink: transport.Output(), p: p}
		sessOpts.Observer = p.observeShim
	}

	session, err := eng.NewSession(sessOpts)
	if err != nil {
		p.cancel()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	p.session = session
	return p, nil
}

// AuthenticateClient creates a pipeline over transport and completes the
// handshake. On failure the pipeline is closed.
func AuthenticateClient(ctx context.Context, transport pipe.Duplex, cfg Config, opts ClientOptions) (*ClientPipeline, error) {
	p, err := New(transport, cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := p.Authenticate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Authenticate starts the handshake on first call and waits for its
// outcome. Concurrent and repeated calls share the same outcome. ctx
// bounds only the wait.
func (p *ClientPipeline) Authenticate(ctx context.Context) error {
	p.lifecycle.Lock()
	if p.outcome == nil {
		p.outcome = newOutcome()
		if p.closed {
			p.outcome.resolve(ErrClosed)
		} else {
			p.setState(StateHandshaking, "authenticate")
			p.wg.Add(1)
			go p.runHandshake()
		}
	}
	o := p.outcome
	p.lifecycle.Unlock()

	return o.Wait(ctx)
}

// Outcome returns the handshake outcome, or nil before Authenticate.
func (p *ClientPipeline) Outcome() *Outcome {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	return p.outcome
}

// Input returns the reader of decrypted application bytes.
func (p *ClientPipeline) Input() *pipe.Reader {
	return p.app.Input()
}

// Output returns the writer for application bytes to encrypt.
// Completing it sends close_notify.
func (p *ClientPipeline) Output() *pipe.Writer {
	return p.app.Output()
}

// Stream returns the application side as an io.ReadWriteCloser.
func (p *ClientPipeline) Stream() *pipe.Stream {
	return pipe.NewStream(p.app)
}

// State returns the handshake state.
func (p *ClientPipeline) State() State {
	return State(p.state.Load())
}

// Err returns the first error that ended the handshake or a pump.
func (p *ClientPipeline) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Done is closed when the pipeline has stopped: both pumps ended, the
// handshake failed, or Close was called.
func (p *ClientPipeline) Done() <-chan struct{} {
	return p.done
}

// ConnectionID returns the identifier used in protocol events.
func (p *ClientPipeline) ConnectionID() string {
	return p.connID
}

// ConnectionState returns the negotiated TLS parameters. It is the zero
// value until the handshake has completed.
func (p *ClientPipeline) ConnectionState() tls.ConnectionState {
	return p.session.ConnectionState()
}

// Close stops the pipeline. A running handshake fails with
// ErrCancelled. Close waits for all goroutines, releases the engine and
// completes the transport. It is idempotent.
func (p *ClientPipeline) Close() error {
	p.lifecycle.Lock()
	if p.closed {
		p.lifecycle.Unlock()
		p.wg.Wait()
		return nil
	}
	p.closed = true
	if p.outcome == nil {
		p.outcome = newOutcome()
		p.outcome.resolve(ErrClosed)
	} else if p.casState(StateHandshaking, StateFailed, "closed during handshake") {
		p.setErr(ErrCancelled)
		p.outcome.resolve(ErrCancelled)
	}
	p.cancel()
	p.lifecycle.Unlock()

	p.wg.Wait()

	p.input.Writer().Complete(ErrClosed)
	p.output.Reader().Complete()
	p.transport.Output().Complete(nil)
	p.transport.Input().Complete()

	p.release()
	p.finish()
	p.logger.Debug("pipeline closed", "state", p.State())
	return nil
}

// release destroys the session and engine exactly once.
func (p *ClientPipeline) release() {
	p.releaseOnce.Do(func() {
		if err := p.session.Close(); err != nil {
			p.logger.Warn("failed to close session", "error", err)
		}
		if err := p.eng.Close(); err != nil {
			p.logger.Warn("failed to close engine", "error", err)
		}
	})
}

func (p *ClientPipeline) finish() {
	p.doneOnce.Do(func() { close(p.done) })
}

func (p *ClientPipeline) setErr(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.err == nil {
		p.err = err
	}
}

func (p *ClientPipeline) setState(s State, reason string) {
	old := State(p.state.Swap(int32(s)))
	if old != s {
		p.logState(log.StateEntityHandshake, old.String(), s.String(), reason)
	}
}

// casState moves from old to s if the pipeline is still in old.
func (p *ClientPipeline) casState(old, s State, reason string) bool {
	if !p.state.CompareAndSwap(int32(old), int32(s)) {
		return false
	}
	p.logState(log.StateEntityHandshake, old.String(), s.String(), reason)
	return true
}

// startPumpsLocked starts both pumps. lifecycle must be held.
func (p *ClientPipeline) startPumpsLocked() {
	p.active.Store(2)
	p.wg.Add(2)
	go p.runInbound()
	go p.runOutbound()
}

// pumpDone is called by each pump on exit.
func (p *ClientPipeline) pumpDone() {
	if p.active.Add(-1) == 0 {
		p.finish()
	}
}
