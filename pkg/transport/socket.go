package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tlspipe/tlspipe/pkg/pipe"
)

// SocketState is the lifecycle state of a Socket.
type SocketState int

const (
	// StateOpen indicates both directions are running.
	StateOpen SocketState = iota

	// StateHalfClosed indicates one direction has finished.
	StateHalfClosed

	// StateClosed indicates the connection has been closed.
	StateClosed
)

// String returns the socket state name.
func (s SocketState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateHalfClosed:
		return "HALF_CLOSED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Socket errors.
var (
	ErrSocketClosed = errors.New("socket closed")
)

// Default socket configuration values.
const (
	DefaultReadBufferSize = 16 * 1024
	DefaultConnectTimeout = 30 * time.Second
	DefaultKeepAlive      = 15 * time.Second
)

// SocketConfig configures a Socket.
type SocketConfig struct {
	// Pipe configures the input and output pipes.
	Pipe pipe.Options

	// ReadBufferSize is the span requested per socket read (default: 16KB).
	ReadBufferSize int

	// WriteTimeout bounds each socket write (0 = no timeout).
	WriteTimeout time.Duration

	// Logger receives operational logs. Nil disables logging.
	Logger *slog.Logger
}

// DefaultSocketConfig returns the default socket configuration.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		Pipe:           pipe.DefaultOptions(),
		ReadBufferSize: DefaultReadBufferSize,
	}
}

// closeWriter is implemented by connections that support half close,
// such as *net.TCPConn and *net.UnixConn.
type closeWriter interface {
	CloseWrite() error
}

// Socket connects a net.Conn to a pair of pipes. Bytes read from the
// connection appear on Input; bytes written to Output are sent to the
// connection.
//
// Completing Output half-closes the connection. The connection is closed
// once Output has been drained and the Input reader has completed, or
// immediately when Output completes with an error.
type Socket struct {
	conn   net.Conn
	config SocketConfig
	logger *slog.Logger

	in  *pipe.Pipe // conn -> holder
	out *pipe.Pipe // holder -> conn

	state     atomic.Int32
	open      atomic.Int32
	closeOnce sync.Once
	done      chan struct{}
	writeDone chan struct{}

	errMu sync.Mutex
	err   error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ pipe.Duplex = (*Socket)(nil)

// NewSocket starts moving bytes between conn and the returned socket's
// pipes. The socket owns conn.
func NewSocket(conn net.Conn, config SocketConfig) *Socket {
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = DefaultReadBufferSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		conn:      conn,
		config:    config,
		logger:    logger.With("remote", conn.RemoteAddr().String()),
		in:        pipe.New(config.Pipe),
		out:       pipe.New(config.Pipe),
		done:      make(chan struct{}),
		writeDone: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.open.Store(2)

	s.wg.Add(3)
	go s.readLoop()
	go s.writeLoop()
	go s.watch()
	go func() {
		s.wg.Wait()
		s.finish()
	}()

	return s
}

// Input returns the reader of bytes received from the connection.
func (s *Socket) Input() *pipe.Reader {
	return s.in.Reader()
}

// Output returns the writer of bytes to send on the connection.
func (s *Socket) Output() *pipe.Writer {
	return s.out.Writer()
}

// State returns the current socket state.
func (s *Socket) State() SocketState {
	return SocketState(s.state.Load())
}

// Done is closed once the connection has been closed and both loops
// have exited.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Err returns the first connection error, or nil if the connection
// ended cleanly.
func (s *Socket) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// LocalAddr returns the local network address.
func (s *Socket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (s *Socket) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Close closes the connection and completes both pipes. It waits for the
// loops to exit.
func (s *Socket) Close() error {
	s.closeConn()
	s.in.Writer().Complete(ErrSocketClosed)
	s.out.Reader().Complete()
	<-s.done
	return nil
}

// readLoop copies the connection into the input pipe.
func (s *Socket) readLoop() {
	defer s.wg.Done()
	defer s.halfClose("read")

	w := s.in.Writer()
	for {
		buf := w.Alloc(s.config.ReadBufferSize)
		n, err := s.conn.Read(buf)
		if n > 0 {
			w.Advance(n)
			if ferr := w.Flush(s.ctx); ferr != nil {
				// Holder stopped reading.
				return
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.logger.Debug("peer closed connection")
				w.Complete(nil)
			case s.ctx.Err() != nil:
				w.Complete(ErrSocketClosed)
			default:
				err = fmt.Errorf("socket read: %w", err)
				s.setErr(err)
				s.logger.Warn("socket read failed", "error", err)
				w.Complete(err)
			}
			return
		}
	}
}

// writeLoop copies the output pipe onto the connection.
func (s *Socket) writeLoop() {
	defer s.wg.Done()
	defer close(s.writeDone)
	defer s.halfClose("write")

	r := s.out.Reader()
	defer r.Complete()

	for {
		res, err := r.Read(s.ctx)
		if len(res.Buffer) > 0 {
			if werr := s.write(res.Buffer); werr != nil {
				s.setErr(werr)
				s.logger.Warn("socket write failed", "error", werr)
				s.closeConn()
				return
			}
			r.Advance(len(res.Buffer))
		}

		switch {
		case err != nil:
			if s.ctx.Err() == nil && !errors.Is(err, pipe.ErrReaderCompleted) {
				// Output aborted by the holder.
				s.logger.Debug("output aborted", "error", err)
				s.closeConn()
			}
			return
		case res.Completed:
			if cw, ok := s.conn.(closeWriter); ok {
				if cerr := cw.CloseWrite(); cerr != nil {
					s.logger.Debug("close write failed", "error", cerr)
				}
			}
			return
		}
	}
}

func (s *Socket) write(b []byte) error {
	if s.config.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	if _, err := s.conn.Write(b); err != nil {
		return fmt.Errorf("socket write: %w", err)
	}
	return nil
}

// watch closes the connection once the holder has stopped reading and
// the write loop has finished, which unblocks a pending read.
func (s *Socket) watch() {
	defer s.wg.Done()

	if err := s.in.Writer().WaitReaderCompleted(s.ctx); err != nil {
		return
	}
	select {
	case <-s.writeDone:
		s.closeConn()
	case <-s.ctx.Done():
	}
}

func (s *Socket) halfClose(dir string) {
	if s.open.Add(-1) > 0 {
		s.state.CompareAndSwap(int32(StateOpen), int32(StateHalfClosed))
		s.logger.Debug("socket half closed", "direction", dir)
	}
}

func (s *Socket) closeConn() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.cancel()
		_ = s.conn.Close()
	})
}

func (s *Socket) finish() {
	s.closeConn()
	s.in.Writer().Complete(ErrSocketClosed)
	close(s.done)
	s.logger.Debug("socket closed")
}

func (s *Socket) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
