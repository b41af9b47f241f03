package tlspipe

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Pipeline errors.
var (
	// ErrUnexpectedRecord indicates a record type not allowed in the
	// current handshake state.
	ErrUnexpectedRecord = errors.New("unexpected record during handshake")

	// ErrRenegotiation indicates a handshake record after the handshake
	// completed. Renegotiation is not supported.
	ErrRenegotiation = errors.New("renegotiation not supported")

	// ErrClosedBeforeHandshake indicates the transport ended before the
	// handshake completed.
	ErrClosedBeforeHandshake = errors.New("transport closed before handshake completed")

	// ErrTruncated indicates the transport ended inside a record.
	ErrTruncated = errors.New("transport ended with a partial record")

	// ErrHandshakeFailed wraps a fatal engine error during the handshake.
	ErrHandshakeFailed = errors.New("failed to complete handshake")

	// ErrCancelled indicates the pipeline was closed during the handshake.
	ErrCancelled = errors.New("handshake cancelled")

	// ErrClosed indicates the pipeline has been closed.
	ErrClosed = errors.New("pipeline closed")

	// ErrNoProgress indicates the engine accepted no plaintext without
	// reporting an error.
	ErrNoProgress = errors.New("engine made no progress")
)

// State is the handshake state of a pipeline.
type State int32

const (
	StateNotStarted State = iota
	StateHandshaking
	StateComplete
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateComplete:
		return "COMPLETE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(s))
	}
}

// Outcome is the single-assignment result of a handshake.
type Outcome struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newOutcome() *Outcome {
	return &Outcome{done: make(chan struct{})}
}

// resolve sets the result. Only the first call has an effect; it
// reports whether this call was the one.
func (o *Outcome) resolve(err error) bool {
	resolved := false
	o.once.Do(func() {
		o.err = err
		close(o.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the outcome is resolved.
func (o *Outcome) Done() <-chan struct{} {
	return o.done
}

// Err returns the handshake error, or nil on success or while pending.
func (o *Outcome) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Wait blocks until the outcome is resolved or ctx is done.
func (o *Outcome) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
