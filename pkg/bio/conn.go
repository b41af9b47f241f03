package bio

import (
	"errors"
	"net"
	"sync"
	"time"
)

// Op identifies a shim direction.
type Op uint8

const (
	OpRead Op = iota
	OpWrite
)

// String returns the op name.
func (o Op) String() string {
	if o == OpWrite {
		return "WRITE"
	}
	return "READ"
}

// ShimCall describes one shim invocation.
type ShimCall struct {
	Op        Op
	Requested int
	N         int
	Err       error
}

// WouldBlock reports whether the call ended in ErrWouldBlock.
func (c ShimCall) WouldBlock() bool {
	return errors.Is(c.Err, ErrWouldBlock)
}

// Observer is notified after every shim invocation on a Conn.
type Observer func(ShimCall)

// Parker suspends the caller of a would-block read until new input is
// bound. A nil return retries the read; an error aborts it.
type Parker func() error

// Conn is the net.Conn a TLS engine is handed in place of a socket.
// Reads and writes go through the shims against the slot's current
// binding.
type Conn struct {
	slot *Slot

	mu       sync.Mutex
	parker   Parker
	observer Observer
}

var _ net.Conn = (*Conn)(nil)

// NewConn creates a Conn over slot. observer may be nil.
func NewConn(slot *Slot, observer Observer) *Conn {
	return &Conn{slot: slot, observer: observer}
}

// SetParker installs or clears (nil) the park hook.
func (c *Conn) SetParker(p Parker) {
	c.mu.Lock()
	c.parker = p
	c.mu.Unlock()
}

func (c *Conn) hooks() (Parker, Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parker, c.observer
}

// Read implements net.Conn.
func (c *Conn) Read(p []byte) (int, error) {
	for {
		n, err := ReadShim(c.slot.Current(), p)
		parker, observer := c.hooks()
		if observer != nil {
			observer(ShimCall{Op: OpRead, Requested: len(p), N: n, Err: err})
		}
		if err != ErrWouldBlock || parker == nil {
			return n, err
		}
		if perr := parker(); perr != nil {
			return 0, perr
		}
	}
}

// Write implements net.Conn.
func (c *Conn) Write(p []byte) (int, error) {
	n, err := WriteShim(c.slot.Current(), p)
	if _, observer := c.hooks(); observer != nil {
		observer(ShimCall{Op: OpWrite, Requested: len(p), N: n, Err: err})
	}
	return n, err
}

// Close implements net.Conn. The underlying transport is owned elsewhere.
func (c *Conn) Close() error { return nil }

func (c *Conn) LocalAddr() net.Addr  { return memAddr{} }
func (c *Conn) RemoteAddr() net.Addr { return memAddr{} }

func (c *Conn) SetDeadline(time.Time) error      { return nil }
func (c *Conn) SetReadDeadline(time.Time) error  { return nil }
func (c *Conn) SetWriteDeadline(time.Time) error { return nil }

type memAddr struct{}

func (memAddr) Network() string { return "memory" }
func (memAddr) String() string  { return "memory" }
