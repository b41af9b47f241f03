package transport

import (
	"net"

	"github.com/tlspipe/tlspipe/pkg/pipe"
)

// Transport is a duplex byte stream backed by a network connection.
// Implemented by Socket.
type Transport interface {
	pipe.Duplex

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr

	// Done is closed once the connection has been released.
	Done() <-chan struct{}

	// Err returns the first connection error.
	Err() error

	// Close closes the connection.
	Close() error
}

// Compile-time interface satisfaction checks.
var _ Transport = (*Socket)(nil)
