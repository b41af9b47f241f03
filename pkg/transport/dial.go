package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// DialConfig configures outbound connections.
type DialConfig struct {
	// ConnectTimeout bounds the dial when ctx has no deadline
	// (default: 30s).
	ConnectTimeout time.Duration

	// KeepAlive is the TCP keep-alive period (default: 15s, negative
	// disables).
	KeepAlive time.Duration

	// Direct bypasses the proxy settings from the environment.
	Direct bool
}

// DefaultDialConfig returns the default dial configuration.
func DefaultDialConfig() DialConfig {
	return DialConfig{
		ConnectTimeout: DefaultConnectTimeout,
		KeepAlive:      DefaultKeepAlive,
	}
}

// Dial connects to address on the named network, honouring ALL_PROXY
// and NO_PROXY from the environment.
func Dial(ctx context.Context, network, address string) (net.Conn, error) {
	return DefaultDialConfig().Dial(ctx, network, address)
}

// Dial connects to address using c.
func (c DialConfig) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = DefaultKeepAlive
	}

	// Apply timeout from config if context doesn't have one
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ConnectTimeout)
		defer cancel()
	}

	direct := &net.Dialer{KeepAlive: c.KeepAlive}

	var d proxy.Dialer = direct
	if !c.Direct {
		d = proxy.FromEnvironmentUsing(direct)
	}

	var (
		conn net.Conn
		err  error
	)
	if cd, ok := d.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, network, address)
	} else {
		conn, err = d.Dial(network, address)
	}
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return conn, nil
}

// DialSocket dials address and wraps the connection in a Socket.
func DialSocket(ctx context.Context, network, address string, dial DialConfig, config SocketConfig) (*Socket, error) {
	conn, err := dial.Dial(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return NewSocket(conn, config), nil
}
