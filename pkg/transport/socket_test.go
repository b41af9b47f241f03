package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlspipe/tlspipe/pkg/pipe"
)

// listen starts a loopback listener that hands each accepted connection
// to handle.
func listen(t *testing.T, handle func(net.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handle(conn)
		}
	}()
	return ln.Addr().String()
}

// drain reads r until the writer completes.
func drain(t *testing.T, r *pipe.Reader) ([]byte, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []byte
	for {
		res, err := r.Read(ctx)
		got = append(got, res.Buffer...)
		r.Advance(len(res.Buffer))
		if err != nil || res.Completed {
			return got, err
		}
	}
}

func waitDone(t *testing.T, s *Socket) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("socket did not close")
	}
}

func dialTest(t *testing.T, addr string) *Socket {
	t.Helper()
	cfg := DefaultDialConfig()
	cfg.Direct = true
	s, err := DialSocket(context.Background(), "tcp", addr, cfg, DefaultSocketConfig())
	if err != nil {
		t.Fatalf("DialSocket: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSocketEcho(t *testing.T) {
	addr := listen(t, func(conn net.Conn) {
		defer conn.Close()
		io.Copy(conn, conn)
	})
	s := dialTest(t, addr)

	assert.Equal(t, StateOpen, s.State())

	_, err := s.Output().Write([]byte("hello over tcp"))
	require.NoError(t, err)
	s.Output().Complete(nil)

	// The server sees EOF after our half close, finishes echoing and
	// closes its side.
	got, err := drain(t, s.Input())
	require.NoError(t, err)
	assert.Equal(t, "hello over tcp", string(got))

	s.Input().Complete()
	waitDone(t, s)
	assert.Equal(t, StateClosed, s.State())
	assert.NoError(t, s.Err())
}

func TestSocketPeerClose(t *testing.T) {
	addr := listen(t, func(conn net.Conn) {
		conn.Write([]byte("bye"))
		conn.Close()
	})
	s := dialTest(t, addr)

	got, err := drain(t, s.Input())
	require.NoError(t, err)
	assert.Equal(t, "bye", string(got))

	// The write side still runs until the holder completes it.
	assert.Eventually(t, func() bool { return s.State() == StateHalfClosed }, time.Second, 5*time.Millisecond)

	s.Output().Complete(nil)
	s.Input().Complete()
	waitDone(t, s)
}

func TestSocketLargeTransfer(t *testing.T) {
	const size = 1 << 20

	received := make(chan int, 1)
	addr := listen(t, func(conn net.Conn) {
		defer conn.Close()
		n, _ := io.Copy(io.Discard, conn)
		received <- int(n)
	})
	s := dialTest(t, addr)

	chunk := make([]byte, 32*1024)
	for sent := 0; sent < size; sent += len(chunk) {
		_, err := s.Output().Write(chunk)
		require.NoError(t, err)
	}
	s.Output().Complete(nil)

	select {
	case n := <-received:
		assert.Equal(t, size, n)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive everything")
	}
}

func TestSocketOutputAbort(t *testing.T) {
	serverErr := make(chan error, 1)
	addr := listen(t, func(conn net.Conn) {
		defer conn.Close()
		_, err := io.Copy(io.Discard, conn)
		serverErr <- err
	})
	s := dialTest(t, addr)

	s.Output().Complete(errors.New("engine failed"))
	waitDone(t, s)

	// The holder still sees the input end.
	_, err := s.Input().Read(context.Background())
	assert.ErrorIs(t, err, ErrSocketClosed)

	select {
	case <-serverErr:
	case <-time.After(5 * time.Second):
		t.Fatal("server connection not closed")
	}
}

func TestSocketClose(t *testing.T) {
	addr := listen(t, func(conn net.Conn) {
		defer conn.Close()
		io.Copy(io.Discard, conn)
	})
	s := dialTest(t, addr)

	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())

	_, err := s.Input().Read(context.Background())
	assert.ErrorIs(t, err, ErrSocketClosed)

	_, err = s.Output().Write([]byte("late"))
	assert.Error(t, err)

	// Idempotent.
	require.NoError(t, s.Close())
}

func TestSocketOverNetPipe(t *testing.T) {
	local, remote := net.Pipe()
	s := NewSocket(local, DefaultSocketConfig())
	defer s.Close()

	go func() {
		buf := make([]byte, 4)
		io.ReadFull(remote, buf)
		remote.Write(buf)
		remote.Close()
	}()

	_, err := s.Output().Write([]byte("ping"))
	require.NoError(t, err)

	got, err := drain(t, s.Input())
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))
}

func TestDial(t *testing.T) {
	accepted := make(chan struct{}, 1)
	addr := listen(t, func(conn net.Conn) {
		accepted <- struct{}{}
		conn.Close()
	})

	conn, err := Dial(context.Background(), "tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not accept")
	}
}

func TestDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	cfg := DefaultDialConfig()
	cfg.Direct = true
	cfg.ConnectTimeout = time.Second
	_, err = cfg.Dial(context.Background(), "tcp", addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial failed")
}

func TestSocketStateString(t *testing.T) {
	tests := []struct {
		state SocketState
		want  string
	}{
		{StateOpen, "OPEN"},
		{StateHalfClosed, "HALF_CLOSED"},
		{StateClosed, "CLOSED"},
		{SocketState(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("SocketState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
