package tlspipe

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlspipe/tlspipe/pkg/cert"
	"github.com/tlspipe/tlspipe/pkg/log"
	"github.com/tlspipe/tlspipe/pkg/pipe"
	"github.com/tlspipe/tlspipe/pkg/record"
)

const testServerName = "server.test"

// streamConn presents one end of an in-memory duplex as a net.Conn so
// a crypto/tls server can run on it.
type streamConn struct {
	*pipe.Stream
}

func (streamConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (streamConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (streamConn) SetDeadline(time.Time) error      { return nil }
func (streamConn) SetReadDeadline(time.Time) error  { return nil }
func (streamConn) SetWriteDeadline(time.Time) error { return nil }

type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(e log.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *captureLogger) byCategory(cat log.Category) []log.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []log.Event
	for _, e := range c.events {
		if e.Category == cat {
			out = append(out, e)
		}
	}
	return out
}

type echoServer struct {
	peerCerts chan []*x509.Certificate
	done      chan error
}

// startEchoServer runs a TLS echo server on peer. It closes the
// connection (sending close_notify) once the client closes its side.
func startEchoServer(t *testing.T, peer pipe.Duplex, cfg *tls.Config) *echoServer {
	t.Helper()
	return startEchoServerConn(t, streamConn{pipe.NewStream(peer)}, cfg)
}

func startEchoServerConn(t *testing.T, conn net.Conn, cfg *tls.Config) *echoServer {
	t.Helper()
	s := &echoServer{
		peerCerts: make(chan []*x509.Certificate, 1),
		done:      make(chan error, 1),
	}
	go func() {
		srv := tls.Server(conn, cfg)
		defer srv.Close()
		if err := srv.Handshake(); err != nil {
			s.done <- err
			return
		}
		s.peerCerts <- srv.ConnectionState().PeerCertificates
		_, err := io.Copy(srv, srv)
		s.done <- err
	}()
	return s
}

// splitFirstRecordConn re-frames the first record the server writes
// as two records, the first carrying split payload bytes.
type splitFirstRecordConn struct {
	streamConn
	split int
	done  bool
}

func (c *splitFirstRecordConn) Write(b []byte) (int, error) {
	if c.done || len(b) < record.HeaderSize {
		return c.streamConn.Write(b)
	}
	c.done = true

	h, err := record.ParseHeader(b)
	if err != nil || int(h.Length) <= c.split || len(b) < record.HeaderSize+int(h.Length) {
		return c.streamConn.Write(b)
	}
	payload := b[record.HeaderSize : record.HeaderSize+int(h.Length)]

	var out []byte
	for _, part := range [][]byte{payload[:c.split], payload[c.split:]} {
		out = append(out, b[0], b[1], b[2], byte(len(part)>>8), byte(len(part)))
		out = append(out, part...)
	}
	out = append(out, b[record.HeaderSize+int(h.Length):]...)
	if _, err := c.streamConn.Write(out); err != nil {
		return 0, err
	}
	return len(b), nil
}

type testPKI struct {
	ca     *cert.Identity
	server tls.Certificate
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()
	ca, err := cert.GenerateSelfSigned(cert.Options{CommonName: "tlspipe test CA", IsCA: true})
	require.NoError(t, err)
	leaf, err := cert.Issue(ca, cert.Options{CommonName: testServerName, DNSNames: []string{testServerName}})
	require.NoError(t, err)
	return &testPKI{ca: ca, server: leaf.TLSCertificate()}
}

func (k *testPKI) clientConfig() Config {
	cfg := DefaultConfig()
	cfg.Engine.ServerName = testServerName
	cfg.Engine.RootCAs = k.ca.CertPool()
	return cfg
}

func TestRoundTripOverEngine(t *testing.T) {
	sizes := []int{1, 2, 100, 1023, 1024, 1025, 4031, 4032, 4033, 8192, 16383, 16384}

	versions := []struct {
		name string
		max  uint16
	}{
		{"TLS13", tls.VersionTLS13},
		{"TLS12", tls.VersionTLS12},
	}

	for _, v := range versions {
		t.Run(v.name, func(t *testing.T) {
			pki := newTestPKI(t)
			local, peer := pipe.NewDuplexPair(pipe.DefaultOptions())
			srv := startEchoServer(t, peer, &tls.Config{Certificates: []tls.Certificate{pki.server}})

			cfg := pki.clientConfig()
			cfg.Engine.MaxVersion = v.max

			p, err := AuthenticateClient(testContext(t), local, cfg, ClientOptions{})
			require.NoError(t, err)
			defer p.Close()

			assert.Equal(t, StateComplete, p.State())
			assert.Equal(t, v.max, p.ConnectionState().Version)

			stream := p.Stream()
			for _, n := range sizes {
				msg := make([]byte, n)
				_, err := rand.Read(msg)
				require.NoError(t, err)

				_, err = stream.Write(msg)
				require.NoError(t, err, "size %d", n)

				got := make([]byte, n)
				_, err = io.ReadFull(stream, got)
				require.NoError(t, err, "size %d", n)
				require.True(t, bytes.Equal(msg, got), "size %d: payload mismatch", n)
			}

			// Closing our side sends close_notify; the server answers in
			// kind and our input ends cleanly.
			require.NoError(t, stream.CloseWrite())
			rest, err := io.ReadAll(stream)
			require.NoError(t, err)
			assert.Empty(t, rest)
			assert.NoError(t, <-srv.done)

			select {
			case <-p.Done():
			case <-time.After(5 * time.Second):
				t.Fatal("pipeline did not finish after both directions closed")
			}
			assert.NoError(t, p.Err())
		})
	}
}

func TestHandshakeFragmentedServerHello(t *testing.T) {
	for _, v := range []struct {
		name string
		max  uint16
	}{
		{"TLS13", tls.VersionTLS13},
		{"TLS12", tls.VersionTLS12},
	} {
		for _, split := range []int{1, 4, 40} {
			t.Run(fmt.Sprintf("%s split %d", v.name, split), func(t *testing.T) {
				pki := newTestPKI(t)
				local, peer := pipe.NewDuplexPair(pipe.DefaultOptions())
				conn := &splitFirstRecordConn{streamConn: streamConn{pipe.NewStream(peer)}, split: split}
				startEchoServerConn(t, conn, &tls.Config{Certificates: []tls.Certificate{pki.server}})

				cfg := pki.clientConfig()
				cfg.Engine.MaxVersion = v.max

				p, err := AuthenticateClient(testContext(t), local, cfg, ClientOptions{})
				require.NoError(t, err)
				defer p.Close()
				assert.Equal(t, v.max, p.ConnectionState().Version)

				stream := p.Stream()
				_, err = stream.Write([]byte("fragmented"))
				require.NoError(t, err)
				got := make([]byte, len("fragmented"))
				_, err = io.ReadFull(stream, got)
				require.NoError(t, err)
				assert.Equal(t, "fragmented", string(got))
			})
		}
	}
}

func TestRoundTripLargeWrite(t *testing.T) {
	pki := newTestPKI(t)
	local, peer := pipe.NewDuplexPair(pipe.DefaultOptions())
	startEchoServer(t, peer, &tls.Config{Certificates: []tls.Certificate{pki.server}})

	p, err := AuthenticateClient(testContext(t), local, pki.clientConfig(), ClientOptions{})
	require.NoError(t, err)
	defer p.Close()

	// Spans several records and exceeds the pipe pause threshold.
	msg := bytes.Repeat([]byte("tlspipe!"), 20000)
	stream := p.Stream()

	errCh := make(chan error, 1)
	go func() {
		_, err := stream.Write(msg)
		errCh <- err
	}()

	got := make([]byte, len(msg))
	_, err = io.ReadFull(stream, got)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	assert.True(t, bytes.Equal(msg, got))
}

func TestFirstFlightWritesBeforeReading(t *testing.T) {
	pki := newTestPKI(t)
	local, peer := pipe.NewDuplexPair(pipe.DefaultOptions())
	startEchoServer(t, peer, &tls.Config{Certificates: []tls.Certificate{pki.server}})

	capture := &captureLogger{}
	cfg := pki.clientConfig()
	cfg.ProtocolLogger = capture
	cfg.ConnectionID = "conn-1"

	p, err := AuthenticateClient(testContext(t), local, cfg, ClientOptions{})
	require.NoError(t, err)
	defer p.Close()

	shims := capture.byCategory(log.CategoryShim)
	require.GreaterOrEqual(t, len(shims), 2)
	assert.Equal(t, log.ShimWrite, shims[0].Shim.Op, "first shim call must be the ClientHello write")
	assert.Positive(t, shims[0].Shim.Transferred)
	assert.Equal(t, log.ShimRead, shims[1].Shim.Op)
	assert.True(t, shims[1].Shim.WouldBlock)

	records := capture.byCategory(log.CategoryRecord)
	require.NotEmpty(t, records)
	assert.Equal(t, log.DirectionOut, records[0].Direction)
	assert.Equal(t, uint8(22), records[0].Record.ContentType)
	for _, e := range records {
		assert.Equal(t, "conn-1", e.ConnectionID)
		assert.Equal(t, testServerName, e.ServerName)
	}

	var states []string
	for _, e := range capture.byCategory(log.CategoryState) {
		if e.StateChange.Entity == log.StateEntityHandshake {
			states = append(states, e.StateChange.NewState)
		}
	}
	assert.Equal(t, []string{"HANDSHAKING", "COMPLETE"}, states)
}

func TestClientCertificate(t *testing.T) {
	pki := newTestPKI(t)
	client, err := cert.Issue(pki.ca, cert.Options{CommonName: "client", ClientAuth: true})
	require.NoError(t, err)

	local, peer := pipe.NewDuplexPair(pipe.DefaultOptions())
	srv := startEchoServer(t, peer, &tls.Config{
		Certificates: []tls.Certificate{pki.server},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pki.ca.CertPool(),
	})

	asked := false
	opts := ClientOptions{
		ClientCertificate: func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			asked = true
			c := client.TLSCertificate()
			return &c, nil
		},
	}

	p, err := AuthenticateClient(testContext(t), local, pki.clientConfig(), opts)
	require.NoError(t, err)
	defer p.Close()
	assert.True(t, asked)

	select {
	case certs := <-srv.peerCerts:
		require.Len(t, certs, 1)
		assert.Equal(t, "client", certs[0].Subject.CommonName)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not finish handshake")
	}
}

func TestHandshakeFailsOnUntrustedServer(t *testing.T) {
	pki := newTestPKI(t)
	other := newTestPKI(t)
	local, peer := pipe.NewDuplexPair(pipe.DefaultOptions())
	startEchoServer(t, peer, &tls.Config{Certificates: []tls.Certificate{pki.server}})

	_, err := AuthenticateClient(testContext(t), local, other.clientConfig(), ClientOptions{})
	assert.ErrorIs(t, err, ErrHandshakeFailed)
	var verr *tls.CertificateVerificationError
	assert.ErrorAs(t, err, &verr)
}

func TestAuthenticateClientInvalidConfig(t *testing.T) {
	local, _ := pipe.NewDuplexPair(pipe.DefaultOptions())
	_, err := AuthenticateClient(context.Background(), local, DefaultConfig(), ClientOptions{})
	require.Error(t, err)
}
