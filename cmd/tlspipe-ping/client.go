package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/tlspipe/tlspipe/internal/testcase"
	"github.com/tlspipe/tlspipe/pkg/cert"
	"github.com/tlspipe/tlspipe/pkg/discovery"
	"github.com/tlspipe/tlspipe/pkg/engine"
	protolog "github.com/tlspipe/tlspipe/pkg/log"
	"github.com/tlspipe/tlspipe/pkg/pipe"
	"github.com/tlspipe/tlspipe/pkg/tlspipe"
	"github.com/tlspipe/tlspipe/pkg/transport"
)

// target is a resolved server.
type target struct {
	addr       string
	serverName string
	useTLS     bool
}

// connectOptions carries process-wide settings into connect.
type connectOptions struct {
	dial     transport.DialConfig
	browser  discovery.Browser
	logger   *slog.Logger
	protocol protolog.Logger
}

// connection is an open, possibly TLS-protected, connection.
type connection struct {
	pipe.Duplex
	socket   *transport.Socket
	pipeline *tlspipe.ClientPipeline
}

// closeGrace bounds the wait for buffered output to reach the socket.
const closeGrace = time.Second

// Close tears down the pipeline and the socket.
func (c *connection) Close() {
	if c.pipeline != nil {
		c.pipeline.Close()
		select {
		case <-c.socket.Done():
		case <-time.After(closeGrace):
		}
	}
	c.socket.Close()
}

// resolveTarget returns the address of tc's server, browsing mDNS when
// the test case names a service instead of a host.
func resolveTarget(ctx context.Context, tc *testcase.TestCase, browser discovery.Browser) (target, error) {
	t := target{useTLS: tc.UseTLS, serverName: tc.ServerName}

	if tc.Host != "" {
		t.addr = tc.Address()
		if t.serverName == "" {
			t.serverName = tc.Host
		}
		return t, nil
	}

	if browser == nil {
		return target{}, fmt.Errorf("no mDNS browser for service %s", tc.Service)
	}
	svc, err := browser.Lookup(ctx, tc.Service, tc.Instance)
	if err != nil {
		return target{}, fmt.Errorf("lookup %s: %w", tc.Service, err)
	}

	t.addr = svc.Address()
	t.useTLS = tc.UseTLS || svc.TLS
	if t.serverName == "" {
		t.serverName = svc.VerifyName()
	}
	return t, nil
}

// pipelineConfig builds the TLS pipeline configuration for tc.
func pipelineConfig(tc *testcase.TestCase, serverName string) (tlspipe.Config, tlspipe.ClientOptions, error) {
	cfg := tlspipe.DefaultConfig()
	cfg.Engine.ServerName = serverName
	cfg.Engine.InsecureSkipVerify = tc.InsecureSkipVerify
	cfg.Engine.Fingerprint = tc.Fingerprint

	var err error
	if tc.MinVersion != "" {
		if cfg.Engine.MinVersion, err = engine.ParseVersion(tc.MinVersion); err != nil {
			return tlspipe.Config{}, tlspipe.ClientOptions{}, err
		}
	}
	if tc.MaxVersion != "" {
		if cfg.Engine.MaxVersion, err = engine.ParseVersion(tc.MaxVersion); err != nil {
			return tlspipe.Config{}, tlspipe.ClientOptions{}, err
		}
	}

	if tc.CAFile != "" {
		if cfg.Engine.RootCAs, err = cert.LoadCertPool(tc.CAFile); err != nil {
			return tlspipe.Config{}, tlspipe.ClientOptions{}, err
		}
	}

	var opts tlspipe.ClientOptions
	if tc.Certificate != "" {
		id, err := loadIdentity(tc.Certificate, tc.CertificatePassword)
		if err != nil {
			return tlspipe.Config{}, tlspipe.ClientOptions{}, err
		}
		if id.IsExpired() {
			return tlspipe.Config{}, tlspipe.ClientOptions{}, fmt.Errorf("%s: %w", tc.Certificate, cert.ErrCertExpired)
		}
		leaf := id.TLSCertificate()
		opts.ClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			return &leaf, nil
		}
	}

	return cfg, opts, nil
}

// loadIdentity reads a client certificate from a PKCS#12 bundle or a
// combined PEM file.
func loadIdentity(path, password string) (*cert.Identity, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".p12", ".pfx":
		return cert.LoadPKCS12(path, password)
	default:
		return cert.LoadPEMIdentity(path, path)
	}
}

// connect dials tc's server and, when TLS is requested, authenticates
// the pipeline over the socket.
func connect(ctx context.Context, tc *testcase.TestCase, o connectOptions, out func(format string, args ...any)) (*connection, error) {
	t, err := resolveTarget(ctx, tc, o.browser)
	if err != nil {
		return nil, err
	}

	out("connecting to '%s'...", t.addr)
	sockCfg := transport.DefaultSocketConfig()
	sockCfg.Logger = o.logger
	sock, err := transport.DialSocket(ctx, "tcp", t.addr, o.dial, sockCfg)
	if err != nil {
		return nil, err
	}
	conn := &connection{Duplex: sock, socket: sock}
	if !t.useTLS {
		return conn, nil
	}

	cfg, opts, err := pipelineConfig(tc, t.serverName)
	if err != nil {
		sock.Close()
		return nil, err
	}
	cfg.Logger = o.logger
	cfg.ProtocolLogger = o.protocol
	cfg.RemoteAddr = t.addr

	out("authenticating client...")
	p, err := tlspipe.AuthenticateClient(ctx, sock, cfg, opts)
	if err != nil {
		sock.Close()
		return nil, err
	}
	state := p.ConnectionState()
	out("authenticated (%s, %s)", tls.VersionName(state.Version), tls.CipherSuiteName(state.CipherSuite))
	if len(state.PeerCertificates) > 0 {
		out("server certificate: %s", state.PeerCertificates[0].Subject)
	}

	conn.Duplex = p
	conn.pipeline = p
	return conn, nil
}
