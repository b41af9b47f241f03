package engine

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sort"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Version bounds applied when Config leaves them zero.
const (
	DefaultMinVersion = tls.VersionTLS12
	DefaultMaxVersion = tls.VersionTLS13
)

// FingerprintGo selects the standard library handshake.
const FingerprintGo = "go"

// Config holds configuration for a client engine context.
type Config struct {
	// ServerName is sent as SNI and used for certificate verification.
	ServerName string

	// RootCAs is the pool of trusted CA certificates.
	// Nil uses the host's root set.
	RootCAs *x509.CertPool

	// InsecureSkipVerify disables certificate verification.
	// Only for testing - never use in production!
	InsecureSkipVerify bool

	// MinVersion and MaxVersion bound the negotiated protocol version.
	// Zero selects DefaultMinVersion / DefaultMaxVersion.
	MinVersion uint16
	MaxVersion uint16

	// NextProtos is the ALPN protocol list, in preference order.
	NextProtos []string

	// Fingerprint selects the ClientHello shape. Empty or FingerprintGo
	// uses crypto/tls; any other name from Fingerprints uses uTLS.
	Fingerprint string

	// VerifyPeerCertificate is an optional callback for custom certificate verification.
	VerifyPeerCertificate func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error

	// SessionTicketsDisabled disables session resumption.
	SessionTicketsDisabled bool
}

// DefaultConfig returns a configuration with TLS 1.2-1.3 bounds and the
// standard library handshake.
func DefaultConfig() Config {
	return Config{
		MinVersion:  DefaultMinVersion,
		MaxVersion:  DefaultMaxVersion,
		Fingerprint: FingerprintGo,
	}
}

func (c Config) withDefaults() Config {
	if c.MinVersion == 0 {
		c.MinVersion = DefaultMinVersion
	}
	if c.MaxVersion == 0 {
		c.MaxVersion = DefaultMaxVersion
	}
	if c.Fingerprint == "" {
		c.Fingerprint = FingerprintGo
	}
	return c
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.MinVersion > c.MaxVersion {
		return fmt.Errorf("%w: min version %s above max version %s",
			ErrInvalidConfig, tls.VersionName(c.MinVersion), tls.VersionName(c.MaxVersion))
	}
	if c.MinVersion < tls.VersionTLS10 || c.MaxVersion > tls.VersionTLS13 {
		return fmt.Errorf("%w: unsupported version bounds", ErrInvalidConfig)
	}
	if _, ok := fingerprints[strings.ToLower(c.Fingerprint)]; !ok && !strings.EqualFold(c.Fingerprint, FingerprintGo) {
		return fmt.Errorf("%w: unknown fingerprint %q", ErrInvalidConfig, c.Fingerprint)
	}
	if c.ServerName == "" && !c.InsecureSkipVerify {
		return fmt.Errorf("%w: server name is required unless verification is skipped", ErrInvalidConfig)
	}
	return nil
}

// BuildTLSConfig creates the crypto/tls client configuration for cfg.
func BuildTLSConfig(cfg Config) (*tls.Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	return &tls.Config{
		MinVersion: cfg.MinVersion,
		MaxVersion: cfg.MaxVersion,

		// CA pool for verifying server certificates
		RootCAs: cfg.RootCAs,

		// Server name for SNI and verification
		ServerName: cfg.ServerName,

		// ALPN protocols
		NextProtos: cfg.NextProtos,

		SessionTicketsDisabled: cfg.SessionTicketsDisabled,

		// Custom verification callback
		VerifyPeerCertificate: cfg.VerifyPeerCertificate,

		// For testing only
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}, nil
}

// buildUTLSConfig mirrors BuildTLSConfig for the uTLS backend.
func buildUTLSConfig(cfg Config) *utls.Config {
	cfg = cfg.withDefaults()
	return &utls.Config{
		MinVersion:             cfg.MinVersion,
		MaxVersion:             cfg.MaxVersion,
		RootCAs:                cfg.RootCAs,
		ServerName:             cfg.ServerName,
		NextProtos:             cfg.NextProtos,
		SessionTicketsDisabled: cfg.SessionTicketsDisabled,
		VerifyPeerCertificate:  cfg.VerifyPeerCertificate,
		InsecureSkipVerify:     cfg.InsecureSkipVerify,
	}
}

// fingerprints maps fingerprint names to uTLS ClientHello presets.
var fingerprints = map[string]utls.ClientHelloID{
	"chrome":     utls.HelloChrome_Auto,
	"firefox":    utls.HelloFirefox_Auto,
	"safari":     utls.HelloSafari_Auto,
	"ios":        utls.HelloIOS_Auto,
	"edge":       utls.HelloEdge_Auto,
	"randomized": utls.HelloRandomized,
	"golang":     utls.HelloGolang,
}

// Fingerprints returns the accepted Config.Fingerprint names, sorted.
func Fingerprints() []string {
	names := make([]string, 0, len(fingerprints)+1)
	names = append(names, FingerprintGo)
	for name := range fingerprints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// lookupFingerprint returns the uTLS preset for name, or false for the
// standard library handshake.
func lookupFingerprint(name string) (utls.ClientHelloID, bool) {
	if name == "" || strings.EqualFold(name, FingerprintGo) {
		return utls.ClientHelloID{}, false
	}
	id, ok := fingerprints[strings.ToLower(name)]
	return id, ok
}

// ParseVersion converts "1.0".."1.3" (optionally prefixed "TLS") to a
// crypto/tls version constant.
func ParseVersion(s string) (uint16, error) {
	v := strings.TrimSpace(strings.ToUpper(s))
	v = strings.TrimPrefix(v, "TLS")
	v = strings.TrimPrefix(v, "V")
	v = strings.TrimSpace(v)

	switch v {
	case "1.0", "10":
		return tls.VersionTLS10, nil
	case "1.1", "11":
		return tls.VersionTLS11, nil
	case "1.2", "12":
		return tls.VersionTLS12, nil
	case "1.3", "13":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("%w: unknown TLS version %q", ErrInvalidConfig, s)
	}
}

// VerifyVersion checks that the negotiated version lies within bounds.
func VerifyVersion(state tls.ConnectionState, minVersion, maxVersion uint16) error {
	if state.Version < minVersion || state.Version > maxVersion {
		return fmt.Errorf("TLS version %s outside [%s, %s]",
			tls.VersionName(state.Version), tls.VersionName(minVersion), tls.VersionName(maxVersion))
	}
	return nil
}

// VerifyALPN checks that the negotiated ALPN protocol is the expected one.
func VerifyALPN(state tls.ConnectionState, protocol string) error {
	if state.NegotiatedProtocol != protocol {
		return fmt.Errorf("ALPN protocol %q is not %q", state.NegotiatedProtocol, protocol)
	}
	return nil
}
