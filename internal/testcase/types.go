// Package testcase provides YAML test case loading for the tlspipe-ping
// sample client.
package testcase

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultTimeout bounds a test case that does not set its own timeout.
const DefaultTimeout = 5 * time.Second

// TestCase describes one server to ping.
type TestCase struct {
	// Name is a human-readable name for the test. Defaults to the host.
	Name string `yaml:"name"`

	// Host and Port address the server directly.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Service is a DNS-SD service type (e.g., "_redis._tcp") used to find
	// the server with mDNS when Host is empty.
	Service string `yaml:"service,omitempty"`

	// Instance selects one instance of Service. Empty means the first found.
	Instance string `yaml:"instance,omitempty"`

	// Password is sent with AUTH when set.
	Password string `yaml:"password,omitempty"`

	// UseTLS runs the connection through the TLS pipeline.
	UseTLS bool `yaml:"use_tls"`

	// Certificate is a client certificate file: PEM (certificate and key)
	// or PKCS#12 (.p12, .pfx). Relative paths are resolved against the
	// test case file.
	Certificate string `yaml:"certificate,omitempty"`

	// CertificatePassword decrypts a PKCS#12 certificate.
	CertificatePassword string `yaml:"certificate_password,omitempty"`

	// CAFile is a PEM bundle of trusted roots. Empty uses the system pool.
	CAFile string `yaml:"ca_file,omitempty"`

	// ServerName overrides the name verified against the server certificate.
	ServerName string `yaml:"server_name,omitempty"`

	// InsecureSkipVerify disables server certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty"`

	// MinVersion and MaxVersion bound the TLS version ("1.2", "1.3").
	MinVersion string `yaml:"min_version,omitempty"`
	MaxVersion string `yaml:"max_version,omitempty"`

	// Fingerprint selects a uTLS ClientHello fingerprint (e.g., "chrome").
	Fingerprint string `yaml:"fingerprint,omitempty"`

	// Commands are sent after AUTH. Defaults to ECHO and PING.
	Commands []string `yaml:"commands,omitempty"`

	// Timeout is the maximum duration for the test (e.g., "5s").
	Timeout string `yaml:"timeout,omitempty"`

	// File is the path the test case was loaded from.
	File string `yaml:"-"`
}

// DisplayName returns Name, falling back to the target.
func (tc *TestCase) DisplayName() string {
	switch {
	case tc.Name != "":
		return tc.Name
	case tc.Host != "":
		return tc.Host
	case tc.Instance != "":
		return tc.Instance
	default:
		return tc.Service
	}
}

// Address returns host:port, or "" when the server is found by mDNS.
func (tc *TestCase) Address() string {
	if tc.Host == "" {
		return ""
	}
	return net.JoinHostPort(tc.Host, strconv.Itoa(tc.Port))
}

// TimeoutDuration parses Timeout, defaulting to DefaultTimeout.
func (tc *TestCase) TimeoutDuration() (time.Duration, error) {
	if tc.Timeout == "" {
		return DefaultTimeout, nil
	}
	d, err := time.ParseDuration(tc.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", tc.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid timeout %q: must be positive", tc.Timeout)
	}
	return d, nil
}

// LoadError provides details about a test case loading error.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Line is the line number where the error occurred (0 if unknown).
	Line int

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.Line > 0 {
		return e.File + ":" + strconv.Itoa(e.Line) + ": " + msg
	}
	return e.File + ": " + msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
