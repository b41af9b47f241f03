package tlspipe

import (
	"crypto/tls"
	"log/slog"

	"github.com/tlspipe/tlspipe/pkg/engine"
	"github.com/tlspipe/tlspipe/pkg/log"
	"github.com/tlspipe/tlspipe/pkg/pipe"
	"github.com/tlspipe/tlspipe/pkg/record"
)

// DecryptGrowth is the default plaintext span handed to each decrypt
// call. A record larger than the span is drained over several calls.
const DecryptGrowth = 1024

// Config configures a ClientPipeline.
type Config struct {
	// Engine configures the TLS client.
	Engine engine.Config

	// Pipe configures the application input and output pipes. The
	// input pipe's MinAllocSize is replaced by the decrypt span.
	Pipe pipe.Options

	// EncryptChunkSize bounds the plaintext handed to one Encrypt call.
	// Values above record.MaxPlaintextLength (or zero) use that maximum.
	EncryptChunkSize int

	// DecryptSpanSize is the plaintext span handed to one Decrypt call.
	// Zero uses DecryptGrowth.
	DecryptSpanSize int

	// Logger receives operational logs. Nil disables them.
	Logger *slog.Logger

	// ProtocolLogger receives record, shim and state events. Nil, a
	// NoopLogger or an empty MultiLogger disables protocol capture.
	ProtocolLogger log.Logger

	// ConnectionID tags protocol events. Empty generates a UUID.
	ConnectionID string

	// RemoteAddr tags protocol events. Optional.
	RemoteAddr string
}

// DefaultConfig returns a configuration with default engine and pipe
// settings.
func DefaultConfig() Config {
	return Config{
		Engine:           engine.DefaultConfig(),
		Pipe:             pipe.DefaultOptions(),
		EncryptChunkSize: record.MaxPlaintextLength,
	}
}

func (c Config) encryptChunk() int {
	if c.EncryptChunkSize <= 0 || c.EncryptChunkSize > record.MaxPlaintextLength {
		return record.MaxPlaintextLength
	}
	return c.EncryptChunkSize
}

func (c Config) decryptSpan() int {
	if c.DecryptSpanSize <= 0 {
		return DecryptGrowth
	}
	return c.DecryptSpanSize
}

// inputOptions sizes application input allocations to the decrypt span.
func (c Config) inputOptions() pipe.Options {
	opts := c.Pipe
	opts.MinAllocSize = c.decryptSpan()
	return opts
}

// ClientOptions carries per-connection client options.
type ClientOptions struct {
	// ClientCertificate returns the certificate to present when the
	// server asks for one. Nil offers none.
	ClientCertificate func(*tls.CertificateRequestInfo) (*tls.Certificate, error)
}

// Engine creates sessions. *engine.Context implements it.
type Engine interface {
	NewSession(opts engine.SessionOptions) (engine.Session, error)
	Close() error
}

var _ Engine = (*engine.Context)(nil)
