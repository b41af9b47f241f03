// Package tlspipe runs a TLS client over an arbitrary duplex byte
// transport without handing the engine a socket.
//
// A ClientPipeline sits between the application and a pipe.Duplex
// transport. Ciphertext read from the transport is framed into records
// and fed to an engine.Session one record at a time through memory
// bindings; whatever the engine writes lands directly in the transport's
// output pipe.
//
// # Lifecycle
//
//	NotStarted ──Authenticate──▶ Handshaking ──▶ Complete
//	                                  │
//	                                  └──────────▶ Failed
//
// The first Authenticate call starts the handshake goroutine; every
// later call waits on the same Outcome. Once the handshake completes two
// pumps run until either side ends the stream:
//
//	inbound:  transport ─▶ framer ─▶ Session.Decrypt ─▶ Input()
//	outbound: Output() ─▶ Session.Encrypt ─▶ transport
//
// The application reads decrypted bytes from Input and writes plaintext
// to Output (or uses Stream for an io.ReadWriteCloser). Completing
// Output sends close_notify and ends the outbound direction.
//
// Close cancels both pumps (or a running handshake, which then fails
// with ErrCancelled), releases the engine and completes the transport.
package tlspipe
