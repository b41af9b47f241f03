// Package engine drives a client TLS implementation through memory
// buffers one step at a time.
//
// A Context carries the configuration shared by all sessions: server
// name, trust roots, version bounds, ALPN and an optional ClientHello
// fingerprint. Each Session owns a bio.Slot and a bio.Conn and hands the
// Conn to crypto/tls (or, when a fingerprint is configured, to uTLS) as
// if it were a socket.
//
// Every Session call is one engine step: it binds the caller's input and
// output to the slot, runs the engine until it needs more input or is
// done, releases the binding and reports a Code:
//
//	CodeOK        progress made, nothing further needed
//	CodeWantRead  more inbound ciphertext required
//	CodeClosed    peer sent close_notify
//	CodeFatal     unrecoverable; the error says why
//
// Sessions serialize their calls with a mutex, so the pipeline's two
// pumps can share one session without interleaving engine state.
package engine
