// Package transport connects network sockets to the duplex pipes the
// TLS pipeline runs over.
//
// The transport layer handles:
//   - Copying socket bytes into an input pipe and output pipe bytes onto the socket
//   - Half close when the output completes
//   - Proxy-aware dialing from ALL_PROXY and NO_PROXY
//
// # Stack
//
//	┌────────────────────────────────┐
//	│        Application             │
//	├────────────────────────────────┤
//	│   tlspipe.ClientPipeline       │
//	├────────────────────────────────┤
//	│   transport.Socket (pipes)     │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Shutdown
//
// Completing Output sends the buffered bytes and then half-closes the
// connection. Completing Output with an error aborts it. The socket is
// closed once both the write side has finished and the Input reader has
// completed.
package transport
