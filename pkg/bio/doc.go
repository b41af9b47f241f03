// Package bio bridges a TLS engine to memory buffers in place of a socket.
//
// An engine session owns a Slot. Before every engine call the caller binds
// the input the engine may consume (a Source over framed record bytes)
// and the output it may produce into (a Sink, usually the transport's
// pipe writer):
//
//	release, err := slot.Bind(bio.NewSource(rec.Raw), transport.Output())
//	if err != nil {
//	    return err
//	}
//	defer release()
//
// The engine itself only sees a Conn. Conn.Read runs the read shim,
// which drains the bound Source and reports ErrWouldBlock when it is
// empty; Conn.Write runs the write shim, which copies into the Sink in
// WriteChunkSize spans and commits.
//
// A Conn may carry a Parker. While an engine runs a blocking handshake
// on its own goroutine, the parker turns a would-block read into a
// suspension that ends when the next input is bound.
package bio
