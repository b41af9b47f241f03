// Package pipe provides in-memory byte pipes with explicit commit and
// backpressure, used both as the transport contract and as the
// application-facing buffers of a TLS pipeline.
//
// A Pipe has one Writer and one Reader. The writer stages bytes either
// through Alloc/Advance (zero-copy into a writer-owned span) or Write,
// then publishes them with Commit or Flush. Flush additionally waits
// while the reader lags behind by more than Options.PauseThreshold bytes
// and resumes once it has caught up below Options.ResumeThreshold.
//
// The reader sees all committed bytes at once:
//
//	for {
//	    res, err := r.Read(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    n := consume(res.Buffer)
//	    r.Advance(n)
//	    if res.Completed {
//	        return nil
//	    }
//	}
//
// After Advance the unconsumed remainder counts as examined, so the next
// Read blocks until new bytes arrive or the writer completes. AdvanceTo
// leaves part of the remainder unexamined for readers that stop early.
//
// Duplex pairs two pipes into a bidirectional stream. NewDuplexPair
// builds a connected in-memory pair and NewStream adapts any Duplex to
// io.ReadWriteCloser.
package pipe
