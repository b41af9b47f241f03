// Package log provides structured protocol logging for TLS pipelines.
//
// This package defines the Logger interface and Event types for capturing
// pipeline events at multiple layers (transport, engine, pipeline).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable trace of records, shim calls and state
// changes for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For capture: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/tmp/client.tlog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: framed TLS records (RecordEvent)
//   - Engine: read/write shim invocations (ShimEvent)
//   - Pipeline: handshake and pump state changes (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Log files are a stream of CBOR-encoded events, conventionally with a
// .tlog extension. The tlspipe-log CLI tool provides viewing, filtering
// and statistics.
package log
