package log

// Logger receives protocol events. Pipelines call Log from their
// handshake and pump goroutines concurrently, so implementations must
// be safe for concurrent use and should not block.
type Logger interface {
	Log(event Event)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(Event)

// Log calls f(event).
func (f LoggerFunc) Log(event Event) { f(event) }

// NoopLogger discards all events.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// Enabled reports whether events sent to l can reach anything. A
// pipeline skips building events when it is false.
func Enabled(l Logger) bool {
	switch l := l.(type) {
	case nil, NoopLogger, *NoopLogger:
		return false
	case *MultiLogger:
		return l != nil && len(l.loggers) > 0
	default:
		return true
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = LoggerFunc(nil)
)
