package log

// MultiLogger fans events out to several loggers, typically a
// SlogAdapter for the console and a FileLogger for later inspection.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger returns a MultiLogger over loggers. Disabled loggers
// are dropped and nested MultiLoggers are flattened, so Enabled on the
// result is false when nothing would record.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if !Enabled(l) {
			continue
		}
		if inner, ok := l.(*MultiLogger); ok {
			m.loggers = append(m.loggers, inner.loggers...)
			continue
		}
		m.loggers = append(m.loggers, l)
	}
	return m
}

// Log sends the event to every logger in order.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// Len returns the number of loggers events are sent to.
func (m *MultiLogger) Len() int {
	return len(m.loggers)
}

var _ Logger = (*MultiLogger)(nil)
