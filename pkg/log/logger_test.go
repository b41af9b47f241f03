package log

import (
	"testing"
	"time"
)

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	logger := NoopLogger{}

	event := Event{
		Timestamp:    time.Now(),
		ConnectionID: "test-conn",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryRecord,
	}

	// Test with nil payloads
	logger.Log(event)

	event.Record = &RecordEvent{ContentType: 22, Version: 0x0303, Size: 100, Data: []byte{1, 2, 3}}
	logger.Log(event)

	event.Record = nil
	event.Shim = &ShimEvent{Op: ShimWrite, Requested: 10, Transferred: 10}
	logger.Log(event)

	event.Shim = nil
	event.StateChange = &StateChangeEvent{Entity: StateEntityHandshake, NewState: "HANDSHAKING"}
	logger.Log(event)

	event.StateChange = nil
	event.Error = &ErrorEventData{Message: "test error"}
	logger.Log(event)
}

func TestLoggerInterfaceSatisfaction(t *testing.T) {
	var _ Logger = NoopLogger{}
	var _ Logger = &NoopLogger{}
}

func TestLoggerFunc(t *testing.T) {
	var got []string
	l := LoggerFunc(func(e Event) { got = append(got, e.ConnectionID) })
	l.Log(Event{ConnectionID: "a"})
	l.Log(Event{ConnectionID: "b"})

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("LoggerFunc received %v", got)
	}
}

func TestEnabled(t *testing.T) {
	var nilMulti *MultiLogger
	tests := []struct {
		name   string
		logger Logger
		want   bool
	}{
		{"nil", nil, false},
		{"noop", NoopLogger{}, false},
		{"noop pointer", &NoopLogger{}, false},
		{"empty multi", NewMultiLogger(), false},
		{"nil multi", nilMulti, false},
		{"multi of noop", NewMultiLogger(NoopLogger{}), false},
		{"func", LoggerFunc(func(Event) {}), true},
		{"multi", NewMultiLogger(LoggerFunc(func(Event) {})), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Enabled(tt.logger); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNoopLoggerIsZeroValue(t *testing.T) {
	var logger NoopLogger
	logger.Log(Event{})
}
