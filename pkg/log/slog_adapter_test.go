package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestSlogAdapterLogsRecordEvent(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	slogger := slog.New(handler)

	adapter := NewSlogAdapter(slogger)

	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryRecord,
		Record: &RecordEvent{
			ContentType: 23,
			Version:     0x0303,
			Size:        256,
			Data:        []byte{0x17, 0x03},
		},
	})

	output := buf.String()
	if output == "" {
		t.Fatal("no output produced")
	}

	var logEntry map[string]any
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}

	if logEntry["conn_id"] != "conn-123" {
		t.Errorf("conn_id: got %v, want %q", logEntry["conn_id"], "conn-123")
	}
	if logEntry["direction"] != "IN" {
		t.Errorf("direction: got %v, want %q", logEntry["direction"], "IN")
	}
	if logEntry["layer"] != "TRANSPORT" {
		t.Errorf("layer: got %v, want %q", logEntry["layer"], "TRANSPORT")
	}
	if logEntry["record_size"] != float64(256) {
		t.Errorf("record_size: got %v, want %v", logEntry["record_size"], 256)
	}
	if logEntry["version"] != "0x0303" {
		t.Errorf("version: got %v, want %q", logEntry["version"], "0x0303")
	}
}

func TestSlogAdapterLogsShimEvent(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	adapter := NewSlogAdapter(slog.New(handler))

	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-456",
		Layer:        LayerEngine,
		Category:     CategoryShim,
		ServerName:   "cache.example.com",
		Shim: &ShimEvent{
			Op:         ShimRead,
			Requested:  512,
			WouldBlock: true,
		},
	})

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}

	if logEntry["shim"] != "READ" {
		t.Errorf("shim: got %v, want %q", logEntry["shim"], "READ")
	}
	if logEntry["would_block"] != true {
		t.Errorf("would_block: got %v, want true", logEntry["would_block"])
	}
	if logEntry["server_name"] != "cache.example.com" {
		t.Errorf("server_name: got %v", logEntry["server_name"])
	}
}

func TestSlogAdapterIncludesConnectionID(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	slogger := slog.New(handler)

	adapter := NewSlogAdapter(slogger)

	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "abc12345-def6-7890",
		Direction:    DirectionIn,
		Layer:        LayerPipeline,
		Category:     CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityHandshake,
			NewState: "COMPLETE",
		},
	})

	output := buf.String()
	if !strings.Contains(output, "abc12345-def6-7890") {
		t.Error("output does not contain connection ID")
	}
	if !strings.Contains(output, "HANDSHAKE") {
		t.Error("output does not contain state entity")
	}
}

func TestSlogAdapterInterfaceSatisfaction(t *testing.T) {
	var _ Logger = (*SlogAdapter)(nil)
}
