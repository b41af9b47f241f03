package commands

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/tlspipe/tlspipe/pkg/log"
)

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	r, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	var events []log.Event
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		events = append(events, e)
	}
}

func TestFilterByLayer(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.tlog")

	n, err := RunFilter(path, FilterOptions{Output: out, Layer: "pipeline"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 events, got %d", n)
	}
	for _, e := range readAll(t, out) {
		if e.Layer != log.LayerPipeline {
			t.Errorf("unexpected layer %s", e.Layer)
		}
	}
}

func TestFilterByTimeAndServerName(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.tlog")

	n, err := RunFilter(path, FilterOptions{
		Output:     out,
		ServerName: "cache.example.com",
		TimeStart:  "2026-03-14T09:26:53Z",
		TimeEnd:    "2026-03-14T09:26:54Z",
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 events, got %d", n)
	}
	if got := len(readAll(t, out)); got != 2 {
		t.Errorf("output holds %d events", got)
	}
}

func TestFilterInvalidOptions(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.tlog")

	for _, opts := range []FilterOptions{
		{Output: out, TimeStart: "yesterday"},
		{Output: out, TimeEnd: "tomorrow"},
		{Output: out, Layer: "wire"},
		{Output: out, Direction: "up"},
		{Output: out, Category: "message"},
	} {
		if _, err := RunFilter(path, opts); err == nil {
			t.Errorf("RunFilter(%+v) expected error", opts)
		}
	}
}
