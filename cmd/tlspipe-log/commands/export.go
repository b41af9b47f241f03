package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tlspipe/tlspipe/pkg/log"
)

var csvHeader = []string{
	"timestamp", "connection_id", "direction", "layer", "category",
	"server_name", "remote_addr", "type", "size",
}

// RunExport writes the events of path as jsonl or csv to output, or to
// stdout when output is empty.
func RunExport(path, format, output string) error {
	write, ok := exporters[format]
	if !ok {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer reader.Close()

	if output == "" {
		return write(reader, os.Stdout)
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := write(reader, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var exporters = map[string]func(*log.Reader, io.Writer) error{
	"jsonl": exportJSONL,
	"csv":   exportCSV,
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	enc := json.NewEncoder(w)
	for event, err := range reader.All() {
		if err != nil {
			return fmt.Errorf("read log: %w", err)
		}
		if err := enc.Encode(event); err != nil {
			return fmt.Errorf("encode event %d: %w", reader.Read(), err)
		}
	}
	return nil
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for event, err := range reader.All() {
		if err != nil {
			cw.Flush()
			return fmt.Errorf("read log: %w", err)
		}
		if err := cw.Write(csvRow(event)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(e log.Event) []string {
	var size string
	if e.Record != nil {
		size = strconv.Itoa(e.Record.Size)
	} else if e.Shim != nil {
		size = strconv.Itoa(e.Shim.Transferred)
	}
	return []string{
		e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		e.ConnectionID,
		e.Direction.String(),
		e.Layer.String(),
		e.Category.String(),
		e.ServerName,
		e.RemoteAddr,
		eventType(e),
		size,
	}
}
