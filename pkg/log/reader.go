package log

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// StdinPath names standard input when passed to NewReader.
const StdinPath = "-"

// Filter selects events. Zero-valued fields match everything.
type Filter struct {
	ConnectionID string
	Direction    *Direction
	Layer        *Layer
	Category     *Category
	ServerName   string

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Matches reports whether event satisfies every set criterion.
func (f Filter) Matches(event Event) bool {
	switch {
	case f.ConnectionID != "" && event.ConnectionID != f.ConnectionID:
		return false
	case f.ServerName != "" && event.ServerName != f.ServerName:
		return false
	case f.Direction != nil && event.Direction != *f.Direction:
		return false
	case f.Layer != nil && event.Layer != *f.Layer:
		return false
	case f.Category != nil && event.Category != *f.Category:
		return false
	case f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	return true
}

// Reader streams events out of a CBOR event log.
type Reader struct {
	src    io.Closer
	dec    *cbor.Decoder
	filter Filter
	read   int
}

// NewReader opens path, or stdin for StdinPath, and yields every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader is NewReader restricted to events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	if path == StdinPath {
		return NewStreamReader(os.Stdin, filter), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewStreamReader(f, filter)
	r.src = f
	return r, nil
}

// NewStreamReader reads events from src. Close does not close src.
func NewStreamReader(src io.Reader, filter Filter) *Reader {
	return &Reader{dec: NewDecoder(src), filter: filter}
}

// Next returns the next matching event, or io.EOF at a clean end of
// stream. A stream cut inside an event yields io.ErrUnexpectedEOF.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		err := r.dec.Decode(&event)
		switch {
		case errors.Is(err, io.EOF):
			return Event{}, io.EOF
		case err != nil:
			return Event{}, fmt.Errorf("event %d: %w", r.read+1, err)
		}
		r.read++
		if r.filter.Matches(event) {
			return event, nil
		}
	}
}

// All yields matching events until the stream ends. A decode failure is
// yielded once with a zero Event and stops the iteration.
func (r *Reader) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			event, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(event, err) || err != nil {
				return
			}
		}
	}
}

// Read is the number of events decoded so far, matching or not.
func (r *Reader) Read() int { return r.read }

// Close releases the file opened by NewReader.
func (r *Reader) Close() error {
	if r.src == nil {
		return nil
	}
	return r.src.Close()
}
