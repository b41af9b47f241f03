package log

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends events to a CBOR log file. Log never reports
// errors to the caller; the first write failure is kept and returned
// by Err and Close, and later events are counted as dropped.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	enc     *cbor.Encoder
	err     error
	dropped int
	closed  bool
}

// NewFileLogger opens path for appending, creating it and its parent
// directory when missing.
func NewFileLogger(path string) (*FileLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{file: f, enc: NewEncoder(f)}, nil
}

// Log appends event. Events logged after Close are ignored.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.closed:
		return
	case l.err != nil:
		l.dropped++
		return
	}
	if err := l.enc.Encode(event); err != nil {
		l.err = fmt.Errorf("write %s: %w", l.file.Name(), err)
		l.dropped++
	}
}

// Err returns the first write error, if any.
func (l *FileLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Dropped returns the number of events lost to write errors.
func (l *FileLogger) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close closes the file and returns the first write error joined with
// any close error. It is idempotent.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return errors.Join(l.err, l.file.Close())
}

var _ Logger = (*FileLogger)(nil)
