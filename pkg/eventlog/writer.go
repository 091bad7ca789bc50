// Package eventlog persists spike events as JSON lines and reads them back.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/srodi/spikewatch/pkg/types"
)

// WriteError reports a failed append. Monitoring continues after one.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("appending to event log %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer appends events to a JSON-lines file. Prior content is never rewritten.
type Writer struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// OpenWriter opens path for appending, creating it if needed, so that an
// unwritable path is reported before any sampling starts.
func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &Writer{path: path, f: f}, nil
}

// Path returns the file the writer appends to.
func (w *Writer) Path() string { return w.path }

// Append writes e as one line with a single write call, holding an advisory
// lock so other processes appending to the same file do not interleave.
func (w *Writer) Append(e types.SpikeEvent) error {
	line, err := json.Marshal(e)
	if err != nil {
		return &WriteError{Path: w.path, Err: err}
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return &WriteError{Path: w.path, Err: os.ErrClosed}
	}

	unlock, err := lockFile(w.f)
	if err != nil {
		return &WriteError{Path: w.path, Err: err}
	}
	defer unlock()

	if _, err := w.f.Write(line); err != nil {
		return &WriteError{Path: w.path, Err: err}
	}
	return nil
}

// Close releases the file handle.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
