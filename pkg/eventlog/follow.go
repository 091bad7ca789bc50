package eventlog

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/srodi/spikewatch/pkg/types"
)

// Follow replays path and then delivers events as they are appended, like
// tail -f. An incomplete trailing line is held until its newline arrives.
// It returns nil when ctx is done or fn returns false.
func Follow(ctx context.Context, path string, warn func(*ParseError), fn func(types.SpikeEvent) bool) error {
	if warn == nil {
		warn = func(*ParseError) {}
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}

	t := &tail{path: path, r: bufio.NewReader(f), warn: warn, fn: fn}
	if done, err := t.drain(); done || err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				return fmt.Errorf("event log %s was moved or removed", path)
			}
			if !event.Has(fsnotify.Write) {
				continue
			}
			if done, err := t.drain(); done || err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching %s: %w", path, err)
		}
	}
}

type tail struct {
	path    string
	r       *bufio.Reader
	pending []byte
	lineNo  int
	warn    func(*ParseError)
	fn      func(types.SpikeEvent) bool
}

// drain consumes every complete line currently in the file. done is true once fn asked to stop.
func (t *tail) drain() (done bool, err error) {
	for {
		chunk, err := t.r.ReadBytes('\n')
		t.pending = append(t.pending, chunk...)
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("reading event log: %w", err)
		}

		line := bytes.TrimRight(t.pending, "\r\n")
		t.pending = t.pending[:0]
		t.lineNo++
		if len(line) == 0 {
			continue
		}
		ev, perr := decodeLine(line)
		if perr != nil {
			t.warn(&ParseError{Path: t.path, Line: t.lineNo, Err: perr})
			continue
		}
		if !t.fn(ev) {
			return true, nil
		}
	}
}
