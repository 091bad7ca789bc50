package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/srodi/spikewatch/pkg/types"
)

const maxLineBytes = 1024 * 1024

// ParseError describes a log line that could not be decoded. Readers skip the
// line and keep going.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: malformed event: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Reader parses a log file lazily. It is restartable: every Events call reads
// the file from the beginning.
type Reader struct {
	path string
	warn func(*ParseError)
}

// NewReader returns a reader for path. warn receives every skipped line and may be nil.
func NewReader(path string, warn func(*ParseError)) *Reader {
	if warn == nil {
		warn = func(*ParseError) {}
	}
	return &Reader{path: path, warn: warn}
}

// Events yields the decoded events in file order. A failure to open or scan
// the file is yielded once as an error, after which iteration ends.
func (r *Reader) Events() iter.Seq2[types.SpikeEvent, error] {
	return func(yield func(types.SpikeEvent, error) bool) {
		f, err := os.Open(r.path)
		if err != nil {
			yield(types.SpikeEvent{}, fmt.Errorf("opening event log: %w", err))
			return
		}
		defer f.Close()

		br := bufio.NewReaderSize(f, 64*1024)
		lineNo := 0
		for {
			line, err := readLine(br)
			if errors.Is(err, io.EOF) {
				return
			}
			lineNo++
			if errors.Is(err, errLineTooLong) {
				r.warn(&ParseError{Path: r.path, Line: lineNo, Err: err})
				continue
			}
			if err != nil {
				yield(types.SpikeEvent{}, fmt.Errorf("reading event log: %w", err))
				return
			}
			if len(line) == 0 {
				continue
			}
			ev, err := decodeLine(line)
			if err != nil {
				r.warn(&ParseError{Path: r.path, Line: lineNo, Err: err})
				continue
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

var errLineTooLong = fmt.Errorf("line longer than %d bytes", maxLineBytes)

// readLine returns the next line without its terminator, including a final
// line with no newline. A line over maxLineBytes is consumed through its
// newline and reported as errLineTooLong. io.EOF means no line was left.
func readLine(br *bufio.Reader) ([]byte, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxLineBytes+1 {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if tooLong {
				return nil, errLineTooLong
			}
			if len(line) == 0 {
				return nil, io.EOF
			}
		case err != nil:
			return nil, err
		}
		if tooLong {
			return nil, errLineTooLong
		}
		return bytes.TrimRight(line, "\r\n"), nil
	}
}

// record mirrors the line format with pointers so missing fields are detected.
type record struct {
	Resource     *types.ResourceKind `json:"resource"`
	TsStart      *uint64             `json:"ts_start"`
	TsEnd        *uint64             `json:"ts_end"`
	DurationSecs *uint64             `json:"duration_secs"`
	Peak         *float32            `json:"peak"`
	Threshold    *float32            `json:"threshold"`
	Top          []string            `json:"top"`
}

var errMissingField = errors.New("missing field")

func decodeLine(b []byte) (types.SpikeEvent, error) {
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return types.SpikeEvent{}, err
	}
	switch {
	case rec.Resource == nil:
		return types.SpikeEvent{}, fmt.Errorf("%w: resource", errMissingField)
	case rec.TsStart == nil:
		return types.SpikeEvent{}, fmt.Errorf("%w: ts_start", errMissingField)
	case rec.TsEnd == nil:
		return types.SpikeEvent{}, fmt.Errorf("%w: ts_end", errMissingField)
	case rec.DurationSecs == nil:
		return types.SpikeEvent{}, fmt.Errorf("%w: duration_secs", errMissingField)
	case rec.Peak == nil:
		return types.SpikeEvent{}, fmt.Errorf("%w: peak", errMissingField)
	case rec.Threshold == nil:
		return types.SpikeEvent{}, fmt.Errorf("%w: threshold", errMissingField)
	}
	top := rec.Top
	if top == nil {
		top = []string{}
	}
	return types.SpikeEvent{
		Resource:     *rec.Resource,
		TsStart:      *rec.TsStart,
		TsEnd:        *rec.TsEnd,
		DurationSecs: *rec.DurationSecs,
		Peak:         *rec.Peak,
		Threshold:    *rec.Threshold,
		Top:          top,
	}, nil
}
