package sse

import (
	"bufio"
	"io"
	"strings"
)

const (
	initialBufferSize = 64 * 1024
	maxLineSize       = 1024 * 1024
)

// Reader parses SSE events from a source io.Reader. When built with
// NewTeeReader it also copies every raw line, comments included, to a
// destination writer so a trace of the wire stream can be kept alongside
// the parsed events.
type Reader struct {
	scanner *bufio.Scanner
	dest    io.Writer

	// current accumulates fields for the event being built.
	current Event
	hasData bool
}

// NewReader returns a Reader that parses SSE events from src.
func NewReader(src io.Reader) *Reader {
	return NewTeeReader(src, nil)
}

// NewTeeReader returns a Reader that parses SSE events from src and writes
// all raw bytes through to dest. A nil dest disables the tee.
func NewTeeReader(src io.Reader, dest io.Writer) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, initialBufferSize), maxLineSize)

	return &Reader{
		scanner: scanner,
		dest:    dest,
	}
}

// Next blocks until a complete event is available and returns it. It
// returns io.EOF once the source is exhausted. An event cut off by the end
// of the source, without its trailing blank line, is still returned.
func (r *Reader) Next() (Event, error) {
	for r.scanner.Scan() {
		raw := r.scanner.Text()

		if r.dest != nil {
			// The scanner strips the newline; reinsert it for a verbatim copy.
			if _, err := io.WriteString(r.dest, raw+"\n"); err != nil {
				return Event{}, err
			}
		}

		line := strings.TrimSuffix(raw, "\r")
		if line == "" {
			if r.hasData {
				return r.take(), nil
			}
			// Keep-alive newlines between events.
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		r.parseLine(line)
	}

	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}

	if r.hasData {
		return r.take(), nil
	}
	return Event{}, io.EOF
}

// parseLine accumulates one "field:value" line into the current event. The
// first space after the colon is optional and stripped if present.
func (r *Reader) parseLine(line string) {
	field, value, ok := strings.Cut(line, ":")
	if ok {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "data":
		if r.hasData && r.current.Data != "" {
			r.current.Data += "\n"
		}
		r.current.Data += value
		r.hasData = true
	case "event":
		r.current.Type = value
		r.hasData = true
	case "id":
		r.current.ID = value
		r.hasData = true
	default:
		// "retry" and unknown fields are ignored.
	}
}

func (r *Reader) take() Event {
	ev := r.current
	r.current = Event{}
	r.hasData = false
	return ev
}
