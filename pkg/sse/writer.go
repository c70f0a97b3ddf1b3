package sse

import (
	"io"
	"strings"
)

// Write frames ev onto w. Multi-line data is split across several "data:"
// lines so that a Reader reassembles it unchanged.
func Write(w io.Writer, ev Event) error {
	var b strings.Builder
	if ev.ID != "" {
		b.WriteString("id: " + ev.ID + "\n")
	}
	if ev.Type != "" {
		b.WriteString("event: " + ev.Type + "\n")
	}
	for line := range strings.SplitSeq(ev.Data, "\n") {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteData frames a single data payload.
func WriteData(w io.Writer, data string) error {
	return Write(w, Event{Data: data})
}

// WriteComment writes a comment line, typically used as a keep-alive.
func WriteComment(w io.Writer, text string) error {
	_, err := io.WriteString(w, ": "+text+"\n")
	return err
}
