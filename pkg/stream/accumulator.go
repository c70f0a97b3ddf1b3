package stream

import (
	"errors"
	"strings"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// ErrAlreadyFinalized is returned by Finalize when called a second time.
var ErrAlreadyFinalized = errors.New("accumulator already finalized")

// Accumulator concatenates chunk content in arrival order for one stream.
//
// An Accumulator is owned by exactly one stream and is not safe for
// concurrent use; it never needs to be since a stream has a single writer.
type Accumulator struct {
	content   strings.Builder
	chunks    []llm.StreamChunk
	finalized bool
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append records chunk and appends its content to the buffer.
func (a *Accumulator) Append(chunk llm.StreamChunk) {
	a.content.WriteString(chunk.Content)
	a.chunks = append(a.chunks, chunk)
}

// Content returns the text accumulated so far.
func (a *Accumulator) Content() string {
	return a.content.String()
}

// Chunks returns the chunks recorded so far, in arrival order.
func (a *Accumulator) Chunks() []llm.StreamChunk {
	return a.chunks
}

// Finalize builds the FinalResponse from the accumulated content and the
// terminal chunk's metadata. Missing usage defaults to all-zero counts.
// The terminal chunk must already have been appended.
func (a *Accumulator) Finalize(terminal llm.StreamChunk) (*llm.FinalResponse, error) {
	if a.finalized {
		return nil, ErrAlreadyFinalized
	}
	a.finalized = true

	resp := &llm.FinalResponse{
		Content:        a.content.String(),
		Model:          terminal.Model,
		Provider:       terminal.Provider,
		Cost:           terminal.Cost,
		ResponseTimeMs: terminal.ResponseTimeMs,
		Timestamp:      terminal.Timestamp,
	}
	if terminal.Usage != nil {
		resp.Usage = *terminal.Usage
	}

	return resp, nil
}
