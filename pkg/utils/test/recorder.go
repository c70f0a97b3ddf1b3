// Package testutils holds fakes shared by chatstream tests.
package testutils

import (
	"strings"
	"sync"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/stream"
)

// Recorder captures the callback invocations of one chat turn.
type Recorder struct {
	mu        sync.Mutex
	chunks    []llm.StreamChunk
	errs      []*stream.StreamError
	completes []*llm.FinalResponse

	// OnChunk, when set, runs after each chunk is recorded.
	OnChunk func(llm.StreamChunk)
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Callbacks returns callbacks that record into r.
func (r *Recorder) Callbacks() stream.Callbacks {
	return stream.Callbacks{
		OnChunk: func(chunk llm.StreamChunk) {
			r.mu.Lock()
			r.chunks = append(r.chunks, chunk)
			hook := r.OnChunk
			r.mu.Unlock()
			if hook != nil {
				hook(chunk)
			}
		},
		OnError: func(err *stream.StreamError) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
		OnComplete: func(resp *llm.FinalResponse) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completes = append(r.completes, resp)
		},
	}
}

func (r *Recorder) Chunks() []llm.StreamChunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]llm.StreamChunk(nil), r.chunks...)
}

func (r *Recorder) Errors() []*stream.StreamError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*stream.StreamError(nil), r.errs...)
}

func (r *Recorder) Completions() []*llm.FinalResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*llm.FinalResponse(nil), r.completes...)
}

// Content concatenates the content of every recorded chunk.
func (r *Recorder) Content() string {
	var b strings.Builder
	for _, c := range r.Chunks() {
		b.WriteString(c.Content)
	}
	return b.String()
}
