package eventstream

import (
	"sync"
	"time"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/stream"
)

// Observer watches the callbacks of one chat turn and builds its lifecycle
// event once the turn has ended.
type Observer struct {
	source EventSource
	req    llm.StreamRequest

	mu        sync.Mutex
	started   time.Time
	chunks    int
	simulated bool
	resp      *llm.FinalResponse
	serr      *stream.StreamError
}

// NewObserver creates an Observer for req. The request should already carry
// its request id.
func NewObserver(source EventSource, req llm.StreamRequest) *Observer {
	return &Observer{
		source:  source,
		req:     req,
		started: time.Now(),
	}
}

// Wrap returns callbacks that record the turn before forwarding to cb.
func (o *Observer) Wrap(cb stream.Callbacks) stream.Callbacks {
	return stream.Callbacks{
		OnChunk: func(chunk llm.StreamChunk) {
			o.mu.Lock()
			o.chunks++
			if chunk.Simulated {
				o.simulated = true
			}
			o.mu.Unlock()

			if cb.OnChunk != nil {
				cb.OnChunk(chunk)
			}
		},
		OnError: func(serr *stream.StreamError) {
			o.mu.Lock()
			o.serr = serr
			o.mu.Unlock()

			if cb.OnError != nil {
				cb.OnError(serr)
			}
		},
		OnComplete: func(resp *llm.FinalResponse) {
			o.mu.Lock()
			o.resp = resp
			o.mu.Unlock()

			if cb.OnComplete != nil {
				cb.OnComplete(resp)
			}
		},
	}
}

// Finish builds the event for the observed turn. fellBack reports whether
// the turn was served by the non-streaming path. It returns nil for a turn
// that was cancelled before completing or failing.
func (o *Observer) Finish(fellBack bool) *TurnEvent {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.resp == nil && o.serr == nil {
		return nil
	}

	path := PathStream
	if fellBack || o.simulated {
		path = PathFallback
	}

	completed := time.Now()
	meta := TurnRequestMeta{
		RequestID:   o.req.RequestID,
		Path:        path,
		StartedAt:   o.started.UTC(),
		CompletedAt: completed.UTC(),
		DurationMs:  completed.Sub(o.started).Milliseconds(),
		ChunkCount:  o.chunks,
	}

	req := o.req
	return NewTurnEvent(o.source, meta, llm.ConversationTurn{Request: &req, Response: o.resp}, o.serr)
}
