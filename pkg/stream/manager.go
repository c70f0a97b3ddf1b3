package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

const defaultBufferSize = 16

// Manager opens streams against a Transport and drives them to completion,
// one Handle per chat turn.
type Manager struct {
	transport  Transport
	logger     *slog.Logger
	bufferSize int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithBufferSize bounds the number of parsed frames queued between the
// transport reader and callback dispatch.
func WithBufferSize(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.bufferSize = n
		}
	}
}

// NewManager creates a Manager over transport.
func NewManager(transport Transport, opts ...ManagerOption) *Manager {
	m := &Manager{
		transport:  transport,
		logger:     slog.New(slog.DiscardHandler),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts a stream for req and returns immediately. Chunks, the final
// response, or a classified error are delivered through cb. A request
// without a RequestID is assigned a fresh one.
func (m *Manager) Open(ctx context.Context, req llm.StreamRequest, cb Callbacks) *Handle {
	req = req.WithRequestID()
	h := newHandle(ctx, req.RequestID, cb)
	h.start(func(ctx context.Context) {
		if serr := m.run(ctx, h, &req); serr != nil {
			h.fail(serr)
		}
	})
	return h
}

// frameResult is one parsed payload handed from the reader to dispatch.
type frameResult struct {
	frame Frame
	err   error
}

// run drives a single stream attempt on h. It delivers chunks and the
// completion itself, but returns a failure instead of delivering it so the
// caller can decide whether to fall back. A nil return with a non-terminal
// handle means the turn was cancelled.
func (m *Manager) run(ctx context.Context, h *Handle, req *llm.StreamRequest) *StreamError {
	if !h.transition(StateIdle, StateConnecting) {
		return nil
	}
	log := m.logger.With("request_id", req.RequestID)

	if err := req.Validate(); err != nil {
		log.Debug("rejecting invalid request", "error", err)
		return NewStreamError(KindConfiguration, "invalid request: "+err.Error()).withCause(err)
	}

	payloads, err := m.transport.Open(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		serr := Classify(err)
		log.Warn("failed to open stream", "kind", serr.Kind, "error", err)
		return serr
	}
	if !h.attach(payloads) {
		return nil
	}
	defer h.detach()

	if !h.transition(StateConnecting, StateStreaming) {
		return nil
	}
	log.Debug("stream open")

	readCtx, stop := context.WithCancel(ctx)
	defer stop()

	frames := make(chan frameResult, m.bufferSize)
	go readFrames(readCtx, payloads, frames)

	acc := NewAccumulator()
	for {
		var res frameResult
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-frames:
			if !ok {
				return nil
			}
			res = r
		}

		if res.err != nil {
			if ctx.Err() != nil {
				return nil
			}
			serr := Classify(res.err)
			log.Warn("stream failed", "kind", serr.Kind, "chunks", len(acc.Chunks()), "error", res.err)
			return serr
		}

		switch res.frame.Kind {
		case FrameServerError:
			log.Warn("gateway aborted stream", "chunks", len(acc.Chunks()))
			return NewStreamError(KindConnection, ErrServerAborted.Error()).withCause(ErrServerAborted)

		case FrameDone:
			log.Warn("stream done before final chunk", "chunks", len(acc.Chunks()))
			return NewStreamError(KindConnection, ErrIncompleteStream.Error()).withCause(ErrIncompleteStream)

		case FrameChunk:
			chunk := res.frame.Chunk
			acc.Append(chunk)
			if !h.deliverChunk(chunk) {
				return nil
			}
			if !chunk.IsFinal {
				continue
			}

			resp, err := acc.Finalize(chunk)
			if err != nil {
				return NewStreamError(KindMalformedPayload, err.Error()).withCause(err)
			}
			stop()
			h.detach()
			log.Debug("stream complete", "chunks", len(acc.Chunks()), "model", resp.Model)
			h.complete(resp)
			return nil
		}
	}
}

// readFrames pulls payloads off the transport, parses them and queues the
// results in order. It stops after the first error, sentinel, or terminal
// chunk, or when ctx is done.
func readFrames(ctx context.Context, payloads Payloads, out chan<- frameResult) {
	defer close(out)

	for {
		var res frameResult
		payload, err := payloads.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrIncompleteStream
			}
			res.err = err
		} else {
			res.frame, res.err = ParsePayload(payload)
		}

		select {
		case out <- res:
		case <-ctx.Done():
			return
		}

		if res.err != nil || res.frame.Kind != FrameChunk || res.frame.Chunk.IsFinal {
			return
		}
	}
}
