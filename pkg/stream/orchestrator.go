package stream

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// Orchestrator runs a chat turn over a live stream and, when the stream
// fails in a way that allows it, falls back to a single non-streaming call
// whose response is replayed through the same callbacks.
type Orchestrator struct {
	manager   *Manager
	sender    Sender
	simulator *Simulator
	simulate  bool
	logger    *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithSimulator sets the simulator used to replay fallback responses.
func WithSimulator(sim *Simulator) OrchestratorOption {
	return func(o *Orchestrator) {
		o.simulator = sim
	}
}

// WithSimulatedFallback controls whether fallback responses are replayed as
// chunks. When disabled, a successful fallback goes straight to OnComplete.
func WithSimulatedFallback(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.simulate = enabled
	}
}

// WithOrchestratorLogger sets the orchestrator's logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an Orchestrator streaming through manager and
// falling back through sender.
func NewOrchestrator(manager *Manager, sender Sender, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		manager:   manager,
		sender:    sender,
		simulator: NewSimulator(DefaultSimulatedDelay),
		simulate:  true,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StreamWithFallback starts a chat turn and returns immediately.
//
// Chunks are forwarded to cb as they arrive. If the stream fails with an
// error whose ShouldFallback hint is set and fallbackEnabled is true, the
// same request (same request id) is sent once through the non-streaming
// path and its response replayed as simulated chunks followed by
// OnComplete. Otherwise the classified error goes to OnError. Closing the
// handle never triggers fallback.
func (o *Orchestrator) StreamWithFallback(ctx context.Context, req llm.StreamRequest, cb Callbacks, fallbackEnabled bool) *Handle {
	req = req.WithRequestID()
	h := newHandle(ctx, req.RequestID, cb)
	h.start(func(ctx context.Context) {
		o.run(ctx, h, &req, fallbackEnabled)
	})
	return h
}

// Send performs a single non-streaming call, bypassing the stream entirely.
func (o *Orchestrator) Send(ctx context.Context, req llm.StreamRequest) (*llm.FinalResponse, error) {
	req = req.WithRequestID()
	if err := req.Validate(); err != nil {
		return nil, NewStreamError(KindConfiguration, "invalid request: "+err.Error()).withCause(err)
	}
	resp, err := o.sender.Send(ctx, &req)
	if err != nil {
		return nil, Classify(err)
	}
	return resp, nil
}

func (o *Orchestrator) run(ctx context.Context, h *Handle, req *llm.StreamRequest, fallbackEnabled bool) {
	serr := o.manager.run(ctx, h, req)
	if serr == nil || ctx.Err() != nil {
		return
	}

	log := o.logger.With("request_id", req.RequestID, "kind", serr.Kind)
	if !fallbackEnabled || !serr.ShouldFallback {
		log.Debug("stream failed without fallback", "fallback_enabled", fallbackEnabled)
		h.fail(serr)
		return
	}

	if !h.transition(StateStreaming, StateFallback) && !h.transition(StateConnecting, StateFallback) {
		return
	}
	h.fellBack.Store(true)
	log.Warn("stream failed, falling back to non-streaming request", "error", serr.Message)

	resp, err := o.sender.Send(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("fallback request failed", "error", err)
		h.fail(FallbackFailed(err))
		return
	}

	if !o.simulate {
		h.complete(resp)
		return
	}

	sim := o.simulator.WithDelay(req.StreamDelay)
	if err := sim.Replay(ctx, resp, h.gated()); err != nil {
		log.Debug("fallback replay stopped", "error", err)
	}
}
