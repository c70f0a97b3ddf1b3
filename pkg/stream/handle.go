package stream

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// State is the lifecycle state of a Handle. Transitions are one-way:
//
//	idle → connecting → streaming → {completed | errored | cancelled}
//
// An orchestrated handle may additionally move from connecting or streaming
// into fallback, and from there into a terminal state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateFallback
	StateCompleted
	StateErrored
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateFallback:
		return "fallback"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored || s == StateCancelled
}

// Callbacks receive the output of one chat turn. Any of them may be nil.
//
// For a given handle, at most one of OnError and OnComplete fires, at most
// once, and never after Close. Callbacks run on the handle's own goroutine,
// one at a time, in stream order.
type Callbacks struct {
	OnChunk    func(llm.StreamChunk)
	OnError    func(*StreamError)
	OnComplete func(*llm.FinalResponse)
}

// Handle represents one in-flight chat turn. A new handle is created for
// every turn; handles are never reused.
type Handle struct {
	requestID string
	callbacks Callbacks

	state    atomic.Int32
	fellBack atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	payloads Payloads
	closed   bool

	// dispatch is held across the cancellation check and the callback call.
	dispatch sync.Mutex
	// owner is the id of the goroutine that runs the callbacks.
	owner atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

func newHandle(parent context.Context, requestID string, cb Callbacks) *Handle {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{
		requestID: requestID,
		callbacks: cb,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// RequestID returns the id of the request this handle is serving.
func (h *Handle) RequestID() string {
	return h.requestID
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// FellBack reports whether the turn was handed to the non-streaming
// fallback path.
func (h *Handle) FellBack() bool {
	return h.fellBack.Load()
}

// Done is closed once the handle's goroutine has exited, after the last
// callback has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until Done is closed.
func (h *Handle) Wait() {
	<-h.done
}

// Close cancels the turn. It is idempotent and synchronous: the transport is
// closed immediately and no callback starts after Close returns, including
// for payloads that were already received. A cancelled turn produces neither
// an error nor a completion, and never triggers fallback.
//
// Close may be called from any goroutine, including from inside a callback.
// Called from another goroutine while a callback runs, it returns once that
// callback has returned.
func (h *Handle) Close() {
	h.closeOnce.Do(h.teardown)

	if h.owner.Load() == goroutineID() {
		// Inside a callback: dispatch is held further up this stack.
		return
	}
	h.dispatch.Lock()
	h.dispatch.Unlock() //nolint:staticcheck // waits out a callback in flight
}

func (h *Handle) teardown() {
	for {
		cur := h.State()
		if cur.Terminal() || h.state.CompareAndSwap(int32(cur), int32(StateCancelled)) {
			break
		}
	}

	h.mu.Lock()
	h.closed = true
	payloads := h.payloads
	h.payloads = nil
	h.mu.Unlock()

	h.cancel()
	if payloads != nil {
		_ = payloads.Close()
	}
}

func (h *Handle) start(run func(ctx context.Context)) {
	go func() {
		h.owner.Store(goroutineID())
		defer close(h.done)
		defer h.cancel()
		run(h.ctx)
		// A run that ends without a terminal state was cut short by its context.
		h.finish(StateCancelled)
	}()
}

// transition moves from one non-terminal state to another.
func (h *Handle) transition(from, to State) bool {
	return h.state.CompareAndSwap(int32(from), int32(to))
}

// finish moves the handle into a terminal state. Only the first caller wins.
func (h *Handle) finish(to State) bool {
	for {
		cur := h.State()
		if cur.Terminal() {
			return false
		}
		if h.state.CompareAndSwap(int32(cur), int32(to)) {
			return true
		}
	}
}

// attach registers the open transport so Close can tear it down. It returns
// false, after closing payloads, when the handle was closed in the meantime.
func (h *Handle) attach(payloads Payloads) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		_ = payloads.Close()
		return false
	}
	h.payloads = payloads
	return true
}

func (h *Handle) detach() {
	h.mu.Lock()
	payloads := h.payloads
	h.payloads = nil
	h.mu.Unlock()

	if payloads != nil {
		_ = payloads.Close()
	}
}

func (h *Handle) cancelled() bool {
	return h.State() == StateCancelled || h.ctx.Err() != nil
}

func (h *Handle) deliverChunk(chunk llm.StreamChunk) bool {
	h.dispatch.Lock()
	defer h.dispatch.Unlock()

	if h.cancelled() {
		return false
	}
	if h.callbacks.OnChunk != nil {
		h.callbacks.OnChunk(chunk)
	}
	return true
}

func (h *Handle) complete(resp *llm.FinalResponse) {
	h.dispatch.Lock()
	defer h.dispatch.Unlock()

	if !h.finish(StateCompleted) {
		return
	}
	if h.callbacks.OnComplete != nil {
		h.callbacks.OnComplete(resp)
	}
}

func (h *Handle) fail(serr *StreamError) {
	h.dispatch.Lock()
	defer h.dispatch.Unlock()

	if !h.finish(StateErrored) {
		return
	}
	if h.callbacks.OnError != nil {
		h.callbacks.OnError(serr)
	}
}

// gated returns callbacks that route through the handle's delivery rules,
// for producers such as the Simulator that only know about Callbacks.
func (h *Handle) gated() Callbacks {
	return Callbacks{
		OnChunk:    func(chunk llm.StreamChunk) { h.deliverChunk(chunk) },
		OnError:    h.fail,
		OnComplete: h.complete,
	}
}

// goroutineID returns the runtime id of the calling goroutine, parsed from
// the "goroutine N [...]" header of its stack trace.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
