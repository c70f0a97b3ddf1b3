package stream

import (
	"context"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// Transport opens an ordered, text-framed push stream for a request.
//
// Open returns once the gateway accepted the stream. Failures to open are
// reported as errors and classified by the caller; a gateway refusal should
// be returned as an *OpenError, and missing credentials should wrap
// ErrConfiguration.
type Transport interface {
	Open(ctx context.Context, req *llm.StreamRequest) (Payloads, error)
}

// Payloads is an open push stream.
type Payloads interface {
	// Next blocks until the next payload arrives. It returns io.EOF when the
	// gateway closed the stream.
	Next() (string, error)

	// Close releases the underlying connection. It is safe to call
	// concurrently with Next and more than once.
	Close() error
}

// Sender performs the non-streaming chat call used as the fallback transport.
type Sender interface {
	Send(ctx context.Context, req *llm.StreamRequest) (*llm.FinalResponse, error)
}
