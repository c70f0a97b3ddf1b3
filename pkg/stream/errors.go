package stream

import (
	"errors"
	"fmt"
)

// Kind is the closed set of stream failure classes.
type Kind string

const (
	// KindConnection means the transport could not be established or dropped.
	KindConnection Kind = "connection_failure"

	// KindMalformedPayload means a pushed payload failed structural validation.
	KindMalformedPayload Kind = "malformed_payload"

	// KindServer is an uncategorized backend-reported error.
	KindServer Kind = "server_error"

	// KindQuotaExceeded means the tenant ran out of quota.
	KindQuotaExceeded Kind = "quota_exceeded"

	// KindConfiguration covers bad credentials and invalid gateway configuration.
	KindConfiguration Kind = "configuration_error"
)

// Kinds returns every Kind in the taxonomy.
func Kinds() []Kind {
	return []Kind{KindConnection, KindMalformedPayload, KindServer, KindQuotaExceeded, KindConfiguration}
}

// StreamError is a classified stream failure. The Retryable and
// ShouldFallback hints are fixed at classification time; callers never
// re-derive them.
type StreamError struct {
	Kind           Kind
	Message        string
	Retryable      bool
	ShouldFallback bool

	// Err is the underlying cause, if any.
	Err error
}

// NewStreamError builds a StreamError with the default hints for kind:
// only connection failures are retryable, and every kind except quota and
// configuration errors is eligible for fallback.
func NewStreamError(kind Kind, message string) *StreamError {
	return &StreamError{
		Kind:           kind,
		Message:        message,
		Retryable:      kind == KindConnection,
		ShouldFallback: kind != KindQuotaExceeded && kind != KindConfiguration,
	}
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// withCause returns e with its cause set. Only used while the error is
// being constructed.
func (e *StreamError) withCause(err error) *StreamError {
	e.Err = err
	return e
}

// BackendError is raised by the parser when a payload carries a
// backend-signaled error. It is distinct from a parse failure.
type BackendError struct {
	Type    string
	Message string
}

func (e *BackendError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("backend error: %s", e.Message)
	}
	return fmt.Sprintf("backend error (%s): %s", e.Type, e.Message)
}

// ValidationError is raised by the parser when a payload is not valid JSON
// or a field has the wrong type.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid payload: %s", e.Reason)
	}
	return fmt.Sprintf("invalid payload field %q: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// OpenError is returned by transports when the gateway refused to open a
// stream with a non-success status.
type OpenError struct {
	StatusCode int
	Message    string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("gateway refused stream (status %d): %s", e.StatusCode, e.Message)
}

var (
	// ErrConfiguration is wrapped by transports and senders for missing
	// credentials or unusable client settings.
	ErrConfiguration = errors.New("invalid client configuration")

	// ErrServerAborted reports the gateway's out-of-band abort marker.
	ErrServerAborted = errors.New("gateway aborted the stream")

	// ErrIncompleteStream reports a stream that ended before its terminal chunk.
	ErrIncompleteStream = errors.New("stream ended before the final chunk")
)
