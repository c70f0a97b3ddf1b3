package devserver

import (
	"time"
)

// Config is the development gateway configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string

	// Token is the accepted auth token. When empty any non-empty token is accepted.
	Token string

	// FailStreaming refuses every stream open with 503 so clients exercise
	// their non-streaming fallback.
	FailStreaming bool

	// ChunkDelay paces chunks when the request does not set stream_delay_ms.
	ChunkDelay time.Duration

	// ErrorAfter, when positive, replaces chunk N with a backend error payload.
	ErrorAfter int

	// AbortAfter, when positive, replaces chunk N with the [ERROR] marker.
	AbortAfter int

	// Responder produces the answer text. Defaults to EchoResponder.
	Responder Responder
}
