// Package eventstream defines transport-neutral chat turn lifecycle events
// and the publishers that ship them to an event stream backend.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/stream"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted after a chat turn produced a final response.
	EventTypeTurnCompleted = "chatstream.turn.completed"

	// EventTypeTurnFailed is emitted after a chat turn ended with a classified error.
	EventTypeTurnFailed = "chatstream.turn.failed"

	// PathStream and PathFallback name the transport path that served a turn.
	PathStream   = "stream"
	PathFallback = "fallback"
)

// TurnEvent is a transport-neutral event payload for a finished chat turn.
type TurnEvent struct {
	SchemaVersion int                  `json:"schema_version"`
	EventType     string               `json:"event_type"`
	EventID       string               `json:"event_id"`
	EmittedAt     time.Time            `json:"emitted_at"`
	Source        EventSource          `json:"source"`
	RequestMeta   TurnRequestMeta      `json:"request_meta"`
	Turn          llm.ConversationTurn `json:"turn"`
	Error         *TurnError           `json:"error,omitempty"`
}

// EventSource identifies where the turn originated.
type EventSource struct {
	Client   string `json:"client"`
	Gateway  string `json:"gateway"`
	ConfigID int    `json:"config_id"`
}

// TurnRequestMeta captures request lifecycle metadata for the event.
type TurnRequestMeta struct {
	RequestID   string    `json:"request_id"`
	Path        string    `json:"path"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	ChunkCount  int       `json:"chunk_count"`
}

// TurnError is the classified failure of a failed turn.
type TurnError struct {
	Kind           stream.Kind `json:"kind"`
	Message        string      `json:"message"`
	Retryable      bool        `json:"retryable"`
	ShouldFallback bool        `json:"should_fallback"`
}

// NewTurnEvent builds the event for a finished turn. A non-nil serr makes it
// a failure event.
func NewTurnEvent(source EventSource, meta TurnRequestMeta, turn llm.ConversationTurn, serr *stream.StreamError) *TurnEvent {
	event := &TurnEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnCompleted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		RequestMeta:   meta,
		Turn:          turn,
	}

	if serr != nil {
		event.EventType = EventTypeTurnFailed
		event.Error = &TurnError{
			Kind:           serr.Kind,
			Message:        serr.Message,
			Retryable:      serr.Retryable,
			ShouldFallback: serr.ShouldFallback,
		}
	}

	return event
}

// Key returns the partitioning key for the event.
func (e *TurnEvent) Key() string {
	return e.RequestMeta.RequestID
}
