package llm

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// StreamRequest describes one chat turn sent to the gateway.
//
// A StreamRequest is constructed by the caller once per chat turn and is
// treated as an immutable value afterwards: helpers such as WithRequestID
// return copies rather than mutating the receiver.
type StreamRequest struct {
	// RequestID is unique per attempt and used by the gateway for tracing and
	// idempotent retry detection. Left empty, one is generated on dispatch.
	RequestID string `json:"request_id"`

	// ConfigID identifies the gateway-side provider configuration.
	ConfigID int `json:"config_id"`

	// Messages is the ordered conversation history for this turn.
	Messages []Message `json:"messages"`

	// Model optionally overrides the configuration's default model.
	Model string `json:"model,omitempty"`

	// Generation parameters
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`

	// StreamDelay optionally asks the gateway (and the fallback simulator)
	// to pace chunks by this delay.
	StreamDelay time.Duration `json:"-"`

	// FileAttachmentIDs references files uploaded out of band.
	FileAttachmentIDs []int `json:"file_attachment_ids,omitempty"`

	// Correlation identifiers, passed through untouched.
	ConversationID string `json:"conversation_id,omitempty"`
	AssistantID    string `json:"assistant_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
}

// ErrNoMessages indicates a request without any messages.
var ErrNoMessages = errors.New("request has no messages")

// Validate checks the request for problems that would make any gateway call fail.
func (r *StreamRequest) Validate() error {
	if r.ConfigID <= 0 {
		return fmt.Errorf("invalid config id %d", r.ConfigID)
	}
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	for i, msg := range r.Messages {
		if !IsValidRole(msg.Role) {
			return fmt.Errorf("message %d: invalid role %q", i, msg.Role)
		}
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return fmt.Errorf("invalid max tokens %d", *r.MaxTokens)
	}
	if r.StreamDelay < 0 {
		return fmt.Errorf("invalid stream delay %s", r.StreamDelay)
	}
	return nil
}

// WithRequestID returns a copy of the request that carries a request id,
// generating a new uuid when the request has none.
func (r StreamRequest) WithRequestID() StreamRequest {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	r.Messages = slices.Clone(r.Messages)
	r.FileAttachmentIDs = slices.Clone(r.FileAttachmentIDs)
	return r
}

// LastUserMessage returns the content of the most recent user message.
func (r *StreamRequest) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}
