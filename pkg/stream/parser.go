package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// Wire sentinels. They are translated into a FrameKind by ParsePayload and
// never compared against outside this file.
const (
	doneMarker  = "[DONE]"
	errorMarker = "[ERROR]"
)

// FrameKind tags a parsed payload.
type FrameKind int

const (
	// FrameChunk carries a StreamChunk.
	FrameChunk FrameKind = iota

	// FrameDone marks the end of the stream. The terminal chunk has already
	// been delivered when a gateway sends it.
	FrameDone

	// FrameServerError marks a gateway-side abort of the stream.
	FrameServerError
)

func (k FrameKind) String() string {
	switch k {
	case FrameChunk:
		return "chunk"
	case FrameDone:
		return "done"
	case FrameServerError:
		return "server_error"
	default:
		return fmt.Sprintf("frame(%d)", int(k))
	}
}

// Frame is one parsed payload. Chunk is only meaningful for FrameChunk.
type Frame struct {
	Kind  FrameKind
	Chunk llm.StreamChunk
}

// ParsePayload turns one raw server-pushed payload into a Frame.
//
// A payload carrying an error indicator fails with a *BackendError. A payload
// that is not a JSON object, or whose fields have the wrong types, fails with
// a *ValidationError. ParsePayload has no side effects.
func ParsePayload(payload string) (Frame, error) {
	switch strings.TrimSpace(payload) {
	case doneMarker:
		return Frame{Kind: FrameDone}, nil
	case errorMarker:
		return Frame{Kind: FrameServerError}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return Frame{}, &ValidationError{Reason: "not a JSON object", Err: err}
	}
	if fields == nil {
		return Frame{}, &ValidationError{Reason: "not a JSON object"}
	}

	if berr := backendError(fields); berr != nil {
		return Frame{}, berr
	}

	content, err := contentField(fields["content"])
	if err != nil {
		return Frame{}, err
	}

	chunk := llm.StreamChunk{Content: content}
	decoders := []struct {
		name string
		dst  any
	}{
		{"chunk_id", &chunk.ChunkID},
		{"is_final", &chunk.IsFinal},
		{"model", &chunk.Model},
		{"provider", &chunk.Provider},
		{"usage", &chunk.Usage},
		{"cost", &chunk.Cost},
		{"response_time_ms", &chunk.ResponseTimeMs},
		{"timestamp", &chunk.Timestamp},
	}
	for _, d := range decoders {
		if err := decodeField(fields, d.name, d.dst); err != nil {
			return Frame{}, err
		}
	}

	return Frame{Kind: FrameChunk, Chunk: chunk}, nil
}

// contentField accepts a string, null or an absent field. Anything else is a
// validation failure.
func contentField(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}

	var content string
	if err := json.Unmarshal(raw, &content); err != nil {
		return "", &ValidationError{
			Field:  "content",
			Reason: fmt.Sprintf("expected string or null, got %s", jsonType(raw)),
			Err:    err,
		}
	}
	return content, nil
}

func decodeField(fields map[string]json.RawMessage, name string, dst any) error {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ValidationError{
			Field:  name,
			Reason: fmt.Sprintf("unexpected %s", jsonType(raw)),
			Err:    err,
		}
	}
	return nil
}

// backendError reports a *BackendError when the payload carries an explicit
// error flag or populated error fields. Error fields are read leniently so
// that an odd error body still surfaces as a backend error rather than a
// malformed payload.
func backendError(fields map[string]json.RawMessage) *BackendError {
	errType := looseString(fields["error_type"])
	errMessage := looseString(fields["error_message"])

	flagged := false
	if raw, ok := fields["error"]; ok && !isNull(raw) {
		var flag bool
		var nested struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		switch {
		case json.Unmarshal(raw, &flag) == nil:
			flagged = flag
		case json.Unmarshal(raw, &nested) == nil:
			flagged = true
			if errType == "" {
				errType = nested.Type
			}
			if errMessage == "" {
				errMessage = nested.Message
			}
		default:
			if s := looseString(raw); s != "" {
				flagged = true
				if errMessage == "" {
					errMessage = s
				}
			}
		}
	}

	if !flagged && errType == "" && errMessage == "" {
		return nil
	}
	return &BackendError{Type: errType, Message: errMessage}
}

func looseString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func jsonType(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "empty value"
	}
	switch trimmed[0] {
	case '"':
		return "string"
	case '{':
		return "object"
	case '[':
		return "array"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
