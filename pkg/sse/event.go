// Package sse reads and writes Server-Sent Events for the chat gateway
// stream. The Reader parses events pushed by the gateway, optionally teeing
// the raw bytes to a trace writer; Write frames events for the development
// gateway.
//
// See the WHATWG server-sent events standard:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event represents a single parsed SSE event, delimited by a blank line
// in the byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n".
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}
