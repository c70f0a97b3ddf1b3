package llm

// StreamChunk is one unit of server-pushed data for a chat turn.
//
// Chunks of one stream arrive in non-decreasing ChunkID order. Exactly one
// chunk per stream has IsFinal set, and it is always the last one delivered.
// The model, usage, cost and timing fields are only populated on that
// terminal chunk.
type StreamChunk struct {
	// Partial text content, possibly empty
	Content string `json:"content"`

	// Sequence number within the stream
	ChunkID int `json:"chunk_id"`

	// Whether this is the terminal chunk
	IsFinal bool `json:"is_final"`

	// Terminal-only fields
	Model          string  `json:"model,omitempty"`
	Provider       string  `json:"provider,omitempty"`
	Usage          *Usage  `json:"usage,omitempty"`
	Cost           float64 `json:"cost,omitempty"`
	ResponseTimeMs float64 `json:"response_time_ms,omitempty"`
	Timestamp      string  `json:"timestamp,omitempty"`

	// Simulated is set on chunks replayed from a non-streaming answer.
	// It never appears on the wire.
	Simulated bool `json:"-"`
}
