package llm

// FinalResponse is the terminal artifact of a successful chat turn.
//
// It is produced exactly once per turn, either by accumulating a live stream
// or by the non-streaming fallback call. Both producers yield this same shape.
type FinalResponse struct {
	// Full answer text
	Content string `json:"content"`

	// Resolved model and provider
	Model    string `json:"model"`
	Provider string `json:"provider"`

	// Token usage, all zero when the gateway did not report any
	Usage Usage `json:"usage"`

	// Computed cost as reported by the gateway
	Cost float64 `json:"cost"`

	// Gateway-side latency
	ResponseTimeMs float64 `json:"response_time_ms"`

	// Gateway timestamp, passed through verbatim
	Timestamp string `json:"timestamp"`
}

// Usage contains token counts.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ErrorResponse is the error body returned by the gateway's non-streaming endpoint.
type ErrorResponse struct {
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// Message returns the most specific human-readable message in the body.
func (e ErrorResponse) Message() string {
	if e.ErrorMessage != "" {
		return e.ErrorMessage
	}
	return e.Detail
}
