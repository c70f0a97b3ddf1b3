package llm

// ConversationTurn is a completed request-response pair.
type ConversationTurn struct {
	Request  *StreamRequest `json:"request"`
	Response *FinalResponse `json:"response,omitempty"`
}
