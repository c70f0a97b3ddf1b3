package devserver

import (
	"strings"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

const (
	// DefaultModel is reported when a request does not name a model.
	DefaultModel = "echo-1"

	providerName = "devserver"

	// costPerToken is a made-up price so clients have a cost to display.
	costPerToken = 0.000002
)

// Responder produces the answer text for a request.
type Responder func(req *llm.StreamRequest) string

// EchoResponder answers with the last user message.
func EchoResponder(req *llm.StreamRequest) string {
	msg := req.LastUserMessage()
	if msg == "" {
		return "Nothing to echo."
	}
	return "You said: " + msg
}

// respond builds the complete answer for req.
func (s *Server) respond(req *llm.StreamRequest) *llm.FinalResponse {
	content := s.config.Responder(req)

	input := 0
	for _, msg := range req.Messages {
		input += len(strings.Fields(msg.Content))
	}
	output := len(strings.Fields(content))

	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	return &llm.FinalResponse{
		Content:  content,
		Model:    model,
		Provider: providerName,
		Usage: llm.Usage{
			InputTokens:  input,
			OutputTokens: output,
			TotalTokens:  input + output,
		},
		Cost: float64(input+output) * costPerToken,
	}
}

// wordPieces splits content into per-word pieces that keep their trailing
// space, so concatenating the pieces yields content.
func wordPieces(content string) []string {
	var pieces []string
	for _, piece := range strings.SplitAfter(content, " ") {
		if piece != "" {
			pieces = append(pieces, piece)
		}
	}
	return pieces
}
