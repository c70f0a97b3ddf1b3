package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/stream"
)

// sendBody is the JSON body of a non-streaming call.
type sendBody struct {
	*llm.StreamRequest

	StreamDelayMs int64 `json:"stream_delay_ms,omitempty"`
}

// sendResult is a successful-status response, which may still carry a
// backend error.
type sendResult struct {
	llm.FinalResponse

	Error        bool   `json:"error,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Send performs one non-streaming chat call. It implements stream.Sender.
func (c *Client) Send(ctx context.Context, req *llm.StreamRequest) (*llm.FinalResponse, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(sendBody{
		StreamRequest: req,
		StreamDelayMs: req.StreamDelay.Milliseconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(sendPath).String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("X-Request-ID", req.RequestID)

	c.logger.Debug("sending non-streaming request",
		"request_id", req.RequestID,
		"message_count", len(req.Messages),
	)

	resp, err := c.sendHTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, sendError(resp.StatusCode, respBody)
	}

	var result sendResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &stream.ValidationError{Reason: "undecodable response body", Err: err}
	}
	if result.Error || result.ErrorType != "" || result.ErrorMessage != "" {
		return nil, &stream.BackendError{Type: result.ErrorType, Message: result.ErrorMessage}
	}

	return &result.FinalResponse, nil
}

// sendError turns a non-success response into a classifiable error: a
// backend error when the body names one, otherwise a status refusal.
func sendError(status int, body []byte) error {
	var er llm.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.ErrorType != "" {
		return &stream.BackendError{Type: er.ErrorType, Message: er.Message()}
	}
	return &stream.OpenError{StatusCode: status, Message: errorMessage(body)}
}
