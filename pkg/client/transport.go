package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/sony/gobreaker"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/sse"
	"github.com/papercomputeco/chatstream/pkg/stream"
)

// Open starts a Server-Sent Events stream for req. It implements
// stream.Transport.
func (c *Client) Open(ctx context.Context, req *llm.StreamRequest) (stream.Payloads, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	target, err := c.streamURL(req, token)
	if err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.openStream(ctx, target, req.RequestID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("gateway circuit breaker is open, failing fast", "request_id", req.RequestID)
			return nil, fmt.Errorf("gateway stream circuit open: %w", err)
		}
		return nil, err
	}

	return result.(*ssePayloads), nil
}

func (c *Client) openStream(ctx context.Context, target, requestID string) (*ssePayloads, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating stream request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("X-Request-ID", requestID)

	c.logger.Debug("opening stream", "request_id", requestID, "gateway", c.baseURL.Host)

	resp, err := c.streamHTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &stream.OpenError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
	}

	return newSSEPayloads(resp.Body, c.trace), nil
}

// streamURL encodes req into the stream endpoint's query parameters.
func (c *Client) streamURL(req *llm.StreamRequest, token string) (string, error) {
	messages, err := json.Marshal(req.Messages)
	if err != nil {
		return "", fmt.Errorf("encoding messages: %w", err)
	}

	q := url.Values{}
	q.Set("request_id", req.RequestID)
	q.Set("config_id", strconv.Itoa(req.ConfigID))
	q.Set("messages", string(messages))
	q.Set("token", token)

	if req.Model != "" {
		q.Set("model", req.Model)
	}
	if req.Temperature != nil {
		q.Set("temperature", strconv.FormatFloat(*req.Temperature, 'f', -1, 64))
	}
	if req.MaxTokens != nil {
		q.Set("max_tokens", strconv.Itoa(*req.MaxTokens))
	}
	if req.StreamDelay > 0 {
		q.Set("stream_delay_ms", strconv.FormatInt(req.StreamDelay.Milliseconds(), 10))
	}
	if c.cfg.IncludeUsage {
		q.Set("include_usage_in_stream", "true")
	}
	if len(req.FileAttachmentIDs) > 0 {
		ids, err := json.Marshal(req.FileAttachmentIDs)
		if err != nil {
			return "", fmt.Errorf("encoding file attachment ids: %w", err)
		}
		q.Set("file_attachment_ids", string(ids))
	}
	if req.AssistantID != "" {
		q.Set("assistant_id", req.AssistantID)
	}
	if req.ConversationID != "" {
		q.Set("conversation_id", req.ConversationID)
	}
	if req.ProjectID != "" {
		q.Set("project_id", req.ProjectID)
	}

	u := c.endpoint(streamPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ssePayloads adapts an SSE response body to stream.Payloads.
type ssePayloads struct {
	body   io.ReadCloser
	reader *sse.Reader
	once   sync.Once
}

func newSSEPayloads(body io.ReadCloser, trace io.Writer) *ssePayloads {
	return &ssePayloads{
		body:   body,
		reader: sse.NewTeeReader(body, trace),
	}
}

// Next returns the data of the next message event. Events with a custom
// type are skipped.
func (p *ssePayloads) Next() (string, error) {
	for {
		ev, err := p.reader.Next()
		if err != nil {
			return "", err
		}
		if ev.Type != "" && ev.Type != "message" {
			continue
		}
		return ev.Data, nil
	}
}

func (p *ssePayloads) Close() error {
	var err error
	p.once.Do(func() {
		err = p.body.Close()
	})
	return err
}

// errorMessage extracts a human-readable message from a refusal body.
func errorMessage(body []byte) string {
	var er llm.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		if msg := er.Message(); msg != "" {
			return msg
		}
	}
	if len(body) == 0 {
		return "no response body"
	}
	return string(body)
}
