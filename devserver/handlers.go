package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/sse"
	"github.com/papercomputeco/chatstream/pkg/utils"
)

const (
	doneMarker  = "[DONE]"
	abortMarker = "[ERROR]"

	injectedErrorType    = "upstream_error"
	injectedErrorMessage = "injected upstream failure"

	promptPreviewLen = 60
)

var errMissingToken = errors.New("missing token")

// sendBody is the JSON body of the send endpoint.
type sendBody struct {
	llm.StreamRequest

	StreamDelayMs int64 `json:"stream_delay_ms,omitempty"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleStream answers a stream open with the response split into
// word chunks, a terminal chunk and the done marker.
func (s *Server) handleStream(c *fiber.Ctx) error {
	if err := s.authorize(c.Query("token")); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(llm.ErrorResponse{Detail: err.Error()})
	}

	req, err := parseStreamQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Detail: err.Error()})
	}

	log := s.logger.With("request_id", req.RequestID)
	if s.config.FailStreaming {
		log.Info("refusing stream, streaming failure injected")
		return c.Status(fiber.StatusServiceUnavailable).JSON(llm.ErrorResponse{Detail: "streaming is unavailable"})
	}

	delay := s.config.ChunkDelay
	if req.StreamDelay > 0 {
		delay = req.StreamDelay
	}
	includeUsage := c.Query("include_usage_in_stream") == "true"

	log.Debug("streaming response",
		"message_count", len(req.Messages),
		"prompt", utils.Truncate(req.LastUserMessage(), promptPreviewLen),
		"delay", delay,
	)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("X-Request-ID", req.RequestID)

	// io.Pipe gives per-chunk flushing: fasthttp writes the body chunked
	// and each pw.Write blocks until it has been consumed.
	pr, pw := io.Pipe()
	go s.writeStream(pw, req, delay, includeUsage)
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (s *Server) writeStream(pw *io.PipeWriter, req *llm.StreamRequest, delay time.Duration, includeUsage bool) {
	defer pw.Close()

	started := time.Now()
	log := s.logger.With("request_id", req.RequestID)
	resp := s.respond(req)
	pieces := wordPieces(resp.Content)

	for i, piece := range pieces {
		switch {
		case s.config.AbortAfter > 0 && i == s.config.AbortAfter:
			log.Info("aborting stream, abort injected", "after_chunks", i)
			_ = sse.WriteData(pw, abortMarker)
			return
		case s.config.ErrorAfter > 0 && i == s.config.ErrorAfter:
			log.Info("failing stream, backend error injected", "after_chunks", i)
			_ = sse.WriteData(pw, fmt.Sprintf(`{"error":true,"error_type":%q,"error_message":%q}`, injectedErrorType, injectedErrorMessage))
			return
		}

		if err := writeChunk(pw, llm.StreamChunk{Content: piece, ChunkID: i}); err != nil {
			log.Debug("client went away", "error", err)
			return
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	terminal := llm.StreamChunk{
		ChunkID:        len(pieces),
		IsFinal:        true,
		Model:          resp.Model,
		Provider:       resp.Provider,
		Cost:           resp.Cost,
		ResponseTimeMs: float64(time.Since(started).Microseconds()) / 1000,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	if includeUsage {
		usage := resp.Usage
		terminal.Usage = &usage
	}

	if err := writeChunk(pw, terminal); err != nil {
		log.Debug("client went away", "error", err)
		return
	}
	_ = sse.WriteData(pw, doneMarker)
}

// handleSend answers a non-streaming call with the complete response.
func (s *Server) handleSend(c *fiber.Ctx) error {
	token, _ := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if err := s.authorize(token); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(llm.ErrorResponse{Detail: err.Error()})
	}

	var body sendBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Detail: "invalid request body"})
	}
	req := &body.StreamRequest
	req.StreamDelay = time.Duration(body.StreamDelayMs) * time.Millisecond
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Detail: err.Error()})
	}

	started := time.Now()
	resp := s.respond(req)
	resp.ResponseTimeMs = float64(time.Since(started).Microseconds()) / 1000
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	s.logger.Debug("sent response",
		"request_id", req.RequestID,
		"message_count", len(req.Messages),
		"prompt", utils.Truncate(req.LastUserMessage(), promptPreviewLen),
	)

	return c.JSON(resp)
}

func (s *Server) authorize(token string) error {
	if token == "" {
		return errMissingToken
	}
	if s.config.Token != "" && token != s.config.Token {
		return errors.New("invalid token")
	}
	return nil
}

// parseStreamQuery decodes a stream request from the query parameters.
func parseStreamQuery(c *fiber.Ctx) (*llm.StreamRequest, error) {
	req := &llm.StreamRequest{
		RequestID:      c.Query("request_id"),
		Model:          c.Query("model"),
		ConversationID: c.Query("conversation_id"),
		AssistantID:    c.Query("assistant_id"),
		ProjectID:      c.Query("project_id"),
	}

	configID, err := strconv.Atoi(c.Query("config_id"))
	if err != nil {
		return nil, fmt.Errorf("invalid config_id %q", c.Query("config_id"))
	}
	req.ConfigID = configID

	if err := json.Unmarshal([]byte(c.Query("messages")), &req.Messages); err != nil {
		return nil, fmt.Errorf("invalid messages: %w", err)
	}

	if v := c.Query("temperature"); v != "" {
		temp, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid temperature %q", v)
		}
		req.Temperature = &temp
	}
	if v := c.Query("max_tokens"); v != "" {
		maxTokens, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid max_tokens %q", v)
		}
		req.MaxTokens = &maxTokens
	}
	if v := c.Query("stream_delay_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid stream_delay_ms %q", v)
		}
		req.StreamDelay = time.Duration(ms) * time.Millisecond
	}
	if v := c.Query("file_attachment_ids"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.FileAttachmentIDs); err != nil {
			return nil, fmt.Errorf("invalid file_attachment_ids: %w", err)
		}
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func writeChunk(w io.Writer, chunk llm.StreamChunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	return sse.WriteData(w, string(payload))
}
