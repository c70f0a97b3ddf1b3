// Package devserver provides a local chat gateway that speaks the chatstream
// wire protocol: an SSE stream endpoint and a non-streaming send endpoint,
// answered by a pluggable responder and with optional fault injection.
package devserver

import (
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	streamPath = "/api/v1/chat/stream"
	sendPath   = "/api/v1/chat/send"
)

// Server is the development gateway.
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App
}

// New creates a new development gateway.
func New(config Config, logger *slog.Logger) *Server {
	if config.Responder == nil {
		config.Responder = EchoResponder
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		// Request values outlive the handler in the streaming goroutine.
		Immutable: true,
	})

	s := &Server{
		config: config,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get(streamPath, s.handleStream)
	app.Post(sendPath, s.handleSend)

	return s
}

// Run starts the gateway on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting development gateway",
		"listen", s.config.ListenAddr,
		"fail_streaming", s.config.FailStreaming,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener starts the gateway using the provided listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting development gateway",
		"listen", listener.Addr().String(),
		"fail_streaming", s.config.FailStreaming,
	)
	return s.app.Listener(listener)
}

// Close gracefully shuts down the gateway.
func (s *Server) Close() error {
	return s.app.ShutdownWithTimeout(5 * time.Second)
}
