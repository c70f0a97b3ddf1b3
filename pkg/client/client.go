// Package client talks to the chat gateway over HTTP: a Server-Sent Events
// transport for live streams and a JSON endpoint for non-streaming calls.
// A *Client satisfies both stream.Transport and stream.Sender.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/papercomputeco/chatstream/pkg/credentials"
	"github.com/papercomputeco/chatstream/pkg/stream"
)

const (
	streamPath = "/api/v1/chat/stream"
	sendPath   = "/api/v1/chat/send"

	defaultSendTimeout     = 2 * time.Minute
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second

	// maxErrorBody bounds how much of a refusal body is read for its message.
	maxErrorBody = 4 * 1024
)

// Config is the explicit client configuration. Credentials come from
// Tokens, which is consulted on every stream open and send.
type Config struct {
	// BaseURL is the gateway root, e.g. http://localhost:8000.
	BaseURL string

	// Tokens yields the gateway auth token.
	Tokens credentials.TokenSource

	// Timeout bounds each non-streaming call. Streams are bounded only by
	// their context.
	Timeout time.Duration

	// IncludeUsage asks the gateway to report token usage on the terminal chunk.
	IncludeUsage bool

	// BreakerFailures is the number of consecutive failed stream opens that
	// trips the circuit breaker; BreakerCooldown is how long it stays open.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client is a gateway client.
type Client struct {
	cfg     Config
	baseURL *url.URL

	streamHTTP *http.Client
	sendHTTP   *http.Client
	breaker    *gobreaker.CircuitBreaker

	logger *slog.Logger
	trace  io.Writer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets the underlying HTTP client. Its Timeout is ignored for
// streams.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.streamHTTP = &http.Client{Transport: hc.Transport}
		c.sendHTTP = &http.Client{Transport: hc.Transport, Timeout: c.cfg.Timeout}
	}
}

// WithTrace copies every raw byte of every stream to w.
func WithTrace(w io.Writer) Option {
	return func(c *Client) {
		c.trace = w
	}
}

// New creates a Client. An unusable configuration is reported as an error
// wrapping stream.ErrConfiguration.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid gateway url %q", stream.ErrConfiguration, cfg.BaseURL)
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("%w: no token source", stream.ErrConfiguration)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSendTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaultBreakerCooldown
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    base,
		streamHTTP: &http.Client{},
		sendHTTP:   &http.Client{Timeout: cfg.Timeout},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gateway-stream",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("gateway circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return c, nil
}

// BreakerState reports the stream circuit breaker's state.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// token fetches a fresh token for one call.
func (c *Client) token(ctx context.Context) (string, error) {
	token, err := c.cfg.Tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", stream.ErrConfiguration, err)
	}
	if token == "" {
		return "", fmt.Errorf("%w: %w", stream.ErrConfiguration, credentials.ErrNoToken)
	}
	return token, nil
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	return &u
}

// countsAsSuccess keeps refusals caused by the caller, such as bad
// credentials or exhausted quota, from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}

	var openErr *stream.OpenError
	if errors.As(err, &openErr) {
		return openErr.StatusCode < http.StatusInternalServerError && openErr.StatusCode != http.StatusTooManyRequests
	}
	return false
}
