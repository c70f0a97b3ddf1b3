package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent chatstream configuration stored as
// config.toml in the .chatstream/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Stream    StreamConfig    `toml:"stream"`
	Chat      ChatConfig      `toml:"chat"`
	Events    EventsConfig    `toml:"events"`
	DevServer DevServerConfig `toml:"devserver"`
}

// GatewayConfig points the client at a chat gateway.
type GatewayConfig struct {
	URL      string `toml:"url,omitempty"`
	ConfigID int    `toml:"config_id,omitempty"`

	// Timeout bounds the non-streaming call, as a Go duration string.
	Timeout string `toml:"timeout,omitempty"`
}

// StreamConfig holds streaming and fallback policy. Booleans are pointers so
// an explicit false in config.toml survives default merging.
type StreamConfig struct {
	Fallback         *bool `toml:"fallback,omitempty"`
	SimulateFallback *bool `toml:"simulate_fallback,omitempty"`
	SimulatedDelayMs int   `toml:"simulated_delay_ms,omitempty"`
	IncludeUsage     *bool `toml:"include_usage,omitempty"`
	BreakerFailures  uint  `toml:"breaker_failures,omitempty"`
	BreakerCooldownS uint  `toml:"breaker_cooldown_s,omitempty"`
}

// ChatConfig holds per-turn request defaults for the chat command.
type ChatConfig struct {
	Model        string  `toml:"model,omitempty"`
	SystemPrompt string  `toml:"system_prompt,omitempty"`
	Temperature  float64 `toml:"temperature,omitempty"`
	MaxTokens    int     `toml:"max_tokens,omitempty"`
	Markdown     bool    `toml:"markdown,omitempty"`
}

// EventsConfig selects where turn events are published.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// DevServerConfig holds settings for the local development gateway.
type DevServerConfig struct {
	Listen        string `toml:"listen,omitempty"`
	Token         string `toml:"token,omitempty"`
	FailStreaming bool   `toml:"fail_streaming,omitempty"`
	ChunkDelayMs  int    `toml:"chunk_delay_ms,omitempty"`
	ErrorAfter    int    `toml:"error_after,omitempty"`
	AbortAfter    int    `toml:"abort_after,omitempty"`
}

// FallbackEnabled reports whether failed streams fall back to a
// non-streaming call.
func (s StreamConfig) FallbackEnabled() bool {
	return s.Fallback == nil || *s.Fallback
}

// SimulationEnabled reports whether fallback answers are replayed as chunks.
func (s StreamConfig) SimulationEnabled() bool {
	return s.SimulateFallback == nil || *s.SimulateFallback
}

// UsageEnabled reports whether the gateway is asked to report usage on the
// terminal chunk.
func (s StreamConfig) UsageEnabled() bool {
	return s.IncludeUsage == nil || *s.IncludeUsage
}

// TimeoutDuration parses Timeout, falling back to the default on error.
func (g GatewayConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(g.Timeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultGatewayTimeout)
	}
	return d
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for %s: %q", name, v)
			}
			*field(c) = n
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func optionalBoolKey(name string, field func(c *Config) **bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == nil {
				return ""
			}
			return strconv.FormatBool(**field(c))
		},
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = &b
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"gateway.url":       stringKey(func(c *Config) *string { return &c.Gateway.URL }),
	"gateway.config_id": intKey("gateway.config_id", func(c *Config) *int { return &c.Gateway.ConfigID }),
	"gateway.timeout": {
		get: func(c *Config) string { return c.Gateway.Timeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for gateway.timeout: %w", err)
			}
			c.Gateway.Timeout = v
			return nil
		},
	},

	"stream.fallback":           optionalBoolKey("stream.fallback", func(c *Config) **bool { return &c.Stream.Fallback }),
	"stream.simulate_fallback":  optionalBoolKey("stream.simulate_fallback", func(c *Config) **bool { return &c.Stream.SimulateFallback }),
	"stream.simulated_delay_ms": intKey("stream.simulated_delay_ms", func(c *Config) *int { return &c.Stream.SimulatedDelayMs }),
	"stream.include_usage":      optionalBoolKey("stream.include_usage", func(c *Config) **bool { return &c.Stream.IncludeUsage }),
	"stream.breaker_failures":   uintKey("stream.breaker_failures", func(c *Config) *uint { return &c.Stream.BreakerFailures }),
	"stream.breaker_cooldown_s": uintKey("stream.breaker_cooldown_s", func(c *Config) *uint { return &c.Stream.BreakerCooldownS }),

	"chat.model":         stringKey(func(c *Config) *string { return &c.Chat.Model }),
	"chat.system_prompt": stringKey(func(c *Config) *string { return &c.Chat.SystemPrompt }),
	"chat.temperature": {
		get: func(c *Config) string {
			if c.Chat.Temperature == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Chat.Temperature, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 || f > 2 {
				return fmt.Errorf("invalid value for chat.temperature: %q (expected 0-2)", v)
			}
			c.Chat.Temperature = f
			return nil
		},
	},
	"chat.max_tokens": intKey("chat.max_tokens", func(c *Config) *int { return &c.Chat.MaxTokens }),
	"chat.markdown":   boolKey("chat.markdown", func(c *Config) *bool { return &c.Chat.Markdown }),

	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case EventsProviderNone, EventsProviderKafka:
				c.Events.Provider = v
				return nil
			default:
				return fmt.Errorf("invalid value for events.provider: %q (expected %s or %s)", v, EventsProviderNone, EventsProviderKafka)
			}
		},
	},
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.Brokers = splitList(v)
			return nil
		},
	},
	"events.topic": stringKey(func(c *Config) *string { return &c.Events.Topic }),

	"devserver.listen":         stringKey(func(c *Config) *string { return &c.DevServer.Listen }),
	"devserver.token":          stringKey(func(c *Config) *string { return &c.DevServer.Token }),
	"devserver.fail_streaming": boolKey("devserver.fail_streaming", func(c *Config) *bool { return &c.DevServer.FailStreaming }),
	"devserver.chunk_delay_ms": intKey("devserver.chunk_delay_ms", func(c *Config) *int { return &c.DevServer.ChunkDelayMs }),
	"devserver.error_after":    intKey("devserver.error_after", func(c *Config) *int { return &c.DevServer.ErrorAfter }),
	"devserver.abort_after":    intKey("devserver.abort_after", func(c *Config) *int { return &c.DevServer.AbortAfter }),
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
