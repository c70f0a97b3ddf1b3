package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/chatstream/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the CHATSTREAM_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (CHATSTREAM_GATEWAY_URL, CHATSTREAM_STREAM_FALLBACK, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: CHATSTREAM_GATEWAY_URL, CHATSTREAM_CHAT_MODEL, etc.
	v.SetEnvPrefix("CHATSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Gateway
	v.SetDefault("gateway.url", d.Gateway.URL)
	v.SetDefault("gateway.config_id", d.Gateway.ConfigID)
	v.SetDefault("gateway.timeout", d.Gateway.Timeout)

	// Stream
	v.SetDefault("stream.fallback", d.Stream.FallbackEnabled())
	v.SetDefault("stream.simulate_fallback", d.Stream.SimulationEnabled())
	v.SetDefault("stream.simulated_delay_ms", d.Stream.SimulatedDelayMs)
	v.SetDefault("stream.include_usage", d.Stream.UsageEnabled())
	v.SetDefault("stream.breaker_failures", d.Stream.BreakerFailures)
	v.SetDefault("stream.breaker_cooldown_s", d.Stream.BreakerCooldownS)

	// Chat
	v.SetDefault("chat.model", d.Chat.Model)
	v.SetDefault("chat.system_prompt", d.Chat.SystemPrompt)
	v.SetDefault("chat.temperature", d.Chat.Temperature)
	v.SetDefault("chat.max_tokens", d.Chat.MaxTokens)
	v.SetDefault("chat.markdown", d.Chat.Markdown)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	// Dev server
	v.SetDefault("devserver.listen", d.DevServer.Listen)
	v.SetDefault("devserver.token", d.DevServer.Token)
	v.SetDefault("devserver.fail_streaming", d.DevServer.FailStreaming)
	v.SetDefault("devserver.chunk_delay_ms", d.DevServer.ChunkDelayMs)
	v.SetDefault("devserver.error_after", d.DevServer.ErrorAfter)
	v.SetDefault("devserver.abort_after", d.DevServer.AbortAfter)
}

// FromViper resolves the effective configuration from v, after flags have
// been bound with BindRegisteredFlags.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Gateway: GatewayConfig{
			URL:      v.GetString("gateway.url"),
			ConfigID: v.GetInt("gateway.config_id"),
			Timeout:  v.GetString("gateway.timeout"),
		},
		Stream: StreamConfig{
			Fallback:         boolPtr(v.GetBool("stream.fallback")),
			SimulateFallback: boolPtr(v.GetBool("stream.simulate_fallback")),
			SimulatedDelayMs: v.GetInt("stream.simulated_delay_ms"),
			IncludeUsage:     boolPtr(v.GetBool("stream.include_usage")),
			BreakerFailures:  v.GetUint("stream.breaker_failures"),
			BreakerCooldownS: v.GetUint("stream.breaker_cooldown_s"),
		},
		Chat: ChatConfig{
			Model:        v.GetString("chat.model"),
			SystemPrompt: v.GetString("chat.system_prompt"),
			Temperature:  v.GetFloat64("chat.temperature"),
			MaxTokens:    v.GetInt("chat.max_tokens"),
			Markdown:     v.GetBool("chat.markdown"),
		},
		Events: EventsConfig{
			Provider: v.GetString("events.provider"),
			Brokers:  v.GetStringSlice("events.brokers"),
			Topic:    v.GetString("events.topic"),
		},
		DevServer: DevServerConfig{
			Listen:        v.GetString("devserver.listen"),
			Token:         v.GetString("devserver.token"),
			FailStreaming: v.GetBool("devserver.fail_streaming"),
			ChunkDelayMs:  v.GetInt("devserver.chunk_delay_ms"),
			ErrorAfter:    v.GetInt("devserver.error_after"),
			AbortAfter:    v.GetInt("devserver.abort_after"),
		},
	}
}
