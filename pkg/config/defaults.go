package config

const (
	// EventsProviderNone disables turn event publishing.
	EventsProviderNone = "none"

	// EventsProviderKafka publishes turn events to Kafka.
	EventsProviderKafka = "kafka"
)

const (
	defaultGatewayURL     = "http://localhost:8000"
	defaultConfigID       = 1
	defaultGatewayTimeout = "2m"

	defaultSimulatedDelayMs = 50
	defaultBreakerFailures  = 5
	defaultBreakerCooldownS = 30

	defaultEventsTopic = "chatstream.turns"

	defaultDevServerListen       = ":8000"
	defaultDevServerChunkDelayMs = 20
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Gateway: GatewayConfig{
			URL:      defaultGatewayURL,
			ConfigID: defaultConfigID,
			Timeout:  defaultGatewayTimeout,
		},
		Stream: StreamConfig{
			Fallback:         boolPtr(true),
			SimulateFallback: boolPtr(true),
			SimulatedDelayMs: defaultSimulatedDelayMs,
			IncludeUsage:     boolPtr(true),
			BreakerFailures:  defaultBreakerFailures,
			BreakerCooldownS: defaultBreakerCooldownS,
		},
		Events: EventsConfig{
			Provider: EventsProviderNone,
			Topic:    defaultEventsTopic,
		},
		DevServer: DevServerConfig{
			Listen:       defaultDevServerListen,
			ChunkDelayMs: defaultDevServerChunkDelayMs,
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}
