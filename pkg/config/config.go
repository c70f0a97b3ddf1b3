package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/chatstream/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .chatstream/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the sorted list of all supported configuration key names.
func ValidConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}

	// Return in a stable, logical order matching the TOML section layout.
	ordered := []string{
		"gateway.url",
		"gateway.config_id",
		"gateway.timeout",
		"stream.fallback",
		"stream.simulate_fallback",
		"stream.simulated_delay_ms",
		"stream.include_usage",
		"stream.breaker_failures",
		"stream.breaker_cooldown_s",
		"chat.model",
		"chat.system_prompt",
		"chat.temperature",
		"chat.max_tokens",
		"chat.markdown",
		"events.provider",
		"events.brokers",
		"events.topic",
		"devserver.listen",
		"devserver.token",
		"devserver.fail_streaming",
		"devserver.chunk_delay_ms",
		"devserver.error_after",
		"devserver.abort_after",
	}

	// Sanity: only return keys that actually exist in the map.
	result := make([]string, 0, len(ordered))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	seen := make(map[string]bool, len(result))
	for _, k := range result {
		seen[k] = true
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target
// .chatstream/ directory. If the file does not exist, returns
// NewDefaultConfig() so callers always receive a fully-populated Config.
// Fields explicitly set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Gateway.URL == "" {
		cfg.Gateway.URL = defaults.Gateway.URL
	}
	if cfg.Gateway.ConfigID == 0 {
		cfg.Gateway.ConfigID = defaults.Gateway.ConfigID
	}
	if cfg.Gateway.Timeout == "" {
		cfg.Gateway.Timeout = defaults.Gateway.Timeout
	}

	if cfg.Stream.Fallback == nil {
		cfg.Stream.Fallback = defaults.Stream.Fallback
	}
	if cfg.Stream.SimulateFallback == nil {
		cfg.Stream.SimulateFallback = defaults.Stream.SimulateFallback
	}
	if cfg.Stream.SimulatedDelayMs == 0 {
		cfg.Stream.SimulatedDelayMs = defaults.Stream.SimulatedDelayMs
	}
	if cfg.Stream.IncludeUsage == nil {
		cfg.Stream.IncludeUsage = defaults.Stream.IncludeUsage
	}
	if cfg.Stream.BreakerFailures == 0 {
		cfg.Stream.BreakerFailures = defaults.Stream.BreakerFailures
	}
	if cfg.Stream.BreakerCooldownS == 0 {
		cfg.Stream.BreakerCooldownS = defaults.Stream.BreakerCooldownS
	}

	if cfg.Events.Provider == "" {
		cfg.Events.Provider = defaults.Events.Provider
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = defaults.Events.Topic
	}

	if cfg.DevServer.Listen == "" {
		cfg.DevServer.Listen = defaults.DevServer.Listen
	}
	if cfg.DevServer.ChunkDelayMs == 0 {
		cfg.DevServer.ChunkDelayMs = defaults.DevServer.ChunkDelayMs
	}
}

// SaveConfig persists the configuration to config.toml in the target .chatstream/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// PresetConfig returns a Config with defaults tuned for the named preset.
// Supported presets: "local", "strict", "kafka".
// Returns an error if the preset name is not recognized.
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()

	switch strings.ToLower(name) {
	case "local":
		// Local development gateway with fast simulated fallback.
		cfg.Stream.SimulatedDelayMs = 20
		cfg.DevServer.ChunkDelayMs = 20
		return cfg, nil

	case "strict":
		// Streaming only: failures surface immediately.
		cfg.Stream.Fallback = boolPtr(false)
		cfg.Stream.SimulateFallback = boolPtr(false)
		return cfg, nil

	case "kafka":
		cfg.Events = EventsConfig{
			Provider: EventsProviderKafka,
			Brokers:  []string{"localhost:9092"},
			Topic:    defaultEventsTopic,
		}
		return cfg, nil

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
	}
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"local", "strict", "kafka"}
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentConfigVersion.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
