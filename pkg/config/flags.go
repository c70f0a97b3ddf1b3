package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline, so the same logical flag
// cannot drift between "chatstream chat" and "chatstream serve".
type Flag struct {
	// Name is the long flag name (e.g. "gateway").
	Name string

	// Shorthand is the one-letter short flag (e.g. "g"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "gateway.url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling the Add*Flag helpers and
// BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagGateway          = "gateway"
	FlagConfigID         = "config-id"
	FlagTimeout          = "timeout"
	FlagModel            = "model"
	FlagSystemPrompt     = "system"
	FlagTemperature      = "temperature"
	FlagMaxTokens        = "max-tokens"
	FlagMarkdown         = "markdown"
	FlagSimulatedDelayMs = "simulated-delay-ms"
	FlagEventsProvider   = "events-provider"
	FlagEventsTopic      = "events-topic"

	FlagListen        = "listen"
	FlagServerToken   = "server-token"
	FlagFailStreaming = "fail-streaming"
	FlagChunkDelayMs  = "chunk-delay-ms"
	FlagErrorAfter    = "error-after"
	FlagAbortAfter    = "abort-after"
)

// Flags is the registry shared by every chatstream command.
var Flags = FlagSet{
	FlagGateway: {
		Name:        "gateway",
		Shorthand:   "g",
		ViperKey:    "gateway.url",
		Description: "Chat gateway base URL",
	},
	FlagConfigID: {
		Name:        "config-id",
		Shorthand:   "c",
		ViperKey:    "gateway.config_id",
		Description: "Gateway provider configuration id",
	},
	FlagTimeout: {
		Name:        "timeout",
		ViperKey:    "gateway.timeout",
		Description: "Timeout for non-streaming gateway calls",
	},
	FlagModel: {
		Name:        "model",
		Shorthand:   "m",
		ViperKey:    "chat.model",
		Description: "Model override for the gateway configuration",
	},
	FlagSystemPrompt: {
		Name:        "system",
		Shorthand:   "s",
		ViperKey:    "chat.system_prompt",
		Description: "System prompt sent at the start of the conversation",
	},
	FlagTemperature: {
		Name:        "temperature",
		Shorthand:   "t",
		ViperKey:    "chat.temperature",
		Description: "Sampling temperature (0 uses the gateway default)",
	},
	FlagMaxTokens: {
		Name:        "max-tokens",
		ViperKey:    "chat.max_tokens",
		Description: "Maximum tokens to generate (0 uses the gateway default)",
	},
	FlagMarkdown: {
		Name:        "markdown",
		ViperKey:    "chat.markdown",
		Description: "Render each final answer as markdown",
	},
	FlagSimulatedDelayMs: {
		Name:        "simulated-delay-ms",
		ViperKey:    "stream.simulated_delay_ms",
		Description: "Delay between simulated chunks when replaying a fallback answer",
	},
	FlagEventsProvider: {
		Name:        "events-provider",
		ViperKey:    "events.provider",
		Description: "Turn event publisher (none, kafka)",
	},
	FlagEventsTopic: {
		Name:        "events-topic",
		ViperKey:    "events.topic",
		Description: "Kafka topic for turn events",
	},
	FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "devserver.listen",
		Description: "Address for the development gateway to listen on",
	},
	FlagServerToken: {
		Name:        "token",
		ViperKey:    "devserver.token",
		Description: "Token the development gateway requires (empty accepts any)",
	},
	FlagFailStreaming: {
		Name:        "fail-streaming",
		ViperKey:    "devserver.fail_streaming",
		Description: "Refuse every stream open with 503 to exercise fallback",
	},
	FlagChunkDelayMs: {
		Name:        "chunk-delay-ms",
		ViperKey:    "devserver.chunk_delay_ms",
		Description: "Default delay between streamed chunks",
	},
	FlagErrorAfter: {
		Name:        "error-after",
		ViperKey:    "devserver.error_after",
		Description: "Send a backend error payload after N chunks (0 disables)",
	},
	FlagAbortAfter: {
		Name:        "abort-after",
		ViperKey:    "devserver.abort_after",
		Description: "Send the [ERROR] marker after N chunks (0 disables)",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, key string, target *int) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddFloatFlag registers a float64 flag on cmd from the given FlagSet.
func AddFloatFlag(cmd *cobra.Command, fs FlagSet, key string, target *float64) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetFloat64(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().Float64VarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().Float64Var(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, key string, target *bool) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaults returns a viper instance holding only NewDefaultConfig values.
func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
