// Package configcmder provides the config command for managing persistent
// chatstream configuration stored in the .chatstream/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent chatstream configuration.

Configuration is stored as config.toml in the .chatstream/ directory and
provides default values for command flags. CLI flags and CHATSTREAM_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  gateway.url, gateway.config_id, gateway.timeout,
  stream.fallback, stream.simulate_fallback, stream.simulated_delay_ms,
  stream.include_usage, stream.breaker_failures, stream.breaker_cooldown_s,
  chat.model, chat.system_prompt, chat.temperature, chat.max_tokens, chat.markdown,
  events.provider, events.brokers, events.topic,
  devserver.listen, devserver.token, devserver.fail_streaming,
  devserver.chunk_delay_ms, devserver.error_after, devserver.abort_after

Use subcommands to get, set, or list configuration values:
  chatstream config set <key> <value>    Set a configuration value
  chatstream config get <key>            Get a configuration value
  chatstream config list                 List all configuration values

Examples:
  chatstream config set gateway.url https://chat.example.com
  chatstream config set stream.fallback false
  chatstream config get gateway.config_id
  chatstream config list`

const configShortDesc string = "Manage persistent chatstream configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
