// Package chatstreamcmder
package chatstreamcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/chatstream/cmd/chatstream/auth"
	chatcmder "github.com/papercomputeco/chatstream/cmd/chatstream/chat"
	configcmder "github.com/papercomputeco/chatstream/cmd/chatstream/config"
	initcmder "github.com/papercomputeco/chatstream/cmd/chatstream/init"
	servecmder "github.com/papercomputeco/chatstream/cmd/chatstream/serve"
	versioncmder "github.com/papercomputeco/chatstream/cmd/version"
)

const chatstreamLongDesc string = `Chatstream streams LLM chat through a chat gateway, falling back to a
non-streaming request when a stream fails.

Get started:
  chatstream init              Create a local .chatstream/ directory
  chatstream auth              Store the gateway token
  chatstream chat              Start an interactive chat
  chatstream serve             Run a local development gateway`

const chatstreamShortDesc string = "Chatstream - streaming LLM chat"

func NewChatstreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatstream",
		Short: chatstreamShortDesc,
		Long:  chatstreamLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .chatstream/ config directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
