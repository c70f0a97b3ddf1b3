// Package servecmder provides the serve command for running the local
// development gateway.
package servecmder

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/devserver"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/logger"
)

// serveFlags are the registry flags the serve command binds into viper.
var serveFlags = []string{
	config.FlagListen,
	config.FlagServerToken,
	config.FlagFailStreaming,
	config.FlagChunkDelayMs,
	config.FlagErrorAfter,
	config.FlagAbortAfter,
}

type serveCommander struct {
	debug    bool
	jsonLogs bool

	// Flag targets. Effective values are read from cfg after viper binding.
	listen        string
	token         string
	failStreaming bool
	chunkDelayMs  int
	errorAfter    int
	abortAfter    int

	cfg    *config.DevServerConfig
	logger *slog.Logger
}

const serveLongDesc string = `Run a local development chat gateway.

The gateway implements the streaming and non-streaming chat endpoints and
answers every prompt by echoing it back word by word. Faults can be
injected to exercise client fallback:

  --fail-streaming   refuse every stream with 503
  --error-after N    send a backend error payload instead of chunk N
  --abort-after N    send the [ERROR] marker instead of chunk N

Examples:
  chatstream serve
  chatstream serve --listen :9000 --token dev-secret
  chatstream serve --abort-after 3 --chunk-delay-ms 100`

const serveShortDesc string = "Run a local development chat gateway"

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)
			cmder.cfg = &config.FromViper(v).DevServer
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmd.SilenceUsage = true
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagServerToken, &cmder.token)
	config.AddBoolFlag(cmd, config.Flags, config.FlagFailStreaming, &cmder.failStreaming)
	config.AddIntFlag(cmd, config.Flags, config.FlagChunkDelayMs, &cmder.chunkDelayMs)
	config.AddIntFlag(cmd, config.Flags, config.FlagErrorAfter, &cmder.errorAfter)
	config.AddIntFlag(cmd, config.Flags, config.FlagAbortAfter, &cmder.abortAfter)
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json", false, "Write logs as JSON")

	return cmd
}

// gatewayConfig maps the resolved settings onto the gateway's configuration.
func (c *serveCommander) gatewayConfig() devserver.Config {
	return devserver.Config{
		ListenAddr:    c.cfg.Listen,
		Token:         c.cfg.Token,
		FailStreaming: c.cfg.FailStreaming,
		ChunkDelay:    time.Duration(c.cfg.ChunkDelayMs) * time.Millisecond,
		ErrorAfter:    c.cfg.ErrorAfter,
		AbortAfter:    c.cfg.AbortAfter,
	}
}

func (c *serveCommander) run() error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(c.jsonLogs),
		logger.WithPretty(!c.jsonLogs),
	)

	srv := devserver.New(c.gatewayConfig(), c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- fmt.Errorf("development gateway error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return srv.Close()
	}
}
