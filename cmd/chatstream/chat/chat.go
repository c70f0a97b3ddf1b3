// Package chatcmder provides the chat command for streaming LLM chat
// through a chat gateway.
package chatcmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/pkg/client"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/credentials"
	"github.com/papercomputeco/chatstream/pkg/eventstream"
	"github.com/papercomputeco/chatstream/pkg/eventstream/kafka"
	"github.com/papercomputeco/chatstream/pkg/eventstream/nop"
	"github.com/papercomputeco/chatstream/pkg/eventstream/worker"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/stream"
	"github.com/papercomputeco/chatstream/pkg/utils"
)

// chatFlags are the registry flags the chat command binds into viper.
var chatFlags = []string{
	config.FlagGateway,
	config.FlagConfigID,
	config.FlagTimeout,
	config.FlagModel,
	config.FlagSystemPrompt,
	config.FlagTemperature,
	config.FlagMaxTokens,
	config.FlagMarkdown,
	config.FlagSimulatedDelayMs,
	config.FlagEventsProvider,
	config.FlagEventsTopic,
}

type chatCommander struct {
	configDir  string
	debug      bool
	noFallback bool
	noStream   bool
	tracePath  string
	logPath    string

	// Flag targets. Effective values are read from cfg after viper binding.
	gateway        string
	configID       int
	timeout        string
	model          string
	systemPrompt   string
	temperature    float64
	maxTokens      int
	markdown       bool
	simDelayMs     int
	eventsProvider string
	eventsTopic    string

	cfg    *config.Config
	logger *slog.Logger
}

const chatLongDesc string = `Chat with an LLM through a chat gateway.

Answers are streamed as they are generated. If the stream fails with an
error that a plain request can recover from, the same turn is retried once
through the gateway's non-streaming endpoint and the answer is replayed in
chunks. Quota and configuration errors are reported without retrying.

With a prompt argument a single turn is run and the command exits. Without
one an interactive session starts; /reset clears the history and /exit or
Ctrl+D quits.

The gateway token is read from CHATSTREAM_TOKEN or from credentials.toml
(see "chatstream auth") and is reloaded when that file changes.

Examples:
  chatstream chat "What is a monad?"
  chatstream chat --gateway http://localhost:8000 --config-id 2
  chatstream chat --markdown --model gpt-4o
  chatstream chat --no-fallback`

const chatShortDesc string = "Stream a chat with an LLM through a chat gateway"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, chatFlags)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmd.SilenceUsage = true
			return cmder.run(cmd, args)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagGateway, &cmder.gateway)
	config.AddIntFlag(cmd, config.Flags, config.FlagConfigID, &cmder.configID)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimeout, &cmder.timeout)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, config.Flags, config.FlagSystemPrompt, &cmder.systemPrompt)
	config.AddFloatFlag(cmd, config.Flags, config.FlagTemperature, &cmder.temperature)
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxTokens, &cmder.maxTokens)
	config.AddBoolFlag(cmd, config.Flags, config.FlagMarkdown, &cmder.markdown)
	config.AddIntFlag(cmd, config.Flags, config.FlagSimulatedDelayMs, &cmder.simDelayMs)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsProvider, &cmder.eventsProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsTopic, &cmder.eventsTopic)

	cmd.Flags().BoolVar(&cmder.noFallback, "no-fallback", false, "Report stream failures instead of retrying without streaming")
	cmd.Flags().BoolVar(&cmder.noStream, "no-stream", false, "Use the non-streaming endpoint for every turn")
	cmd.Flags().StringVar(&cmder.tracePath, "trace", "", "Append the raw bytes of every stream to this file")
	cmd.Flags().StringVar(&cmder.logPath, "log-file", "", "Also write debug logs as JSON to this file")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command, args []string) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(cmd.ErrOrStderr()),
	)
	if c.logPath != "" {
		logFile, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer logFile.Close()
		c.logger = logger.Multi(c.logger, logger.New(
			logger.WithJSON(true),
			logger.WithDebug(true),
			logger.WithWriter(logFile),
		))
	}

	tokens, closeTokens, err := c.newTokenSource()
	if err != nil {
		return err
	}
	defer closeTokens()

	clientOpts := []client.Option{client.WithLogger(c.logger)}
	if c.tracePath != "" {
		trace, err := os.OpenFile(c.tracePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening trace file: %w", err)
		}
		defer trace.Close()
		clientOpts = append(clientOpts, client.WithTrace(trace))
	}

	gw, err := client.New(client.Config{
		BaseURL:         c.cfg.Gateway.URL,
		Tokens:          tokens,
		Timeout:         c.cfg.Gateway.TimeoutDuration(),
		IncludeUsage:    c.cfg.Stream.UsageEnabled(),
		BreakerFailures: uint32(c.cfg.Stream.BreakerFailures),
		BreakerCooldown: time.Duration(c.cfg.Stream.BreakerCooldownS) * time.Second,
	}, clientOpts...)
	if err != nil {
		return fmt.Errorf("creating gateway client: %w", err)
	}

	orchestrator := stream.NewOrchestrator(
		stream.NewManager(gw, stream.WithLogger(c.logger)),
		gw,
		stream.WithSimulator(stream.NewSimulator(time.Duration(c.cfg.Stream.SimulatedDelayMs)*time.Millisecond)),
		stream.WithSimulatedFallback(c.cfg.Stream.SimulationEnabled()),
		stream.WithOrchestratorLogger(c.logger),
	)

	pool, err := c.newEventPool()
	if err != nil {
		return err
	}
	defer func() {
		if err := pool.Close(); err != nil {
			c.logger.Warn("closing event publisher", "error", err)
		}
	}()

	s := &session{
		orchestrator: orchestrator,
		events:       pool,
		source: eventstream.EventSource{
			Client:   "chatstream/" + utils.Version,
			Gateway:  c.cfg.Gateway.URL,
			ConfigID: c.cfg.Gateway.ConfigID,
		},
		chat:     c.cfg.Chat,
		configID: c.cfg.Gateway.ConfigID,
		fallback: c.cfg.Stream.FallbackEnabled() && !c.noFallback,
		noStream: c.noStream,
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
		logger:   c.logger,
	}
	s.reset()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) > 0 {
		return c.oneShot(ctx, s, strings.Join(args, " "))
	}
	return s.repl(ctx, cmd.InOrStdin())
}

// oneShot runs a single turn. Ctrl+C cancels the turn and exits.
func (c *chatCommander) oneShot(ctx context.Context, s *session, prompt string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.turn(ctx, prompt); err != nil {
		return fmt.Errorf("chat turn failed: %w", err)
	}
	return nil
}

// newTokenSource prefers CHATSTREAM_TOKEN and otherwise serves the token
// stored for the configured gateway, reloading it when credentials.toml
// changes.
func (c *chatCommander) newTokenSource() (credentials.TokenSource, func(), error) {
	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading credentials: %w", err)
	}

	file, err := credentials.NewFileTokenSource(mgr, c.cfg.Gateway.URL, c.logger)
	if err != nil {
		c.logger.Debug("credentials file not watched, using environment only", "error", err)
		return credentials.EnvToken(credentials.TokenEnvVar), func() {}, nil
	}

	closeFn := func() {
		if err := file.Close(); err != nil {
			c.logger.Debug("closing credentials watcher", "error", err)
		}
	}
	return credentials.Chain(credentials.EnvToken(credentials.TokenEnvVar), file), closeFn, nil
}

func (c *chatCommander) newEventPool() (*worker.Pool, error) {
	var publisher eventstream.Publisher
	switch c.cfg.Events.Provider {
	case config.EventsProviderKafka:
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: c.cfg.Events.Brokers,
			Topic:   c.cfg.Events.Topic,
			Logger:  c.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		publisher = p
	case config.EventsProviderNone, "":
		publisher = nop.NewPublisher()
	default:
		return nil, fmt.Errorf("unknown events provider %q", c.cfg.Events.Provider)
	}

	pool, err := worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    c.logger,
	})
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("creating event pool: %w", err)
	}
	return pool, nil
}
