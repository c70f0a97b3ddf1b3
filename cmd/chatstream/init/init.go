// Package initcmder provides the init command for initializing a local
// .chatstream directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
)

const initLongDesc string = `Initialize a new .chatstream/ directory in the current working directory.

Creates a local .chatstream/ directory that takes precedence over the
default ~/.chatstream/ directory for configuration and credentials, and
writes a config.toml holding the defaults or the named preset.

Presets:
  local    fast chunk pacing for the development gateway
  strict   streaming only, failures are never retried without streaming
  kafka    publish turn events to a local Kafka broker

An existing config.toml is left untouched.

Examples:
  chatstream init
  chatstream init --preset strict`

const initShortDesc string = "Initialize a local .chatstream/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout(), preset)
		},
		ValidArgsFunction: cobra.NoFileCompletions,
	}

	cmd.Flags().StringVar(&preset, "preset", "",
		fmt.Sprintf("Configuration preset (%s)", strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func runInit(out io.Writer, preset string) error {
	cfg := config.NewDefaultConfig()
	if preset != "" {
		var err error
		cfg, err = config.PresetConfig(preset)
		if err != nil {
			return err
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dotdir.DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s directory: %w", dotdir.DirName, err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	_, err = os.Stat(cfger.GetTarget())
	switch {
	case err == nil:
		fmt.Fprintf(out, "\n  %s Already initialized: %s\n\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("checking config: %w", err)
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Initialized %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
	if preset != "" {
		fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Preset:"), cliui.NameStyle.Render(preset))
	}
	fmt.Fprintln(out)
	return nil
}
