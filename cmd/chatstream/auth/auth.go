// Package authcmder provides the auth command for storing gateway tokens.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/credentials"
)

const authLongDesc string = `Store the auth token for a chat gateway.

Tokens are stored in credentials.toml in the .chatstream/ directory, keyed
by gateway URL. Without an argument the configured gateway.url is used.
A running "chatstream chat" picks up a changed token without restarting.
CHATSTREAM_TOKEN, when set, takes precedence over stored tokens.

Examples:
  chatstream auth                               Prompt for the configured gateway's token
  chatstream auth https://chat.example.com      Prompt for a specific gateway's token
  chatstream auth --list                        List stored tokens
  chatstream auth --remove https://chat.example.com
  echo $TOKEN | chatstream auth                 Pipe the token from stdin`

const authShortDesc string = "Store the auth token for a chat gateway"

type authCommander struct {
	configDir string
	in        io.Reader
	out       io.Writer
}

func NewAuthCmd() *cobra.Command {
	var listFlag bool
	var removeFlag string

	cmd := &cobra.Command{
		Use:   "auth [gateway]",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder := &authCommander{
				configDir: configDir,
				in:        cmd.InOrStdin(),
				out:       cmd.OutOrStdout(),
			}

			switch {
			case listFlag:
				return cmder.runList()
			case removeFlag != "":
				return cmder.runRemove(removeFlag)
			default:
				gateway := ""
				if len(args) > 0 {
					gateway = args[0]
				}
				return cmder.runAuth(gateway)
			}
		},
		ValidArgsFunction: cobra.NoFileCompletions,
	}

	cmd.Flags().BoolVar(&listFlag, "list", false, "List stored tokens")
	cmd.Flags().StringVar(&removeFlag, "remove", "", "Remove the stored token for a gateway")

	return cmd
}

func (c *authCommander) runAuth(gateway string) error {
	if gateway == "" {
		v, err := config.InitViper(c.configDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		gateway = config.FromViper(v).Gateway.URL
	}
	gateway = credentials.NormalizeGateway(gateway)
	if gateway == "" {
		return errors.New("gateway argument required")
	}

	token, err := c.readToken(gateway)
	if err != nil {
		return err
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token cannot be empty")
	}

	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.SetToken(gateway, token); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s Stored token for %s %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(gateway),
		cliui.DimStyle.Render("("+credentials.MaskToken(token)+")"),
	)
	if os.Getenv(credentials.TokenEnvVar) != "" {
		fmt.Fprintf(c.out, "  %s %s is set and takes precedence over stored tokens.\n",
			cliui.WarnStyle.Render("!"), credentials.TokenEnvVar)
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *authCommander) runList() error {
	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	gateways, err := mgr.ListGateways()
	if err != nil {
		return err
	}

	if len(gateways) == 0 {
		fmt.Fprintf(c.out, "\n  %s No stored tokens.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(c.out, "  Use 'chatstream auth [gateway]' to store one.\n\n")
		return nil
	}

	fmt.Fprintf(c.out, "\n  %s\n\n", cliui.HeaderStyle.Render("Stored tokens"))
	for _, gw := range gateways {
		token, err := mgr.GetToken(gw)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "  %s  %s  %s\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(gw),
			cliui.DimStyle.Render(credentials.MaskToken(token)),
		)
	}
	fmt.Fprintln(c.out)

	return nil
}

func (c *authCommander) runRemove(gateway string) error {
	gateway = credentials.NormalizeGateway(gateway)

	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.RemoveToken(gateway); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s Removed token for %s.\n\n", cliui.SuccessMark, cliui.NameStyle.Render(gateway))

	return nil
}

// readToken reads a token from the command input. A terminal is prompted
// with hidden input; anything else has its first line read.
func (c *authCommander) readToken(gateway string) (string, error) {
	if f, ok := c.in.(*os.File); ok && cliui.IsTerminal(f) {
		fmt.Fprintf(c.out, "Enter token for %s: ", gateway)

		tokenBytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.out) // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return string(tokenBytes), nil
	}

	scanner := bufio.NewScanner(c.in)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}
