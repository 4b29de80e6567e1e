package main

import (
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/musher-dev/tether/internal/config"
	clierrors "github.com/musher-dev/tether/internal/errors"
	"github.com/musher-dev/tether/internal/observability"
	"github.com/musher-dev/tether/internal/output"
	"github.com/musher-dev/tether/internal/recording"
	"github.com/musher-dev/tether/internal/server"
	"github.com/musher-dev/tether/internal/terminal"
	"github.com/musher-dev/tether/internal/tty"
)

func newConnectCmd() *cobra.Command {
	var flags sessionFlags

	cmd := &cobra.Command{
		Use:   "connect <url>",
		Short: "Attach to a shell shared with 'tether serve'",
		Long: `Open a websocket to a 'tether serve' endpoint and display the remote shell.
A bare host:port is expanded to ws://host:port/v1/terminal. When the
connection drops the last screen stays visible with a disconnected status line.`,
		Example: `  tether connect localhost:7681
  tether connect wss://build-box.internal/v1/terminal --record`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			logger := observability.FromContext(cmd.Context())
			cfg := config.Load()
			target := terminalURL(args[0])

			sc, err := flags.resolve(cmd, cfg)
			if err != nil {
				return err
			}

			var (
				transport tty.Transport = tty.NewWS(tty.WSOptions{URL: target, Logger: logger})
				rec       *recording.Recorder
			)

			if flags.recordingEnabled(cfg) {
				transport, rec, err = startRecording(transport, cfg, "connect "+target, logger)
				if err != nil {
					return err
				}
			}

			res, err := runSession(cmd.Context(), terminal.Stdio(), transport, sc)
			reportRecording(out, rec, logger)

			if err != nil {
				return err
			}

			if res.ConnectErr != nil {
				return clierrors.ConnectFailed(target, res.ConnectErr)
			}

			return nil
		},
	}

	flags.register(cmd, true)

	return cmd
}

// terminalURL expands host:port to the default endpoint on that host and
// fills in the endpoint path when a URL has none.
func terminalURL(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = server.TerminalPath
	}

	return u.String()
}
