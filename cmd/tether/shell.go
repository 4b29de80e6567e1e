package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/musher-dev/tether/internal/config"
	clierrors "github.com/musher-dev/tether/internal/errors"
	"github.com/musher-dev/tether/internal/observability"
	"github.com/musher-dev/tether/internal/output"
	"github.com/musher-dev/tether/internal/recording"
	"github.com/musher-dev/tether/internal/terminal"
	"github.com/musher-dev/tether/internal/tty"
)

func newShellCmd() *cobra.Command {
	var flags sessionFlags

	cmd := &cobra.Command{
		Use:   "shell [-- command [args...]]",
		Short: "Start a local shell session",
		Long: `Run a shell, or the given command, on a pseudo-terminal and display it
through tether's emulated display. The session ends when the command exits;
the exit status is shown on the final status line.`,
		Example: `  tether shell
  tether shell --renderer canvas
  tether shell --record -- htop`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			logger := observability.FromContext(cmd.Context())
			cfg := config.Load()

			sc, err := flags.resolve(cmd, cfg)
			if err != nil {
				return err
			}

			opts := tty.PTYOptions{
				Command: cfg.ServerShell(),
				Env:     []string{"TETHER=1"},
				Logger:  logger,
			}
			if len(args) > 0 {
				opts.Command, opts.Args = args[0], args[1:]
			}

			var (
				transport tty.Transport = tty.NewPTY(opts)
				rec       *recording.Recorder
			)

			if flags.recordingEnabled(cfg) {
				source := strings.TrimSpace("shell " + strings.Join(args, " "))

				transport, rec, err = startRecording(transport, cfg, source, logger)
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
				return clierrors.SessionFailed(res.ConnectErr)
			}

			return nil
		},
	}

	flags.register(cmd, true)

	return cmd
}
