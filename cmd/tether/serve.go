package main

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/musher-dev/tether/internal/config"
	clierrors "github.com/musher-dev/tether/internal/errors"
	"github.com/musher-dev/tether/internal/observability"
	"github.com/musher-dev/tether/internal/output"
	"github.com/musher-dev/tether/internal/recording"
	"github.com/musher-dev/tether/internal/server"
	"github.com/musher-dev/tether/internal/tty"
)

func newServeCmd() *cobra.Command {
	var (
		addr   string
		shell  string
		record bool
	)

	cmd := &cobra.Command{
		Use:   "serve [-- command [args...]]",
		Short: "Share a shell over a websocket",
		Long: `Listen for websocket connections and run a fresh shell, or the given
command, on a pseudo-terminal for each one. Connect with 'tether connect'.
The server stops gracefully on SIGINT or SIGTERM.`,
		Example: `  tether serve
  tether serve --addr 0.0.0.0:7681 -- bash -l
  tether serve --record`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			logger := observability.FromContext(cmd.Context())
			cfg := config.Load()

			if !cmd.Flags().Changed("addr") {
				addr = cfg.ServerAddr()
			}

			if shell == "" {
				shell = cfg.ServerShell()
			}

			var cmdArgs []string
			if len(args) > 0 {
				shell, cmdArgs = args[0], args[1:]
			}

			opts := server.Options{
				Shell:  shell,
				Args:   cmdArgs,
				Logger: logger,
			}

			if record || cfg.RecordingEnabled() {
				opts.NewTransport = func() tty.Transport {
					t := tty.NewPTY(tty.PTYOptions{Command: shell, Args: cmdArgs, Logger: logger})

					recorded, rec, err := startRecording(t, cfg, "serve "+addr, logger)
					if err != nil {
						logger.Warn("recording unavailable", slog.String("error", err.Error()))
						return t
					}

					logger.Info("recording connection", slog.String("recording.session_id", rec.SessionID()))

					return closeRecorder(recorded, rec)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(opts)

			out.Success("Serving terminals on ws://%s%s", addr, server.TerminalPath)
			out.Muted("Press Ctrl-C to stop")

			if err := srv.ListenAndServe(ctx, addr); err != nil {
				return clierrors.ServeFailed(addr, err)
			}

			out.Info("Server stopped")

			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", config.DefaultServerAddr, "Address to listen on")
	cmd.Flags().StringVar(&shell, "shell", "", "Command each connection runs (default: $SHELL)")
	cmd.Flags().BoolVar(&record, "record", false, "Record every connection")

	return cmd
}

// recordedTransport finalizes its recording when the connection is torn
// down.
type recordedTransport struct {
	tty.Transport

	rec  *recording.Recorder
	once sync.Once
}

func closeRecorder(t tty.Transport, rec *recording.Recorder) tty.Transport {
	return &recordedTransport{Transport: t, rec: rec}
}

func (r *recordedTransport) Disconnect() error {
	err := r.Transport.Disconnect()

	r.once.Do(func() {
		if closeErr := r.rec.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})

	return err
}
