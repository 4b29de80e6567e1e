package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/musher-dev/tether/internal/config"
	clierrors "github.com/musher-dev/tether/internal/errors"
	"github.com/musher-dev/tether/internal/observability"
	"github.com/musher-dev/tether/internal/output"
	"github.com/musher-dev/tether/internal/recording"
	"github.com/musher-dev/tether/internal/terminal"
)

func newPlayCmd() *cobra.Command {
	var (
		flags   sessionFlags
		speed   float64
		maxIdle time.Duration
	)

	cmd := &cobra.Command{
		Use:   "play [session-id]",
		Short: "Replay a recorded session",
		Long: `Replay a recording through the same display a live session uses.
Space pauses and resumes playback; q or Ctrl-C stops it.

Without a session id, pick one from the stored recordings.`,
		Example: `  tether play
  tether play 5f0c2a4e-1b7d-4c1e-9a57-3f2d8e6b9c10
  tether play 5f0c2a4e-1b7d-4c1e-9a57-3f2d8e6b9c10 --speed 4 --max-idle 500ms`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if speed <= 0 {
				return clierrors.InvalidSpeed(speed)
			}

			cfg := config.Load()
			host := terminal.Stdio()

			id, err := playTarget(cmd, cfg, host, args)
			if err != nil {
				if errors.Is(err, errPickCancelled) {
					output.FromContext(cmd.Context()).Muted("No recording selected")
					return nil
				}

				return err
			}

			sc, err := flags.resolve(cmd, cfg)
			if err != nil {
				return err
			}

			player, err := recording.Load(cfg.RecordingDir(), id, recording.PlayerOptions{
				Speed:   speed,
				MaxIdle: maxIdle,
				Logger:  observability.FromContext(cmd.Context()),
			})
			if err != nil {
				if errors.Is(err, recording.ErrNotFound) {
					return clierrors.RecordingNotFound(id)
				}

				return clierrors.Wrap(clierrors.ExitGeneral, "Failed to load recording", err)
			}

			_, err = runSession(cmd.Context(), host, player, sc)

			return err
		},
	}

	flags.register(cmd, false)
	cmd.Flags().Float64Var(&speed, "speed", 1, "Playback speed multiplier")
	cmd.Flags().DurationVar(&maxIdle, "max-idle", 2*time.Second, "Longest pause between two events (negative disables)")

	return cmd
}

// playTarget returns the session id to replay, asking the user when none
// was given.
func playTarget(cmd *cobra.Command, cfg *config.Config, host *terminal.Host, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	if !host.IsTerminal() {
		return "", &clierrors.CLIError{
			Message: "A session id is required when not running in a terminal",
			Hint:    "Run 'tether history list' to see stored recordings",
			Code:    clierrors.ExitUsage,
		}
	}

	sessions, err := recording.ListSessions(cfg.RecordingDir())
	if err != nil {
		return "", clierrors.Wrap(clierrors.ExitGeneral, "Failed to list recordings", err)
	}

	if len(sessions) == 0 {
		return "", &clierrors.CLIError{
			Message: "No recorded sessions found",
			Hint:    "Record one with 'tether shell --record'",
			Code:    clierrors.ExitGeneral,
		}
	}

	return pickRecording(sessions, host.Input(), cmd.OutOrStdout())
}
