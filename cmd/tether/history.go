package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	xansi "github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"

	"github.com/musher-dev/tether/internal/config"
	clierrors "github.com/musher-dev/tether/internal/errors"
	"github.com/musher-dev/tether/internal/output"
	"github.com/musher-dev/tether/internal/recording"
)

const historyFollowInterval = time.Second

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded terminal sessions",
		Long:  `List, view and prune sessions recorded with --record or recording.enabled.`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryViewCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions",
		Long:  `Show every stored recording, newest first, with what was recorded and when.`,
		Example: `  tether history list
  tether history list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			sessions, err := recording.ListSessions(config.Load().RecordingDir())
			if err != nil {
				return err
			}

			if out.JSON {
				if sessions == nil {
					sessions = []recording.Session{}
				}

				return out.PrintJSON(sessions)
			}

			if len(sessions) == 0 {
				out.Muted("No recorded sessions found.")
				return nil
			}

			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				closed := "open"
				if s.ClosedAt != nil {
					closed = s.ClosedAt.Format(time.RFC3339)
				}

				rows = append(rows, []string{s.SessionID, s.Source, s.StartedAt.Format(time.RFC3339), closed})
			}

			out.Table([]string{"ID", "SOURCE", "STARTED", "CLOSED"}, rows)

			return nil
		},
	}
}

func newHistoryViewCmd() *cobra.Command {
	var (
		search string
		follow bool
		raw    bool
	)

	cmd := &cobra.Command{
		Use:   "view <session-id>",
		Short: "Print the output of a recorded session",
		Long: `Print a recording's output as plain text. Escape sequences are removed
unless --raw is given. --follow keeps reading while the session is still
being recorded.`,
		Example: `  tether history view 5f0c2a4e-1b7d-4c1e-9a57-3f2d8e6b9c10
  tether history view 5f0c2a4e-1b7d-4c1e-9a57-3f2d8e6b9c10 --search error --follow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			sessionID := args[0]
			dir := config.Load().RecordingDir()

			v := &historyViewer{out: out, search: strings.ToLower(search), raw: raw}

			for {
				events, err := recording.ReadEvents(dir, sessionID)
				if err != nil {
					if errors.Is(err, recording.ErrNotFound) {
						return clierrors.RecordingNotFound(sessionID)
					}

					return err
				}

				if err := v.consume(events); err != nil {
					return err
				}

				if !follow {
					v.flush()
					return nil
				}

				select {
				case <-cmd.Context().Done():
					v.flush()
					return nil
				case <-time.After(historyFollowInterval):
				}
			}
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Only print lines containing this text")
	cmd.Flags().BoolVar(&follow, "follow", false, "Keep printing as the recording grows")
	cmd.Flags().BoolVar(&raw, "raw", false, "Keep escape sequences")

	return cmd
}

// historyViewer turns recorded output chunks into printed lines. Chunks can
// split a line, so the trailing partial line is held back until the next
// chunk or flush.
type historyViewer struct {
	out     *output.Writer
	search  string
	raw     bool
	lastSeq uint64
	seen    bool
	pending strings.Builder
}

func (v *historyViewer) consume(events []recording.Event) error {
	for i := range events {
		ev := &events[i]
		if v.seen && ev.Seq <= v.lastSeq {
			continue
		}

		v.seen = true
		v.lastSeq = ev.Seq

		if ev.Kind != recording.KindData {
			continue
		}

		data, err := ev.Bytes()
		if err != nil {
			return fmt.Errorf("read recording: %w", err)
		}

		v.pending.Write(data)

		text := v.pending.String()

		cut := strings.LastIndexByte(text, '\n')
		if cut < 0 {
			continue
		}

		v.pending.Reset()
		v.pending.WriteString(text[cut+1:])

		for _, line := range strings.Split(text[:cut], "\n") {
			v.emit(line)
		}
	}

	return nil
}

func (v *historyViewer) flush() {
	if v.pending.Len() == 0 {
		return
	}

	v.emit(v.pending.String())
	v.pending.Reset()
}

func (v *historyViewer) emit(line string) {
	line = strings.TrimRight(line, "\r")
	if !v.raw {
		line = xansi.Strip(line)
	}

	if v.search != "" && !strings.Contains(strings.ToLower(line), v.search) {
		return
	}

	v.out.Print("%s\n", line)
}

func newHistoryPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old recordings",
		Long:  `Remove recordings that ended before the retention window.`,
		Example: `  tether history prune
  tether history prune --older-than 168h`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			removed, err := recording.PruneOlderThan(config.Load().RecordingDir(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}

			out.Success("Removed %d recording(s)", removed)

			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", recording.DefaultRetention(), "Retention window")

	return cmd
}
