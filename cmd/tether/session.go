package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/musher-dev/tether/internal/config"
	clierrors "github.com/musher-dev/tether/internal/errors"
	"github.com/musher-dev/tether/internal/observability"
	"github.com/musher-dev/tether/internal/output"
	"github.com/musher-dev/tether/internal/paths"
	"github.com/musher-dev/tether/internal/recording"
	"github.com/musher-dev/tether/internal/renderer"
	"github.com/musher-dev/tether/internal/session"
	"github.com/musher-dev/tether/internal/terminal"
	"github.com/musher-dev/tether/internal/tty"
)

// sessionFlags are shared by every command that opens a terminal session.
// Unset flags fall back to the terminal.* config keys.
type sessionFlags struct {
	renderer   string
	fontSize   int
	scrollback int
	themeFile  string
	record     bool
}

func (f *sessionFlags) register(cmd *cobra.Command, withRecord bool) {
	cmd.Flags().StringVar(&f.renderer, "renderer", "", "Starting renderer: auto, accelerated, canvas, default")
	cmd.Flags().IntVar(&f.fontSize, "font-size", 0, "Font size used to fit pixel-sized mounts")
	cmd.Flags().IntVar(&f.scrollback, "scrollback", 0, "Scrollback lines kept by the display")
	cmd.Flags().StringVar(&f.themeFile, "theme-file", "", "YAML or TOML colour theme")

	if withRecord {
		cmd.Flags().BoolVar(&f.record, "record", false, "Record the session for 'tether play'")
	}
}

// resolve merges flags over cfg. The returned config has no mount yet.
func (f *sessionFlags) resolve(cmd *cobra.Command, cfg *config.Config) (session.Config, error) {
	name := f.renderer
	if !cmd.Flags().Changed("renderer") {
		name = cfg.Renderer()
	}

	kind, err := renderer.ParseKind(name)
	if err != nil {
		return session.Config{}, clierrors.UnknownRenderer(name)
	}

	sc := session.Config{
		FontFamily:      cfg.FontFamily(),
		FontSize:        cfg.FontSize(),
		ScrollbackLines: cfg.ScrollbackLines(),
		Backends:        renderer.DefaultFactories(kind),
	}

	if cmd.Flags().Changed("font-size") {
		sc.FontSize = f.fontSize
	}

	if cmd.Flags().Changed("scrollback") {
		sc.ScrollbackLines = f.scrollback
	}

	themePath := f.themeFile
	if themePath == "" {
		themePath = cfg.ThemeFile()
	}

	if themePath != "" {
		themePath = resolveThemePath(themePath)

		theme, err := renderer.LoadTheme(themePath)
		if err != nil {
			return session.Config{}, clierrors.ThemeInvalid(themePath, err)
		}

		sc.Theme = theme
	}

	return sc, nil
}

// recordingEnabled reports whether --record or recording.enabled asks for a
// recording.
func (f *sessionFlags) recordingEnabled(cfg *config.Config) bool {
	return f.record || cfg.RecordingEnabled()
}

// startRecording wraps t so its stream is written to a new recording.
func startRecording(t tty.Transport, cfg *config.Config, source string, logger *slog.Logger) (tty.Transport, *recording.Recorder, error) {
	rec, err := recording.NewRecorder(recording.Options{
		SessionID: uuid.NewString(),
		Dir:       cfg.RecordingDir(),
		Source:    source,
	})
	if err != nil {
		return nil, nil, clierrors.Wrap(clierrors.ExitGeneral, "Failed to start recording", err).
			WithHint("Check recording.dir or run 'tether doctor'")
	}

	return recording.Tap(t, rec, logger), rec, nil
}

// connectRecorder remembers the error of the first Connect so a command can
// tell "never connected" apart from "connection ended".
type connectRecorder struct {
	tty.Transport

	mu  sync.Mutex
	err error
}

func (c *connectRecorder) Connect(cols, rows int) error {
	err := c.Transport.Connect(cols, rows)

	c.mu.Lock()
	c.err = err
	c.mu.Unlock()

	return err
}

func (c *connectRecorder) connectErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.err
}

// sessionResult describes how a session ended.
type sessionResult struct {
	Reason     string
	Renderer   renderer.Kind
	ConnectErr error
}

// runSession mounts a session on the host terminal and blocks until the
// connection ends or the process is asked to stop.
func runSession(ctx context.Context, host *terminal.Host, t tty.Transport, sc session.Config) (sessionResult, error) {
	if !host.IsTerminal() {
		return sessionResult{}, clierrors.NotInteractive()
	}

	logger := observability.FromContext(ctx)
	conn := &connectRecorder{Transport: t}

	sc.Mount = host
	sc.Input = host.Input()
	sc.Window = terminal.NewWatcher(host.Size, 0)
	sc.Logger = logger

	sess, err := session.New(conn, sc)
	if err != nil {
		return sessionResult{}, clierrors.SessionConfigInvalid(err)
	}

	if err := host.MakeRaw(); err != nil {
		return sessionResult{}, clierrors.SessionFailed(err)
	}
	defer host.Restore()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := sess.Open(); err != nil {
		_ = sess.Close()
		return sessionResult{}, clierrors.SessionFailed(err)
	}

	select {
	case <-sess.Closed():
	case <-ctx.Done():
		logger.Info("session interrupted", slog.String("cause", context.Cause(ctx).Error()))
	}

	res := sessionResult{
		Reason:     sess.CloseReason(),
		Renderer:   sess.RendererKind(),
		ConnectErr: conn.connectErr(),
	}
	ended := sess.ConnState() == session.Closed

	_ = sess.Close()
	host.Restore()

	// Drawing backends clear their surface on teardown; repeat the status
	// line so it survives on the host.
	if ended && res.Renderer != renderer.Default {
		_, _ = host.Write([]byte(session.StatusLine(res.Reason)))
	}

	return res, nil
}

// reportRecording prints where a finished recording can be replayed from.
func reportRecording(out *output.Writer, rec *recording.Recorder, logger *slog.Logger) {
	if rec == nil {
		return
	}

	if err := rec.Close(); err != nil {
		logger.Warn("recording close failed", slog.String("error", err.Error()))
	}

	out.Muted("Recorded as %s (replay with 'tether play %s')", rec.SessionID(), rec.SessionID())
}

// resolveThemePath lets a bare name such as "solarized" refer to a file in
// the themes directory. Anything that exists as given is used unchanged.
func resolveThemePath(name string) string {
	if _, err := os.Stat(name); err == nil || strings.ContainsRune(name, filepath.Separator) {
		return name
	}

	dir, err := paths.ThemesDir()
	if err != nil {
		return name
	}

	for _, ext := range []string{"", ".yaml", ".yml", ".toml"} {
		candidate := filepath.Join(dir, name+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return name
}
