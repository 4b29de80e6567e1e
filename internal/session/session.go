// Package session ties a transport to an emulated display. It owns the
// renderer fallback chain, relays bytes both ways with backpressure,
// debounces container resizes and renders connection loss as a status line.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/musher-dev/tether/internal/ansi"
	"github.com/musher-dev/tether/internal/display"
	"github.com/musher-dev/tether/internal/observability"
	"github.com/musher-dev/tether/internal/renderer"
	"github.com/musher-dev/tether/internal/tty"
)

const (
	// ResizeDebounceDelay is the quiet period before a container resize is
	// applied.
	ResizeDebounceDelay = 200 * time.Millisecond

	// DefaultScrollbackLines is used when Config.ScrollbackLines is zero.
	DefaultScrollbackLines = 1000

	// DisconnectedText marks the status line written when the connection
	// closes.
	DisconnectedText = "disconnected"
)

// WindowWatcher reports changes to the container the mount lives in.
type WindowWatcher interface {
	// Watch calls fn after every change until the returned stop is called.
	Watch(fn func()) (stop func())
}

// Config configures a Session.
type Config struct {
	// Mount is the render target. Required.
	Mount renderer.Mount
	// Input supplies local keystrokes. Optional.
	Input io.Reader
	// Window feeds container resizes. Optional.
	Window WindowWatcher

	ScrollbackLines int
	FontFamily      string
	FontSize        int
	Theme           *renderer.Theme

	// Backends lists the preferred renderers in order. The software
	// backend always closes the chain. Nil means Accelerated then Canvas.
	Backends []renderer.Factory

	ResizeDebounce time.Duration
	Logger         *slog.Logger
}

// surface is the display capability the session drives.
type surface interface {
	Open(m renderer.Mount) error
	UseBackend(b renderer.Backend) error
	Write(p []byte, onComplete func()) error
	Resize(cols, rows int) error
	Reset()
	Dispose()
	OnData(fn func([]byte))
	BindInput(r io.Reader) error
	SetTheme(t *renderer.Theme)
	Font() renderer.FontMetrics
	Size() (cols, rows int)
	Snapshot() string
	Scrollback() []string
}

func newDisplay(opts display.Options) surface { return display.New(opts) }

// Session is one interactive terminal.
type Session struct {
	transport  tty.Transport
	cfg        Config
	logger     *slog.Logger
	newSurface func(display.Options) surface

	mu         sync.Mutex
	display    surface
	opened     bool
	closed     bool
	state      ConnState
	reason     string
	kind       renderer.Kind
	active     renderer.Backend
	activeTier int
	live       []renderer.Backend
	remoteCols int
	remoteRows int
	resize     *Coalescer[struct{}]
	stopWatch  func()
	span       trace.Span

	done     chan struct{}
	doneOnce sync.Once
}

// New validates cfg and returns an unopened session.
func New(t tty.Transport, cfg Config) (*Session, error) {
	if t == nil {
		return nil, &ConfigError{Field: "transport", Reason: "required"}
	}

	if cfg.Mount == nil {
		return nil, &ConfigError{Field: "mount", Reason: "required"}
	}

	if cfg.ScrollbackLines < 0 {
		return nil, &ConfigError{Field: "scrollback_lines", Reason: "must not be negative"}
	}

	if cfg.FontSize < 0 {
		return nil, &ConfigError{Field: "font_size", Reason: "must not be negative"}
	}

	if cfg.ResizeDebounce < 0 {
		return nil, &ConfigError{Field: "resize_debounce", Reason: "must not be negative"}
	}

	if cfg.ScrollbackLines == 0 {
		cfg.ScrollbackLines = DefaultScrollbackLines
	}

	if cfg.FontSize == 0 {
		cfg.FontSize = renderer.DefaultFontSize
	}

	if cfg.Theme == nil {
		cfg.Theme = renderer.DefaultTheme()
	}

	if cfg.Backends == nil {
		cfg.Backends = renderer.DefaultFactories(renderer.Accelerated)
	}

	if cfg.ResizeDebounce == 0 {
		cfg.ResizeDebounce = ResizeDebounceDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Session{
		transport:  t,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "session")),
		newSurface: newDisplay,
		state:      Idle,
		kind:       renderer.Uninitialized,
		done:       make(chan struct{}),
	}
	s.resize = NewCoalescer(cfg.ResizeDebounce, func(struct{}) { s.fit() })

	return s, nil
}

// Open builds the display, selects a renderer, wires both directions of
// the byte stream and connects the transport. It may be called once.
// A failed connect is not returned: it closes the session's connection
// state and is shown as a status line.
func (s *Session) Open() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	if s.opened {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}

	s.opened = true

	_, s.span = observability.Tracer("tether.session").Start(context.Background(), "terminal.session")

	metrics := renderer.FontMetrics{Family: s.cfg.FontFamily, Size: s.cfg.FontSize}

	cols, rows, ok := renderer.Fit(s.cfg.Mount, metrics)
	if !ok {
		cols, rows = 0, 0
	}

	d := s.newSurface(display.Options{
		Cols:            cols,
		Rows:            rows,
		ScrollbackLines: s.cfg.ScrollbackLines,
		FontFamily:      s.cfg.FontFamily,
		FontSize:        s.cfg.FontSize,
		Theme:           s.cfg.Theme,
		Logger:          s.logger,
	})
	s.display = d

	if err := d.Open(s.cfg.Mount); err != nil {
		s.mu.Unlock()
		return err
	}

	s.activateFrom(0, "open")

	d.OnData(s.handleInput)

	if s.cfg.Input != nil {
		if err := d.BindInput(s.cfg.Input); err != nil {
			s.logger.Warn("input unavailable", slog.String("error", err.Error()))
		}
	}

	s.transport.Subscribe(s.handleEvent)

	cols, rows = d.Size()
	s.remoteCols, s.remoteRows = cols, rows
	s.state = Connecting
	s.mu.Unlock()

	s.logger.Debug("connecting", slog.Int("cols", cols), slog.Int("rows", rows))

	if err := s.transport.Connect(cols, rows); err != nil {
		s.logger.Warn("connect failed", slog.String("error", err.Error()))
		s.handleClose(err.Error())
	} else {
		s.mu.Lock()
		if s.state == Connecting {
			s.state = Open
		}
		s.mu.Unlock()
	}

	if s.cfg.Window != nil {
		stop := s.cfg.Window.Watch(s.scheduleFit)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			stop()

			return nil
		}

		s.stopWatch = stop
		s.mu.Unlock()
	}

	return nil
}

// activateFrom walks the renderer chain starting at tier i and installs the
// first backend that constructs and attaches. Every step down is logged.
// Caller holds s.mu.
func (s *Session) activateFrom(i int, reason string) {
	from := s.kind

	for ; i < len(s.cfg.Backends); i++ {
		f := s.cfg.Backends[i]

		b, err := s.attach(f)
		if err == nil {
			s.install(b, i, from, reason)
			return
		}

		next := s.tierKind(i + 1)
		s.logger.Warn("renderer fallback",
			slog.String("from", f.Kind.String()),
			slog.String("to", next.String()),
			slog.String("reason", err.Error()),
		)

		from, reason = f.Kind, err.Error()
	}

	b := renderer.NewSoftware()
	_ = b.Attach(s.cfg.Mount, s.cfg.Theme)
	s.install(b, len(s.cfg.Backends), from, reason)
}

func (s *Session) attach(f renderer.Factory) (renderer.Backend, error) {
	b, err := f.New()
	if err != nil {
		return nil, fmt.Errorf("create %s renderer: %w", f.Kind, err)
	}

	if err := b.Attach(s.cfg.Mount, s.cfg.Theme); err != nil {
		b.Dispose()
		return nil, fmt.Errorf("attach %s renderer: %w", f.Kind, err)
	}

	return b, nil
}

func (s *Session) tierKind(i int) renderer.Kind {
	if i < len(s.cfg.Backends) {
		return s.cfg.Backends[i].Kind
	}

	return renderer.Default
}

// install makes b the active backend. Caller holds s.mu.
func (s *Session) install(b renderer.Backend, tier int, from renderer.Kind, reason string) {
	s.active = b
	s.activeTier = tier
	s.kind = b.Kind()
	s.live = append(s.live, b)

	s.logger.Info("renderer active",
		slog.String("from", from.String()),
		slog.String("to", s.kind.String()),
		slog.String("reason", reason),
	)

	if s.span != nil {
		s.span.AddEvent("renderer", trace.WithAttributes(
			attribute.String("from", from.String()),
			attribute.String("to", s.kind.String()),
			attribute.String("reason", reason),
		))
	}

	if err := s.display.UseBackend(b); err != nil {
		s.logger.Warn("initial draw failed", slog.String("renderer", s.kind.String()), slog.String("error", err.Error()))
	}

	if n, ok := b.(renderer.ContextLossNotifier); ok {
		n.OnContextLoss(func() { s.contextLost(b) })
	}
}

// contextLost drops b and continues the chain below its tier. Signals from a
// backend that is no longer active are ignored, so the chain never climbs
// back up.
func (s *Session) contextLost(b renderer.Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || b != s.active {
		s.logger.Debug("ignoring context loss from inactive renderer", slog.String("renderer", b.Kind().String()))
		return
	}

	_ = s.display.UseBackend(nil)
	s.disposeLive(b)
	s.logger.Warn("renderer fallback",
		slog.String("from", b.Kind().String()),
		slog.String("to", s.tierKind(s.activeTier+1).String()),
		slog.String("reason", "context lost"),
	)
	s.activateFrom(s.activeTier+1, "context lost")
}

// disposeLive disposes b and forgets it. Caller holds s.mu.
func (s *Session) disposeLive(b renderer.Backend) {
	b.Dispose()

	for i, l := range s.live {
		if l == b {
			s.live = append(s.live[:i], s.live[i+1:]...)
			break
		}
	}
}

func (s *Session) handleEvent(ev tty.Event) {
	switch ev := ev.(type) {
	case tty.DataEvent:
		s.handleData(ev.Data)
	case tty.ResizeEvent:
		s.handleRemoteResize(ev.Cols, ev.Rows)
	case tty.ResetEvent:
		s.handleReset()
	case tty.CloseEvent:
		s.handleClose(ev.Reason)
	}
}

func (s *Session) current() surface {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	return s.display
}

// handleData writes p with the transport paused until the display confirms.
func (s *Session) handleData(p []byte) {
	d := s.current()
	if d == nil {
		return
	}

	s.transport.PauseFlow()

	if err := d.Write(p, s.transport.ResumeFlow); err != nil {
		s.logger.Warn("display write failed", slog.String("error", err.Error()))
		d.Reset()
		s.transport.ResumeFlow()
	}
}

func (s *Session) handleInput(p []byte) {
	if err := s.transport.Send(p); err != nil {
		s.logger.Debug("send failed", slog.String("error", err.Error()))
	}
}

// handleRemoteResize applies an authoritative size from the transport
// without going through the debounce path.
func (s *Session) handleRemoteResize(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.display == nil {
		return
	}

	if err := s.display.Resize(cols, rows); err != nil {
		s.logger.Warn("remote resize failed", slog.Int("cols", cols), slog.Int("rows", rows), slog.String("error", err.Error()))
		s.display.Reset()

		return
	}

	s.remoteCols, s.remoteRows = cols, rows
}

func (s *Session) handleReset() {
	if d := s.current(); d != nil {
		d.Reset()
	}
}

func (s *Session) handleClose(reason string) {
	s.mu.Lock()
	if s.closed || s.state == Closed {
		s.mu.Unlock()
		return
	}

	s.state = Closed
	s.reason = reason
	d := s.display

	if s.span != nil {
		s.span.SetAttributes(attribute.String("close.reason", reason))
	}
	s.mu.Unlock()

	s.logger.Info("connection closed", slog.String("reason", reason))

	if d != nil {
		if err := d.Write([]byte(StatusLine(reason)), nil); err != nil {
			s.logger.Debug("status line write failed", slog.String("error", err.Error()))
		}
	}

	s.markDone()
}

// StatusLine is the red line written when the connection closes.
func StatusLine(reason string) string {
	text := DisconnectedText
	if reason != "" {
		text += ": " + reason
	}

	return ansi.FgRed + text + ansi.ResetShort + "\r\n"
}

func (s *Session) scheduleFit() {
	s.resize.Trigger(struct{}{})
}

// fit recomputes the grid from the container and forwards a changed size to
// the transport.
func (s *Session) fit() {
	s.mu.Lock()

	if s.closed || s.display == nil {
		s.mu.Unlock()
		return
	}

	d := s.display

	cols, rows, ok := renderer.Fit(s.cfg.Mount, d.Font())
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("unable to resize terminal (container might be hidden)")

		return
	}

	if err := d.Resize(cols, rows); err != nil {
		s.mu.Unlock()
		s.logger.Warn("resize failed", slog.String("error", err.Error()))
		d.Reset()

		return
	}

	if cols == s.remoteCols && rows == s.remoteRows {
		s.mu.Unlock()
		return
	}

	s.remoteCols, s.remoteRows = cols, rows
	s.mu.Unlock()

	if err := s.transport.RequestResize(cols, rows); err != nil {
		s.logger.Warn("resize request failed", slog.Int("cols", cols), slog.Int("rows", rows), slog.String("error", err.Error()))
		d.Reset()
	}
}

// UpdateTheme swaps the colour table and repaints.
func (s *Session) UpdateTheme(t *renderer.Theme) {
	if t == nil {
		return
	}

	s.mu.Lock()
	s.cfg.Theme = t
	d := s.display
	closed := s.closed
	s.mu.Unlock()

	if d != nil && !closed {
		d.SetTheme(t)
	}
}

// Close tears the session down. It is safe to call more than once and
// before Open.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	stopWatch := s.stopWatch
	s.stopWatch = nil
	d := s.display
	s.display = nil
	live := s.live
	s.live = nil
	s.active = nil
	span := s.span
	kind := s.kind
	reason := s.reason
	s.mu.Unlock()

	s.resize.Cancel()

	if stopWatch != nil {
		stopWatch()
	}

	if err := s.transport.Disconnect(); err != nil {
		s.logger.Debug("disconnect failed", slog.String("error", err.Error()))
	}

	s.transport.RemoveAllListeners()

	if d != nil {
		_ = d.UseBackend(nil)
	}

	for _, b := range live {
		b.Dispose()
	}

	if d != nil {
		d.Dispose()
	}

	if span != nil {
		span.SetAttributes(
			attribute.String("renderer", kind.String()),
			attribute.String("close.reason", reason),
		)
		span.End()
	}

	s.markDone()

	return nil
}

func (s *Session) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Closed is closed when the connection ends or the session is torn down.
func (s *Session) Closed() <-chan struct{} { return s.done }

// RendererKind returns the active renderer tier.
func (s *Session) RendererKind() renderer.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.kind
}

// ConnState returns the connection state.
func (s *Session) ConnState() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// CloseReason returns the reason the connection closed, if any.
func (s *Session) CloseReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reason
}

// Size returns the display grid, or zeros before Open.
func (s *Session) Size() (cols, rows int) {
	s.mu.Lock()
	d := s.display
	s.mu.Unlock()

	if d == nil {
		return 0, 0
	}

	return d.Size()
}

// Snapshot returns the visible text.
func (s *Session) Snapshot() string {
	s.mu.Lock()
	d := s.display
	s.mu.Unlock()

	if d == nil {
		return ""
	}

	return d.Snapshot()
}

// Scrollback returns the output history without escape sequences.
func (s *Session) Scrollback() []string {
	s.mu.Lock()
	d := s.display
	s.mu.Unlock()

	if d == nil {
		return nil
	}

	return d.Scrollback()
}
