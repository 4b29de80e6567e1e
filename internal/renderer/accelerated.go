package renderer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/hinshun/vt10x"
)

// ErrContextLost is returned when the accelerated surface went away.
var ErrContextLost = errors.New("accelerated context lost")

// ScreenFunc builds the tcell screen an accelerated backend draws through.
type ScreenFunc func(tty tcell.Tty) (tcell.Screen, error)

// AcceleratedBackend draws through a tcell screen, which diffs cells and
// emits only what changed. A write failure on the mount or an error event
// from the screen is treated as losing the drawing context.
type AcceleratedBackend struct {
	newScreen ScreenFunc

	mu       sync.Mutex
	screen   tcell.Screen
	tty      *mountTty
	theme    *Theme
	styles   map[cellStyle]tcell.Style
	onLoss   func()
	lost     bool
	fired    bool
	disposed bool
}

// NewAccelerated returns an accelerated backend. A nil newScreen uses a
// terminfo screen for $TERM.
func NewAccelerated(newScreen ScreenFunc) *AcceleratedBackend {
	if newScreen == nil {
		newScreen = tcell.NewTerminfoScreenFromTty
	}

	return &AcceleratedBackend{newScreen: newScreen}
}

// newAcceleratedForTerm fails when no terminfo entry matches $TERM.
func newAcceleratedForTerm() (Backend, error) {
	term := os.Getenv("TERM")
	if term == "" || term == "dumb" {
		return nil, fmt.Errorf("accelerated: unsupported TERM %q", term)
	}

	if _, err := tcell.LookupTerminfo(term); err != nil {
		return nil, fmt.Errorf("accelerated: %w", err)
	}

	return NewAccelerated(nil), nil
}

// Kind implements Backend.
func (b *AcceleratedBackend) Kind() Kind { return Accelerated }

// Attach implements Backend.
func (b *AcceleratedBackend) Attach(m Mount, theme *Theme) error {
	if m == nil {
		return ErrNoSurface
	}

	if theme == nil {
		theme = DefaultTheme()
	}

	tty := newMountTty(m, b.loseContext)

	screen, err := b.newScreen(tty)
	if err != nil {
		return fmt.Errorf("create screen: %w", err)
	}

	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}

	b.mu.Lock()
	b.screen = screen
	b.tty = tty
	b.theme = theme
	b.styles = make(map[cellStyle]tcell.Style)
	lost := b.lost
	b.mu.Unlock()

	if lost {
		screen.Fini()
		return ErrContextLost
	}

	screen.SetStyle(b.baseStyle())

	go b.watch(screen)

	return nil
}

// OnContextLoss implements ContextLossNotifier.
func (b *AcceleratedBackend) OnContextLoss(fn func()) {
	b.mu.Lock()
	b.onLoss = fn
	fire := fn != nil && b.lost && !b.fired

	if fire {
		b.fired = true
	}
	b.mu.Unlock()

	if fire {
		go fn()
	}
}

func (b *AcceleratedBackend) watch(screen tcell.Screen) {
	for {
		ev := screen.PollEvent()
		if ev == nil {
			return
		}

		if e, ok := ev.(*tcell.EventError); ok {
			b.loseContext(e)
		}
	}
}

func (b *AcceleratedBackend) loseContext(error) {
	b.mu.Lock()
	if b.disposed || b.lost {
		b.mu.Unlock()
		return
	}

	b.lost = true
	fn := b.onLoss
	fire := fn != nil

	if fire {
		b.fired = true
	}
	b.mu.Unlock()

	if fire {
		go fn()
	}
}

// Lost reports whether the context was lost.
func (b *AcceleratedBackend) Lost() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.lost
}

// Draw implements Backend. Drawing after the context was lost is a no-op.
func (b *AcceleratedBackend) Draw(f Frame) error {
	b.mu.Lock()
	screen, tty, lost := b.screen, b.tty, b.lost

	if f.Theme != nil && f.Theme != b.theme {
		b.theme = f.Theme
		b.styles = make(map[cellStyle]tcell.Style)
		f.Full = true
	}
	b.mu.Unlock()

	if screen == nil || lost || f.Screen == nil {
		return nil
	}

	if f.Full {
		screen.SetStyle(b.baseStyle())
		tty.checkSize()
		screen.Clear()
	}

	cols, rows := f.Screen.Size()
	sw, sh := screen.Size()

	for y := range min(rows, sh) {
		for x := range min(cols, sw) {
			g := f.Screen.Cell(x, y)

			ch := g.Char
			if ch == 0 {
				ch = ' '
			}

			screen.SetContent(x, y, ch, nil, b.style(g))
		}
	}

	if f.Screen.CursorVisible() {
		cur := f.Screen.Cursor()
		screen.ShowCursor(cur.X, cur.Y)
	} else {
		screen.HideCursor()
	}

	if f.Full {
		screen.Sync()
	} else {
		screen.Show()
	}

	if b.Lost() {
		return ErrContextLost
	}

	return nil
}

func (b *AcceleratedBackend) baseStyle() tcell.Style {
	b.mu.Lock()
	theme := b.theme
	b.mu.Unlock()

	return tcell.StyleDefault.
		Foreground(tcell.GetColor(theme.Foreground)).
		Background(tcell.GetColor(theme.Background))
}

func (b *AcceleratedBackend) style(g vt10x.Glyph) tcell.Style {
	key := cellStyle{fg: g.FG, bg: g.BG, mode: g.Mode &^ attrGfx}

	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.styles[key]; ok {
		return st
	}

	fg, bg := b.theme.Color(key.fg), b.theme.Color(key.bg)
	if key.mode&attrReverse != 0 {
		fg, bg = bg, fg
	}

	st := tcell.StyleDefault.
		Foreground(tcell.GetColor(fg)).
		Background(tcell.GetColor(bg)).
		Bold(key.mode&attrBold != 0).
		Italic(key.mode&attrItalic != 0).
		Underline(key.mode&attrUnderline != 0).
		Blink(key.mode&attrBlink != 0)

	b.styles[key] = st

	return st
}

// Dispose implements Backend. It releases the screen; later loss signals are
// dropped.
func (b *AcceleratedBackend) Dispose() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}

	b.disposed = true
	screen := b.screen
	b.screen = nil
	b.mu.Unlock()

	if screen != nil {
		screen.Fini()
	}
}

// mountTty adapts a Mount to tcell.Tty. Input never arrives through it: the
// display reads keystrokes itself, so Read parks until the screen stops.
type mountTty struct {
	mount  Mount
	onFail func(error)

	mu       sync.Mutex
	stop     chan struct{}
	stopped  bool
	onResize func()
	cols     int
	rows     int
}

func newMountTty(m Mount, onFail func(error)) *mountTty {
	return &mountTty{mount: m, onFail: onFail, stop: make(chan struct{})}
}

func (t *mountTty) Start() error {
	t.mu.Lock()
	if t.stopped {
		t.stop = make(chan struct{})
		t.stopped = false
	}
	t.mu.Unlock()

	return nil
}

func (t *mountTty) Stop() error {
	t.halt()
	return nil
}

func (t *mountTty) Drain() error {
	t.halt()
	return nil
}

func (t *mountTty) Close() error {
	t.halt()
	return nil
}

func (t *mountTty) halt() {
	t.mu.Lock()
	if !t.stopped {
		close(t.stop)
		t.stopped = true
	}
	t.mu.Unlock()
}

func (t *mountTty) NotifyResize(cb func()) {
	t.mu.Lock()
	t.onResize = cb
	t.mu.Unlock()
}

func (t *mountTty) WindowSize() (tcell.WindowSize, error) {
	cols, rows, ok := t.mount.Size()
	if !ok || cols <= 0 || rows <= 0 {
		cols, rows = 80, 24
	}

	t.mu.Lock()
	t.cols, t.rows = cols, rows
	t.mu.Unlock()

	return tcell.WindowSize{Width: cols, Height: rows}, nil
}

// checkSize pokes the screen when the mount changed size since the last
// WindowSize call.
func (t *mountTty) checkSize() {
	cols, rows, ok := t.mount.Size()
	if !ok {
		return
	}

	t.mu.Lock()
	changed := cols != t.cols || rows != t.rows
	cb := t.onResize
	t.mu.Unlock()

	if changed && cb != nil {
		cb()
	}
}

func (t *mountTty) Read([]byte) (int, error) {
	t.mu.Lock()
	stop := t.stop
	t.mu.Unlock()

	<-stop

	return 0, io.EOF
}

func (t *mountTty) Write(p []byte) (int, error) {
	n, err := t.mount.Write(p)
	if err != nil {
		t.onFail(err)
	}

	return n, err
}
