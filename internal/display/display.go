// Package display wraps the vt10x emulator behind the surface a terminal
// session writes to: bytes in, frames out through the active renderer
// backend, keystrokes and emulator replies back through OnData.
package display

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/hinshun/vt10x"
	"github.com/muesli/cancelreader"

	"github.com/musher-dev/tether/internal/ansi"
	"github.com/musher-dev/tether/internal/renderer"
)

const (
	defaultCols = 80
	defaultRows = 24

	inputBufferSize = 4096
)

var (
	// ErrDisposed is returned by operations on a disposed display.
	ErrDisposed = errors.New("display disposed")
	// ErrEmulator wraps a fault raised while parsing output.
	ErrEmulator = errors.New("terminal emulator fault")
)

// Options configure a Display.
type Options struct {
	Cols            int
	Rows            int
	ScrollbackLines int
	FontFamily      string
	FontSize        int
	Theme           *renderer.Theme
	Logger          *slog.Logger
}

// Display is an emulated terminal screen. Methods are safe for concurrent
// use; Write completion callbacks run after the display lock is released.
type Display struct {
	logger *slog.Logger
	font   renderer.FontMetrics

	mu       sync.Mutex
	vt       vt10x.Terminal
	cols     int
	rows     int
	theme    *renderer.Theme
	mount    renderer.Mount
	backend  renderer.Backend
	scroll   *lineRing
	input    cancelreader.CancelReader
	disposed bool

	dataMu sync.RWMutex
	onData func([]byte)
}

// New creates a display. Zero sizes default to 80x24.
func New(opts Options) *Display {
	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = defaultCols
	}

	if rows <= 0 {
		rows = defaultRows
	}

	theme := opts.Theme
	if theme == nil {
		theme = renderer.DefaultTheme()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d := &Display{
		logger: logger,
		font:   renderer.FontMetrics{Family: opts.FontFamily, Size: opts.FontSize},
		cols:   cols,
		rows:   rows,
		theme:  theme,
		scroll: newLineRing(opts.ScrollbackLines, cols),
	}
	d.vt = d.newEmulator(cols, rows)

	return d
}

func (d *Display) newEmulator(cols, rows int) vt10x.Terminal {
	return vt10x.New(vt10x.WithSize(cols, rows), vt10x.WithWriter(replyWriter{d}))
}

// replyWriter receives the emulator's answers to terminal queries.
type replyWriter struct{ d *Display }

func (w replyWriter) Write(p []byte) (int, error) {
	w.d.emit(p)
	return len(p), nil
}

// Font returns the font metrics the display was built with.
func (d *Display) Font() renderer.FontMetrics { return d.font }

// Open binds the display to a mount target.
func (d *Display) Open(m renderer.Mount) error {
	if m == nil {
		return errors.New("display: nil mount")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed {
		return ErrDisposed
	}

	d.mount = m

	return nil
}

// UseBackend makes b the active backend and repaints through it. b must
// already be attached to the mount. A nil b detaches the current backend.
func (d *Display) UseBackend(b renderer.Backend) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed {
		return ErrDisposed
	}

	d.backend = b

	return d.drawLocked(renderer.Frame{Full: true})
}

// Write feeds p to the emulator and draws the result. onComplete runs once
// the bytes are on screen; it is not called when Write fails.
func (d *Display) Write(p []byte, onComplete func()) error {
	d.mu.Lock()

	if d.disposed {
		d.mu.Unlock()
		return ErrDisposed
	}

	if err := d.parse(p); err != nil {
		d.mu.Unlock()
		return err
	}

	d.scroll.append(string(p))

	if err := d.drawLocked(renderer.Frame{Raw: p}); err != nil {
		d.logger.Debug("draw failed", slog.String("error", err.Error()))
	}

	d.mu.Unlock()

	if onComplete != nil {
		onComplete()
	}

	return nil
}

func (d *Display) parse(p []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEmulator, r)
		}
	}()

	if _, err := d.vt.Write(p); err != nil {
		return fmt.Errorf("%w: %w", ErrEmulator, err)
	}

	return nil
}

// drawLocked renders the current emulator state. Caller holds d.mu.
func (d *Display) drawLocked(f renderer.Frame) error {
	if d.backend == nil {
		return nil
	}

	f.Screen = d.vt
	f.Theme = d.theme

	d.vt.Lock()
	defer d.vt.Unlock()

	if err := d.backend.Draw(f); err != nil {
		return fmt.Errorf("%s draw: %w", d.backend.Kind(), err)
	}

	return nil
}

// Resize changes the emulator grid and repaints.
func (d *Display) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("invalid size %dx%d", cols, rows)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed {
		return ErrDisposed
	}

	if cols == d.cols && rows == d.rows {
		return nil
	}

	d.vt.Resize(cols, rows)
	d.cols, d.rows = cols, rows
	d.scroll.setWidth(cols)

	return d.drawLocked(renderer.Frame{Full: true})
}

// Reset clears the screen and scrollback. The grid size is kept.
func (d *Display) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed {
		return
	}

	d.vt = d.newEmulator(d.cols, d.rows)
	d.scroll.clear()

	if err := d.drawLocked(renderer.Frame{Full: true, Reset: true}); err != nil {
		d.logger.Debug("redraw after reset failed", slog.String("error", err.Error()))
	}
}

// SetTheme swaps the colour table and repaints.
func (d *Display) SetTheme(t *renderer.Theme) {
	if t == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed {
		return
	}

	d.theme = t

	if err := d.drawLocked(renderer.Frame{Full: true}); err != nil {
		d.logger.Debug("redraw after theme change failed", slog.String("error", err.Error()))
	}
}

// Theme returns the current colour table.
func (d *Display) Theme() *renderer.Theme {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.theme
}

// Cols returns the grid width.
func (d *Display) Cols() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.cols
}

// Rows returns the grid height.
func (d *Display) Rows() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.rows
}

// Size returns the grid size.
func (d *Display) Size() (cols, rows int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.cols, d.rows
}

// Snapshot returns the visible text with trailing blank lines removed.
func (d *Display) Snapshot() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.vt.Lock()
	lines := renderer.ScreenLines(d.vt)
	d.vt.Unlock()

	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// Scrollback returns the output history, oldest first, without escape
// sequences.
func (d *Display) Scrollback() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.scroll.snapshot()
}

// OnData registers the handler for keystrokes and emulator replies.
func (d *Display) OnData(fn func([]byte)) {
	d.dataMu.Lock()
	d.onData = fn
	d.dataMu.Unlock()
}

func (d *Display) emit(p []byte) {
	d.dataMu.RLock()
	fn := d.onData
	d.dataMu.RUnlock()

	if fn == nil || len(p) == 0 {
		return
	}

	buf := make([]byte, len(p))
	copy(buf, p)
	fn(buf)
}

// BindInput reads keystrokes from r until the display is disposed or r ends.
func (d *Display) BindInput(r io.Reader) error {
	cr, err := cancelreader.NewReader(r)
	if err != nil {
		return fmt.Errorf("input reader: %w", err)
	}

	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		_ = cr.Close()

		return ErrDisposed
	}

	if d.input != nil {
		d.mu.Unlock()
		_ = cr.Close()

		return errors.New("display: input already bound")
	}

	d.input = cr
	d.mu.Unlock()

	go d.readInput(cr)

	return nil
}

func (d *Display) readInput(r io.Reader) {
	buf := make([]byte, inputBufferSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			d.emit(buf[:n])
		}

		if err != nil {
			if !errors.Is(err, cancelreader.ErrCanceled) && !errors.Is(err, io.EOF) {
				d.logger.Debug("input read failed", slog.String("error", err.Error()))
			}

			return
		}
	}
}

// Dispose stops input, detaches the backend and clears the mount. The last
// screen stays readable through Snapshot. Safe to call more than once.
func (d *Display) Dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}

	d.disposed = true
	input := d.input
	mount := d.mount
	d.input = nil
	d.backend = nil
	d.mount = nil
	d.mu.Unlock()

	d.OnData(nil)

	if input != nil {
		input.Cancel()
		_ = input.Close()
	}

	if mount != nil {
		if _, err := io.WriteString(mount, ansi.Clear()); err != nil {
			d.logger.Debug("clear mount failed", slog.String("error", err.Error()))
		}
	}
}
