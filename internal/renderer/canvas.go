package renderer

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hinshun/vt10x"
	"github.com/mattn/go-runewidth"

	"github.com/musher-dev/tether/internal/ansi"
)

// Glyph attribute bits of vt10x.Glyph.Mode.
const (
	attrReverse int16 = 1 << iota
	attrUnderline
	attrBold
	attrGfx
	attrItalic
	attrBlink
)

type cellStyle struct {
	fg, bg vt10x.Color
	mode   int16
}

// CanvasBackend repaints the grid row by row with absolute cursor moves and
// lipgloss styles, skipping rows that did not change since the last frame.
type CanvasBackend struct {
	mount    Mount
	theme    *Theme
	renderer *lipgloss.Renderer
	styles   map[cellStyle]lipgloss.Style
	rows     []string
}

// NewCanvas returns an unattached canvas backend.
func NewCanvas() *CanvasBackend { return &CanvasBackend{} }

// Kind implements Backend.
func (c *CanvasBackend) Kind() Kind { return Canvas }

// Attach implements Backend. The mount must report a cell size.
func (c *CanvasBackend) Attach(m Mount, theme *Theme) error {
	if m == nil {
		return ErrNoSurface
	}

	if _, _, ok := m.Size(); !ok {
		return fmt.Errorf("canvas: %w", ErrNoSurface)
	}

	if theme == nil {
		theme = DefaultTheme()
	}

	c.mount = m
	c.theme = theme
	c.renderer = lipgloss.NewRenderer(m)
	c.styles = make(map[cellStyle]lipgloss.Style)
	c.rows = nil

	return nil
}

// Draw implements Backend.
func (c *CanvasBackend) Draw(f Frame) error {
	if c.mount == nil || f.Screen == nil {
		return nil
	}

	if f.Theme != nil && f.Theme != c.theme {
		c.theme = f.Theme
		c.styles = make(map[cellStyle]lipgloss.Style)
		f.Full = true
	}

	cols, rows := f.Screen.Size()
	if f.Full || len(c.rows) != rows {
		c.rows = make([]string, rows)
	}

	var b strings.Builder

	b.WriteString(ansi.HideCursor)

	if f.Full {
		b.WriteString(ansi.Reset + ansi.ClearScreen)
	}

	for y := range rows {
		line := c.renderRow(f.Screen, y, cols)
		if !f.Full && line == c.rows[y] {
			continue
		}

		c.rows[y] = line

		b.WriteString(ansi.Move(y+1, 1))
		b.WriteString(line)
		b.WriteString(ansi.Reset + ansi.ClearToEOL)
	}

	cur := f.Screen.Cursor()
	b.WriteString(ansi.Move(cur.Y+1, cur.X+1))

	if f.Screen.CursorVisible() {
		b.WriteString(ansi.ShowCursor)
	}

	if _, err := io.WriteString(c.mount, b.String()); err != nil {
		return fmt.Errorf("canvas draw: %w", err)
	}

	return nil
}

func (c *CanvasBackend) renderRow(v vt10x.View, y, cols int) string {
	var (
		out  strings.Builder
		run  strings.Builder
		cur  cellStyle
		open bool
	)

	flush := func() {
		if run.Len() == 0 {
			return
		}

		out.WriteString(c.style(cur).Render(run.String()))
		run.Reset()
	}

	// vt10x keeps one rune per cell with no spacer after a wide rune, so
	// the row is cut by display width rather than by cell count.
	width := 0

	for x := 0; x < cols; x++ {
		g := v.Cell(x, y)

		ch := g.Char

		w := runewidth.RuneWidth(ch)
		if w == 0 {
			ch, w = ' ', 1
		}

		if width+w > cols {
			break
		}

		width += w

		key := cellStyle{fg: g.FG, bg: g.BG, mode: g.Mode &^ attrGfx}

		if !open || key != cur {
			flush()

			cur = key
			open = true
		}

		run.WriteRune(ch)
	}

	flush()

	return out.String()
}

func (c *CanvasBackend) style(k cellStyle) lipgloss.Style {
	if st, ok := c.styles[k]; ok {
		return st
	}

	fg, bg := c.theme.Color(k.fg), c.theme.Color(k.bg)
	if k.mode&attrReverse != 0 {
		fg, bg = bg, fg
	}

	st := c.renderer.NewStyle().
		Foreground(lipgloss.Color(fg)).
		Background(lipgloss.Color(bg)).
		Bold(k.mode&attrBold != 0).
		Italic(k.mode&attrItalic != 0).
		Underline(k.mode&attrUnderline != 0).
		Blink(k.mode&attrBlink != 0)

	c.styles[k] = st

	return st
}

// Dispose implements Backend.
func (c *CanvasBackend) Dispose() {
	c.mount = nil
	c.renderer = nil
	c.styles = nil
	c.rows = nil
}
