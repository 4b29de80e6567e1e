package renderer

import (
	"fmt"
	"io"
	"strings"

	"github.com/hinshun/vt10x"

	"github.com/musher-dev/tether/internal/ansi"
)

// SoftwareBackend forwards the raw stream to the mount. It is the last tier
// of the chain and attaches to any mount.
type SoftwareBackend struct {
	mount Mount
}

// NewSoftware returns the default backend.
func NewSoftware() *SoftwareBackend { return &SoftwareBackend{} }

// Kind implements Backend.
func (s *SoftwareBackend) Kind() Kind { return Default }

// Attach implements Backend. It never fails.
func (s *SoftwareBackend) Attach(m Mount, _ *Theme) error {
	s.mount = m
	return nil
}

// Draw writes the raw bytes of f. Full frames clear the mount and repaint the
// visible text without attributes.
func (s *SoftwareBackend) Draw(f Frame) error {
	if s.mount == nil {
		return nil
	}

	if !f.Full {
		if len(f.Raw) == 0 {
			return nil
		}

		_, err := s.mount.Write(f.Raw)

		return err
	}

	var b strings.Builder

	b.WriteString(ansi.Clear())

	if f.Screen != nil {
		lines := ScreenLines(f.Screen)
		b.WriteString(strings.Join(lines, "\r\n"))

		cur := f.Screen.Cursor()
		b.WriteString(ansi.Move(cur.Y+1, cur.X+1))
	}

	_, err := io.WriteString(s.mount, b.String())
	if err != nil {
		return fmt.Errorf("software repaint: %w", err)
	}

	return nil
}

// Dispose implements Backend.
func (s *SoftwareBackend) Dispose() { s.mount = nil }

// ScreenLines returns the visible rows of v with trailing blanks trimmed.
// The caller holds v's lock.
func ScreenLines(v vt10x.View) []string {
	cols, rows := v.Size()
	lines := make([]string, rows)

	var b strings.Builder

	for y := range rows {
		b.Reset()

		for x := range cols {
			ch := v.Cell(x, y).Char
			if ch == 0 {
				ch = ' '
			}

			b.WriteRune(ch)
		}

		lines[y] = strings.TrimRight(b.String(), " ")
	}

	return lines
}
