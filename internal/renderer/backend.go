// Package renderer draws an emulated terminal screen onto a mount target.
//
// Backends form a strictly degrading chain: Accelerated (a tcell screen),
// Canvas (full-frame redraws with lipgloss styles) and Default (a passthrough
// of the raw byte stream that cannot fail).
package renderer

import (
	"errors"
	"fmt"
	"io"

	"github.com/hinshun/vt10x"
)

// Kind identifies a rendering backend tier.
type Kind int

const (
	// Uninitialized means no backend has been attached yet.
	Uninitialized Kind = iota
	// Accelerated is the tcell cell-diffing screen.
	Accelerated
	// Canvas redraws whole frames with escape sequences.
	Canvas
	// Default forwards the raw stream to the mount. Always available.
	Default
)

func (k Kind) String() string {
	switch k {
	case Uninitialized:
		return "uninitialized"
	case Accelerated:
		return "accelerated"
	case Canvas:
		return "canvas"
	case Default:
		return "default"
	default:
		return "unknown"
	}
}

// ParseKind maps a configuration value to a Kind. "auto" and "" map to
// Accelerated, the top of the chain.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "auto", "accelerated", "webgl":
		return Accelerated, nil
	case "canvas":
		return Canvas, nil
	case "default", "software":
		return Default, nil
	default:
		return Uninitialized, fmt.Errorf("unknown renderer %q (allowed: auto, accelerated, canvas, default)", s)
	}
}

// Mount is the target a display renders into.
type Mount interface {
	io.Writer

	// Size reports the container size in cells. ok is false when the
	// container is hidden or its size is unknown.
	Size() (cols, rows int, ok bool)
}

// PixelSizer is implemented by mounts that know their pixel dimensions but
// not a cell grid.
type PixelSizer interface {
	PixelSize() (width, height int, ok bool)
}

// Frame is one unit of drawing work.
type Frame struct {
	// Screen is the emulator state. The caller holds its lock during Draw.
	Screen vt10x.View
	// Raw holds the bytes written since the previous frame. Empty for
	// full redraws.
	Raw []byte
	// Full requests a complete repaint: attach, resize or theme change.
	Full bool
	// Reset reports that the emulator was cleared.
	Reset bool
	Theme *Theme
}

// Backend draws frames onto a mount.
type Backend interface {
	Kind() Kind
	Attach(m Mount, theme *Theme) error
	Draw(f Frame) error
	Dispose()
}

// ContextLossNotifier is implemented by backends whose drawing surface can
// disappear after a successful attach. The callback fires at most once and
// never on the caller's goroutine.
type ContextLossNotifier interface {
	OnContextLoss(fn func())
}

// Factory constructs a backend of one tier. New may fail, e.g. when the
// surface the backend needs is not available.
type Factory struct {
	Kind Kind
	New  func() (Backend, error)
}

// DefaultFactories returns the chain above the always-available Default
// tier, starting at from.
func DefaultFactories(from Kind) []Factory {
	all := []Factory{
		{Kind: Accelerated, New: newAcceleratedForTerm},
		{Kind: Canvas, New: func() (Backend, error) { return NewCanvas(), nil }},
	}

	out := make([]Factory, 0, len(all))
	for _, f := range all {
		if f.Kind >= from {
			out = append(out, f)
		}
	}

	return out
}

// ErrNoSurface is returned by Attach when the mount cannot host the backend.
var ErrNoSurface = errors.New("mount has no drawable surface")
