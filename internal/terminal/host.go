package terminal

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/term"
)

// Host is the local terminal used as a session mount: writes go to out and
// the container size is read from it.
type Host struct {
	mu  sync.Mutex
	out *os.File
	in  *os.File

	oldState    *term.State
	restoreOnce sync.Once
}

// NewHost returns a mount over the given output and input files.
func NewHost(out, in *os.File) *Host {
	return &Host{out: out, in: in}
}

// Stdio returns a mount over stdout and stdin.
func Stdio() *Host {
	return NewHost(os.Stdout, os.Stdin)
}

// Write serializes writes to the output file.
func (h *Host) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.out.Write(p)
	if err != nil {
		return n, fmt.Errorf("write to terminal: %w", err)
	}

	return n, nil
}

// Size reports the terminal size in cells. ok is false when the output is
// not a terminal or reports an empty window.
func (h *Host) Size() (cols, rows int, ok bool) {
	cols, rows, err := term.GetSize(int(h.out.Fd()))
	if err != nil || cols <= 0 || rows <= 0 {
		return 0, 0, false
	}

	return cols, rows, true
}

// Fd exposes the output descriptor so styling libraries can detect the
// colour profile.
func (h *Host) Fd() uintptr {
	return h.out.Fd()
}

// Input returns the input file.
func (h *Host) Input() *os.File {
	return h.in
}

// IsTerminal reports whether both input and output are terminals.
func (h *Host) IsTerminal() bool {
	return term.IsTerminal(int(h.in.Fd())) && term.IsTerminal(int(h.out.Fd()))
}

// MakeRaw puts the input terminal into raw mode. Restore undoes it.
func (h *Host) MakeRaw() error {
	state, err := term.MakeRaw(int(h.in.Fd()))
	if err != nil {
		return fmt.Errorf("enable raw mode: %w", err)
	}

	h.oldState = state

	return nil
}

// Restore returns the input terminal to the mode it had before MakeRaw.
// Safe to call more than once.
func (h *Host) Restore() {
	h.restoreOnce.Do(func() {
		if h.oldState != nil {
			_ = term.Restore(int(h.in.Fd()), h.oldState)
		}
	})
}
