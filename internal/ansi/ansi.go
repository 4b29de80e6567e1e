// Package ansi holds the escape sequences tether writes directly to a host
// terminal.
package ansi

import "fmt"

// ANSI escape sequence constants for terminal control.
const (
	ClearScreen     = "\x1b[2J"
	ClearScrollback = "\x1b[3J"
	MoveTo          = "\x1b[%d;%dH" // row;col (1-indexed)
	Home            = "\x1b[H"
	Reset           = "\x1b[0m"
	ResetShort      = "\x1b[m"
	ShowCursor      = "\x1b[?25h"
	HideCursor      = "\x1b[?25l"
	ClearLine       = "\x1b[2K"
	ClearToEOL      = "\x1b[K"
	FgRed           = "\x1b[31m"
	AltScreenEnter  = "\x1b[?1049h"
	AltScreenExit   = "\x1b[?1049l"
)

// Move returns an ANSI cursor movement sequence.
func Move(row, col int) string {
	return fmt.Sprintf(MoveTo, row, col)
}

// Clear returns the sequence that blanks the screen and its scrollback and
// homes the cursor.
func Clear() string {
	return Reset + ClearScreen + ClearScrollback + Home
}
