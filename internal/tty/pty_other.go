//go:build !unix

package tty

import (
	"errors"
	"log/slog"
	"time"
)

// PTYOptions configures a local PTY transport.
type PTYOptions struct {
	Command          string
	Args             []string
	Dir              string
	Env              []string
	ShutdownDeadline time.Duration
	Logger           *slog.Logger
}

// PTY is unavailable on this platform; Connect always fails.
type PTY struct {
	Emitter

	flow Flow
}

// NewPTY returns a transport whose Connect reports the platform limitation.
func NewPTY(PTYOptions) *PTY {
	return &PTY{}
}

var errPTYUnsupported = errors.New("pty transport requires a unix platform")

func (p *PTY) Connect(int, int) error       { return errPTYUnsupported }
func (p *PTY) Send([]byte) error            { return ErrNotConnected }
func (p *PTY) RequestResize(int, int) error { return ErrNotConnected }
func (p *PTY) Disconnect() error            { return nil }
func (p *PTY) PauseFlow()                   { p.flow.Pause() }
func (p *PTY) ResumeFlow()                  { p.flow.Resume() }
