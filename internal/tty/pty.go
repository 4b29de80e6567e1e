//go:build unix

package tty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

const (
	defaultPTYShutdownDeadline = 2 * time.Second
	ptyReadBufferSize          = 32 * 1024
)

// PTYOptions configures a local PTY transport.
type PTYOptions struct {
	// Command is the program to run. Empty means $SHELL, then /bin/sh.
	Command string
	Args    []string
	Dir     string
	// Env is appended to the current environment.
	Env []string

	ShutdownDeadline time.Duration
	Logger           *slog.Logger
}

// PTY runs a local command on a pseudo-terminal.
type PTY struct {
	Emitter

	flow Flow
	opts PTYOptions

	mu           sync.Mutex
	ptmx         *os.File
	cmd          *exec.Cmd
	pgid         int
	cancel       context.CancelFunc
	exited       chan struct{}
	waitErr      error
	disconnected bool

	// injectable for tests
	startWithSize func(*exec.Cmd, *pty.Winsize) (*os.File, error)
	setSize       func(*os.File, *pty.Winsize) error
}

// NewPTY creates an unconnected PTY transport.
func NewPTY(opts PTYOptions) *PTY {
	if opts.Command == "" {
		opts.Command = defaultShell()
	}

	if opts.ShutdownDeadline <= 0 {
		opts.ShutdownDeadline = defaultPTYShutdownDeadline
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &PTY{
		opts:          opts,
		startWithSize: pty.StartWithSize,
		setSize:       pty.Setsize,
	}
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}

	return "/bin/sh"
}

// Connect starts the command with the given window size.
func (p *PTY) Connect(cols, rows int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disconnected {
		return ErrDisconnected
	}

	if p.cmd != nil {
		return ErrAlreadyConnected
	}

	cmd := exec.Command(p.opts.Command, p.opts.Args...) //nolint:gosec // command is chosen by the local user
	cmd.Dir = p.opts.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, p.opts.Env...)

	p.opts.Logger.Debug(
		"starting pty",
		slog.String("component", "tty"),
		slog.String("event.type", "tty.pty.start"),
		slog.String("tty.command", p.opts.Command),
		slog.Int("tty.cols", cols),
		slog.Int("tty.rows", rows),
	)

	ptmx, err := p.startWithSize(cmd, &pty.Winsize{
		Rows: clampUint16(rows),
		Cols: clampUint16(cols),
	})
	if err != nil {
		return fmt.Errorf("start pty %q: %w", p.opts.Command, err)
	}

	p.ptmx = ptmx
	p.cmd = cmd
	p.exited = make(chan struct{})

	if cmd.Process != nil && cmd.Process.Pid > 0 {
		if pgid, pgErr := syscall.Getpgid(cmd.Process.Pid); pgErr == nil {
			p.pgid = pgid
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	go p.wait(cmd, p.exited)
	go p.readLoop(ctx, ptmx, p.exited)

	return nil
}

func (p *PTY) wait(cmd *exec.Cmd, exited chan struct{}) {
	var err error
	if cmd.Process != nil {
		err = cmd.Wait()
	}

	p.mu.Lock()
	p.waitErr = err
	p.mu.Unlock()

	close(exited)
}

func (p *PTY) readLoop(ctx context.Context, ptmx *os.File, exited <-chan struct{}) {
	buf := make([]byte, ptyReadBufferSize)

	for {
		if err := p.flow.Wait(ctx); err != nil {
			return
		}

		n, err := ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			p.Emit(DataEvent{Data: data})
		}

		if err != nil {
			break
		}
	}

	select {
	case <-exited:
	case <-ctx.Done():
		return
	}

	p.Emit(CloseEvent{Reason: p.exitReason()})
}

func (p *PTY) exitReason() string {
	p.mu.Lock()
	err := p.waitErr
	p.mu.Unlock()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Error()
	}

	if err != nil {
		return err.Error()
	}

	return ""
}

// Send writes input to the PTY.
func (p *PTY) Send(b []byte) error {
	p.mu.Lock()
	ptmx := p.ptmx
	p.mu.Unlock()

	if ptmx == nil {
		return ErrNotConnected
	}

	if _, err := ptmx.Write(b); err != nil {
		return fmt.Errorf("write to pty: %w", err)
	}

	return nil
}

// RequestResize updates the PTY window size.
func (p *PTY) RequestResize(cols, rows int) error {
	p.mu.Lock()
	ptmx := p.ptmx
	p.mu.Unlock()

	if ptmx == nil {
		return ErrNotConnected
	}

	if err := p.setSize(ptmx, &pty.Winsize{Rows: clampUint16(rows), Cols: clampUint16(cols)}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}

	return nil
}

// PauseFlow stops the reader before its next read.
func (p *PTY) PauseFlow() { p.flow.Pause() }

// ResumeFlow releases the reader.
func (p *PTY) ResumeFlow() { p.flow.Resume() }

// Disconnect closes the PTY and stops the command: SIGTERM to the process
// group, then SIGKILL once the shutdown deadline passes.
func (p *PTY) Disconnect() error {
	p.mu.Lock()
	if p.disconnected {
		p.mu.Unlock()
		return nil
	}

	p.disconnected = true
	ptmx := p.ptmx
	cmd := p.cmd
	pgid := p.pgid
	exited := p.exited
	cancel := p.cancel
	p.ptmx = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var closeErr error
	if ptmx != nil {
		closeErr = ptmx.Close()
	}

	if cmd == nil || cmd.Process == nil {
		return closeErr
	}

	p.opts.Logger.Debug(
		"stopping pty",
		slog.String("component", "tty"),
		slog.String("event.type", "tty.pty.stop"),
	)

	sendSignal(cmd.Process.Pid, pgid, syscall.SIGTERM)

	select {
	case <-exited:
		return nil
	case <-time.After(p.opts.ShutdownDeadline):
		sendSignal(cmd.Process.Pid, pgid, syscall.SIGKILL)

		select {
		case <-exited:
		case <-time.After(p.opts.ShutdownDeadline):
		}
	}

	return nil
}

func sendSignal(pid, pgid int, sig syscall.Signal) {
	if pgid > 0 {
		if err := syscall.Kill(-pgid, sig); err == nil || errors.Is(err, syscall.ESRCH) {
			return
		}
	}

	if pid <= 0 {
		return
	}

	_ = syscall.Kill(pid, sig)
}

func clampUint16(v int) uint16 {
	switch {
	case v < 0:
		return 0
	case v > 0xffff:
		return 0xffff
	default:
		return uint16(v)
	}
}
