package recording

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/musher-dev/tether/internal/tty"
)

const (
	defaultMaxIdle = 2 * time.Second

	// EndOfRecording is the close reason emitted after the last event.
	EndOfRecording = "end of recording"
	// PlaybackStopped is the close reason when the viewer quits early.
	PlaybackStopped = "playback stopped"
)

// PlayerOptions controls playback timing.
type PlayerOptions struct {
	// Speed multiplies playback rate. Zero or negative means 1.
	Speed float64
	// MaxIdle caps the pause between two events. Zero means 2s; negative
	// disables the cap.
	MaxIdle time.Duration
	Logger  *slog.Logger
}

// Player replays recorded events as a transport. Resize events are
// authoritative: the viewer's own resize requests are ignored.
//
// Input controls: space toggles pause, q or Ctrl-C stops playback.
type Player struct {
	tty.Emitter

	flow tty.Flow
	hold tty.Flow

	events []Event
	opts   PlayerOptions

	mu       sync.Mutex
	cancel   context.CancelFunc
	started  bool
	stopped  bool
	holdOn   bool
	finished chan struct{}

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPlayer creates a player over events, which must be in sequence order.
func NewPlayer(events []Event, opts PlayerOptions) *Player {
	if opts.Speed <= 0 {
		opts.Speed = 1
	}

	if opts.MaxIdle == 0 {
		opts.MaxIdle = defaultMaxIdle
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Player{
		events:   events,
		opts:     opts,
		finished: make(chan struct{}),
		sleep:    sleepContext,
	}
}

// Connect starts playback. The requested size is ignored; the recording
// carries its own.
func (p *Player) Connect(int, int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return tty.ErrDisconnected
	}

	if p.started {
		return tty.ErrAlreadyConnected
	}

	p.started = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	go p.play(ctx)

	return nil
}

// Finished is closed when playback goroutine exits.
func (p *Player) Finished() <-chan struct{} {
	return p.finished
}

func (p *Player) play(ctx context.Context) {
	defer close(p.finished)

	var prev time.Time

	for i := range p.events {
		ev := &p.events[i]

		if !prev.IsZero() {
			if err := p.sleep(ctx, p.gap(ev.TS.Sub(prev))); err != nil {
				return
			}
		}

		prev = ev.TS

		if err := p.hold.Wait(ctx); err != nil {
			return
		}

		switch ev.Kind {
		case KindResize:
			p.Emit(tty.ResizeEvent{Cols: ev.Cols, Rows: ev.Rows})
		case KindData:
			data, err := ev.Bytes()
			if err != nil {
				p.opts.Logger.Debug("skipping undecodable event", slog.String("error", err.Error()))
				continue
			}

			if err := p.flow.Wait(ctx); err != nil {
				return
			}

			p.Emit(tty.DataEvent{Data: data})
		}
	}

	if ctx.Err() == nil {
		p.Emit(tty.CloseEvent{Reason: EndOfRecording})
	}
}

func (p *Player) gap(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}

	d = time.Duration(float64(d) / p.opts.Speed)
	if p.opts.MaxIdle > 0 && d > p.opts.MaxIdle {
		d = p.opts.MaxIdle
	}

	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send interprets viewer keystrokes as playback controls.
func (p *Player) Send(b []byte) error {
	switch {
	case bytes.ContainsAny(b, "q\x03"):
		p.stop()
		p.Emit(tty.CloseEvent{Reason: PlaybackStopped})
	case bytes.Contains(b, []byte(" ")):
		p.togglePause()
	}

	return nil
}

func (p *Player) togglePause() {
	p.mu.Lock()
	p.holdOn = !p.holdOn
	on := p.holdOn
	p.mu.Unlock()

	if on {
		p.hold.Pause()
	} else {
		p.hold.Resume()
	}
}

// RequestResize is ignored during playback.
func (p *Player) RequestResize(int, int) error { return nil }

// PauseFlow holds back the next data event.
func (p *Player) PauseFlow() { p.flow.Pause() }

// ResumeFlow releases the next data event.
func (p *Player) ResumeFlow() { p.flow.Resume() }

// Disconnect stops playback.
func (p *Player) Disconnect() error {
	p.stop()
	return nil
}

func (p *Player) stop() {
	p.mu.Lock()
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// errEmptyRecording is returned by Load for sessions without events.
var errEmptyRecording = errors.New("recording has no events")

// Load reads a session's events and returns a player for them.
func Load(rootDir, sessionID string, opts PlayerOptions) (*Player, error) {
	events, err := ReadEvents(rootDir, sessionID)
	if err != nil {
		return nil, err
	}

	if len(events) == 0 {
		return nil, errEmptyRecording
	}

	return NewPlayer(events, opts), nil
}
