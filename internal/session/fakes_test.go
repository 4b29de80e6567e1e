package session

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/musher-dev/tether/internal/display"
	"github.com/musher-dev/tether/internal/renderer"
	"github.com/musher-dev/tether/internal/tty"
)

// fakeTransport records every call the session makes.
type fakeTransport struct {
	tty.Emitter

	mu          sync.Mutex
	connects    [][2]int
	resizes     [][2]int
	sent        bytes.Buffer
	paused      bool
	pauses      int
	resumes     int
	disconnects int
	connectErr  error
}

func (f *fakeTransport) Connect(cols, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connects = append(f.connects, [2]int{cols, rows})

	return f.connectErr
}

func (f *fakeTransport) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent.Write(p)

	return nil
}

func (f *fakeTransport) RequestResize(cols, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resizes = append(f.resizes, [2]int{cols, rows})

	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.disconnects++

	return nil
}

func (f *fakeTransport) PauseFlow() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.paused = true
	f.pauses++
}

func (f *fakeTransport) ResumeFlow() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.paused = false
	f.resumes++
}

func (f *fakeTransport) isPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.paused
}

func (f *fakeTransport) resizeCalls() [][2]int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([][2]int(nil), f.resizes...)
}

func (f *fakeTransport) sentString() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sent.String()
}

// fakeMount is a resizable mount.
type fakeMount struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	cols   int
	rows   int
	hidden bool
}

func (m *fakeMount) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.buf.Write(p)
}

func (m *fakeMount) Size() (int, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hidden {
		return 0, 0, false
	}

	return m.cols, m.rows, true
}

func (m *fakeMount) setSize(cols, rows int) {
	m.mu.Lock()
	m.cols, m.rows, m.hidden = cols, rows, false
	m.mu.Unlock()
}

func (m *fakeMount) hide() {
	m.mu.Lock()
	m.hidden = true
	m.mu.Unlock()
}

func (m *fakeMount) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.buf.String()
}

// fakeBackend is a controllable renderer.
type fakeBackend struct {
	kind      renderer.Kind
	attachErr error

	mu       sync.Mutex
	attached bool
	disposed int
	draws    int
	onLoss   func()
}

func (b *fakeBackend) Kind() renderer.Kind { return b.kind }

func (b *fakeBackend) Attach(renderer.Mount, *renderer.Theme) error {
	if b.attachErr != nil {
		return b.attachErr
	}

	b.mu.Lock()
	b.attached = true
	b.mu.Unlock()

	return nil
}

func (b *fakeBackend) Draw(renderer.Frame) error {
	b.mu.Lock()
	b.draws++
	b.mu.Unlock()

	return nil
}

func (b *fakeBackend) Dispose() {
	b.mu.Lock()
	b.disposed++
	b.mu.Unlock()
}

func (b *fakeBackend) OnContextLoss(fn func()) {
	b.mu.Lock()
	b.onLoss = fn
	b.mu.Unlock()
}

// lose fires the registered context-loss callback on the caller's goroutine.
func (b *fakeBackend) lose() {
	b.mu.Lock()
	fn := b.onLoss
	b.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (b *fakeBackend) disposeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.disposed
}

// backendSpec describes one tier of a fake chain.
type backendSpec struct {
	kind      renderer.Kind
	newErr    error
	attachErr error
}

// fakeChain builds factories for specs and records every backend they make.
type fakeChain struct {
	mu    sync.Mutex
	built []*fakeBackend
}

func (c *fakeChain) factories(specs ...backendSpec) []renderer.Factory {
	out := make([]renderer.Factory, 0, len(specs))

	for _, sp := range specs {
		out = append(out, renderer.Factory{
			Kind: sp.kind,
			New: func() (renderer.Backend, error) {
				if sp.newErr != nil {
					return nil, sp.newErr
				}

				b := &fakeBackend{kind: sp.kind, attachErr: sp.attachErr}

				c.mu.Lock()
				c.built = append(c.built, b)
				c.mu.Unlock()

				return b, nil
			},
		})
	}

	return out
}

func (c *fakeChain) get(kind renderer.Kind) *fakeBackend {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.built) - 1; i >= 0; i-- {
		if c.built[i].kind == kind {
			return c.built[i]
		}
	}

	return nil
}

// fakeWindow is a WindowWatcher driven by the test.
type fakeWindow struct {
	mu      sync.Mutex
	fn      func()
	stopped bool
}

func (w *fakeWindow) Watch(fn func()) func() {
	w.mu.Lock()
	w.fn = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()
	}
}

func (w *fakeWindow) changed() {
	w.mu.Lock()
	fn := w.fn
	w.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (w *fakeWindow) isStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.stopped
}

var (
	errWriteFault  = errors.New("write fault")
	errResizeFault = errors.New("resize fault")
)

// spySurface wraps the real display to observe writes.
type spySurface struct {
	surface

	ft *fakeTransport

	mu          sync.Mutex
	written     bytes.Buffer
	unpaused    int
	failWrites  bool
	failResizes bool
	resets      int
}

func (s *spySurface) Resize(cols, rows int) error {
	s.mu.Lock()
	fail := s.failResizes
	s.mu.Unlock()

	if fail {
		return errResizeFault
	}

	return s.surface.Resize(cols, rows)
}

func (s *spySurface) setFailResizes(fail bool) {
	s.mu.Lock()
	s.failResizes = fail
	s.mu.Unlock()
}

func (s *spySurface) resetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resets
}

func (s *spySurface) Write(p []byte, onComplete func()) error {
	s.mu.Lock()
	fail := s.failWrites
	s.mu.Unlock()

	if !s.ft.isPaused() {
		s.mu.Lock()
		s.unpaused++
		s.mu.Unlock()
	}

	if fail {
		return errWriteFault
	}

	return s.surface.Write(p, func() {
		s.mu.Lock()
		s.written.Write(p)

		if !s.ft.isPaused() {
			s.unpaused++
		}
		s.mu.Unlock()

		if onComplete != nil {
			onComplete()
		}
	})
}

func (s *spySurface) Reset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()

	s.surface.Reset()
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

type harness struct {
	s      *Session
	ft     *fakeTransport
	mount  *fakeMount
	window *fakeWindow
	chain  *fakeChain
	spy    *spySurface
	logs   *syncBuffer
}

func newHarness(t *testing.T, specs []backendSpec, mutate func(*Config)) *harness {
	t.Helper()

	h := &harness{
		ft:     &fakeTransport{},
		mount:  &fakeMount{cols: 80, rows: 24},
		window: &fakeWindow{},
		chain:  &fakeChain{},
		logs:   &syncBuffer{},
	}

	if specs == nil {
		specs = []backendSpec{{kind: renderer.Accelerated}, {kind: renderer.Canvas}}
	}

	cfg := Config{
		Mount:          h.mount,
		Window:         h.window,
		FontSize:       14,
		Backends:       h.chain.factories(specs...),
		ResizeDebounce: 20 * time.Millisecond,
		Logger:         slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}

	if mutate != nil {
		mutate(&cfg)
	}

	s, err := New(h.ft, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	s.newSurface = func(o display.Options) surface {
		h.spy = &spySurface{surface: display.New(o), ft: h.ft}
		return h.spy
	}

	h.s = s
	t.Cleanup(func() { _ = s.Close() })

	return h
}

func (h *harness) open(t *testing.T) {
	t.Helper()

	if err := h.s.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", what)
}

func countLines(s, substr string) int {
	n := 0

	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, substr) {
			n++
		}
	}

	return n
}
