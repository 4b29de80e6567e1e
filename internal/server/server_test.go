package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/musher-dev/tether/internal/tty"
)

// remoteFake stands in for the shell behind a connection.
type remoteFake struct {
	tty.Emitter

	mu         sync.Mutex
	connectErr error
	connected  chan [2]int
	sent       []byte
	resizes    [][2]int
	pauses     int
	resumes    int
	disconnect chan struct{}
	once       sync.Once
}

func newRemoteFake() *remoteFake {
	return &remoteFake{
		connected:  make(chan [2]int, 1),
		disconnect: make(chan struct{}),
	}
}

func (f *remoteFake) Connect(cols, rows int) error {
	if f.connectErr != nil {
		return f.connectErr
	}

	f.connected <- [2]int{cols, rows}

	return nil
}

func (f *remoteFake) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, p...)

	return nil
}

func (f *remoteFake) RequestResize(cols, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resizes = append(f.resizes, [2]int{cols, rows})

	return nil
}

func (f *remoteFake) Disconnect() error {
	f.once.Do(func() { close(f.disconnect) })
	return nil
}

func (f *remoteFake) PauseFlow() {
	f.mu.Lock()
	f.pauses++
	f.mu.Unlock()
}

func (f *remoteFake) ResumeFlow() {
	f.mu.Lock()
	f.resumes++
	f.mu.Unlock()
}

func (f *remoteFake) snapshot() (sent string, resizes [][2]int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return string(f.sent), append([][2]int(nil), f.resizes...)
}

type clientLog struct {
	mu     sync.Mutex
	events []tty.Event
	ch     chan tty.Event
}

func newClientLog() *clientLog {
	return &clientLog{ch: make(chan tty.Event, 32)}
}

func (l *clientLog) listen(ev tty.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	l.ch <- ev
}

func (l *clientLog) next(t *testing.T) tty.Event {
	t.Helper()

	select {
	case ev := <-l.ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event from server")
		return nil
	}
}

func startServer(t *testing.T, remote *remoteFake) (*Server, *httptest.Server) {
	t.Helper()

	s := New(Options{NewTransport: func() tty.Transport { return remote }})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, cols, rows int) (*tty.WS, *clientLog) {
	t.Helper()

	client := tty.NewWS(tty.WSOptions{URL: ts.URL + "/v1/terminal"})
	log := newClientLog()
	client.Subscribe(log.listen)

	if err := client.Connect(cols, rows); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	t.Cleanup(func() { _ = client.Disconnect() })

	return client, log
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}

		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealthz(t *testing.T) {
	_, ts := startServer(t, newRemoteFake())

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK || string(body) != "ok\n" {
		t.Fatalf("GET /healthz = %d %q, want 200 ok", resp.StatusCode, body)
	}
}

func TestTerminalRejectsBadSize(t *testing.T) {
	_, ts := startServer(t, newRemoteFake())

	for _, q := range []string{"cols=abc&rows=24", "cols=0&rows=24", "cols=80&rows=-1"} {
		resp, err := http.Get(ts.URL + "/v1/terminal?" + q)
		if err != nil {
			t.Fatalf("GET error = %v", err)
		}

		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET ?%s = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestTerminalRelay(t *testing.T) {
	remote := newRemoteFake()
	s, ts := startServer(t, remote)
	client, log := dial(t, ts, 900, 30)

	select {
	case size := <-remote.connected:
		if size != [2]int{MaxTermCols, 30} {
			t.Errorf("remote connected with %v, want clamped [%d 30]", size, MaxTermCols)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("remote never connected")
	}

	waitFor(t, "active connection", func() bool { return s.Active() == 1 })

	if err := client.Send([]byte("ls\r")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if err := client.RequestResize(120, 900); err != nil {
		t.Fatalf("RequestResize() error = %v", err)
	}

	waitFor(t, "input and resize", func() bool {
		sent, resizes := remote.snapshot()
		return sent == "ls\r" && len(resizes) == 1
	})

	if _, resizes := remote.snapshot(); resizes[0] != [2]int{120, MaxTermRows} {
		t.Errorf("resize = %v, want [120 %d]", resizes[0], MaxTermRows)
	}

	remote.Emit(tty.DataEvent{Data: []byte("output")})

	if ev, ok := log.next(t).(tty.DataEvent); !ok || string(ev.Data) != "output" {
		t.Fatalf("client event = %#v, want data output", ev)
	}

	waitFor(t, "flow resumed after the frame", func() bool {
		remote.mu.Lock()
		defer remote.mu.Unlock()

		return remote.pauses == 1 && remote.resumes == 1
	})

	remote.Emit(tty.CloseEvent{Reason: "exit status 1"})

	if ev, ok := log.next(t).(tty.CloseEvent); !ok || ev.Reason != "exit status 1" {
		t.Fatalf("client event = %#v, want close(exit status 1)", ev)
	}

	select {
	case <-remote.disconnect:
	case <-time.After(5 * time.Second):
		t.Fatal("remote not disconnected after close")
	}

	waitFor(t, "connection released", func() bool { return s.Active() == 0 })
}

func TestTerminalDropsOversizedInput(t *testing.T) {
	remote := newRemoteFake()
	_, ts := startServer(t, remote)
	client, _ := dial(t, ts, 80, 24)

	<-remote.connected

	if err := client.Send([]byte(strings.Repeat("x", MaxInputMessageSize+1))); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if err := client.Send([]byte("ok")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	waitFor(t, "small frame", func() bool {
		sent, _ := remote.snapshot()
		return sent != ""
	})

	if sent, _ := remote.snapshot(); sent != "ok" {
		t.Errorf("remote received %d bytes, want only the small frame", len(sent))
	}
}

func TestTerminalStartFailure(t *testing.T) {
	remote := newRemoteFake()
	remote.connectErr = errors.New("no shell")
	_, ts := startServer(t, remote)
	_, log := dial(t, ts, 80, 24)

	ev, ok := log.next(t).(tty.CloseEvent)
	if !ok || ev.Reason != "failed to start shell" {
		t.Fatalf("client event = %#v, want close(failed to start shell)", ev)
	}
}

func TestShutdownEndsConnections(t *testing.T) {
	remote := newRemoteFake()
	s, ts := startServer(t, remote)
	_, log := dial(t, ts, 80, 24)

	<-remote.connected
	waitFor(t, "active connection", func() bool { return s.Active() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if s.Active() != 0 {
		t.Errorf("Active() = %d after Shutdown, want 0", s.Active())
	}

	if _, ok := log.next(t).(tty.CloseEvent); !ok {
		t.Error("client did not see the connection close")
	}
}

func TestTokenBucket(t *testing.T) {
	now := time.Unix(0, 0)
	tb := newTokenBucket(2, 10)
	tb.now = func() time.Time { return now }
	tb.lastRefill = now

	if !tb.allow() || !tb.allow() {
		t.Fatal("burst tokens refused")
	}

	if tb.allow() {
		t.Fatal("allowed beyond burst")
	}

	now = now.Add(50 * time.Millisecond)
	if tb.allow() {
		t.Fatal("allowed before a full token refilled")
	}

	now = now.Add(60 * time.Millisecond)
	if !tb.allow() {
		t.Fatal("refused after refill")
	}

	now = now.Add(time.Hour)
	if !tb.allow() || !tb.allow() || tb.allow() {
		t.Fatal("refill not capped at burst")
	}
}
