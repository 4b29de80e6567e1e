package recording

import (
	"testing"

	"github.com/musher-dev/tether/internal/tty"
)

type stubTransport struct {
	tty.Emitter

	connected []int
	resized   []int
	sent      []byte
	paused    int
	resumed   int
	closed    int
}

func (s *stubTransport) Connect(cols, rows int) error {
	s.connected = []int{cols, rows}
	return nil
}

func (s *stubTransport) Send(p []byte) error {
	s.sent = append(s.sent, p...)
	return nil
}

func (s *stubTransport) RequestResize(cols, rows int) error {
	s.resized = []int{cols, rows}
	return nil
}

func (s *stubTransport) Disconnect() error {
	s.closed++
	return nil
}

func (s *stubTransport) PauseFlow()  { s.paused++ }
func (s *stubTransport) ResumeFlow() { s.resumed++ }

func TestTapRecordsAndForwards(t *testing.T) {
	tmp := t.TempDir()

	rec, err := NewRecorder(Options{SessionID: "tapped", Dir: tmp})
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	inner := &stubTransport{}
	tr := Tap(inner, rec, nil)

	var got []tty.Event
	tr.Subscribe(func(ev tty.Event) { got = append(got, ev) })

	if err := tr.Connect(80, 24); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	inner.Emit(tty.DataEvent{Data: []byte("out")})
	inner.Emit(tty.ResetEvent{})

	if err := tr.RequestResize(100, 30); err != nil {
		t.Fatalf("RequestResize() error = %v", err)
	}

	if err := tr.Send([]byte("in")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	tr.PauseFlow()
	tr.ResumeFlow()

	if err := tr.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("forwarded %d events, want 2", len(got))
	}

	if inner.connected[0] != 80 || inner.resized[0] != 100 || string(inner.sent) != "in" {
		t.Errorf("inner calls = %+v", inner)
	}

	if inner.paused != 1 || inner.resumed != 1 || inner.closed != 1 {
		t.Errorf("flow/disconnect calls = %d/%d/%d, want 1/1/1", inner.paused, inner.resumed, inner.closed)
	}

	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	evs, err := ReadEvents(tmp, "tapped")
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}

	kinds := make([]Kind, 0, len(evs))
	for _, ev := range evs {
		kinds = append(kinds, ev.Kind)
	}

	want := []Kind{KindResize, KindData, KindResize}
	if len(kinds) != len(want) {
		t.Fatalf("recorded kinds = %v, want %v", kinds, want)
	}

	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("recorded kinds = %v, want %v", kinds, want)
			break
		}
	}
}
