package recording

import (
	"log/slog"

	"github.com/musher-dev/tether/internal/tty"
)

// tap records a transport's stream while passing every call and event
// through unchanged.
type tap struct {
	tty.Emitter

	inner  tty.Transport
	rec    *Recorder
	logger *slog.Logger
}

// Tap wraps t so inbound data and resize events, the initial connect size
// and outbound resize requests are written to rec. Listeners registered on
// the returned transport are independent of t's own listeners.
func Tap(t tty.Transport, rec *Recorder, logger *slog.Logger) tty.Transport {
	if logger == nil {
		logger = slog.Default()
	}

	tp := &tap{inner: t, rec: rec, logger: logger}
	t.Subscribe(tp.forward)

	return tp
}

func (tp *tap) forward(ev tty.Event) {
	switch e := ev.(type) {
	case tty.DataEvent:
		tp.check(tp.rec.RecordData(e.Data))
	case tty.ResizeEvent:
		tp.check(tp.rec.RecordResize(e.Cols, e.Rows))
	}

	tp.Emit(ev)
}

func (tp *tap) check(err error) {
	if err != nil {
		tp.logger.Debug("recording write failed",
			slog.String("component", "recording"),
			slog.String("recording.session_id", tp.rec.SessionID()),
			slog.String("error", err.Error()),
		)
	}
}

func (tp *tap) Connect(cols, rows int) error {
	tp.check(tp.rec.RecordResize(cols, rows))
	return tp.inner.Connect(cols, rows)
}

func (tp *tap) RequestResize(cols, rows int) error {
	tp.check(tp.rec.RecordResize(cols, rows))
	return tp.inner.RequestResize(cols, rows)
}

func (tp *tap) Send(p []byte) error { return tp.inner.Send(p) }
func (tp *tap) Disconnect() error   { return tp.inner.Disconnect() }
func (tp *tap) PauseFlow()          { tp.inner.PauseFlow() }
func (tp *tap) ResumeFlow()         { tp.inner.ResumeFlow() }
