package tty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	defaultDialTimeout = 10 * time.Second
	wsReadLimit        = 1024 * 1024
)

// WSOptions configures a websocket transport.
type WSOptions struct {
	URL         string
	Header      http.Header
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// WS connects to a tether serve endpoint over a websocket.
type WS struct {
	Emitter

	flow Flow
	opts WSOptions

	mu           sync.Mutex
	conn         *websocket.Conn
	ctx          context.Context
	cancel       context.CancelFunc
	closeEmitted bool
	disconnected bool
}

// NewWS creates an unconnected websocket transport.
func NewWS(opts WSOptions) *WS {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &WS{opts: opts}
}

// Connect dials the endpoint, passing the initial size in the query string.
func (w *WS) Connect(cols, rows int) error {
	w.mu.Lock()
	if w.disconnected {
		w.mu.Unlock()
		return ErrDisconnected
	}

	if w.conn != nil {
		w.mu.Unlock()
		return ErrAlreadyConnected
	}
	w.mu.Unlock()

	target, err := dialURL(w.opts.URL, cols, rows)
	if err != nil {
		return err
	}

	dialCtx, cancelDial := context.WithTimeout(context.Background(), w.opts.DialTimeout)
	defer cancelDial()

	conn, resp, err := websocket.Dial(dialCtx, target, &websocket.DialOptions{
		HTTPHeader: w.opts.Header,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return fmt.Errorf("dial %s: %w", w.opts.URL, err)
	}

	conn.SetReadLimit(wsReadLimit)

	ctx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	w.conn = conn
	w.ctx = ctx
	w.cancel = cancel
	w.mu.Unlock()

	w.opts.Logger.Debug(
		"websocket connected",
		slog.String("component", "tty"),
		slog.String("event.type", "tty.ws.connect"),
		slog.String("tty.url", w.opts.URL),
	)

	go w.readLoop(ctx, conn)

	return nil
}

func dialURL(raw string, cols, rows int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse websocket url: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported websocket url scheme %q", u.Scheme)
	}

	q := u.Query()
	q.Set("cols", strconv.Itoa(cols))
	q.Set("rows", strconv.Itoa(rows))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (w *WS) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if err := w.flow.Wait(ctx); err != nil {
			return
		}

		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || w.isDisconnected() {
				return
			}

			w.emitClose(closeReason(err))

			return
		}

		if typ == websocket.MessageBinary {
			w.Emit(DataEvent{Data: data})
			continue
		}

		ctrl, err := DecodeControl(data)
		if err != nil {
			w.opts.Logger.Debug("dropping malformed control frame", slog.String("error", err.Error()))
			continue
		}

		ev, ok := EventFromControl(ctrl)
		if !ok {
			continue
		}

		if closeEv, isClose := ev.(CloseEvent); isClose {
			w.emitClose(closeEv.Reason)
			continue
		}

		w.Emit(ev)
	}
}

func (w *WS) emitClose(reason string) {
	w.mu.Lock()
	if w.closeEmitted {
		w.mu.Unlock()
		return
	}

	w.closeEmitted = true
	w.mu.Unlock()

	w.Emit(CloseEvent{Reason: reason})
}

func closeReason(err error) string {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Reason != "" {
			return ce.Reason
		}

		if ce.Code == websocket.StatusNormalClosure {
			return ""
		}

		return ce.Code.String()
	}

	return err.Error()
}

func (w *WS) active() (*websocket.Conn, context.Context, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil || w.disconnected {
		return nil, nil, ErrNotConnected
	}

	return w.conn, w.ctx, nil
}

// Send writes input as a binary frame.
func (w *WS) Send(p []byte) error {
	conn, ctx, err := w.active()
	if err != nil {
		return err
	}

	if err := conn.Write(ctx, websocket.MessageBinary, p); err != nil {
		return fmt.Errorf("websocket send: %w", err)
	}

	return nil
}

// RequestResize sends a resize control frame.
func (w *WS) RequestResize(cols, rows int) error {
	conn, ctx, err := w.active()
	if err != nil {
		return err
	}

	data, err := EncodeControl(Control{Type: ControlResize, Cols: cols, Rows: rows})
	if err != nil {
		return err
	}

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket resize: %w", err)
	}

	return nil
}

// PauseFlow stops reading frames.
func (w *WS) PauseFlow() { w.flow.Pause() }

// ResumeFlow resumes reading frames.
func (w *WS) ResumeFlow() { w.flow.Resume() }

// Disconnect closes the websocket with a normal closure.
func (w *WS) Disconnect() error {
	w.mu.Lock()
	if w.disconnected {
		w.mu.Unlock()
		return nil
	}

	w.disconnected = true
	conn := w.conn
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		defer cancel()
	}

	if conn == nil {
		return nil
	}

	if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
		_ = conn.CloseNow()
	}

	return nil
}

func (w *WS) isDisconnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.disconnected
}
