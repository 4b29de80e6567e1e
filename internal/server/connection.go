package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/musher-dev/tether/internal/tty"
)

// connection relays one websocket client to one transport.
type connection struct {
	conn    *websocket.Conn
	t       tty.Transport
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *tokenBucket
	logger  *slog.Logger

	mu          sync.Mutex
	closeReason string
}

func (c *connection) reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeReason
}

// forward writes transport events to the client. Data frames are written
// with the transport paused so a slow client holds back the reader.
func (c *connection) forward(ev tty.Event) {
	switch e := ev.(type) {
	case tty.DataEvent:
		c.t.PauseFlow()
		defer c.t.ResumeFlow()

		if err := c.conn.Write(c.ctx, websocket.MessageBinary, e.Data); err != nil {
			c.cancel()
		}
	case tty.ResizeEvent:
		c.writeControl(tty.Control{Type: tty.ControlResize, Cols: e.Cols, Rows: e.Rows})
	case tty.ResetEvent:
		c.writeControl(tty.Control{Type: tty.ControlReset})
	case tty.CloseEvent:
		c.mu.Lock()
		c.closeReason = e.Reason
		c.mu.Unlock()

		c.writeControl(tty.Control{Type: tty.ControlClose, Reason: e.Reason})
		c.cancel()
	}
}

func (c *connection) writeControl(ctrl tty.Control) {
	data, err := tty.EncodeControl(ctrl)
	if err != nil {
		return
	}

	if err := c.conn.Write(c.ctx, websocket.MessageText, data); err != nil {
		c.cancel()
	}
}

// readClient relays client frames until the client leaves or the
// connection is cancelled.
func (c *connection) readClient() {
	defer c.cancel()

	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}

		if !c.limiter.allow() {
			continue
		}

		if typ == websocket.MessageBinary {
			if len(data) > MaxInputMessageSize {
				c.logger.Debug("dropping oversized input frame", slog.Int("size", len(data)))
				continue
			}

			if err := c.t.Send(data); err != nil {
				c.logger.Debug("send to terminal failed", slog.String("error", err.Error()))
				return
			}

			continue
		}

		ctrl, err := tty.DecodeControl(data)
		if err != nil || ctrl.Type != tty.ControlResize || ctrl.Cols <= 0 || ctrl.Rows <= 0 {
			continue
		}

		cols, rows := clampSize(ctrl.Cols, ctrl.Rows)
		if err := c.t.RequestResize(cols, rows); err != nil {
			c.logger.Debug("resize terminal failed", slog.String("error", err.Error()))
		}
	}
}
