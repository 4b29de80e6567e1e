package tty

import (
	"encoding/json"
	"fmt"
)

// Control message types carried in websocket text frames. Binary frames
// carry raw terminal bytes in both directions.
const (
	ControlResize = "resize"
	ControlReset  = "reset"
	ControlClose  = "close"
)

// Control is a JSON control message exchanged between tether serve and
// tether connect.
type Control struct {
	Type   string `json:"type"`
	Cols   int    `json:"cols,omitempty"`
	Rows   int    `json:"rows,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// EncodeControl marshals a control message.
func EncodeControl(c Control) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode control message: %w", err)
	}

	return data, nil
}

// DecodeControl unmarshals a control message.
func DecodeControl(data []byte) (Control, error) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return Control{}, fmt.Errorf("decode control message: %w", err)
	}

	return c, nil
}

// EventFromControl maps a server-to-client control message to an event.
// Unknown types and resize messages with non-positive sizes are rejected.
func EventFromControl(c Control) (Event, bool) {
	switch c.Type {
	case ControlResize:
		if c.Cols <= 0 || c.Rows <= 0 {
			return nil, false
		}

		return ResizeEvent{Cols: c.Cols, Rows: c.Rows}, true
	case ControlReset:
		return ResetEvent{}, true
	case ControlClose:
		return CloseEvent{Reason: c.Reason}, true
	default:
		return nil, false
	}
}
