package session

import (
	"errors"
	"fmt"
)

// ConnState is the lifecycle of the session's transport connection.
type ConnState int

const (
	// Idle means Open has not connected yet.
	Idle ConnState = iota
	// Connecting means Connect is in progress.
	Connecting
	// Open means the transport is live.
	Open
	// Closed means the connection ended. See Session.CloseReason.
	Closed
)

func (s ConnState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

var (
	// ErrAlreadyOpen is returned by a second call to Open.
	ErrAlreadyOpen = errors.New("session already opened")
	// ErrClosed is returned by Open after Close.
	ErrClosed = errors.New("session closed")
)

// ConfigError reports an invalid session configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid session config: %s: %s", e.Field, e.Reason)
}
