// Package tty defines the transport contract a terminal session consumes
// and the transports tether ships: a local PTY, a websocket client and a
// recording player.
//
// A transport delivers a closed set of events to its listeners. Data events
// are never delivered while flow is paused; PauseFlow/ResumeFlow is the
// backpressure handshake between a transport and the display it feeds.
package tty

import "fmt"

// Event is one of ResetEvent, CloseEvent, DataEvent or ResizeEvent.
type Event interface {
	isEvent()
}

// ResetEvent asks the display to clear its state.
type ResetEvent struct{}

// CloseEvent reports that the connection ended. Reason may be empty.
type CloseEvent struct {
	Reason string
}

// DataEvent carries bytes from the remote side in receipt order.
type DataEvent struct {
	Data []byte
}

// ResizeEvent carries an authoritative size from the remote side,
// e.g. a recording being played back.
type ResizeEvent struct {
	Cols int
	Rows int
}

func (ResetEvent) isEvent()  {}
func (CloseEvent) isEvent()  {}
func (DataEvent) isEvent()   {}
func (ResizeEvent) isEvent() {}

func (e CloseEvent) String() string {
	if e.Reason == "" {
		return "close"
	}

	return fmt.Sprintf("close(%s)", e.Reason)
}

// Listener receives transport events. Listeners are called synchronously on
// the transport's delivery goroutine.
type Listener func(Event)

// Transport is the capability set a terminal session needs from a
// connection to a remote character stream.
type Transport interface {
	// Connect opens the connection with the initial terminal size.
	Connect(cols, rows int) error

	// Send forwards local input bytes.
	Send(p []byte) error

	// RequestResize asks the remote side to adopt a new size.
	RequestResize(cols, rows int) error

	// Disconnect closes the connection. Safe to call more than once.
	Disconnect() error

	// PauseFlow stops delivery of further Data events until ResumeFlow.
	PauseFlow()

	// ResumeFlow re-enables Data delivery.
	ResumeFlow()

	// Subscribe registers a listener for all events.
	Subscribe(l Listener)

	// RemoveAllListeners drops every registered listener.
	RemoveAllListeners()
}
