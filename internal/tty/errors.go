package tty

import "errors"

var (
	// ErrNotConnected is returned by Send and RequestResize before Connect.
	ErrNotConnected = errors.New("tty: not connected")

	// ErrAlreadyConnected is returned by a second Connect.
	ErrAlreadyConnected = errors.New("tty: already connected")

	// ErrDisconnected is returned by Connect after Disconnect.
	ErrDisconnected = errors.New("tty: disconnected")
)
