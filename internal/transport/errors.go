package transport

import "errors"

var (
	// ErrInvalidConnection is returned for a malformed connection string.
	ErrInvalidConnection = errors.New("transport: invalid connection string")

	// ErrUnsupportedScheme is returned for a connection scheme with no transport.
	ErrUnsupportedScheme = errors.New("transport: unsupported scheme")

	// ErrPortNotFound is returned when the named port does not exist.
	ErrPortNotFound = errors.New("transport: port not found")

	// ErrClosed is returned when sending on a closed port.
	ErrClosed = errors.New("transport: port closed")

	// ErrAlreadyListening is returned when Listen is called twice.
	ErrAlreadyListening = errors.New("transport: already listening")
)
