package registry

import "errors"

// Domain errors for the registry package.
var (
	// ErrAlreadyRegistered is returned when a plugin id is already registered.
	ErrAlreadyRegistered = errors.New("registry: plugin already registered")

	// ErrPortInUse is returned when another plugin is bound to the same port.
	ErrPortInUse = errors.New("registry: port already in use")

	// ErrNotRegistered is returned for an unknown plugin id.
	ErrNotRegistered = errors.New("registry: plugin not registered")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("registry: closed")

	// ErrPanic wraps a recovered panic from a plugin operation.
	ErrPanic = errors.New("registry: plugin operation panicked")
)
