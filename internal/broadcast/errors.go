package broadcast

import "errors"

var (
	// ErrDuplicateObserver is returned when an observer id is already connected.
	ErrDuplicateObserver = errors.New("broadcast: observer already connected")

	// ErrUnknownObserver is returned for operations on an observer that is not connected.
	ErrUnknownObserver = errors.New("broadcast: observer not connected")
)
