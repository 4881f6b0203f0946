package board

import "errors"

var (
	// ErrUnknownModel is returned when no model is registered under a name.
	ErrUnknownModel = errors.New("board: unknown model")

	// ErrDuplicateIndex is returned when a model maps two channels to one
	// hardware address.
	ErrDuplicateIndex = errors.New("board: duplicate hardware index")
)
