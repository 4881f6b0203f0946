package mixer

import (
	"errors"
	"fmt"
)

// Domain errors for the mixer model.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, mixer.ErrInvalidChannel) {
//	    // channel outside the device's declared capabilities
//	}
var (
	// ErrRange is returned when a value is outside its declared numeric domain.
	ErrRange = errors.New("mixer: value out of range")

	// ErrInvalidChannel is returned when a channel is outside a device's capabilities.
	ErrInvalidChannel = errors.New("mixer: invalid channel")

	// ErrParameterPath is returned for unknown or malformed parameter paths.
	ErrParameterPath = errors.New("mixer: invalid parameter path")

	// ErrConnection is returned when a transport cannot be opened or written.
	ErrConnection = errors.New("mixer: connection failed")

	// ErrMalformedMessage is returned for truncated or unterminated inbound messages.
	ErrMalformedMessage = errors.New("mixer: malformed message")

	// ErrInvalidValue is returned when a value has the wrong type for its parameter.
	ErrInvalidValue = errors.New("mixer: invalid value")

	// ErrDeviceNotFound is returned when a device id is not connected.
	ErrDeviceNotFound = errors.New("mixer: device not found")

	// ErrChannelNotFound is returned when no connected device has the channel.
	ErrChannelNotFound = errors.New("mixer: channel not found")

	// ErrSceneNotFound is returned when a scene snapshot id does not exist.
	ErrSceneNotFound = errors.New("mixer: scene not found")
)

// RangeError reports a value outside its declared domain.
type RangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("mixer: %s value %g outside [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

func (e *RangeError) Unwrap() error { return ErrRange }

// InvalidChannelError reports a channel id a device does not declare.
type InvalidChannelError struct {
	ChannelID string
	DeviceID  string
}

func (e *InvalidChannelError) Error() string {
	if e.DeviceID == "" {
		return fmt.Sprintf("mixer: invalid channel %q", e.ChannelID)
	}
	return fmt.Sprintf("mixer: invalid channel %q for device %q", e.ChannelID, e.DeviceID)
}

func (e *InvalidChannelError) Unwrap() error { return ErrInvalidChannel }

// ParameterPathError reports a parameter path outside the known target set.
type ParameterPathError struct {
	Path   string
	Reason string
}

func (e *ParameterPathError) Error() string {
	return fmt.Sprintf("mixer: parameter path %q: %s", e.Path, e.Reason)
}

func (e *ParameterPathError) Unwrap() error { return ErrParameterPath }

// ConnectionError reports a transport open or send failure.
type ConnectionError struct {
	DeviceID string
	Op       string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mixer: %s %s: %v", e.DeviceID, e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the underlying transport error.
func (e *ConnectionError) Unwrap() []error { return []error{ErrConnection, e.Err} }

// MalformedMessageError reports an inbound message that cannot be framed.
type MalformedMessageError struct {
	Reason string
	Data   []byte
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("mixer: malformed message (% X): %s", e.Data, e.Reason)
}

func (e *MalformedMessageError) Unwrap() error { return ErrMalformedMessage }
