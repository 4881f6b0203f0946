package state

import "github.com/nerrad567/gray-logic-mixer/internal/mixer"

// Listener is notified after canonical state changes. Calls are made
// without any device lock held and must not block for long.
type Listener interface {
	// ParametersChanged receives the applied changes of one operation with
	// their clamped values. Changes from one batch arrive together.
	ParametersChanged(changes []mixer.ParameterChange)

	// StateChanged receives the full state of every device after a
	// connect, disconnect or scene recall.
	StateChanged(states []*mixer.MixerState)

	// DeviceStatusChanged receives connection state transitions.
	DeviceStatusChanged(info mixer.DeviceInfo, err error)
}

// NopListener implements Listener with no-ops. Embed it to implement only
// the callbacks you need.
type NopListener struct{}

func (NopListener) ParametersChanged([]mixer.ParameterChange)   {}
func (NopListener) StateChanged([]*mixer.MixerState)            {}
func (NopListener) DeviceStatusChanged(mixer.DeviceInfo, error) {}
