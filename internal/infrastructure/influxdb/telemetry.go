package influxdb

import (
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
	"github.com/nerrad567/gray-logic-mixer/internal/state"
)

// Telemetry records every applied parameter change. It implements
// state.Listener; meters reach the client through the meter loop instead.
type Telemetry struct {
	state.NopListener
	client *Client
}

// NewTelemetry returns a listener writing to client.
func NewTelemetry(client *Client) *Telemetry {
	return &Telemetry{client: client}
}

// ParametersChanged implements state.Listener.
func (t *Telemetry) ParametersChanged(changes []mixer.ParameterChange) {
	t.client.WriteParameterChanges(changes)
}
