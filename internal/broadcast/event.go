package broadcast

import (
	"time"

	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// EventType discriminates observer events.
type EventType string

// Event types.
const (
	EventParameter   EventType = "parameter"
	EventBatch       EventType = "batch"
	EventMeters      EventType = "meters"
	EventState       EventType = "state"
	EventDevice      EventType = "device"
	EventPing        EventType = "ping"
	EventPong        EventType = "pong"
	EventSubscribe   EventType = "subscribe"
	EventUnsubscribe EventType = "unsubscribe"
	EventError       EventType = "error"
)

// Event is the envelope delivered to observers. Which fields are set
// depends on Type:
//
//	parameter    DeviceID, ChannelID, Parameter, Value, Source
//	batch        Changes
//	meters       Levels keyed "device_id:channel_id"
//	state        State (one entry per device)
//	device       Device, Error when the status change carries one
//	subscribe    Channels
//	unsubscribe  Channels
//	error        Error
//
// ID echoes the id of the request an event answers, if any.
type Event struct {
	Type      EventType               `json:"type"`
	ID        string                  `json:"id,omitempty"`
	DeviceID  string                  `json:"device_id,omitempty"`
	ChannelID string                  `json:"channel_id,omitempty"`
	Parameter string                  `json:"parameter,omitempty"`
	Value     any                     `json:"value,omitempty"`
	Source    mixer.Source            `json:"source,omitempty"`
	Changes   []mixer.ParameterChange `json:"changes,omitempty"`
	Levels    map[string]float64      `json:"levels,omitempty"`
	State     []*mixer.MixerState     `json:"state,omitempty"`
	Device    *mixer.DeviceInfo       `json:"device,omitempty"`
	Channels  []string                `json:"channels,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Timestamp time.Time               `json:"timestamp,omitzero"`
}

// ParameterEvent builds the event for one applied change.
func ParameterEvent(c mixer.ParameterChange) Event {
	ts := c.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Event{
		Type:      EventParameter,
		DeviceID:  c.DeviceID,
		ChannelID: c.ChannelID,
		Parameter: c.Parameter,
		Value:     c.Value,
		Source:    c.Source,
		Timestamp: ts,
	}
}

// StateEvent builds a full state event.
func StateEvent(states []*mixer.MixerState) Event {
	return Event{Type: EventState, State: states, Timestamp: time.Now().UTC()}
}

// ErrorEvent builds an error reply to request id.
func ErrorEvent(id string, err error) Event {
	return Event{Type: EventError, ID: id, Error: err.Error(), Timestamp: time.Now().UTC()}
}

// MeterKey is the key of one channel in a meters event.
func MeterKey(deviceID, channelID string) string {
	return deviceID + ":" + channelID
}
