package mqttrelay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// ErrInvalidPayload is returned for command payloads that cannot be
// decoded.
var ErrInvalidPayload = errors.New("mqttrelay: invalid payload")

// ParameterMessage is the retained payload of a parameter state topic.
type ParameterMessage struct {
	Value     any          `json:"value"`
	Source    mixer.Source `json:"source"`
	Timestamp time.Time    `json:"timestamp"`
}

// DeviceStatusMessage is the retained payload of a device status topic.
type DeviceStatusMessage struct {
	ID     string                 `json:"id"`
	Name   string                 `json:"name"`
	Model  string                 `json:"model"`
	Status mixer.ConnectionStatus `json:"status"`
	Error  string                 `json:"error,omitempty"`
}

// MeterMessage is published on a device's meters topic.
type MeterMessage struct {
	Levels         map[string]float64 `json:"levels"`
	GainReductions map[string]float64 `json:"gain_reductions,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// SceneMessage carries a scene number, inbound and outbound.
type SceneMessage struct {
	Scene int `json:"scene"`
}

// BatchItem is one entry of a batch command. Channel may be a bare
// channel id, resolved on the device named in the topic, or a full
// device:channel key.
type BatchItem struct {
	Channel   string `json:"channel"`
	Parameter string `json:"parameter"`
	Value     any    `json:"value"`
}

// decodeValue accepts either a bare JSON value or {"value": ...}.
func decodeValue(payload []byte) (any, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPayload)
	}
	if payload[0] == '{' {
		var wrapped struct {
			Value *json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(payload, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		if wrapped.Value == nil {
			return nil, fmt.Errorf("%w: missing value", ErrInvalidPayload)
		}
		payload = *wrapped.Value
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return v, nil
}

// decodeScene accepts either a bare number or {"scene": n}.
func decodeScene(payload []byte) (int, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) > 0 && payload[0] == '{' {
		var msg SceneMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		return msg.Scene, nil
	}
	var n int
	if err := json.Unmarshal(payload, &n); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return n, nil
}

// decodeBatch turns a batch payload into changes addressed to deviceID
// unless an item names its own device.
func decodeBatch(deviceID string, payload []byte) ([]mixer.ParameterChange, error) {
	var items []BatchItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidPayload)
	}
	changes := make([]mixer.ParameterChange, 0, len(items))
	for i, it := range items {
		if it.Channel == "" || it.Parameter == "" {
			return nil, fmt.Errorf("%w: item %d needs channel and parameter", ErrInvalidPayload, i)
		}
		key := mixer.ParseChannelKey(it.Channel)
		if key.DeviceID == "" {
			key.DeviceID = deviceID
		}
		changes = append(changes, mixer.ParameterChange{
			DeviceID:  key.DeviceID,
			ChannelID: key.ChannelID,
			Parameter: it.Parameter,
			Value:     it.Value,
		})
	}
	return changes, nil
}
