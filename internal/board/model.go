package board

import (
	"github.com/nerrad567/gray-logic-mixer/internal/codec"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// ModelInfo identifies a console model.
type ModelInfo struct {
	Manufacturer string
	Model        string
	Protocol     mixer.Protocol
}

// Target is a resolved channel handed to an encoder.
type Target struct {
	Address
	ChannelID   string
	MIDIChannel int
}

// Model describes one console family. Implementations are stateless; any
// per-connection decode state lives in the Decoder returned by NewDecoder.
type Model interface {
	Encoder

	Info() ModelInfo
	Capabilities() mixer.DeviceCapabilities

	// Index maps a channel type and 1-based number to its hardware index.
	Index(t mixer.ChannelType, n int) int

	NewDecoder(channels *ChannelMap, midiChannel int) Decoder
}

// Encoder turns operations into wire messages. A nil result with a nil
// error means the model has no message for the operation.
type Encoder interface {
	Fader(t Target, value float64) ([]codec.Message, error)
	Mute(t Target, muted bool) ([]codec.Message, error)
	Solo(t Target, solo bool) ([]codec.Message, error)
	Pan(t Target, pan float64) ([]codec.Message, error)
	MainAssign(t Target, assigned bool) ([]codec.Message, error)
	DCAAssign(t Target, dca int, assigned bool) ([]codec.Message, error)
	SendLevel(t, send Target, level float64) ([]codec.Message, error)
	SendPan(t, send Target, pan float64) ([]codec.Message, error)
	SendPrePost(t, send Target, preFader bool) ([]codec.Message, error)
	EQEnabled(t Target, enabled bool) ([]codec.Message, error)
	EQBand(t Target, band int, settings mixer.EQBand) ([]codec.Message, error)
	Compressor(t Target, settings mixer.Compressor) ([]codec.Message, error)
	Gate(t Target, settings mixer.Gate) ([]codec.Message, error)
	Name(t Target, name string) ([]codec.Message, error)
	Color(t Target, color mixer.Color) ([]codec.Message, error)

	RecallScene(midiChannel, number int) ([]codec.Message, error)
	StoreScene(midiChannel, number int, name string) ([]codec.Message, error)
	SyncRequest(midiChannel int) ([]codec.Message, error)
	MeterRequest(midiChannel int) ([]codec.Message, error)
}

// Decoder turns decoded inbound messages into events. One decoder serves
// one device connection and is only called from its consumer goroutine.
type Decoder interface {
	Decode(msg codec.Decoded) []Event
}

// Event is one hardware-originated change.
type Event struct {
	// ChannelID, Parameter and Value describe a parameter change.
	ChannelID string
	Parameter string
	Value     any

	// Meters carries channel id to level readings.
	Meters map[string]float64

	// Scene is set (1-based) when the console reports a scene recall.
	Scene int
}

// NoEncoder implements every Encoder method as a silent no-op. Models embed
// it and override what the console supports.
type NoEncoder struct{}

func (NoEncoder) Fader(Target, float64) ([]codec.Message, error)            { return nil, nil }
func (NoEncoder) Mute(Target, bool) ([]codec.Message, error)                { return nil, nil }
func (NoEncoder) Solo(Target, bool) ([]codec.Message, error)                { return nil, nil }
func (NoEncoder) Pan(Target, float64) ([]codec.Message, error)              { return nil, nil }
func (NoEncoder) MainAssign(Target, bool) ([]codec.Message, error)          { return nil, nil }
func (NoEncoder) DCAAssign(Target, int, bool) ([]codec.Message, error)      { return nil, nil }
func (NoEncoder) SendLevel(_, _ Target, _ float64) ([]codec.Message, error) { return nil, nil }
func (NoEncoder) SendPan(_, _ Target, _ float64) ([]codec.Message, error)   { return nil, nil }
func (NoEncoder) SendPrePost(_, _ Target, _ bool) ([]codec.Message, error)  { return nil, nil }
func (NoEncoder) EQEnabled(Target, bool) ([]codec.Message, error)           { return nil, nil }
func (NoEncoder) EQBand(Target, int, mixer.EQBand) ([]codec.Message, error) { return nil, nil }
func (NoEncoder) Compressor(Target, mixer.Compressor) ([]codec.Message, error) {
	return nil, nil
}
func (NoEncoder) Gate(Target, mixer.Gate) ([]codec.Message, error)       { return nil, nil }
func (NoEncoder) Name(Target, string) ([]codec.Message, error)           { return nil, nil }
func (NoEncoder) Color(Target, mixer.Color) ([]codec.Message, error)     { return nil, nil }
func (NoEncoder) RecallScene(int, int) ([]codec.Message, error)          { return nil, nil }
func (NoEncoder) StoreScene(int, int, string) ([]codec.Message, error)   { return nil, nil }
func (NoEncoder) SyncRequest(int) ([]codec.Message, error)               { return nil, nil }
func (NoEncoder) MeterRequest(int) ([]codec.Message, error)              { return nil, nil }

// Concat joins message groups, stopping at the first error.
func Concat(groups ...func() ([]codec.Message, error)) ([]codec.Message, error) {
	var out []codec.Message
	for _, g := range groups {
		msgs, err := g()
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}

// One wraps a single message builder result.
func One(m codec.Message, err error) ([]codec.Message, error) {
	if err != nil {
		return nil, err
	}
	return []codec.Message{m}, nil
}
