// Package behringer implements the Behringer X-Air console model.
//
// The X-Air maps every strip to one controller number and uses the MIDI
// channel to select the parameter: channel 1 faders, channel 2 mutes,
// channel 3 pan (0-based 0, 1, 2 on the wire).
package behringer

import (
	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/codec"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// Parameter MIDI channels.
const (
	faderChannel = 0
	muteChannel  = 1
	panChannel   = 2
)

// Controller number of the first channel of each type.
var ccBase = map[mixer.ChannelType]int{
	mixer.ChannelInput:    0,
	mixer.ChannelStereo:   16, // aux line in / USB playback
	mixer.ChannelFXReturn: 17,
	mixer.ChannelAux:      21,
	mixer.ChannelFXSend:   27,
	mixer.ChannelMain:     31,
}

// XAir is the X-Air 18 model.
type XAir struct {
	board.NoEncoder
}

var _ board.Model = XAir{}

func (XAir) Info() board.ModelInfo {
	return board.ModelInfo{Manufacturer: "Behringer", Model: "XAir", Protocol: mixer.ProtocolMIDI}
}

func (XAir) Capabilities() mixer.DeviceCapabilities {
	return mixer.DeviceCapabilities{
		InputChannels: 16,
		StereoInputs:  1,
		AuxChannels:   6,
		FXReturns:     4,
		FXSends:       4,
		HasMain:       true,
		Scenes:        64,
		HasPan:        true,
	}
}

func (XAir) Index(t mixer.ChannelType, n int) int {
	return ccBase[t] + n - 1
}

func (XAir) Fader(t board.Target, value float64) ([]codec.Message, error) {
	return board.One(codec.ControlChange(faderChannel, t.Index, codec.Default.FaderToHardware(value)))
}

func (XAir) Mute(t board.Target, muted bool) ([]codec.Message, error) {
	return board.One(codec.ControlChange(muteChannel, t.Index, codec.Default.BoolToHardware(muted)))
}

// Pan has no controller for the FX sends.
func (XAir) Pan(t board.Target, pan float64) ([]codec.Message, error) {
	if t.Type == mixer.ChannelFXSend {
		return nil, nil
	}
	return board.One(codec.ControlChange(panChannel, t.Index, codec.Default.PanToHardware(pan)))
}

func (XAir) RecallScene(_, number int) ([]codec.Message, error) {
	return board.One(codec.ProgramChange(faderChannel, number-1))
}

func (XAir) NewDecoder(channels *board.ChannelMap, _ int) board.Decoder {
	return xairDecoder{channels: channels}
}

type xairDecoder struct {
	channels *board.ChannelMap
}

func (d xairDecoder) Decode(msg codec.Decoded) []board.Event {
	if msg.Kind == codec.KindProgramChange && msg.Channel == faderChannel {
		return []board.Event{{Scene: msg.Number + 1}}
	}
	if msg.Kind != codec.KindControlChange {
		return nil
	}
	id, ok := d.channels.Find(msg.Number)
	if !ok {
		return nil
	}
	switch msg.Channel {
	case faderChannel:
		return []board.Event{{ChannelID: id, Parameter: "fader", Value: codec.Default.FaderFromHardware(msg.Value)}}
	case muteChannel:
		return []board.Event{{ChannelID: id, Parameter: "mute", Value: codec.Default.BoolFromHardware(msg.Value)}}
	case panChannel:
		return []board.Event{{ChannelID: id, Parameter: "pan", Value: codec.Default.PanFromHardware(msg.Value)}}
	}
	return nil
}
