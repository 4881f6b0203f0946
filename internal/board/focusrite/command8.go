// Package focusrite implements the Focusrite Control|24 / Command8 control
// surface model. Each strip is addressed by its own MIDI channel.
package focusrite

import (
	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/codec"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// Controller numbers.
const (
	ccFader = 7
	ccPan   = 10
	ccMute  = 14
)

// Command8 is the Command8 model: 16 strips on MIDI channels 1-16.
type Command8 struct {
	board.NoEncoder
}

var _ board.Model = Command8{}

func (Command8) Info() board.ModelInfo {
	return board.ModelInfo{Manufacturer: "Focusrite", Model: "Command8", Protocol: mixer.ProtocolMIDI}
}

func (Command8) Capabilities() mixer.DeviceCapabilities {
	return mixer.DeviceCapabilities{
		InputChannels: 16,
		HasPan:        true,
	}
}

func (Command8) Index(_ mixer.ChannelType, n int) int { return n - 1 }

func (Command8) Fader(t board.Target, value float64) ([]codec.Message, error) {
	return board.One(codec.ControlChange(t.Index, ccFader, codec.Default.FaderToHardware(value)))
}

func (Command8) Pan(t board.Target, pan float64) ([]codec.Message, error) {
	return board.One(codec.ControlChange(t.Index, ccPan, codec.Default.PanToHardware(pan)))
}

func (Command8) Mute(t board.Target, muted bool) ([]codec.Message, error) {
	return board.One(codec.ControlChange(t.Index, ccMute, codec.Default.BoolToHardware(muted)))
}

func (Command8) NewDecoder(channels *board.ChannelMap, _ int) board.Decoder {
	return decoder{channels: channels}
}

type decoder struct {
	channels *board.ChannelMap
}

func (d decoder) Decode(msg codec.Decoded) []board.Event {
	if msg.Kind != codec.KindControlChange {
		return nil
	}
	id, ok := d.channels.Lookup(mixer.ChannelInput, msg.Channel)
	if !ok {
		return nil
	}
	switch msg.Number {
	case ccFader:
		return []board.Event{{ChannelID: id, Parameter: "fader", Value: codec.Default.FaderFromHardware(msg.Value)}}
	case ccPan:
		return []board.Event{{ChannelID: id, Parameter: "pan", Value: codec.Default.PanFromHardware(msg.Value)}}
	case ccMute:
		return []board.Event{{ChannelID: id, Parameter: "mute", Value: codec.Default.BoolFromHardware(msg.Value)}}
	}
	return nil
}
