package allenheath

import (
	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/codec"
)

type decoder struct {
	model       *Model
	channels    *board.ChannelMap
	midiChannel int

	nrpn codec.NRPNParser
	bank int
}

func (d *decoder) Decode(msg codec.Decoded) []board.Event {
	switch msg.Kind {
	case codec.KindSysEx:
		return d.sysex(msg.Data)
	case codec.KindControlChange:
		if msg.Channel != d.midiChannel {
			return nil
		}
		if codec.IsNRPNController(msg.Number) {
			if n, ok := d.nrpn.Feed(msg.Channel, msg.Number, msg.Value); ok {
				return d.parameter(n)
			}
			return nil
		}
		if byte(msg.Number) == codec.CCBankSelect {
			d.bank = msg.Value
		}
	case codec.KindNote:
		if msg.Channel != d.midiChannel {
			return nil
		}
		id, ok := d.channels.Find(msg.Number)
		if !ok {
			return nil
		}
		return []board.Event{{ChannelID: id, Parameter: "mute", Value: msg.Value > 63}}
	case codec.KindProgramChange:
		if msg.Channel == d.midiChannel {
			return []board.Event{{Scene: d.bank*128 + msg.Number + 1}}
		}
	}
	return nil
}

func (d *decoder) parameter(n codec.NRPN) []board.Event {
	id, ok := d.channels.Find(n.Target)
	if !ok {
		return nil
	}
	ev := board.Event{ChannelID: id}
	switch n.Param {
	case paramFader:
		ev.Parameter, ev.Value = "fader", codec.Default.FaderFromHardware(n.Data1)
	case paramPan:
		ev.Parameter, ev.Value = "pan", codec.Default.PanFromHardware(n.Data1)
	case paramMainAssign:
		ev.Parameter, ev.Value = "assigned_to_main", n.Data1 >= 0x40
	case paramCompType:
		ev.Parameter, ev.Value = "compressor.type", n.Data1
	case paramCompAttack:
		ev.Parameter, ev.Value = "compressor.attack", compAttack.FromHardware(n.Data1)
	case paramCompRel:
		ev.Parameter, ev.Value = "compressor.release", compRelease.FromHardware(n.Data1)
	case paramCompKnee:
		ev.Parameter, ev.Value = "compressor.knee", float64(min(n.Data1, 1))
	case paramCompRatio:
		ev.Parameter, ev.Value = "compressor.ratio", compRatio.FromHardware(n.Data1)
	case paramCompThresh:
		ev.Parameter, ev.Value = "compressor.threshold", compThreshold.FromHardware(n.Data1)
	case paramCompGain:
		ev.Parameter, ev.Value = "compressor.makeup_gain", compGain.FromHardware(n.Data1)
	default:
		// DCA and send writes share the low parameter space and are not
		// reported back unambiguously.
		return nil
	}
	return []board.Event{ev}
}

func (d *decoder) sysex(data []byte) []board.Event {
	_, body, ok := d.model.header.Match(data)
	if !ok || len(body) == 0 {
		return nil
	}
	switch body[0] {
	case sysexNameReply:
		if len(body) < 2 {
			return nil
		}
		if id, ok := d.channels.Find(int(body[1])); ok {
			return []board.Event{{ChannelID: id, Parameter: "name", Value: string(body[2:])}}
		}
	case sysexColourReply:
		if len(body) < 3 {
			return nil
		}
		if id, ok := d.channels.Find(int(body[1])); ok {
			return []board.Event{{ChannelID: id, Parameter: "color", Value: int(body[2])}}
		}
	case sysexMeterReply:
		levels := make(map[string]float64)
		for i := 1; i+1 < len(body); i += 2 {
			if id, ok := d.channels.Find(int(body[i])); ok {
				levels[id] = float64(body[i+1]) / 127
			}
		}
		if len(levels) > 0 {
			return []board.Event{{Meters: levels}}
		}
	}
	return nil
}

var _ board.Decoder = (*decoder)(nil)
