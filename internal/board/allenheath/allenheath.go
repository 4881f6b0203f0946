// Package allenheath implements the Allen & Heath Qu and GLD console models.
//
// Both families speak the same MIDI dialect on one base MIDI channel:
//   - fader, pan, main assign, DCA assign, aux sends and compressor
//     parameters are NRPN writes whose target is the flat channel number
//   - mutes are Note-On messages (velocity 127 mutes, 1 unmutes)
//   - state dumps, meters, names and colours use vendor sysex
//   - scenes are recalled with bank select plus program change
package allenheath

import (
	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/codec"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// NRPN parameter ids.
const (
	paramPan        = 0x16
	paramFader      = 0x17
	paramMainAssign = 0x18
	paramCompType   = 0x61
	paramCompAttack = 0x62
	paramCompRel    = 0x63
	paramCompKnee   = 0x64
	paramCompRatio  = 0x65
	paramCompThresh = 0x66
	paramCompGain   = 0x67

	// dataTerminator is the fixed second data byte of every write.
	dataTerminator = 0x07

	mainAssignOn  = 0x7F
	mainAssignOff = 0x3F

	muteOnVelocity  = 127
	muteOffVelocity = 1
)

// SysEx commands following the header.
const (
	sysexNameReply   = 0x02
	sysexSetName     = 0x03
	sysexColourReply = 0x05
	sysexSetColour   = 0x06
	sysexAllCall     = 0x10
	sysexMeterReq    = 0x12
	sysexMeterReply  = 0x13

	allCallChannel = 0x7F
)

// Model byte in the sysex header.
const (
	modelGLD = 0x10
	modelQu  = 0x11
)

// Compressor scalers. Ranges follow the console's parameter documentation.
var (
	compAttack    = codec.Linear{Min: 0.3, Max: 300, Steps: 127}
	compRelease   = codec.Linear{Min: 100, Max: 2000, Steps: 127}
	compRatio     = codec.Linear{Min: 1, Max: 100, Steps: 127}
	compThreshold = codec.Linear{Min: -46, Max: 18, Steps: 127}
	compGain      = codec.Linear{Min: 0, Max: 18, Steps: 127}
)

// Model is an Allen & Heath console family member.
type Model struct {
	board.NoEncoder

	name    string
	caps    mixer.DeviceCapabilities
	offsets map[mixer.ChannelType]int
	header  codec.SysExHeader
}

var _ board.Model = (*Model)(nil)

func newModel(name string, modelByte byte, caps mixer.DeviceCapabilities, offsets map[mixer.ChannelType]int) *Model {
	return &Model{
		name:    name,
		caps:    caps,
		offsets: offsets,
		header:  codec.SysExHeader{Prefix: []byte{0x00, 0x00, 0x1A, 0x50, modelByte, 0x01, 0x00}},
	}
}

// Qu24 returns the Qu-24 model.
func Qu24() *Model {
	return newModel("Qu-24", modelQu, mixer.DeviceCapabilities{
		InputChannels:  24,
		StereoInputs:   3,
		AuxChannels:    7,
		FXReturns:      4,
		FXSends:        4,
		DCAGroups:      4,
		MuteGroups:     4,
		Matrices:       2,
		HasMain:        true,
		Scenes:         100,
		EQBands:        4,
		HasEQ:          true,
		HasCompressor:  true,
		HasPan:         true,
		HasSends:       true,
		SupportsMeters: true,
		SupportsNames:  true,
		SupportsColors: true,
	}, map[mixer.ChannelType]int{
		mixer.ChannelInput:    0x00,
		mixer.ChannelStereo:   0x20,
		mixer.ChannelFXReturn: 0x24,
		mixer.ChannelAux:      0x30,
		mixer.ChannelFXSend:   0x40,
		mixer.ChannelMatrix:   0x48,
		mixer.ChannelMain:     0x50,
		mixer.ChannelDCA:      0x58,
	})
}

// GLD80 returns the GLD-80 model.
func GLD80() *Model {
	return newModel("GLD-80", modelGLD, mixer.DeviceCapabilities{
		InputChannels:  48,
		AuxChannels:    16,
		FXReturns:      8,
		FXSends:        8,
		DCAGroups:      16,
		MuteGroups:     8,
		Matrices:       4,
		HasMain:        true,
		Scenes:         500,
		EQBands:        4,
		HasEQ:          true,
		HasCompressor:  true,
		HasPan:         true,
		HasSends:       true,
		SupportsMeters: true,
		SupportsNames:  true,
		SupportsColors: true,
	}, map[mixer.ChannelType]int{
		mixer.ChannelInput:    0x00,
		mixer.ChannelFXReturn: 0x30,
		mixer.ChannelAux:      0x38,
		mixer.ChannelFXSend:   0x48,
		mixer.ChannelMatrix:   0x50,
		mixer.ChannelMain:     0x54,
		mixer.ChannelDCA:      0x58,
	})
}

func (m *Model) Info() board.ModelInfo {
	return board.ModelInfo{Manufacturer: "Allen & Heath", Model: m.name, Protocol: mixer.ProtocolMIDI}
}

func (m *Model) Capabilities() mixer.DeviceCapabilities { return m.caps }

// Index places every channel in one flat target space.
func (m *Model) Index(t mixer.ChannelType, n int) int {
	return m.offsets[t] + n - 1
}

func (m *Model) nrpn(t board.Target, param, data1 int) ([]codec.Message, error) {
	return codec.EncodeNRPN(t.MIDIChannel, t.Index, param, data1, dataTerminator)
}

func (m *Model) Fader(t board.Target, value float64) ([]codec.Message, error) {
	return m.nrpn(t, paramFader, codec.Default.FaderToHardware(value))
}

func (m *Model) Pan(t board.Target, pan float64) ([]codec.Message, error) {
	return m.nrpn(t, paramPan, codec.Default.PanToHardware(pan))
}

func (m *Model) Mute(t board.Target, muted bool) ([]codec.Message, error) {
	vel := muteOffVelocity
	if muted {
		vel = muteOnVelocity
	}
	return board.One(codec.NoteOn(t.MIDIChannel, t.Index, vel))
}

func (m *Model) MainAssign(t board.Target, assigned bool) ([]codec.Message, error) {
	data := mainAssignOff
	if assigned {
		data = mainAssignOn
	}
	return m.nrpn(t, paramMainAssign, data)
}

// DCAAssign uses the DCA number (0-based on the wire) in both the parameter
// and the data byte; bit 6 of the parameter selects assign or unassign.
func (m *Model) DCAAssign(t board.Target, dca int, assigned bool) ([]codec.Message, error) {
	n := dca - 1
	param := n
	if assigned {
		param |= 0x40
	}
	return m.nrpn(t, param, 0x04|n)
}

// sendNumber is the wire number of a send bus: aux mixes first, then FX
// sends.
func (m *Model) sendNumber(send board.Target) int {
	if send.Type == mixer.ChannelFXSend {
		return m.caps.AuxChannels + send.Number - 1
	}
	return send.Number - 1
}

func (m *Model) SendLevel(t, send board.Target, level float64) ([]codec.Message, error) {
	if send.Type != mixer.ChannelAux && send.Type != mixer.ChannelFXSend {
		return nil, nil
	}
	return m.nrpn(t, m.sendNumber(send), codec.Default.FaderToHardware(level))
}

func (m *Model) Compressor(t board.Target, c mixer.Compressor) ([]codec.Message, error) {
	knee := 0
	if c.Knee >= 0.5 {
		knee = 1
	}
	params := [][2]int{
		{paramCompType, int(c.Type)},
		{paramCompAttack, compAttack.ToHardware(c.Attack)},
		{paramCompRel, compRelease.ToHardware(c.Release)},
		{paramCompKnee, knee},
		{paramCompRatio, compRatio.ToHardware(c.Ratio)},
		{paramCompThresh, compThreshold.ToHardware(c.Threshold)},
		{paramCompGain, compGain.ToHardware(c.MakeupGain)},
	}
	var out []codec.Message
	for _, p := range params {
		msgs, err := m.nrpn(t, p[0], p[1])
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}

func (m *Model) Name(t board.Target, name string) ([]codec.Message, error) {
	body := append([]byte{sysexSetName, byte(t.Index)}, asciiName(name)...)
	return board.One(m.header.Message(byte(t.MIDIChannel), body...))
}

func (m *Model) Color(t board.Target, color mixer.Color) ([]codec.Message, error) {
	return board.One(m.header.Message(byte(t.MIDIChannel), sysexSetColour, byte(t.Index), byte(color)))
}

// RecallScene selects the bank and program for a 1-based scene number.
func (m *Model) RecallScene(midiChannel, number int) ([]codec.Message, error) {
	return codec.BankedProgramChange(midiChannel, number-1)
}

// SyncRequest is the all-call: every channel reports its state.
func (m *Model) SyncRequest(_ int) ([]codec.Message, error) {
	return board.One(m.header.Message(allCallChannel, sysexAllCall, 0x00))
}

func (m *Model) MeterRequest(midiChannel int) ([]codec.Message, error) {
	return board.One(m.header.Message(byte(midiChannel), sysexMeterReq, 0x01))
}

func (m *Model) NewDecoder(channels *board.ChannelMap, midiChannel int) board.Decoder {
	return &decoder{model: m, channels: channels, midiChannel: midiChannel}
}

// asciiName keeps printable 7-bit characters and replaces the rest.
func asciiName(name string) []byte {
	out := make([]byte, 0, len(name))
	for _, r := range mixer.TruncateName(name) {
		if r < 0x20 || r > 0x7E {
			r = '?'
		}
		out = append(out, byte(r))
	}
	return out
}
