package codec

import (
	midi "gitlab.com/gomidi/midi/v2"

	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// Status bytes.
const (
	StatusNoteOff       byte = 0x80
	StatusNoteOn        byte = 0x90
	StatusControlChange byte = 0xB0
	StatusProgramChange byte = 0xC0
	StatusSysExStart    byte = 0xF0
	StatusSysExEnd      byte = 0xF7
)

// Controller numbers with fixed meaning.
const (
	CCBankSelect byte = 0x00
	CCNRPNMSB    byte = 0x63
	CCNRPNLSB    byte = 0x62
	CCDataMSB    byte = 0x06
	CCDataLSB    byte = 0x26
)

// Message is one complete MIDI message as sent on the wire.
type Message []byte

// String renders the message the way gomidi does.
func (m Message) String() string {
	return midi.Message(m).String()
}

var (
	channelRange = mixer.Range{Min: 0, Max: 15}
	dataRange    = mixer.Range{Min: 0, Max: 127}
)

func checkChannel(ch int) error {
	return channelRange.Check("midi channel", float64(ch))
}

func checkData(field string, values ...int) error {
	for _, v := range values {
		if err := dataRange.Check(field, float64(v)); err != nil {
			return err
		}
	}
	return nil
}

// ControlChange builds [0xB0|ch, cc, val].
func ControlChange(ch, cc, val int) (Message, error) {
	if err := checkChannel(ch); err != nil {
		return nil, err
	}
	if err := checkData("control change", cc, val); err != nil {
		return nil, err
	}
	return Message(midi.ControlChange(uint8(ch), uint8(cc), uint8(val))), nil
}

// NoteOn builds [0x90|ch, note, velocity].
func NoteOn(ch, note, velocity int) (Message, error) {
	if err := checkChannel(ch); err != nil {
		return nil, err
	}
	if err := checkData("note on", note, velocity); err != nil {
		return nil, err
	}
	return Message(midi.NoteOn(uint8(ch), uint8(note), uint8(velocity))), nil
}

// ProgramChange builds [0xC0|ch, program].
func ProgramChange(ch, program int) (Message, error) {
	if err := checkChannel(ch); err != nil {
		return nil, err
	}
	if err := checkData("program change", program); err != nil {
		return nil, err
	}
	return Message(midi.ProgramChange(uint8(ch), uint8(program))), nil
}

// BankedProgramChange selects a bank with CC 0 and then sends a program
// change. Program numbers above 127 roll into the next bank.
func BankedProgramChange(ch, number int) ([]Message, error) {
	if number < 0 {
		return nil, &mixer.RangeError{Field: "program", Value: float64(number), Min: 0, Max: 127 * 128}
	}
	bank, err := ControlChange(ch, int(CCBankSelect), number/128)
	if err != nil {
		return nil, err
	}
	pc, err := ProgramChange(ch, number%128)
	if err != nil {
		return nil, err
	}
	return []Message{bank, pc}, nil
}
