package codec

import (
	midi "gitlab.com/gomidi/midi/v2"

	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// Kind classifies a decoded message.
type Kind int

// Message kinds.
const (
	KindIgnored Kind = iota
	KindControlChange
	KindNote
	KindProgramChange
	KindSysEx
)

func (k Kind) String() string {
	switch k {
	case KindControlChange:
		return "control_change"
	case KindNote:
		return "note"
	case KindProgramChange:
		return "program_change"
	case KindSysEx:
		return "sysex"
	}
	return "ignored"
}

// Decoded is a classified inbound message.
//
// For KindControlChange Number is the controller; for KindNote it is the
// note and Value the velocity (0 for note-off). For KindSysEx Data holds the
// bytes between F0 and F7.
type Decoded struct {
	Kind    Kind
	Channel int
	Number  int
	Value   int
	Data    []byte
}

// Decode classifies one raw message. Truncated channel messages and sysex
// without a terminating F7 return a MalformedMessageError.
func Decode(raw []byte) (Decoded, error) {
	if len(raw) == 0 {
		return Decoded{}, &mixer.MalformedMessageError{Reason: "empty message"}
	}
	status := raw[0]
	if status < 0x80 {
		return Decoded{}, &mixer.MalformedMessageError{Reason: "missing status byte", Data: raw}
	}
	if status == StatusSysExStart {
		return decodeSysEx(raw)
	}
	if status >= 0xF0 {
		return Decoded{Kind: KindIgnored}, nil
	}

	want := channelMessageLength(status)
	if len(raw) < want {
		return Decoded{}, &mixer.MalformedMessageError{Reason: "truncated channel message", Data: raw}
	}
	for _, b := range raw[1:want] {
		if b > 0x7F {
			return Decoded{}, &mixer.MalformedMessageError{Reason: "status byte inside data", Data: raw}
		}
	}

	ch := int(status & 0x0F)
	switch status & 0xF0 {
	case StatusControlChange:
		return Decoded{Kind: KindControlChange, Channel: ch, Number: int(raw[1]), Value: int(raw[2])}, nil
	case StatusNoteOn:
		return Decoded{Kind: KindNote, Channel: ch, Number: int(raw[1]), Value: int(raw[2])}, nil
	case StatusNoteOff:
		return Decoded{Kind: KindNote, Channel: ch, Number: int(raw[1])}, nil
	case StatusProgramChange:
		return Decoded{Kind: KindProgramChange, Channel: ch, Number: int(raw[1])}, nil
	}
	return Decoded{Kind: KindIgnored, Channel: ch}, nil
}

func decodeSysEx(raw []byte) (Decoded, error) {
	if len(raw) < 2 || raw[len(raw)-1] != StatusSysExEnd {
		return Decoded{}, &mixer.MalformedMessageError{Reason: "sysex missing F7 terminator", Data: raw}
	}
	for _, b := range raw[1 : len(raw)-1] {
		if b > 0x7F {
			return Decoded{}, &mixer.MalformedMessageError{Reason: "status byte inside sysex", Data: raw}
		}
	}
	if len(raw) == 2 {
		return Decoded{Kind: KindSysEx, Data: []byte{}}, nil
	}
	var data []byte
	if !midi.Message(raw).GetSysEx(&data) {
		return Decoded{}, &mixer.MalformedMessageError{Reason: "unparseable sysex", Data: raw}
	}
	return Decoded{Kind: KindSysEx, Data: data}, nil
}

// channelMessageLength returns the full length of a channel voice message.
func channelMessageLength(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 2
	}
	return 3
}
