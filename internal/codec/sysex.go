package codec

import (
	"slices"

	midi "gitlab.com/gomidi/midi/v2"

	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// SysEx wraps payload in F0 ... F7. Every payload byte must be a 7-bit data
// byte.
func SysEx(payload ...byte) (Message, error) {
	for _, b := range payload {
		if b > 0x7F {
			return nil, &mixer.RangeError{Field: "sysex data", Value: float64(b), Min: 0, Max: 127}
		}
	}
	return Message(midi.SysEx(payload)), nil
}

// SysExHeader is a vendor sysex prefix. Channel is substituted into the
// last header byte so one header serves every MIDI channel.
type SysExHeader struct {
	Prefix []byte
}

// Bytes returns the header addressed to the given MIDI channel (or the
// all-call marker when ch is 0x7F).
func (h SysExHeader) Bytes(ch byte) []byte {
	b := slices.Clone(h.Prefix)
	return append(b, ch)
}

// Message builds a complete sysex message addressed to ch.
func (h SysExHeader) Message(ch byte, body ...byte) (Message, error) {
	return SysEx(append(h.Bytes(ch), body...)...)
}

// Match reports whether data (without F0/F7) starts with this header and
// returns the addressed channel and the remaining body.
func (h SysExHeader) Match(data []byte) (ch byte, body []byte, ok bool) {
	n := len(h.Prefix)
	if len(data) <= n || !slices.Equal(data[:n], h.Prefix) {
		return 0, nil, false
	}
	return data[n], data[n+1:], true
}
