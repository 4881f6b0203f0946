package codec

// maxSysExLength bounds a buffered sysex so a missing terminator cannot grow
// the buffer without limit.
const maxSysExLength = 4096

// Splitter frames a raw MIDI byte stream (for example a DIN serial line)
// into complete messages. It honours running status, passes real-time bytes
// through immediately and buffers sysex until F7.
//
// An unterminated sysex interrupted by another status byte is emitted as-is
// so Decode reports it as malformed. Not safe for concurrent use.
type Splitter struct {
	buf     []byte
	running byte
	want    int
	inSysEx bool
}

// Write feeds bytes and calls emit for every completed message. emit receives
// a fresh slice it may retain.
func (s *Splitter) Write(p []byte, emit func([]byte)) {
	for _, b := range p {
		switch {
		case b >= 0xF8:
			emit([]byte{b})
		case b == StatusSysExEnd && s.inSysEx:
			s.buf = append(s.buf, b)
			s.flush(emit)
			s.inSysEx = false
		case b >= 0x80:
			s.status(b, emit)
		default:
			s.data(b, emit)
		}
	}
}

func (s *Splitter) status(b byte, emit func([]byte)) {
	if s.inSysEx {
		s.flush(emit)
		s.inSysEx = false
	}
	s.buf = s.buf[:0]
	switch {
	case b == StatusSysExStart:
		s.inSysEx = true
		s.running = 0
		s.buf = append(s.buf, b)
	case b >= 0xF0:
		s.running = 0
		s.want = systemCommonLength(b)
		s.buf = append(s.buf, b)
		if s.want <= 1 {
			s.flush(emit)
		}
	default:
		s.running = b
		s.want = channelMessageLength(b)
		s.buf = append(s.buf, b)
	}
}

func (s *Splitter) data(b byte, emit func([]byte)) {
	if s.inSysEx {
		if len(s.buf) >= maxSysExLength {
			s.buf = s.buf[:0]
			s.inSysEx = false
			return
		}
		s.buf = append(s.buf, b)
		return
	}
	if len(s.buf) == 0 {
		if s.running == 0 {
			return
		}
		s.want = channelMessageLength(s.running)
		s.buf = append(s.buf, s.running)
	}
	s.buf = append(s.buf, b)
	if len(s.buf) >= s.want {
		s.flush(emit)
	}
}

func (s *Splitter) flush(emit func([]byte)) {
	if len(s.buf) == 0 {
		return
	}
	msg := make([]byte, len(s.buf))
	copy(msg, s.buf)
	s.buf = s.buf[:0]
	emit(msg)
}

func systemCommonLength(b byte) int {
	switch b {
	case 0xF1, 0xF3:
		return 2
	case 0xF2:
		return 3
	}
	return 1
}
