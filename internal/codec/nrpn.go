package codec

// NRPN is one Non-Registered Parameter Number write: a target (usually the
// hardware channel), a parameter id and two data bytes.
type NRPN struct {
	Channel int
	Target  int
	Param   int
	Data1   int
	Data2   int
}

// Messages encodes the NRPN as its four Control-Change messages.
func (n NRPN) Messages() ([]Message, error) {
	return EncodeNRPN(n.Channel, n.Target, n.Param, n.Data1, n.Data2)
}

// EncodeNRPN builds exactly four Control-Change messages in the order
// (0x63,target) (0x62,param) (0x06,data1) (0x26,data2).
func EncodeNRPN(ch, target, param, data1, data2 int) ([]Message, error) {
	if err := checkChannel(ch); err != nil {
		return nil, err
	}
	if err := checkData("nrpn", target, param, data1, data2); err != nil {
		return nil, err
	}
	pairs := [4][2]int{
		{int(CCNRPNMSB), target},
		{int(CCNRPNLSB), param},
		{int(CCDataMSB), data1},
		{int(CCDataLSB), data2},
	}
	out := make([]Message, 0, len(pairs))
	for _, p := range pairs {
		m, err := ControlChange(ch, p[0], p[1])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// IsNRPNController reports whether cc is one of the four NRPN controllers.
func IsNRPNController(cc int) bool {
	switch byte(cc) {
	case CCNRPNMSB, CCNRPNLSB, CCDataMSB, CCDataLSB:
		return true
	}
	return false
}

type nrpnProgress struct {
	target, param, data1 int
	step                 int
}

// NRPNParser reassembles inbound NRPN sequences. It keeps independent
// progress per MIDI channel. Not safe for concurrent use; each device
// consumer owns one.
type NRPNParser struct {
	progress [16]nrpnProgress
}

// Feed consumes one Control-Change. It returns the completed NRPN and true
// when cc finishes a well-ordered sequence. Out-of-order controllers reset
// the channel's progress.
func (p *NRPNParser) Feed(ch, cc, val int) (NRPN, bool) {
	if ch < 0 || ch > 15 {
		return NRPN{}, false
	}
	st := &p.progress[ch]
	switch byte(cc) {
	case CCNRPNMSB:
		*st = nrpnProgress{target: val, step: 1}
	case CCNRPNLSB:
		if st.step != 1 {
			*st = nrpnProgress{}
			return NRPN{}, false
		}
		st.param, st.step = val, 2
	case CCDataMSB:
		if st.step != 2 {
			*st = nrpnProgress{}
			return NRPN{}, false
		}
		st.data1, st.step = val, 3
	case CCDataLSB:
		if st.step != 3 {
			*st = nrpnProgress{}
			return NRPN{}, false
		}
		n := NRPN{Channel: ch, Target: st.target, Param: st.param, Data1: st.data1, Data2: val}
		*st = nrpnProgress{}
		return n, true
	}
	return NRPN{}, false
}

// Reset discards all partial sequences.
func (p *NRPNParser) Reset() {
	p.progress = [16]nrpnProgress{}
}
