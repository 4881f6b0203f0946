package mixer

import (
	"maps"
	"slices"
	"strconv"
)

// EQBand is one band of a channel equaliser.
type EQBand struct {
	Enabled   bool       `json:"enabled"`
	Type      EQBandType `json:"type"`
	Frequency float64    `json:"frequency"`
	Gain      float64    `json:"gain"`
	Q         float64    `json:"q"`
}

// EQ is the channel equaliser.
type EQ struct {
	Enabled bool     `json:"enabled"`
	Bands   []EQBand `json:"bands"`
}

// Compressor holds the channel compressor settings.
type Compressor struct {
	Enabled    bool           `json:"enabled"`
	Type       CompressorType `json:"type"`
	Threshold  float64        `json:"threshold"`
	Ratio      float64        `json:"ratio"`
	Attack     float64        `json:"attack_ms"`
	Release    float64        `json:"release_ms"`
	Knee       float64        `json:"knee"`
	MakeupGain float64        `json:"makeup_gain"`
}

// Gate holds the channel noise gate settings.
type Gate struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"`
	Range     float64 `json:"range"`
	Attack    float64 `json:"attack_ms"`
	Hold      float64 `json:"hold_ms"`
	Release   float64 `json:"release_ms"`
}

// Send is a channel's contribution to an aux or FX bus.
type Send struct {
	TargetID string  `json:"target_id"`
	Level    float64 `json:"level"`
	Pan      float64 `json:"pan"`
	PreFader bool    `json:"pre_fader"`
	Enabled  bool    `json:"enabled"`
}

// Channel is the canonical state of one console strip.
//
// MeterLevel and GainReduction are transient: they are never copied into a
// Scene snapshot.
type Channel struct {
	ID             string       `json:"id"`
	Index          int          `json:"index"`
	Type           ChannelType  `json:"type"`
	Name           string       `json:"name"`
	Color          Color        `json:"color"`
	Fader          float64      `json:"fader"`
	Mute           bool         `json:"mute"`
	Solo           bool         `json:"solo"`
	Pan            float64      `json:"pan"`
	AssignedToMain bool         `json:"assigned_to_main"`
	DCAGroups      map[int]bool `json:"dca_groups,omitempty"`
	MuteGroups     map[int]bool `json:"mute_groups,omitempty"`
	EQ             EQ           `json:"eq"`
	Compressor     Compressor   `json:"compressor"`
	Gate           Gate         `json:"gate"`
	Sends          []Send       `json:"sends,omitempty"`
	MeterLevel     float64      `json:"meter_level"`
	GainReduction  float64      `json:"gain_reduction"`
}

// DefaultEQBands returns the four-band layout every channel starts with.
func DefaultEQBands() []EQBand {
	return []EQBand{
		{Enabled: true, Type: EQLowShelf, Frequency: 80, Q: 1},
		{Enabled: true, Type: EQParametric, Frequency: 400, Q: 1},
		{Enabled: true, Type: EQParametric, Frequency: 2000, Q: 1},
		{Enabled: true, Type: EQHighShelf, Frequency: 8000, Q: 1},
	}
}

// DefaultCompressor returns the compressor defaults.
func DefaultCompressor() Compressor {
	return Compressor{
		Type:      CompressorMedium,
		Threshold: -20,
		Ratio:     4,
		Attack:    10,
		Release:   100,
		Knee:      0.5,
	}
}

// DefaultGate returns the gate defaults.
func DefaultGate() Gate {
	return Gate{
		Threshold: -40,
		Range:     -80,
		Attack:    0.5,
		Hold:      50,
		Release:   200,
	}
}

// NewChannel creates a channel with console defaults.
// eqBands limits the default band list; zero means no EQ bands.
func NewChannel(t ChannelType, n, index, eqBands int) *Channel {
	bands := DefaultEQBands()
	for len(bands) < eqBands {
		bands = append(bands, EQBand{Enabled: true, Type: EQParametric, Frequency: 1000, Q: 1})
	}
	return &Channel{
		ID:             ChannelID(t, n),
		Index:          index,
		Type:           t,
		Name:           DefaultChannelName(t, n),
		Color:          ColorWhite,
		AssignedToMain: true,
		EQ:             EQ{Enabled: true, Bands: bands[:eqBands]},
		Compressor:     DefaultCompressor(),
		Gate:           DefaultGate(),
	}
}

// DefaultChannelName returns the factory scribble strip label.
func DefaultChannelName(t ChannelType, n int) string {
	switch t {
	case ChannelMain:
		return "Main"
	case ChannelInput:
		return "Ch " + strconv.Itoa(n)
	case ChannelStereo:
		return "St " + strconv.Itoa(n)
	case ChannelAux:
		return "Aux " + strconv.Itoa(n)
	case ChannelBus:
		return "Bus " + strconv.Itoa(n)
	case ChannelFXReturn:
		return "FX " + strconv.Itoa(n)
	case ChannelFXSend:
		return "FXS " + strconv.Itoa(n)
	case ChannelDCA:
		return "DCA " + strconv.Itoa(n)
	case ChannelMatrix:
		return "Mtx " + strconv.Itoa(n)
	}
	return ""
}

// Send returns a pointer to the send targeting targetID, or nil.
func (c *Channel) Send(targetID string) *Send {
	for i := range c.Sends {
		if c.Sends[i].TargetID == targetID {
			return &c.Sends[i]
		}
	}
	return nil
}

// EnsureSend returns the send for targetID, creating it with defaults.
func (c *Channel) EnsureSend(targetID string) *Send {
	if s := c.Send(targetID); s != nil {
		return s
	}
	c.Sends = append(c.Sends, Send{TargetID: targetID, Enabled: true})
	return &c.Sends[len(c.Sends)-1]
}

// Normalize clamps every numeric field into its declared range.
func (c *Channel) Normalize() {
	c.Fader = FaderRange.Clamp(c.Fader)
	c.Pan = PanRange.Clamp(c.Pan)
	c.Color = Color(ColorRange.Clamp(float64(c.Color)))
	c.Name = TruncateName(c.Name)
	for i := range c.EQ.Bands {
		b := &c.EQ.Bands[i]
		b.Frequency = FrequencyRange.Clamp(b.Frequency)
		b.Gain = DecibelRange.Clamp(b.Gain)
		b.Q = QRange.Clamp(b.Q)
	}
	cp := &c.Compressor
	cp.Threshold = DecibelRange.Clamp(cp.Threshold)
	cp.Ratio = RatioRange.Clamp(cp.Ratio)
	cp.Attack = CompAttack.Clamp(cp.Attack)
	cp.Release = CompRelease.Clamp(cp.Release)
	cp.Knee = KneeRange.Clamp(cp.Knee)
	cp.MakeupGain = DecibelRange.Clamp(cp.MakeupGain)
	g := &c.Gate
	g.Threshold = DecibelRange.Clamp(g.Threshold)
	g.Range = DecibelRange.Clamp(g.Range)
	g.Attack = GateAttack.Clamp(g.Attack)
	g.Hold = GateHold.Clamp(g.Hold)
	g.Release = GateRelease.Clamp(g.Release)
	for i := range c.Sends {
		c.Sends[i].Level = FaderRange.Clamp(c.Sends[i].Level)
		c.Sends[i].Pan = PanRange.Clamp(c.Sends[i].Pan)
	}
}

// Clone returns a deep copy of the channel.
func (c *Channel) Clone() *Channel {
	if c == nil {
		return nil
	}
	cp := *c
	cp.DCAGroups = maps.Clone(c.DCAGroups)
	cp.MuteGroups = maps.Clone(c.MuteGroups)
	cp.EQ.Bands = slices.Clone(c.EQ.Bands)
	cp.Sends = slices.Clone(c.Sends)
	return &cp
}
