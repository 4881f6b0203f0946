package mixer

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// DeviceCapabilities declares what a console model can address.
type DeviceCapabilities struct {
	InputChannels  int  `json:"input_channels"`
	StereoInputs   int  `json:"stereo_inputs"`
	AuxChannels    int  `json:"aux_channels"`
	Buses          int  `json:"buses"`
	FXReturns      int  `json:"fx_returns"`
	FXSends        int  `json:"fx_sends"`
	DCAGroups      int  `json:"dca_groups"`
	MuteGroups     int  `json:"mute_groups"`
	Matrices       int  `json:"matrices"`
	HasMain        bool `json:"has_main"`
	Scenes         int  `json:"scenes"`
	EQBands        int  `json:"eq_bands"`
	HasEQ          bool `json:"has_eq"`
	HasCompressor  bool `json:"has_compressor"`
	HasGate        bool `json:"has_gate"`
	HasPan         bool `json:"has_pan"`
	HasSolo        bool `json:"has_solo"`
	HasSends       bool `json:"has_sends"`
	SupportsMeters bool `json:"supports_meters"`
	SupportsNames  bool `json:"supports_names"`
	SupportsColors bool `json:"supports_colors"`
}

// Count returns the declared number of channels of a type.
func (c DeviceCapabilities) Count(t ChannelType) int {
	switch t {
	case ChannelInput:
		return c.InputChannels
	case ChannelStereo:
		return c.StereoInputs
	case ChannelAux:
		return c.AuxChannels
	case ChannelBus:
		return c.Buses
	case ChannelFXReturn:
		return c.FXReturns
	case ChannelFXSend:
		return c.FXSends
	case ChannelDCA:
		return c.DCAGroups
	case ChannelMatrix:
		return c.Matrices
	case ChannelMain:
		if c.HasMain {
			return 1
		}
	}
	return 0
}

// DeviceInfo describes a connected (or connecting) console.
type DeviceInfo struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Manufacturer     string             `json:"manufacturer"`
	Model            string             `json:"model"`
	Protocol         Protocol           `json:"protocol"`
	ConnectionString string             `json:"connection_string"`
	Status           ConnectionStatus   `json:"status"`
	Capabilities     DeviceCapabilities `json:"capabilities"`
}

// DeviceID derives the default device id "manufacturer_model" in lower case
// with spaces replaced by underscores.
func DeviceID(manufacturer, model string) string {
	id := strings.ToLower(manufacturer + "_" + model)
	return strings.ReplaceAll(id, " ", "_")
}

// MixerState is the canonical state of one device.
type MixerState struct {
	Device       DeviceInfo          `json:"device"`
	Channels     map[string]*Channel `json:"channels"`
	CurrentScene *int                `json:"current_scene,omitempty"`
	Meters       map[string]float64  `json:"meters,omitempty"`
}

// Clone returns a deep copy of the state.
func (s *MixerState) Clone() *MixerState {
	if s == nil {
		return nil
	}
	cp := &MixerState{
		Device:   s.Device,
		Channels: make(map[string]*Channel, len(s.Channels)),
		Meters:   maps.Clone(s.Meters),
	}
	for id, ch := range s.Channels {
		cp.Channels[id] = ch.Clone()
	}
	if s.CurrentScene != nil {
		n := *s.CurrentScene
		cp.CurrentScene = &n
	}
	return cp
}

// ChannelIDs returns the channel ids in console order.
func (s *MixerState) ChannelIDs() []string {
	ids := slices.Collect(maps.Keys(s.Channels))
	slices.SortFunc(ids, func(a, b string) int {
		ca, cb := s.Channels[a], s.Channels[b]
		if d := typeOrder(ca.Type) - typeOrder(cb.Type); d != 0 {
			return d
		}
		return ca.Index - cb.Index
	})
	return ids
}

func typeOrder(t ChannelType) int {
	return slices.Index(ChannelTypes, t)
}

// ParameterChange is one change to one channel parameter.
type ParameterChange struct {
	DeviceID  string    `json:"device_id,omitempty"`
	ChannelID string    `json:"channel_id"`
	Parameter string    `json:"parameter"`
	Value     any       `json:"value"`
	Source    Source    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`

	// Origin is the observer that submitted the change; it is excluded from
	// the resulting broadcast.
	Origin string `json:"-"`
}

// Key returns the namespaced channel key of the change.
func (c ParameterChange) Key() ChannelKey {
	k := ParseChannelKey(c.ChannelID)
	if k.DeviceID == "" {
		k.DeviceID = c.DeviceID
	}
	return k
}

// SceneRecallScope selects which parts of a snapshot are applied on recall.
type SceneRecallScope struct {
	Faders   bool `json:"faders"`
	Mutes    bool `json:"mutes"`
	EQ       bool `json:"eq"`
	Dynamics bool `json:"dynamics"`
	Routing  bool `json:"routing"`
	Names    bool `json:"names"`
}

// FullScope recalls everything.
func FullScope() SceneRecallScope {
	return SceneRecallScope{Faders: true, Mutes: true, EQ: true, Dynamics: true, Routing: true, Names: true}
}

// Scene is an in-memory snapshot of one device's channels.
type Scene struct {
	ID          string              `json:"id"`
	DeviceID    string              `json:"device_id"`
	Number      int                 `json:"number"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Channels    map[string]*Channel `json:"channels"`
	CreatedAt   time.Time           `json:"created_at"`
	ModifiedAt  time.Time           `json:"modified_at"`
}

// NewScene snapshots the channels of a state. Meter values are zeroed.
func NewScene(id string, state *MixerState, number int, name, description string) *Scene {
	now := time.Now().UTC()
	sc := &Scene{
		ID:          id,
		DeviceID:    state.Device.ID,
		Number:      number,
		Name:        name,
		Description: description,
		Channels:    make(map[string]*Channel, len(state.Channels)),
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	for chID, ch := range state.Channels {
		cp := ch.Clone()
		cp.MeterLevel = 0
		cp.GainReduction = 0
		sc.Channels[chID] = cp
	}
	return sc
}

// SceneSummary is a hardware scene slot as reported by a plugin.
type SceneSummary struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
}

// MeterUpdate carries transient level readings for one device.
type MeterUpdate struct {
	DeviceID       string             `json:"device_id"`
	Levels         map[string]float64 `json:"levels"`
	GainReductions map[string]float64 `json:"gain_reductions,omitempty"`
}

// NewMixerState builds a state with one default channel per declared
// capability. index maps a channel type and 1-based number to the hardware
// index; a nil index numbers channels sequentially from zero within a type.
func NewMixerState(info DeviceInfo, index func(ChannelType, int) int) *MixerState {
	caps := info.Capabilities
	st := &MixerState{
		Device:   info,
		Channels: make(map[string]*Channel),
		Meters:   make(map[string]float64),
	}
	for _, t := range ChannelTypes {
		for n := 1; n <= caps.Count(t); n++ {
			idx := n - 1
			if index != nil {
				idx = index(t, n)
			}
			bands := 0
			if caps.HasEQ {
				bands = caps.EQBands
			}
			ch := NewChannel(t, n, idx, bands)
			if t == ChannelMain {
				ch.AssignedToMain = false
			}
			st.Channels[ch.ID] = ch
		}
	}
	return st
}
