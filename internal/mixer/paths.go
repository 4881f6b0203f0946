package mixer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TargetKind enumerates the closed set of addressable channel parameters.
type TargetKind int

// Parameter targets.
const (
	TargetFader TargetKind = iota + 1
	TargetMute
	TargetSolo
	TargetPan
	TargetName
	TargetColor
	TargetMainAssign
	TargetDCA
	TargetMuteGroup
	TargetEQEnabled
	TargetEQBand
	TargetCompressor
	TargetGate
	TargetSend
)

// Target is a parsed parameter path such as "fader", "eq.bands.2.gain" or
// "sends.aux_1.level".
type Target struct {
	Kind   TargetKind
	Index  int    // DCA/mute group number (1-based) or EQ band index (0-based)
	SendID string // send target channel id
	Field  string // nested field for EQ band, dynamics and send targets
	Path   string
}

var scalarTargets = map[string]TargetKind{
	"fader":            TargetFader,
	"mute":             TargetMute,
	"solo":             TargetSolo,
	"pan":              TargetPan,
	"name":             TargetName,
	"color":            TargetColor,
	"assigned_to_main": TargetMainAssign,
}

// ParsePath resolves a dotted parameter path against the known targets.
func ParsePath(path string) (Target, error) {
	parts := strings.Split(path, ".")
	fail := func(reason string) (Target, error) {
		return Target{}, &ParameterPathError{Path: path, Reason: reason}
	}

	if len(parts) == 1 {
		if k, ok := scalarTargets[path]; ok {
			return Target{Kind: k, Path: path}, nil
		}
		return fail("unknown parameter")
	}

	switch parts[0] {
	case "dca", "mute_group":
		if len(parts) != 2 {
			return fail("expected " + parts[0] + ".<n>")
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 1 {
			return fail("group number must be a positive integer")
		}
		kind := TargetDCA
		if parts[0] == "mute_group" {
			kind = TargetMuteGroup
		}
		return Target{Kind: kind, Index: n, Path: path}, nil

	case "eq":
		if len(parts) == 2 && parts[1] == "enabled" {
			return Target{Kind: TargetEQEnabled, Path: path}, nil
		}
		if len(parts) != 4 || parts[1] != "bands" {
			return fail("expected eq.enabled or eq.bands.<i>.<field>")
		}
		i, err := strconv.Atoi(parts[2])
		if err != nil || i < 0 {
			return fail("band index must be a non-negative integer")
		}
		if _, ok := eqBandFields[parts[3]]; !ok {
			return fail("unknown EQ band field")
		}
		return Target{Kind: TargetEQBand, Index: i, Field: parts[3], Path: path}, nil

	case "compressor", "gate":
		if len(parts) != 2 {
			return fail("expected " + parts[0] + ".<field>")
		}
		if parts[0] == "compressor" {
			if _, ok := compressorFields[parts[1]]; !ok {
				return fail("unknown compressor field")
			}
			return Target{Kind: TargetCompressor, Field: parts[1], Path: path}, nil
		}
		if _, ok := gateFields[parts[1]]; !ok {
			return fail("unknown gate field")
		}
		return Target{Kind: TargetGate, Field: parts[1], Path: path}, nil

	case "sends":
		if len(parts) != 3 {
			return fail("expected sends.<target>.<field>")
		}
		if _, ok := sendFields[parts[2]]; !ok {
			return fail("unknown send field")
		}
		return Target{Kind: TargetSend, SendID: parts[1], Field: parts[2], Path: path}, nil
	}
	return fail("unknown parameter")
}

// Boolean reports whether the target holds an on/off value.
func (t Target) Boolean() bool {
	switch t.Kind {
	case TargetMute, TargetSolo, TargetMainAssign, TargetDCA, TargetMuteGroup, TargetEQEnabled:
		return true
	case TargetEQBand, TargetCompressor, TargetGate, TargetSend:
		return t.Field == "enabled" || t.Field == "pre_fader"
	}
	return false
}

// Validate checks the index operands of the target against a channel and
// its device capabilities.
func (t Target) Validate(ch *Channel, caps DeviceCapabilities) error {
	switch t.Kind {
	case TargetDCA:
		if t.Index > caps.DCAGroups {
			return &ParameterPathError{Path: t.Path, Reason: fmt.Sprintf("device has %d DCA groups", caps.DCAGroups)}
		}
	case TargetMuteGroup:
		if t.Index > caps.MuteGroups {
			return &ParameterPathError{Path: t.Path, Reason: fmt.Sprintf("device has %d mute groups", caps.MuteGroups)}
		}
	case TargetEQBand:
		if t.Index >= len(ch.EQ.Bands) {
			return &ParameterPathError{Path: t.Path, Reason: fmt.Sprintf("channel has %d EQ bands", len(ch.EQ.Bands))}
		}
	case TargetSend:
		typ, n, err := ParseChannelID(t.SendID)
		if err != nil || !IsSendTarget(typ) || n > caps.Count(typ) {
			return &ParameterPathError{Path: t.Path, Reason: "unknown send target " + t.SendID}
		}
	}
	return nil
}

// IsSendTarget reports whether channels of type t can receive sends.
func IsSendTarget(t ChannelType) bool {
	switch t {
	case ChannelAux, ChannelBus, ChannelFXSend, ChannelMatrix:
		return true
	}
	return false
}

// Apply writes value into the channel and returns the value actually stored
// after clamping. The channel is not modified on error.
func (t Target) Apply(ch *Channel, value any) (any, error) {
	v, err := t.apply(ch, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidValue, t.Path, err)
	}
	return v, nil
}

func (t Target) apply(ch *Channel, value any) (any, error) {
	switch t.Kind {
	case TargetFader:
		return floatField(FaderRange, func(c *Channel) *float64 { return &c.Fader })(ch, value)
	case TargetPan:
		return floatField(PanRange, func(c *Channel) *float64 { return &c.Pan })(ch, value)
	case TargetMute:
		return boolField(func(c *Channel) *bool { return &c.Mute })(ch, value)
	case TargetSolo:
		return boolField(func(c *Channel) *bool { return &c.Solo })(ch, value)
	case TargetMainAssign:
		return boolField(func(c *Channel) *bool { return &c.AssignedToMain })(ch, value)
	case TargetName:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", value)
		}
		s = TruncateName(s)
		ch.Name = s
		return s, nil
	case TargetColor:
		f, err := asFloat(value)
		if err != nil {
			return nil, err
		}
		ch.Color = Color(ColorRange.Clamp(f))
		return ch.Color, nil
	case TargetDCA, TargetMuteGroup:
		on, err := asBool(value)
		if err != nil {
			return nil, err
		}
		groups := &ch.DCAGroups
		if t.Kind == TargetMuteGroup {
			groups = &ch.MuteGroups
		}
		if on {
			if *groups == nil {
				*groups = make(map[int]bool)
			}
			(*groups)[t.Index] = true
		} else {
			delete(*groups, t.Index)
		}
		return on, nil
	case TargetEQEnabled:
		return boolField(func(c *Channel) *bool { return &c.EQ.Enabled })(ch, value)
	case TargetEQBand:
		if t.Index >= len(ch.EQ.Bands) {
			return nil, fmt.Errorf("band %d out of range", t.Index)
		}
		return eqBandFields[t.Field](&ch.EQ.Bands[t.Index], value)
	case TargetCompressor:
		return compressorFields[t.Field](&ch.Compressor, value)
	case TargetGate:
		return gateFields[t.Field](&ch.Gate, value)
	case TargetSend:
		fn := sendFields[t.Field]
		if s := ch.Send(t.SendID); s != nil {
			return fn(s, value)
		}
		s := Send{TargetID: t.SendID, Enabled: true}
		v, err := fn(&s, value)
		if err != nil {
			return nil, err
		}
		ch.Sends = append(ch.Sends, s)
		return v, nil
	}
	return nil, fmt.Errorf("unhandled target kind %d", t.Kind)
}

type setter[T any] func(*T, any) (any, error)

func floatField[T any](r Range, ptr func(*T) *float64) setter[T] {
	return func(x *T, v any) (any, error) {
		f, err := asFloat(v)
		if err != nil {
			return nil, err
		}
		f = r.Clamp(f)
		*ptr(x) = f
		return f, nil
	}
}

func boolField[T any](ptr func(*T) *bool) setter[T] {
	return func(x *T, v any) (any, error) {
		b, err := asBool(v)
		if err != nil {
			return nil, err
		}
		*ptr(x) = b
		return b, nil
	}
}

var eqBandFields = map[string]setter[EQBand]{
	"enabled":   boolField(func(b *EQBand) *bool { return &b.Enabled }),
	"frequency": floatField(FrequencyRange, func(b *EQBand) *float64 { return &b.Frequency }),
	"gain":      floatField(DecibelRange, func(b *EQBand) *float64 { return &b.Gain }),
	"q":         floatField(QRange, func(b *EQBand) *float64 { return &b.Q }),
	"type": func(b *EQBand, v any) (any, error) {
		s, ok := v.(string)
		if !ok || !ValidEQBandType(EQBandType(s)) {
			return nil, fmt.Errorf("unknown EQ band type %v", v)
		}
		b.Type = EQBandType(s)
		return s, nil
	},
}

var compressorFields = map[string]setter[Compressor]{
	"enabled":     boolField(func(c *Compressor) *bool { return &c.Enabled }),
	"threshold":   floatField(DecibelRange, func(c *Compressor) *float64 { return &c.Threshold }),
	"ratio":       floatField(RatioRange, func(c *Compressor) *float64 { return &c.Ratio }),
	"attack":      floatField(CompAttack, func(c *Compressor) *float64 { return &c.Attack }),
	"release":     floatField(CompRelease, func(c *Compressor) *float64 { return &c.Release }),
	"knee":        floatField(KneeRange, func(c *Compressor) *float64 { return &c.Knee }),
	"makeup_gain": floatField(DecibelRange, func(c *Compressor) *float64 { return &c.MakeupGain }),
	"type": func(c *Compressor, v any) (any, error) {
		if s, ok := v.(string); ok {
			t, ok := ParseCompressorType(s)
			if !ok {
				return nil, fmt.Errorf("unknown compressor type %q", s)
			}
			c.Type = t
			return t.String(), nil
		}
		f, err := asFloat(v)
		if err != nil {
			return nil, err
		}
		c.Type = CompressorType(Range{0, float64(CompressorBrick)}.Clamp(f))
		return c.Type.String(), nil
	},
}

var gateFields = map[string]setter[Gate]{
	"enabled":   boolField(func(g *Gate) *bool { return &g.Enabled }),
	"threshold": floatField(DecibelRange, func(g *Gate) *float64 { return &g.Threshold }),
	"range":     floatField(DecibelRange, func(g *Gate) *float64 { return &g.Range }),
	"attack":    floatField(GateAttack, func(g *Gate) *float64 { return &g.Attack }),
	"hold":      floatField(GateHold, func(g *Gate) *float64 { return &g.Hold }),
	"release":   floatField(GateRelease, func(g *Gate) *float64 { return &g.Release }),
}

var sendFields = map[string]setter[Send]{
	"level":     floatField(FaderRange, func(s *Send) *float64 { return &s.Level }),
	"pan":       floatField(PanRange, func(s *Send) *float64 { return &s.Pan }),
	"pre_fader": boolField(func(s *Send) *bool { return &s.PreFader }),
	"enabled":   boolField(func(s *Send) *bool { return &s.Enabled }),
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case Color:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, fmt.Errorf("want number, got %T", v)
}

func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("want bool, got %T", v)
	}
	return b, nil
}

// Float coerces a numeric parameter value.
func Float(v any) (float64, error) {
	f, err := asFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return f, nil
}

// Bool coerces a boolean parameter value.
func Bool(v any) (bool, error) {
	b, err := asBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return b, nil
}
