package mixer

import (
	"fmt"
	"strconv"
	"strings"
)

// ChannelType is the kind of strip a channel represents on the console.
type ChannelType string

// Channel type constants.
const (
	ChannelInput    ChannelType = "input"
	ChannelStereo   ChannelType = "stereo"
	ChannelAux      ChannelType = "aux"
	ChannelBus      ChannelType = "bus"
	ChannelFXReturn ChannelType = "fx_return"
	ChannelFXSend   ChannelType = "fx_send"
	ChannelDCA      ChannelType = "dca"
	ChannelMatrix   ChannelType = "matrix"
	ChannelMain     ChannelType = "main"
)

// channelPrefixes maps each type to its id prefix. FX returns use "fx" and
// FX sends use "fxsend" so the ids stay short on the wire and in the UI.
var channelPrefixes = map[ChannelType]string{
	ChannelInput:    "input",
	ChannelStereo:   "stereo",
	ChannelAux:      "aux",
	ChannelBus:      "bus",
	ChannelFXReturn: "fx",
	ChannelFXSend:   "fxsend",
	ChannelDCA:      "dca",
	ChannelMatrix:   "matrix",
	ChannelMain:     "main",
}

// ChannelTypes lists the channel types in console order.
var ChannelTypes = []ChannelType{
	ChannelInput,
	ChannelStereo,
	ChannelFXReturn,
	ChannelAux,
	ChannelBus,
	ChannelFXSend,
	ChannelDCA,
	ChannelMatrix,
	ChannelMain,
}

// ChannelID builds the canonical id for the n-th (1-based) channel of a type.
// The main bus has a single id regardless of n.
func ChannelID(t ChannelType, n int) string {
	if t == ChannelMain {
		return "main"
	}
	return fmt.Sprintf("%s_%d", channelPrefixes[t], n)
}

// ParseChannelID splits a canonical channel id into its type and number.
func ParseChannelID(id string) (ChannelType, int, error) {
	if id == "main" {
		return ChannelMain, 1, nil
	}
	i := strings.LastIndexByte(id, '_')
	if i <= 0 || i == len(id)-1 {
		return "", 0, &InvalidChannelError{ChannelID: id}
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 1 {
		return "", 0, &InvalidChannelError{ChannelID: id}
	}
	prefix := id[:i]
	for t, p := range channelPrefixes {
		if p == prefix && t != ChannelMain {
			return t, n, nil
		}
	}
	return "", 0, &InvalidChannelError{ChannelID: id}
}

// ChannelKey is a namespaced channel reference "device_id:channel_id".
// An empty DeviceID means "every device declaring the channel".
type ChannelKey struct {
	DeviceID  string
	ChannelID string
}

// ParseChannelKey parses "device:channel" or a bare "channel".
func ParseChannelKey(s string) ChannelKey {
	if dev, ch, ok := strings.Cut(s, ":"); ok {
		return ChannelKey{DeviceID: dev, ChannelID: ch}
	}
	return ChannelKey{ChannelID: s}
}

func (k ChannelKey) String() string {
	if k.DeviceID == "" {
		return k.ChannelID
	}
	return k.DeviceID + ":" + k.ChannelID
}

// Color is the 3-bit scribble strip colour.
type Color int

// Colour constants (console palette order).
const (
	ColorBlack Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorPurple
	ColorLightBlue
	ColorWhite
)

// MaxChannelNameLength is the longest name, in characters, a scribble
// strip displays.
const MaxChannelNameLength = 7

// TruncateName cuts name to MaxChannelNameLength characters without
// splitting a multi-byte character.
func TruncateName(name string) string {
	n := 0
	for i := range name {
		if n == MaxChannelNameLength {
			return name[:i]
		}
		n++
	}
	return name
}

// EQBandType is the filter shape of one EQ band.
type EQBandType string

// EQ band types.
const (
	EQLowShelf   EQBandType = "low_shelf"
	EQLowCut     EQBandType = "low_cut"
	EQParametric EQBandType = "parametric"
	EQHighShelf  EQBandType = "high_shelf"
	EQHighCut    EQBandType = "high_cut"
)

// ValidEQBandType reports whether t is a known band type.
func ValidEQBandType(t EQBandType) bool {
	switch t {
	case EQLowShelf, EQLowCut, EQParametric, EQHighShelf, EQHighCut:
		return true
	}
	return false
}

// CompressorType is the compressor character.
type CompressorType int

// Compressor types.
const (
	CompressorSoft CompressorType = iota
	CompressorMedium
	CompressorHard
	CompressorBrick
)

var compressorTypeNames = []string{"soft", "medium", "hard", "brick"}

func (t CompressorType) String() string {
	if t >= 0 && int(t) < len(compressorTypeNames) {
		return compressorTypeNames[t]
	}
	return "unknown"
}

// ParseCompressorType maps a name to its CompressorType.
func ParseCompressorType(s string) (CompressorType, bool) {
	for i, n := range compressorTypeNames {
		if n == s {
			return CompressorType(i), true
		}
	}
	return 0, false
}

// Protocol is the transport family a device speaks.
type Protocol string

// Supported protocols.
const (
	ProtocolMIDI Protocol = "midi"
	ProtocolOSC  Protocol = "osc"
	ProtocolTCP  Protocol = "tcp"
)

// ConnectionStatus is the plugin connection state.
type ConnectionStatus string

// Connection states.
const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// Source identifies where a parameter change originated.
type Source string

// Parameter change sources.
const (
	SourceAPI       Source = "api"
	SourceHardware  Source = "hardware"
	SourceScene     Source = "scene"
	SourceWebSocket Source = "websocket"
	SourceMQTT      Source = "mqtt"
	SourceOSC       Source = "osc"
)
