package codec

import (
	"math"

	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// Scale maps normalised fader and pan values onto a device integer range
// [0, Max].
type Scale struct {
	Max int
}

// Default is the 7-bit scale used by MIDI consoles.
var Default = Scale{Max: 127}

// FaderToHardware converts a fader position in [0,1] to a device value.
// Out-of-range input is clamped.
func (s Scale) FaderToHardware(v float64) int {
	return int(math.Round(mixer.FaderRange.Clamp(v) * float64(s.Max)))
}

// FaderFromHardware converts a device value to a fader position in [0,1].
func (s Scale) FaderFromHardware(n int) float64 {
	return float64(s.clamp(n)) / float64(s.Max)
}

// PanToHardware converts a pan position in [-1,1] to a device value.
func (s Scale) PanToHardware(p float64) int {
	return int(math.Round((mixer.PanRange.Clamp(p) + 1) * s.half()))
}

// PanFromHardware converts a device value to a pan position in [-1,1].
// The centre value decodes to exactly 0.
func (s Scale) PanFromHardware(n int) float64 {
	n = s.clamp(n)
	if n == s.Centre() {
		return 0
	}
	return mixer.PanRange.Clamp(float64(n)/s.half() - 1)
}

// Centre is the device value of a centred pan.
func (s Scale) Centre() int {
	return int(math.Round(s.half()))
}

// BoolToHardware maps true to Max and false to 0.
func (s Scale) BoolToHardware(b bool) int {
	if b {
		return s.Max
	}
	return 0
}

// BoolFromHardware treats the upper half of the range as true.
func (s Scale) BoolFromHardware(n int) bool {
	return float64(n) > s.half()
}

func (s Scale) half() float64 { return float64(s.Max) / 2 }

func (s Scale) clamp(n int) int {
	return max(0, min(s.Max, n))
}

// Linear maps an arbitrary physical range [Min, Max] onto device integers
// [0, Steps]. Used for dynamics parameters (ms, dB, ratio).
type Linear struct {
	Min   float64
	Max   float64
	Steps int
}

// ToHardware converts a physical value to a device value, clamping first.
func (l Linear) ToHardware(v float64) int {
	r := mixer.Range{Min: l.Min, Max: l.Max}
	frac := (r.Clamp(v) - l.Min) / (l.Max - l.Min)
	return int(math.Round(frac * float64(l.Steps)))
}

// FromHardware converts a device value back to the physical range.
func (l Linear) FromHardware(n int) float64 {
	n = max(0, min(l.Steps, n))
	return l.Min + float64(n)/float64(l.Steps)*(l.Max-l.Min)
}
