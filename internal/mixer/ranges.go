package mixer

import "math"

// Range is a closed numeric domain.
type Range struct {
	Min float64
	Max float64
}

// Declared domains for every numeric channel field.
var (
	FaderRange     = Range{0, 1}
	PanRange       = Range{-1, 1}
	DecibelRange   = Range{-144, 24}
	FrequencyRange = Range{20, 20000}
	QRange         = Range{0.1, 20}
	RatioRange     = Range{1, 100}
	KneeRange      = Range{0, 1}
	CompAttack     = Range{0.1, 300}
	CompRelease    = Range{10, 2000}
	GateAttack     = Range{0.01, 100}
	GateHold       = Range{0, 2000}
	GateRelease    = Range{10, 2000}
	ColorRange     = Range{float64(ColorBlack), float64(ColorWhite)}
	MeterRange     = Range{0, 1}
)

// Clamp limits v to the range. NaN collapses to Min.
func (r Range) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return r.Min
	}
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Check returns a RangeError when v is outside the range.
func (r Range) Check(field string, v float64) error {
	if !r.Contains(v) {
		return &RangeError{Field: field, Value: v, Min: r.Min, Max: r.Max}
	}
	return nil
}
