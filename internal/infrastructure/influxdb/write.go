package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// Measurement names.
const (
	MeasurementMeters     = "mixer_meters"
	MeasurementParameters = "mixer_parameters"
)

// WriteMeters records one point per metered channel, at most once per
// meterWriteInterval. It satisfies broadcast.MeterSink through
// broadcast.MeterSinkFunc.
func (c *Client) WriteMeters(updates []mixer.MeterUpdate) {
	now := time.Now()
	if !c.IsConnected() || !c.meterDue(now) {
		return
	}
	for _, p := range meterPoints(updates, now) {
		c.write(p)
	}
}

// WriteParameterChanges records applied changes.
func (c *Client) WriteParameterChanges(changes []mixer.ParameterChange) {
	if !c.IsConnected() {
		return
	}
	for _, ch := range changes {
		if p := parameterPoint(ch); p != nil {
			c.write(p)
		}
	}
}

// meterPoints builds mixer_meters points tagged by device and channel,
// with level and, when reported, gain_reduction fields.
func meterPoints(updates []mixer.MeterUpdate, ts time.Time) []*write.Point {
	var points []*write.Point
	for _, u := range updates {
		for ch, level := range u.Levels {
			fields := map[string]any{"level": level}
			if gr, ok := u.GainReductions[ch]; ok {
				fields["gain_reduction"] = gr
			}
			points = append(points, write.NewPoint(
				MeasurementMeters,
				map[string]string{"device": u.DeviceID, "channel": ch},
				fields,
				ts,
			))
		}
	}
	return points
}

// parameterPoint converts a change into a mixer_parameters point. Numeric
// and boolean values go to the value field, strings to text. Other value
// types are not recorded.
func parameterPoint(c mixer.ParameterChange) *write.Point {
	var fields map[string]any
	switch v := c.Value.(type) {
	case float64, float32, int, int64, bool:
		fields = map[string]any{"value": v}
	case string:
		fields = map[string]any{"text": v}
	default:
		return nil
	}
	ts := c.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	source := c.Source
	if source == "" {
		source = mixer.SourceAPI
	}
	return write.NewPoint(
		MeasurementParameters,
		map[string]string{
			"device":    c.DeviceID,
			"channel":   c.ChannelID,
			"parameter": c.Parameter,
			"source":    string(source),
		},
		fields,
		ts,
	)
}
