// Package influxdb writes mixer telemetry to InfluxDB v2.
//
// Two measurements are written:
//
//	mixer_meters      tags device, channel        fields level, gain_reduction
//	mixer_parameters  tags device, channel,        fields value or text
//	                  parameter, source
//
// Meter snapshots are thinned to one per second. Writes are non-blocking
// and batched according to batch_size and flush_interval; failures arrive
// through SetOnError wrapping ErrWriteFailed.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	manager.AddListener(influxdb.NewTelemetry(client))
//	sinks = append(sinks, broadcast.MeterSinkFunc(client.WriteMeters))
package influxdb
