package influxdb

import "errors"

// Sentinel errors, wrapped with server detail where there is any.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	ErrConnectionFailed = errors.New("influxdb: server unreachable")
	ErrNotConnected     = errors.New("influxdb: client closed")

	// ErrWriteFailed wraps errors reported by the batching writer. Points
	// in a failed batch are lost.
	ErrWriteFailed = errors.New("influxdb: batch write failed")
)
