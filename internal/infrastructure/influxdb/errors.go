package influxdb

import "errors"

// Sentinel errors for the telemetry client, matched with errors.Is.
var (
	// ErrNotConnected means the client has been closed or never connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed means the initial ping did not succeed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed marks synchronous write failures; batched writes
	// report asynchronously through the SetOnError callback instead.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled means the influxdb section of config.yaml is off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
