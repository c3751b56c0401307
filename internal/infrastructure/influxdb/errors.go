package influxdb

import "errors"

// Domain errors for the InfluxDB package.
var (
	// ErrNotConnected is returned when the client has been closed.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed is returned when the server cannot be reached.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when history export is switched off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
