package sensor

import "errors"

// Sentinel kinds for sensor errors.
var (
	ErrDisconnected = errors.New("sensor disconnected")
	ErrNotConnected = errors.New("sensor not connected")
)
