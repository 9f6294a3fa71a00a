package sim

import (
	"time"

	"github.com/okian/jumptrain/internal/adapters/sensor"
	"github.com/okian/jumptrain/pkg/logger"
)

// Option configures a World.
type Option func(*World)

// WithStep sets the simulated time between world events.
func WithStep(d time.Duration) Option {
	return func(w *World) {
		if d > 0 {
			w.step = d
		}
	}
}

// WithDevice routes release and ground sensing through a sensor device.
func WithDevice(d sensor.Device) Option {
	return func(w *World) {
		w.device = d
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(w *World) {
		if l != nil {
			w.log = l
		}
	}
}

// WithManual stops the world from completing anything on its own: it only
// tracks state, and completions arrive as signals from outside.
func WithManual() Option {
	return func(w *World) {
		w.manual = true
	}
}
