package completion

import "github.com/okian/jumptrain/pkg/logger"

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithReloader sets who performs world reloads for reload gates.
func WithReloader(r Reloader) Option {
	return func(d *Dispatcher) {
		d.reloader = r
	}
}
