package sensor

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/jumptrain/pkg/logger"
)

// Option configures a Poller.
type Option func(*Poller)

// WithReconnectInterval sets the minimum gap between connection attempts.
func WithReconnectInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.reconnect = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}

// WithNow sets the timestamp source for readings without one.
func WithNow(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}
