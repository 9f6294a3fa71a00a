package api

import (
	"golang.org/x/time/rate"

	"github.com/okian/jumptrain/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithCommandRate limits inbound commands to r per second with the given
// burst. r <= 0 disables the limit.
func WithCommandRate(r float64, burst int) Option {
	return func(s *Server) {
		if r <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithEventPageSize caps how many events one GET /events returns.
func WithEventPageSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.eventPage = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}
