package channel

import (
	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/pkg/logger"
)

// Option configures a Feed.
type Option func(*Feed)

// WithBacklog sets how many events Since can return.
func WithBacklog(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.backlog = make([]model.Event, n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Feed) {
		if l != nil {
			f.log = l
		}
	}
}
