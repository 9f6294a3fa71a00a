package skip

import "github.com/okian/jumptrain/pkg/logger"

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(x *Executor) {
		if l != nil {
			x.log = l
		}
	}
}
