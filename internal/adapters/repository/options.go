package repository

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	maxLimit int
}

func defaults(opts []Option) options {
	o := options{maxLimit: maxLimit}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMaxLimit caps how many records a single List returns.
func WithMaxLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLimit = n
		}
	}
}
