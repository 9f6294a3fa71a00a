package worker

import (
	"time"

	"github.com/okian/jumptrain/pkg/logger"
)

// Option applies a configuration option to the EngineWorker.
type Option func(*EngineWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *EngineWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *EngineWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithTickInterval sets how often the engine is ticked while idle.
func WithTickInterval(d time.Duration) Option {
	return func(w *EngineWorker) {
		if d > 0 {
			w.tickInterval = d
		}
	}
}
