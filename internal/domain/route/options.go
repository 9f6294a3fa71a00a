package route

import (
	"maps"

	"github.com/okian/jumptrain/pkg/logger"
)

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithOffsets merges named step offsets over the default table.
func WithOffsets(offsets map[string]int) Option {
	return func(s *Synchronizer) {
		maps.Copy(s.offsets, offsets)
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.log = l
		}
	}
}

// WithStart sets the milestone the actor starts from and returns to on Reset.
func WithStart(index int) Option {
	return func(s *Synchronizer) {
		s.start = index
	}
}
