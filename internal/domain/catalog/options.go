package catalog

import "maps"

// Option configures a Static catalog.
type Option func(*Static)

// WithOffsets sets named step milestone offsets.
func WithOffsets(offsets map[string]int) Option {
	return func(s *Static) {
		maps.Copy(s.offsets, offsets)
	}
}
