package skip

import "errors"

var (
	// ErrUnknownTarget is returned when the target procedure is not in the catalog.
	ErrUnknownTarget = errors.New("unknown skip target")
	// ErrStale is returned when the target is not ahead of the cursor or pending target.
	ErrStale = errors.New("stale skip target")
	// ErrNotParked is returned by Resume when no skip is pending.
	ErrNotParked = errors.New("no parked skip")
)
