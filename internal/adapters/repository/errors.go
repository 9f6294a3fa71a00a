package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrInvalidLimit   = errors.New("invalid record limit")
	ErrMissingSession = errors.New("session id is required")
	ErrUnsupportedDB  = errors.New("unsupported database driver")
)
