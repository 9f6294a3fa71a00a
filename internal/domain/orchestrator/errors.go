package orchestrator

import "errors"

var (
	// ErrCatalogUnavailable is fatal: the session cannot begin.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrUnknownProcedure is a configuration error: the id is not in the catalog.
	ErrUnknownProcedure = errors.New("unknown procedure")
	// ErrUnknownTimeline is a configuration error: the id or index is not in the catalog.
	ErrUnknownTimeline = errors.New("unknown timeline")
	// ErrStaleCommand marks a command referencing an already passed procedure.
	ErrStaleCommand = errors.New("stale or duplicate command")
	// ErrAlreadyCurrent marks a command targeting the current procedure or timeline.
	ErrAlreadyCurrent = errors.New("already current")
	// ErrInvalidOverride marks an override that does not match the active procedure.
	ErrInvalidOverride = errors.New("override not valid for active procedure")
	// ErrInvalidState marks an unknown training state.
	ErrInvalidState = errors.New("invalid training state")
	// ErrUnknownCommand marks an unknown command kind.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrSessionEnded is returned for commands after the session ended.
	ErrSessionEnded = errors.New("session ended")
	// ErrNoActiveProcedure is returned when completion is requested with nothing active.
	ErrNoActiveProcedure = errors.New("no active procedure")
)
