package catalog

import "errors"

var (
	// ErrCatalogUnavailable is returned when no catalog was provided.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrEmptyCatalog is returned when the catalog has no procedures.
	ErrEmptyCatalog = errors.New("catalog has no procedures")
	// ErrDuplicateID is returned when a timeline or procedure id repeats.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrInvalidProcedure is returned when procedure parameters do not fit its condition.
	ErrInvalidProcedure = errors.New("invalid procedure")
	// ErrInvalidRoute is returned when the route description is inconsistent.
	ErrInvalidRoute = errors.New("invalid route")
)
