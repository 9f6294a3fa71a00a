package route

import "errors"

var (
	// ErrNoMilestone is returned when a Point procedure resolves to no milestone.
	ErrNoMilestone = errors.New("point procedure has no milestone")
	// ErrOffRoute is returned when a milestone lies outside the route.
	ErrOffRoute = errors.New("milestone outside route")
	// ErrGateMismatch is returned when gates and Point procedures do not pair 1:1.
	ErrGateMismatch = errors.New("completion gates do not match point procedures")
)
