package lifecycle

import "errors"

var (
	// ErrInvalidTransition is returned when a status change is not allowed
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidStatus is returned when a status is not part of the enumeration
	ErrInvalidStatus = errors.New("invalid status")
)
