package domain

import "errors"

var (
	// ErrValidation marks rejected input; wrap it with the concrete reason.
	ErrValidation = errors.New("validation failed")
	// ErrSchedulingConflict is returned when a candidate time window overlaps
	// an existing non-completed activity for the same owner.
	ErrSchedulingConflict = errors.New("an activity is already scheduled for that window")
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrOwnerMissing is returned when an operation requires an owner id and
	// none was supplied.
	ErrOwnerMissing = errors.New("owner id is required")
)
