package schedule

import "errors"

// Domain errors for the schedule package, checked with errors.Is().
var (
	// ErrUnparseableTime is returned when an entry's fire time cannot be
	// interpreted as a wall-clock time.
	ErrUnparseableTime = errors.New("schedule: unparseable time")

	// ErrInvalidDay is returned when a day key is neither a weekday name
	// nor a parseable date.
	ErrInvalidDay = errors.New("schedule: invalid day")

	// ErrInvalidEntry is returned when an entry fails validation.
	ErrInvalidEntry = errors.New("schedule: invalid entry")

	// ErrEntryNotFound is returned when deleting an unknown schedule id.
	ErrEntryNotFound = errors.New("schedule: entry not found")
)
