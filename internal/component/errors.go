package component

import "errors"

// Domain errors for the component package, checked with errors.Is().
var (
	// ErrNotFound is returned when a component id or uuid does not exist.
	ErrNotFound = errors.New("component: not found")

	// ErrExists is returned when creating a component whose stable id or
	// uuid is already registered.
	ErrExists = errors.New("component: already exists")

	// ErrInvalid is returned when component validation fails.
	ErrInvalid = errors.New("component: invalid")

	// ErrInvalidKind is returned when a kind value is not recognised.
	ErrInvalidKind = errors.New("component: invalid kind")

	// ErrInvalidID is returned when a stable id is empty or malformed.
	ErrInvalidID = errors.New("component: invalid id")

	// ErrNoIdentity is returned when a heartbeat carries neither uuid nor id.
	ErrNoIdentity = errors.New("component: heartbeat without identity")
)
