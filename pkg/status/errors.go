package status

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("status record not found")

	// ErrInvalidRecord is returned when a record cannot be stored or decoded.
	ErrInvalidRecord = errors.New("invalid status record")
)
