package status

import "context"

// Store persists status records.
type Store interface {
	// Get returns the record stored under key or ErrNotFound.
	Get(ctx context.Context, key Key) (*Record, error)

	// Put creates or replaces a record.
	Put(ctx context.Context, rec *Record) error

	// Update applies fn to the current record and stores the result.
	// Returns ErrNotFound when there is nothing to update.
	Update(ctx context.Context, key Key, fn func(*Record)) (*Record, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, key Key) error

	// List returns all records of the given role, ordered by key.
	List(ctx context.Context, role Role) ([]*Record, error)
}
