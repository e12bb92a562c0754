package queue

import (
	"context"
	"time"
)

// Storage persists the messages of one virtual host. Every implementation
// must make Claim, Lock, Ack and Nack atomic with respect to each other,
// across processes that share the backend.
type Storage interface {
	// Enqueue upserts msg by ID. An overwrite clears the claim, resets the
	// retry count and VisibleAt, replaces the payload and keeps CreatedAt.
	Enqueue(ctx context.Context, msg *Message, delay time.Duration) (*Message, error)

	// Claim takes the next claimable message of (group, queue) ordered by
	// (SyncCount, CreatedAt) and returns it with a fresh lease.
	// It returns ErrNoMessage when nothing is claimable.
	Claim(ctx context.Context, group, queue string) (*Message, error)

	// Ack deletes the message iff lease still owns it.
	Ack(ctx context.Context, id, lease string) (bool, error)

	// Nack releases the claim iff lease still owns it, increments SyncCount
	// and makes the message visible again after delay.
	Nack(ctx context.Context, id, lease string, delay time.Duration) (bool, error)

	// Peek returns up to n claimable messages in claim order without
	// claiming them.
	Peek(ctx context.Context, group, queue string, n int) ([]*Message, error)

	// Length counts every message of the queue regardless of state.
	Length(ctx context.Context, group, queue string) (int, error)

	// Clear deletes every message of the queue and returns how many went.
	Clear(ctx context.Context, group, queue string) (int, error)

	List(ctx context.Context, filter Filter) (*Page, error)
	Get(ctx context.Context, id string) (*Message, error)
	Delete(ctx context.Context, id string) error

	// Reset clears retry state and claim and makes the message visible now.
	Reset(ctx context.Context, id string) (*Message, error)

	// Lock claims the message by id regardless of visibility. It fails with
	// ErrLocked while another valid claim exists.
	Lock(ctx context.Context, id string) (*Message, error)

	// Unlock releases a claim without counting a failed attempt and makes
	// the message visible now. An empty lease releases unconditionally.
	Unlock(ctx context.Context, id, lease string) (*Message, error)

	// ReleaseExpired clears claims older than the lease timeout.
	ReleaseExpired(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close() error
}
