// Package queue implements a persistent, multi-tenant work queue with
// at-least-once delivery, exponential retry and delayed visibility.
//
// The package is organised around a few components:
//
//   - Storage   - per virtual host persistence of messages; MemoryStorage here,
//     PostgreSQL and Redis implementations in the pgstore and redisstore
//     subpackages
//   - Engine    - routes enqueue, claim, ack, nack and administrative calls to
//     the Storage bound to each virtual host
//   - Worker    - claims one message at a time from one queue and resolves the
//     Callback outcome
//   - Enqueuer  - producer facade with a default virtual host, group and queue
//   - Scheduler - turns Schedule definitions into delayed messages
//
// # Message lifecycle
//
// A message is identified by MessageID(vhost, group, queue, key). Enqueueing
// again with the same key overwrites the pending message in place, keeping its
// creation time; this is how callers debounce or reschedule work.
//
// Claim hands out one claimable message ordered by (SyncCount, CreatedAt)
// together with a random lease token. Ack with the lease deletes the message;
// Nack with the lease increments SyncCount and hides the message for a custom
// delay or Backoff(SyncCount) = 2^SyncCount minutes. A claim older than the
// lease timeout is treated as abandoned and the message becomes claimable
// again with its SyncCount unchanged.
//
// # Usage
//
//	storage := queue.NewMemoryStorage()
//	engine := queue.NewEngine()
//	_ = engine.Register(queue.DefaultVHost, storage)
//
//	key, err := engine.Enqueue(ctx, queue.DefaultVHost,
//	    queue.Target{Queue: "orders"}, map[string]int{"id": 42})
//
//	cb := queue.NewCallback(func(ctx context.Context, order Order, msg *queue.Message) error {
//	    if err := ship(ctx, order); err != nil {
//	        return queue.RetryAfter(2 * time.Minute)
//	    }
//	    return nil
//	})
//	w, _ := queue.NewWorker(engine, "orders", cb)
//	go w.Run(ctx)
//
// # Error Handling
//
// Package-level sentinel errors (e.g. ErrNoMessage, ErrUnknownVHost,
// ErrLeaseLost) can be checked with errors.Is. Callback failures never
// propagate out of a Worker: they become a nack.
package queue
