package queue

import "time"

// EnqueuerOption is a functional option for configuring an Enqueuer
type EnqueuerOption func(*enqueuerOptions)

type enqueuerOptions struct {
	defaultVHost string
	defaultGroup string
	defaultQueue string
}

// WithDefaultVHost sets the virtual host used by Enqueue
func WithDefaultVHost(vhost string) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if vhost != "" {
			o.defaultVHost = vhost
		}
	}
}

// WithDefaultGroup sets the queue group used when the call names none
func WithDefaultGroup(group string) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if group != "" {
			o.defaultGroup = group
		}
	}
}

// WithDefaultQueue sets the default queue name
func WithDefaultQueue(queue string) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if queue != "" {
			o.defaultQueue = queue
		}
	}
}

// EnqueueOption is a functional option for the Enqueue method
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue       string
	group       string
	key         string
	delay       time.Duration
	scheduledAt *time.Time
}

// WithQueue sets the queue for the message. Only the Enqueuer facade reads
// it; Engine.Enqueue takes the queue from its Target.
func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithGroup sets the queue group
func WithGroup(group string) EnqueueOption {
	return func(o *enqueueOptions) {
		if group != "" {
			o.group = group
		}
	}
}

// WithKey sets the message key. Enqueueing again with the same key replaces
// the pending message.
func WithKey(key string) EnqueueOption {
	return func(o *enqueueOptions) {
		if key != "" {
			o.key = key
		}
	}
}

// WithDelay sets a delay before the message can be processed
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

// WithScheduledAt sets a specific time for the message to be processed.
// It wins over WithDelay.
func WithScheduledAt(scheduledAt time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.scheduledAt = &scheduledAt
	}
}
