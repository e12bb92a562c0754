package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Producer is the enqueue side of the engine.
type Producer interface {
	Enqueue(ctx context.Context, vhost string, target Target, payload any, opts ...EnqueueOption) (string, error)
}

// Target addresses a message: queue name, optional key and optional delay.
type Target struct {
	Queue string
	Key   string
	Delay time.Duration
}

// ParseTarget parses "queue", "queue:key" or "queue:key:delay". The delay is
// whole seconds or a Go duration string ("90s", "5m").
func ParseTarget(s string) (Target, error) {
	parts := strings.SplitN(s, ":", 3)

	t := Target{Queue: strings.TrimSpace(parts[0])}
	if t.Queue == "" {
		return Target{}, fmt.Errorf("%w: %q: empty queue name", ErrInvalidTarget, s)
	}
	if len(parts) > 1 {
		t.Key = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		d, err := parseDelay(strings.TrimSpace(parts[2]))
		if err != nil {
			return Target{}, fmt.Errorf("%w: %q: %v", ErrInvalidTarget, s, err)
		}
		t.Delay = d
	}
	return t, nil
}

func parseDelay(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative delay %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative delay %s", d)
	}
	return d, nil
}

// Item is one entry of a batch enqueue.
type Item struct {
	Target  Target
	Payload any
	Options []EnqueueOption
}

// Enqueuer is a producer bound to a default virtual host, group and queue.
type Enqueuer struct {
	producer     Producer
	defaultVHost string
	defaultGroup string
	defaultQueue string
}

// NewEnqueuer creates a new Enqueuer
func NewEnqueuer(producer Producer, opts ...EnqueuerOption) (*Enqueuer, error) {
	if producer == nil {
		return nil, ErrProducerNil
	}

	options := &enqueuerOptions{
		defaultVHost: DefaultVHost,
		defaultGroup: DefaultGroup,
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		producer:     producer,
		defaultVHost: options.defaultVHost,
		defaultGroup: options.defaultGroup,
		defaultQueue: options.defaultQueue,
	}, nil
}

// Enqueue adds a message to the default virtual host and returns its key.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (string, error) {
	if payload == nil {
		return "", ErrPayloadNil
	}

	options := &enqueueOptions{queue: e.defaultQueue}
	for _, opt := range opts {
		opt(options)
	}
	if options.queue == "" {
		return "", ErrQueueNameRequired
	}

	all := make([]EnqueueOption, 0, len(opts)+1)
	all = append(all, WithGroup(e.defaultGroup))
	all = append(all, opts...)

	return e.producer.Enqueue(ctx, e.defaultVHost, Target{Queue: options.queue}, payload, all...)
}

// EnqueueTo parses target as "queue[:key[:delay]]" and enqueues payload there.
func (e *Enqueuer) EnqueueTo(ctx context.Context, target string, payload any, opts ...EnqueueOption) (string, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return "", err
	}

	all := make([]EnqueueOption, 0, len(opts)+1)
	all = append(all, WithGroup(e.defaultGroup))
	all = append(all, opts...)

	return e.producer.Enqueue(ctx, e.defaultVHost, t, payload, all...)
}

// EnqueueBatch enqueues every payload into the default queue, in order.
func (e *Enqueuer) EnqueueBatch(ctx context.Context, payloads []any, opts ...EnqueueOption) ([]string, error) {
	if len(payloads) == 0 {
		return nil, ErrNoItemsToEnqueue
	}

	keys := make([]string, 0, len(payloads))
	for i, p := range payloads {
		key, err := e.Enqueue(ctx, p, opts...)
		if err != nil {
			return keys, fmt.Errorf("batch item %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
