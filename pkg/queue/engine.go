package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
)

// Engine routes every queue operation to the Storage bound to the message's
// virtual host. Bindings are decided once, at wiring time; the engine holds
// no per-call ambient state and is safe for concurrent use.
type Engine struct {
	mu    sync.RWMutex
	hosts map[string]Storage

	now    func() time.Time
	logger *slog.Logger
}

// NewEngine creates an engine with no virtual hosts.
func NewEngine(opts ...EngineOption) *Engine {
	options := &engineOptions{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Engine{
		hosts:  make(map[string]Storage),
		now:    options.now,
		logger: options.logger,
	}
}

// Register binds vhost to storage. An empty vhost means DefaultVHost.
func (e *Engine) Register(vhost string, storage Storage) error {
	if storage == nil {
		return ErrStorageNil
	}
	vhost = orDefault(vhost, DefaultVHost)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.hosts[vhost]; ok {
		return fmt.Errorf("%w: %s", ErrVHostRegistered, vhost)
	}
	e.hosts[vhost] = storage

	e.logger.Debug("virtual host registered", logger.VHost(vhost))
	return nil
}

// Storage returns the storage bound to vhost.
func (e *Engine) Storage(vhost string) (Storage, error) {
	vhost = orDefault(vhost, DefaultVHost)

	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.hosts[vhost]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVHost, vhost)
	}
	return s, nil
}

// VHosts returns the registered virtual hosts, sorted.
func (e *Engine) VHosts() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return slices.Sorted(maps.Keys(e.hosts))
}

// Enqueue stores payload under target and returns the message key. Reusing
// a key replaces the pending message with the same key.
func (e *Engine) Enqueue(ctx context.Context, vhost string, target Target, payload any, opts ...EnqueueOption) (string, error) {
	options := &enqueueOptions{
		group: DefaultGroup,
		key:   target.Key,
		delay: target.Delay,
	}
	for _, opt := range opts {
		opt(options)
	}

	if target.Queue == "" {
		return "", ErrQueueNameRequired
	}

	data, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	storage, err := e.Storage(vhost)
	if err != nil {
		return "", err
	}
	vhost = orDefault(vhost, DefaultVHost)

	key := options.key
	if key == "" {
		key = uuid.NewString()
	}

	delay := options.delay
	if options.scheduledAt != nil {
		delay = options.scheduledAt.Sub(e.now())
	}

	msg := &Message{
		ID:      MessageID(vhost, options.group, target.Queue, key),
		VHost:   vhost,
		Group:   options.group,
		Queue:   target.Queue,
		Key:     key,
		Payload: data,
	}

	stored, err := storage.Enqueue(ctx, msg, max(delay, 0))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue message in queue %q: %w", target.Queue, err)
	}

	e.logger.DebugContext(ctx, "message enqueued",
		logger.VHost(vhost),
		logger.Queue(target.Queue),
		logger.MessageKey(stored.Key),
		logger.MessageID(stored.ID))

	return stored.Key, nil
}

// EnqueueBatch enqueues items one by one and returns the produced keys. It
// stops at the first failure and returns the keys produced so far.
func (e *Engine) EnqueueBatch(ctx context.Context, vhost string, items []Item) ([]string, error) {
	if len(items) == 0 {
		return nil, ErrNoItemsToEnqueue
	}

	keys := make([]string, 0, len(items))
	for i, item := range items {
		key, err := e.Enqueue(ctx, vhost, item.Target, item.Payload, item.Options...)
		if err != nil {
			return keys, fmt.Errorf("batch item %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Claim takes the next claimable message of the queue.
func (e *Engine) Claim(ctx context.Context, vhost, group, queue string) (*Message, error) {
	storage, err := e.Storage(vhost)
	if err != nil {
		return nil, err
	}
	return storage.Claim(ctx, orDefault(group, DefaultGroup), queue)
}

// Ack deletes a claimed message. It reports false when the lease was lost.
func (e *Engine) Ack(ctx context.Context, msg *Message) (bool, error) {
	storage, err := e.Storage(msg.VHost)
	if err != nil {
		return false, err
	}
	return storage.Ack(ctx, msg.ID, msg.Lease)
}

// Nack releases a claimed message for retry. A positive customDelay wins
// over the default Backoff(msg.SyncCount).
func (e *Engine) Nack(ctx context.Context, msg *Message, customDelay time.Duration) (bool, error) {
	storage, err := e.Storage(msg.VHost)
	if err != nil {
		return false, err
	}

	delay := customDelay
	if delay <= 0 {
		delay = Backoff(msg.SyncCount)
	}
	return storage.Nack(ctx, msg.ID, msg.Lease, delay)
}

func (e *Engine) Get(ctx context.Context, vhost, id string) (*Message, error) {
	storage, err := e.Storage(vhost)
	if err != nil {
		return nil, err
	}
	return storage.Get(ctx, id)
}

// LockByID claims a message for an operator regardless of visibility.
func (e *Engine) LockByID(ctx context.Context, vhost, id string) (*Message, error) {
	storage, err := e.Storage(vhost)
	if err != nil {
		return nil, err
	}
	return storage.Lock(ctx, id)
}

// UnlockByID releases a claim without counting a failure. An empty lease
// releases whatever claim the message holds.
func (e *Engine) UnlockByID(ctx context.Context, vhost, id, lease string) (*Message, error) {
	storage, err := e.Storage(vhost)
	if err != nil {
		return nil, err
	}
	return storage.Unlock(ctx, id, lease)
}

// AckByID resolves a message as done on an operator's behalf, whoever holds it.
func (e *Engine) AckByID(ctx context.Context, vhost, id string) error {
	storage, err := e.Storage(vhost)
	if err != nil {
		return err
	}
	return storage.Delete(ctx, id)
}

func (e *Engine) ResetByID(ctx context.Context, vhost, id string) (*Message, error) {
	storage, err := e.Storage(vhost)
	if err != nil {
		return nil, err
	}
	return storage.Reset(ctx, id)
}

func (e *Engine) DeleteByID(ctx context.Context, vhost, id string) error {
	storage, err := e.Storage(vhost)
	if err != nil {
		return err
	}
	return storage.Delete(ctx, id)
}

func (e *Engine) Peek(ctx context.Context, vhost, group, queue string, n int) ([]*Message, error) {
	storage, err := e.Storage(vhost)
	if err != nil {
		return nil, err
	}
	return storage.Peek(ctx, orDefault(group, DefaultGroup), queue, n)
}

func (e *Engine) Length(ctx context.Context, vhost, group, queue string) (int, error) {
	storage, err := e.Storage(vhost)
	if err != nil {
		return 0, err
	}
	return storage.Length(ctx, orDefault(group, DefaultGroup), queue)
}

func (e *Engine) Clear(ctx context.Context, vhost, group, queue string) (int, error) {
	storage, err := e.Storage(vhost)
	if err != nil {
		return 0, err
	}
	return storage.Clear(ctx, orDefault(group, DefaultGroup), queue)
}

func (e *Engine) List(ctx context.Context, vhost string, filter Filter) (*Page, error) {
	storage, err := e.Storage(vhost)
	if err != nil {
		return nil, err
	}
	return storage.List(ctx, filter.Normalize())
}

// ReleaseExpired sweeps abandoned claims on every virtual host. A failing
// host does not stop the sweep of the others.
func (e *Engine) ReleaseExpired(ctx context.Context) (int, error) {
	e.mu.RLock()
	hosts := maps.Clone(e.hosts)
	e.mu.RUnlock()

	var (
		total int
		errs  []error
	)
	for vhost, storage := range hosts {
		n, err := storage.ReleaseExpired(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("release expired leases on %s: %w", vhost, err))
			continue
		}
		if n > 0 {
			e.logger.InfoContext(ctx, "released expired leases",
				logger.VHost(vhost),
				slog.Int("count", n))
		}
		total += n
	}
	return total, errors.Join(errs...)
}

// Ping checks every backend.
func (e *Engine) Ping(ctx context.Context) error {
	e.mu.RLock()
	hosts := maps.Clone(e.hosts)
	e.mu.RUnlock()

	var errs []error
	for vhost, storage := range hosts {
		if err := storage.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ping %s: %w", vhost, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every storage.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for vhost, storage := range e.hosts {
		if err := storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", vhost, err))
		}
	}
	clear(e.hosts)
	return errors.Join(errs...)
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, ErrPayloadNil
	case json.RawMessage:
		if p == nil {
			return nil, ErrPayloadNil
		}
		if !json.Valid(p) {
			return nil, ErrPayloadMarshal
		}
		return p, nil
	case []byte:
		if p == nil {
			return nil, ErrPayloadNil
		}
		if !json.Valid(p) {
			return nil, ErrPayloadMarshal
		}
		return json.RawMessage(p), nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Join(ErrPayloadMarshal, fmt.Errorf("payload of type %T: %w", payload, err))
	}
	return data, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
