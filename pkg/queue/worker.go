package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/status"
)

// Consumer is the worker side of the engine.
type Consumer interface {
	Claim(ctx context.Context, vhost, group, queue string) (*Message, error)
	Ack(ctx context.Context, msg *Message) (bool, error)
	Nack(ctx context.Context, msg *Message, customDelay time.Duration) (bool, error)
}

// retireTimeout bounds the status record cleanup on exit.
const retireTimeout = 5 * time.Second

// Worker consumes one (vhost, group, queue) slot, one message at a time.
// Its status record is the stop channel: the supervisor sets Stopping or
// Force there and the worker notices at the top of its next iteration.
type Worker struct {
	consumer Consumer
	callback Callback
	records  status.Store

	vhost    string
	group    string
	queue    string
	index    int
	instance string

	pollInterval time.Duration
	logger       *slog.Logger

	announced atomic.Bool
	running   atomic.Bool
	busy      atomic.Bool
	done      chan struct{}
}

// NewWorker creates a worker for queue served by callback.
func NewWorker(consumer Consumer, queue string, callback Callback, opts ...WorkerOption) (*Worker, error) {
	if consumer == nil {
		return nil, ErrConsumerNil
	}
	if callback == nil {
		return nil, ErrCallbackNil
	}
	if queue == "" {
		return nil, ErrQueueNameRequired
	}

	// Default options
	options := &workerOptions{
		vhost:        DefaultVHost,
		group:        DefaultGroup,
		pollInterval: 100 * time.Millisecond,
		logger:       slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		opt(options)
	}

	if options.records == nil {
		options.records = status.NewMemoryStore()
	}

	return &Worker{
		consumer:     consumer,
		callback:     callback,
		records:      options.records,
		vhost:        options.vhost,
		group:        options.group,
		queue:        queue,
		index:        options.index,
		instance:     uuid.NewString(),
		pollInterval: options.pollInterval,
		logger: options.logger.With(
			logger.Component("worker"),
			logger.VHost(options.vhost),
			logger.Queue(queue),
			logger.WorkerIndex(options.index),
		),
		done: make(chan struct{}),
	}, nil
}

// Key returns the key of the worker's status record.
func (w *Worker) Key() status.Key {
	return status.WorkerKey(w.vhost, w.queue, w.index)
}

// Instance identifies this worker among successive occupants of its slot.
func (w *Worker) Instance() string { return w.instance }

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Busy reports whether a callback is running.
func (w *Worker) Busy() bool { return w.busy.Load() }

// Announce writes the worker's status record. Run calls it when the caller
// has not, but a supervisor announces first so that the slot is visible
// before the goroutine is scheduled.
func (w *Worker) Announce(ctx context.Context) error {
	now := time.Now()
	rec := &status.Record{
		Role:      status.RoleWorker,
		VHost:     w.vhost,
		Queue:     w.queue,
		Index:     w.index,
		PID:       os.Getpid(),
		Instance:  w.instance,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := w.records.Put(ctx, rec); err != nil {
		return fmt.Errorf("announce worker %s: %w", w.Key(), err)
	}
	w.announced.Store(true)
	return nil
}

// Run processes messages until the status record asks it to stop, the record
// disappears, or ctx is cancelled. Cancelling ctx is the forced stop: a
// callback in flight sees the cancellation and its outcome is not resolved,
// so the claim is left to expire.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrWorkerStarted
	}
	defer close(w.done)

	if !w.announced.Load() {
		if err := w.Announce(ctx); err != nil {
			return err
		}
	}
	defer w.retire(ctx)

	w.logger.InfoContext(ctx, "worker started",
		logger.Callback(w.callback.Name()),
		logger.PID(os.Getpid()))

	for {
		if w.shouldExit(ctx) {
			return nil
		}

		msg, err := w.consumer.Claim(ctx, w.vhost, w.group, w.queue)
		if err != nil {
			if !errors.Is(err, ErrNoMessage) && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "failed to claim message", logger.Error(err))
			}
			if !w.sleep(ctx) {
				return nil
			}
			continue
		}

		w.process(ctx, msg)
	}
}

// shouldExit reads the status record and decides whether the loop ends.
// The worker is idle whenever this runs.
func (w *Worker) shouldExit(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}

	rec, err := w.records.Get(ctx, w.Key())
	switch {
	case errors.Is(err, status.ErrNotFound):
		w.logger.InfoContext(ctx, "status record removed, worker exiting")
		return true
	case err != nil:
		// Keep working; a stop request will be seen on a later read.
		w.logger.WarnContext(ctx, "failed to read status record", logger.Error(err))
		return false
	case rec.Instance != w.instance:
		w.logger.WarnContext(ctx, "status record owned by another instance, worker exiting")
		return true
	case rec.Force:
		w.logger.InfoContext(ctx, "forced stop requested, worker exiting")
		return true
	case rec.Stopping:
		w.logger.InfoContext(ctx, "stop requested, worker exiting")
		return true
	}
	return false
}

func (w *Worker) process(ctx context.Context, msg *Message) {
	start := time.Now()
	log := w.logger.With(
		logger.MessageID(msg.ID),
		logger.MessageKey(msg.Key),
		logger.RetryCount(msg.SyncCount),
	)

	w.busy.Store(true)
	defer w.busy.Store(false)
	w.setBusy(ctx, true)

	err := Execute(ctx, w.callback, msg)

	if ctx.Err() != nil {
		log.WarnContext(ctx, "worker cancelled mid-processing, claim left to expire",
			logger.Error(err))
		return
	}

	applied, resolveErr := Resolve(ctx, w.consumer, msg, err)
	duration := time.Since(start)

	switch {
	case resolveErr != nil:
		// The claim expires and the message comes back.
		log.ErrorContext(ctx, "failed to resolve message",
			logger.Error(resolveErr),
			logger.Duration(duration))
	case !applied:
		log.WarnContext(ctx, "lease lost before resolution, outcome dropped",
			logger.Error(err),
			logger.Duration(duration))
	case err == nil:
		log.InfoContext(ctx, "message processed", logger.Duration(duration))
	default:
		delay, custom := RetryDelay(err)
		if !custom {
			delay = Backoff(msg.SyncCount)
		}
		log.WarnContext(ctx, "message failed, retry scheduled",
			logger.Error(err),
			slog.Duration("retry_in", delay),
			logger.Duration(duration))
	}

	w.setBusy(ctx, false)
}

func (w *Worker) setBusy(ctx context.Context, busy bool) {
	_, err := w.records.Update(ctx, w.Key(), func(r *status.Record) {
		if r.Instance == w.instance {
			r.Busy = busy
		}
	})
	if err != nil && !errors.Is(err, status.ErrNotFound) {
		w.logger.WarnContext(ctx, "failed to update status record", logger.Error(err))
	}
}

// sleep waits a jittered poll interval. It reports false when ctx ended.
func (w *Worker) sleep(ctx context.Context) bool {
	d := w.pollInterval/2 + rand.N(w.pollInterval)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// retire deletes the status record unless another instance owns the slot.
func (w *Worker) retire(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), retireTimeout)
	defer cancel()

	rec, err := w.records.Get(ctx, w.Key())
	if err == nil && rec.Instance == w.instance {
		err = w.records.Delete(ctx, w.Key())
	}
	if err != nil && !errors.Is(err, status.ErrNotFound) {
		w.logger.ErrorContext(ctx, "failed to delete status record", logger.Error(err))
	}

	w.logger.InfoContext(ctx, "worker stopped")
}

// Execute runs the callback and turns a panic into an ErrCallbackPanic error.
func Execute(ctx context.Context, callback Callback, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrCallbackPanic, callback.Name(), r)
		}
	}()
	return callback.Handle(ctx, msg)
}

// Resolve applies a callback outcome: nil acks, RetryAfter nacks with the
// custom delay, anything else nacks with the default backoff. It reports
// false when the lease no longer owns the message.
func Resolve(ctx context.Context, consumer Consumer, msg *Message, callbackErr error) (bool, error) {
	if callbackErr == nil {
		return consumer.Ack(ctx, msg)
	}
	delay, _ := RetryDelay(callbackErr)
	return consumer.Nack(ctx, msg, delay)
}
