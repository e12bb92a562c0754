package queue

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
)

// Scheduler turns Schedule definitions into delayed messages. It keeps one
// future occurrence of every schedule enqueued ahead of time, keyed by
// schedule name and due instant, so a restarted scheduler overwrites the
// pending occurrence instead of duplicating it.
type Scheduler struct {
	producer  Producer
	schedules map[string]*scheduledMessage
	mu        sync.RWMutex
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// scheduledMessage holds configuration for a periodic message
type scheduledMessage struct {
	name     string
	schedule Schedule
	vhost    string
	group    string
	queue    string
	payload  any
	next     time.Time // occurrence currently enqueued; zero before the first
}

// NewScheduler creates a new scheduler enqueueing through producer
func NewScheduler(producer Producer, opts ...SchedulerOption) (*Scheduler, error) {
	if producer == nil {
		return nil, ErrProducerNil
	}

	// Default options
	options := &schedulerOptions{
		checkInterval: 30 * time.Second,
		now:           time.Now,
		logger:        slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		producer:  producer,
		schedules: make(map[string]*scheduledMessage),
		interval:  options.checkInterval,
		now:       options.now,
		logger:    options.logger.With(logger.Component("scheduler")),
	}, nil
}

// Add registers a periodic message. The queue defaults to the schedule name.
func (s *Scheduler) Add(name string, schedule Schedule, opts ...ScheduleOption) error {
	if name == "" || schedule == nil {
		return ErrInvalidSchedule
	}

	options := &scheduleOptions{
		vhost: DefaultVHost,
		group: DefaultGroup,
		queue: name,
	}
	for _, opt := range opts {
		opt(options)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[name]; exists {
		return ErrScheduleAlreadyRegistered
	}

	s.schedules[name] = &scheduledMessage{
		name:     name,
		schedule: schedule,
		vhost:    options.vhost,
		group:    options.group,
		queue:    options.queue,
		payload:  options.payload,
	}

	s.logger.Info("registered schedule",
		slog.String("schedule_name", name),
		slog.String("schedule", schedule.String()),
		logger.VHost(options.vhost),
		logger.Queue(options.queue))

	return nil
}

// Remove unregisters a schedule. An occurrence already enqueued stays.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.schedules, name)

	s.logger.Info("removed schedule",
		slog.String("schedule_name", name))
}

// List returns all registered schedule names, sorted
func (s *Scheduler) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.schedules))
}

// Start checks schedules immediately and then every check interval until ctx
// ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.RLock()
	count := len(s.schedules)
	s.mu.RUnlock()

	if count == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Check immediately on start
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick enqueues the next occurrence of every schedule whose current
// occurrence is due.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.RLock()
	snapshot := slices.Collect(maps.Values(s.schedules))
	s.mu.RUnlock()

	now := s.now()
	for _, sm := range snapshot {
		if err := s.enqueueIfDue(ctx, sm, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to enqueue scheduled message",
				slog.String("schedule_name", sm.name),
				logger.Error(err))
		}
	}
}

func (s *Scheduler) enqueueIfDue(ctx context.Context, sm *scheduledMessage, now time.Time) error {
	s.mu.RLock()
	current := sm.next
	s.mu.RUnlock()

	// A future occurrence is already waiting in the queue.
	if !current.IsZero() && current.After(now) {
		return nil
	}

	next := nextOccurrence(sm.schedule, current, now)
	key := fmt.Sprintf("%s@%d", sm.name, next.Unix())

	payload := sm.payload
	if payload == nil {
		payload = map[string]any{
			"schedule":      sm.name,
			"scheduled_for": next,
		}
	}

	_, err := s.producer.Enqueue(ctx, sm.vhost, Target{Queue: sm.queue, Key: key}, payload,
		WithGroup(sm.group),
		WithScheduledAt(next))
	if err != nil {
		return err
	}

	s.mu.Lock()
	sm.next = next
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "scheduled message enqueued",
		slog.String("schedule_name", sm.name),
		logger.MessageKey(key),
		slog.Time("scheduled_for", next))

	return nil
}

// nextOccurrence returns the first occurrence after now. Occurrences missed
// while the scheduler was down are skipped, not replayed.
func nextOccurrence(schedule Schedule, last, now time.Time) time.Time {
	from := now
	if !last.IsZero() {
		from = last
	}

	next := schedule.Next(from)
	for !next.After(now) {
		prev := next
		next = schedule.Next(prev)
		if !next.After(prev) {
			break
		}
	}
	return next
}
