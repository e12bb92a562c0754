package queue

import (
	"log/slog"
	"time"
)

// SchedulerOption is a functional option for configuring a scheduler
type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	checkInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// WithCheckInterval sets how often scheduler checks for due schedules
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.checkInterval = d
		}
	}
}

// WithSchedulerClock replaces the wall clock
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(o *schedulerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSchedulerLogger sets the logger for the scheduler
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// ScheduleOption is a functional option for configuring a registered schedule
type ScheduleOption func(*scheduleOptions)

type scheduleOptions struct {
	vhost   string
	group   string
	queue   string
	payload any
}

// WithScheduleVHost sets the virtual host the schedule enqueues into
func WithScheduleVHost(vhost string) ScheduleOption {
	return func(o *scheduleOptions) {
		if vhost != "" {
			o.vhost = vhost
		}
	}
}

// WithScheduleGroup sets the queue group the schedule enqueues into
func WithScheduleGroup(group string) ScheduleOption {
	return func(o *scheduleOptions) {
		if group != "" {
			o.group = group
		}
	}
}

// WithScheduleQueue sets the queue the schedule enqueues into
func WithScheduleQueue(queue string) ScheduleOption {
	return func(o *scheduleOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithSchedulePayload sets the payload of every occurrence
func WithSchedulePayload(payload any) ScheduleOption {
	return func(o *scheduleOptions) {
		if payload != nil {
			o.payload = payload
		}
	}
}
