package queue

import "errors"

var (
	// ErrNoMessage is returned by Claim when nothing is claimable
	ErrNoMessage = errors.New("no claimable message")

	// ErrNotFound is returned when no message has the requested id
	ErrNotFound = errors.New("message not found")

	// ErrLocked is returned when a manual lock meets a valid claim
	ErrLocked = errors.New("message is locked")

	// ErrLeaseLost is returned when the presented lease no longer owns the message
	ErrLeaseLost = errors.New("lease does not match")

	// ErrUnknownVHost is returned when no storage is registered for a virtual host
	ErrUnknownVHost = errors.New("unknown virtual host")

	// ErrVHostRegistered is returned when a virtual host is bound twice
	ErrVHostRegistered = errors.New("virtual host already registered")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrPayloadMarshal is returned when payload marshaling fails
	ErrPayloadMarshal = errors.New("failed to marshal payload to JSON")

	// ErrStorageNil is returned when a nil storage is provided
	ErrStorageNil = errors.New("storage cannot be nil")

	// ErrProducerNil is returned when a nil producer is provided
	ErrProducerNil = errors.New("producer cannot be nil")

	// ErrConsumerNil is returned when a nil consumer is provided
	ErrConsumerNil = errors.New("consumer cannot be nil")

	// ErrCallbackNil is returned when a worker is built without a callback
	ErrCallbackNil = errors.New("callback cannot be nil")

	// ErrCallbackPanic wraps a recovered callback panic
	ErrCallbackPanic = errors.New("callback panicked")

	// ErrQueueNameRequired is returned when the queue name is empty
	ErrQueueNameRequired = errors.New("queue name is required")

	// ErrInvalidTarget is returned when a "queue:key:delay" target cannot be parsed
	ErrInvalidTarget = errors.New("invalid enqueue target")

	// ErrNoItemsToEnqueue is returned when batch enqueue is called with empty items
	ErrNoItemsToEnqueue = errors.New("no items to enqueue")

	// ErrWorkerStarted is returned when Run is called twice on a worker
	ErrWorkerStarted = errors.New("worker already started")

	// ErrInvalidSchedule is returned when schedule format is invalid
	ErrInvalidSchedule = errors.New("invalid schedule format")

	// ErrScheduleAlreadyRegistered is returned when trying to register a duplicate schedule
	ErrScheduleAlreadyRegistered = errors.New("schedule already registered")

	// ErrSchedulerNotConfigured is returned when scheduler has no schedules
	ErrSchedulerNotConfigured = errors.New("scheduler has no registered schedules")
)
