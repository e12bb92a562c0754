package queue

import "time"

// Config holds the configuration for the queue engine and its workers
type Config struct {
	LeaseTimeout time.Duration `env:"QUEUE_LEASE_TIMEOUT" envDefault:"5m"`
	PollInterval time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"100ms"`
}
