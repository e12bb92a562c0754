package queue

import (
	"errors"
	"fmt"
	"time"
)

// maxBackoffExponent keeps 2^n minutes inside time.Duration.
const maxBackoffExponent = 27

// Backoff returns the default retry delay after syncCount failed attempts:
// 2^syncCount minutes.
func Backoff(syncCount int) time.Duration {
	n := min(max(syncCount, 0), maxBackoffExponent)
	return time.Duration(1<<n) * time.Minute
}

// RetryError asks the worker to retry the message after Delay instead of the
// default backoff.
type RetryError struct {
	Delay time.Duration
	Err   error
}

func (e *RetryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retry after %s: %v", e.Delay, e.Err)
	}
	return fmt.Sprintf("retry after %s", e.Delay)
}

func (e *RetryError) Unwrap() error { return e.Err }

// RetryAfter returns an error that makes the worker nack the message with a
// custom delay. Non-positive delays fall back to the default backoff.
func RetryAfter(d time.Duration) error {
	return &RetryError{Delay: d}
}

// RetryAfterErr is RetryAfter carrying the underlying failure for logs.
func RetryAfterErr(d time.Duration, err error) error {
	return &RetryError{Delay: d, Err: err}
}

// RetryDelay extracts a positive custom delay from err.
func RetryDelay(err error) (time.Duration, bool) {
	var re *RetryError
	if errors.As(err, &re) && re.Delay > 0 {
		return re.Delay, true
	}
	return 0, false
}
