package queue_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Minute, queue.Backoff(0))
	assert.Equal(t, 2*time.Minute, queue.Backoff(1))
	assert.Equal(t, 8*time.Minute, queue.Backoff(3))
	assert.Equal(t, 1024*time.Minute, queue.Backoff(10))
	assert.Equal(t, time.Minute, queue.Backoff(-5))

	prev := time.Duration(0)
	for n := range 100 {
		d := queue.Backoff(n)
		assert.Positive(t, d, "attempt %d overflowed", n)
		assert.GreaterOrEqual(t, d, prev, "attempt %d decreased", n)
		prev = d
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	d, ok := queue.RetryDelay(queue.RetryAfter(120 * time.Second))
	assert.True(t, ok)
	assert.Equal(t, 120*time.Second, d)

	cause := errors.New("gateway timeout")
	wrapped := errors.Join(errors.New("ctx"), queue.RetryAfterErr(time.Minute, cause))
	d, ok = queue.RetryDelay(wrapped)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, d)
	assert.ErrorIs(t, wrapped, cause)

	_, ok = queue.RetryDelay(queue.RetryAfter(0))
	assert.False(t, ok, "non-positive delays fall back to backoff")

	_, ok = queue.RetryDelay(errors.New("boom"))
	assert.False(t, ok)

	_, ok = queue.RetryDelay(nil)
	assert.False(t, ok)
}
