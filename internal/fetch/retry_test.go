package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetryRespectsMaxAttempts(t *testing.T) {
	p := NewRetryPolicy(3)
	assert.True(t, p.ShouldRetry(0, 500, nil))
	assert.False(t, p.ShouldRetry(3, 500, nil))
}

func TestShouldRetryClientErrorsNonRetryable(t *testing.T) {
	p := NewRetryPolicy(3)
	assert.False(t, p.ShouldRetry(0, 404, nil))
	assert.True(t, p.ShouldRetry(0, 408, nil))
	assert.True(t, p.ShouldRetry(0, 429, nil))
}

func TestCalculateBackoffExponentialWithJitterCap(t *testing.T) {
	p := NewRetryPolicy(10)
	for attempt := 0; attempt < 8; attempt++ {
		b := p.CalculateBackoff(attempt)
		assert.LessOrEqual(t, b, p.MaxBackoff+p.MaxBackoff/5)
		assert.GreaterOrEqual(t, b, time.Duration(0))
	}
}

func TestRetryAfterDelayCappedAtMaxBackoff(t *testing.T) {
	p := NewRetryPolicy(3)
	assert.Equal(t, p.MaxBackoff, p.RetryAfterDelay(10*time.Minute))
	assert.Equal(t, 2*time.Second, p.RetryAfterDelay(2*time.Second))
}

func TestExecuteWithRetryHonoursRetryAfter(t *testing.T) {
	p := NewRetryPolicy(2)
	attempts := 0
	start := time.Now()

	result := p.ExecuteWithRetry(context.Background(), nil, func() Attempt {
		attempts++
		if attempts == 1 {
			return Attempt{StatusCode: 429, RetryAfter: 200 * time.Millisecond}
		}
		return Attempt{StatusCode: 200}
	})

	elapsed := time.Since(start)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 200, result.StatusCode)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
}

func TestExecuteWithRetryStopsOnNonRetryableStatus(t *testing.T) {
	p := NewRetryPolicy(5)
	attempts := 0

	result := p.ExecuteWithRetry(context.Background(), nil, func() Attempt {
		attempts++
		return Attempt{StatusCode: 404}
	})

	assert.Equal(t, 1, attempts)
	assert.Equal(t, 404, result.StatusCode)
}
