// Package fetch implements the fetch pipeline: per-host rate limiting,
// robots.txt compliance, conditional GET, retries with backoff, and
// redirect handling.
package fetch

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/crawlcore/internal/interfaces"
)

// RetryPolicy implements exponential backoff with
// base 1s, factor 2, jitter +/-20%, capped at 60s, up to MaxAttempts.
// 429 responses honour Retry-After instead of the computed backoff.
type RetryPolicy struct {
	MaxAttempts          int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	BackoffMultiplier    float64
	RetryableStatusCodes []int
}

// NewRetryPolicy builds the retry policy, parameterized by
// CrawlConfig.MaxRetries. MaxRetries=0 is a legal config value meaning no retries at all, so it maps to exactly
// one attempt rather than being treated as unset.
func NewRetryPolicy(maxRetries int) *RetryPolicy {
	maxAttempts := maxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryPolicy{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableStatusCodes: []int{
			408, 429, 500, 502, 503, 504,
		},
	}
}

// ShouldRetry reports whether attempt should be retried given statusCode
// (0 if the attempt failed with a transport error instead) and err.
func (p *RetryPolicy) ShouldRetry(attempt int, statusCode int, err error) bool {
	if attempt >= p.MaxAttempts {
		return false
	}

	if statusCode > 0 {
		if p.isRetryableStatusCode(statusCode) {
			return true
		}
		// 4xx other than 408/429 never retries.
		if statusCode >= 400 && statusCode < 500 {
			return false
		}
		// 5xx always retries.
		if statusCode >= 500 {
			return true
		}
	}

	if err != nil {
		return isRetryableError(err)
	}
	return false
}

// CalculateBackoff computes exponential backoff with +/-20% jitter, capped
// at MaxBackoff.
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * pow(p.BackoffMultiplier, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	jitter := backoff * 0.20 * (rand.Float64()*2 - 1)
	backoff += jitter
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}
	return time.Duration(backoff)
}

// RetryAfterDelay computes the delay honoured for a 429 response, capped at
// MaxBackoff.
func (p *RetryPolicy) RetryAfterDelay(retryAfter time.Duration) time.Duration {
	if retryAfter > p.MaxBackoff {
		return p.MaxBackoff
	}
	if retryAfter < 0 {
		return 0
	}
	return retryAfter
}

func (p *RetryPolicy) isRetryableStatusCode(statusCode int) bool {
	for _, code := range p.RetryableStatusCodes {
		if statusCode == code {
			return true
		}
	}
	return false
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return false
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

// Attempt is one outcome of a fetch attempt, consumed by ExecuteWithRetry's
// caller to decide classification.
type Attempt struct {
	StatusCode int
	RetryAfter time.Duration // >0 when the response carried Retry-After
	Err        error
	Response   *interfaces.FetchResponse
}

// ExecuteWithRetry drives fn up to MaxAttempts times, sleeping for the
// computed (or Retry-After) backoff between attempts, and honouring
// cancellation.
func (p *RetryPolicy) ExecuteWithRetry(ctx context.Context, logger arbor.ILogger, fn func() Attempt) Attempt {
	var last Attempt

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		last = fn()

		if last.Err == nil && !p.isRetryableStatusCode(last.StatusCode) {
			return last
		}
		if !p.ShouldRetry(attempt, last.StatusCode, last.Err) {
			return last
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.CalculateBackoff(attempt)
		if last.StatusCode == 429 && last.RetryAfter > 0 {
			delay = p.RetryAfterDelay(last.RetryAfter)
		}

		if logger != nil {
			logger.Debug().Int("attempt", attempt+1).Int("status_code", last.StatusCode).Dur("backoff", delay).Msg("retrying fetch after backoff")
		}

		select {
		case <-ctx.Done():
			last.Err = ctx.Err()
			return last
		case <-time.After(delay):
		}
	}

	if logger != nil {
		logger.Warn().Int("max_attempts", p.MaxAttempts).Int("status_code", last.StatusCode).Msg("fetch retry attempts exhausted")
	}
	return last
}
