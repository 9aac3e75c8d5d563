package fetch

import (
	"context"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter enforces per-host politeness: between fetches to the same
// host the pipeline waits at least delay_seconds + jitter in
// [0, delay_seconds/2]. It wraps golang.org/x/time/rate.Limiter, the same
// token-bucket library used elsewhere in this codebase for outbound
// request pacing, with one bucket per host.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	slots    map[string]chan struct{}
	delay    time.Duration
	perHostCap int
}

// NewHostLimiter builds a HostLimiter with the given base per-host delay and
// secondary per-host concurrency cap.
func NewHostLimiter(delay time.Duration, perHostCap int) *HostLimiter {
	if perHostCap <= 0 {
		perHostCap = 4
	}
	return &HostLimiter{
		limiters:   make(map[string]*rate.Limiter),
		slots:      make(map[string]chan struct{}),
		delay:      delay,
		perHostCap: perHostCap,
	}
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[host]
	if ok {
		return l
	}

	interval := h.delay
	if interval <= 0 {
		interval = time.Millisecond
	}
	l = rate.NewLimiter(rate.Every(interval), 1)
	h.limiters[host] = l
	return l
}

// Wait blocks until the per-host token for urlStr's host is available, then
// adds jitter in [0, delay/2] before returning, per the politeness formula
// the politeness formula above.
func (h *HostLimiter) Wait(ctx context.Context, urlStr string) error {
	host := hostOf(urlStr)
	l := h.limiterFor(host)

	if err := l.Wait(ctx); err != nil {
		return err
	}

	jitter := jitterDuration(h.delay)
	if jitter <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

func (h *HostLimiter) slotFor(host string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.slots[host]
	if ok {
		return s
	}
	s = make(chan struct{}, h.perHostCap)
	h.slots[host] = s
	return s
}

// AcquireHost blocks until a per-host concurrency slot is free. Callers
// must call ReleaseHost with the same urlStr once the fetch completes.
func (h *HostLimiter) AcquireHost(ctx context.Context, urlStr string) error {
	slot := h.slotFor(hostOf(urlStr))
	select {
	case slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReleaseHost frees the per-host concurrency slot acquired by AcquireHost.
func (h *HostLimiter) ReleaseHost(urlStr string) {
	slot := h.slotFor(hostOf(urlStr))
	<-slot
}

func hostOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}
	return u.Host
}

// jitterDuration returns a uniform random duration in [0, delay/2].
func jitterDuration(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	half := delay / 2
	if half <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(half)))
}
