package fetch

import "context"

// Semaphore bounds concurrent in-flight fetches to CrawlConfig's
// concurrent_requests.
type Semaphore struct {
	tokens chan struct{}
}

// NewSemaphore builds a Semaphore with the given capacity. A capacity <= 0
// is treated as 1 so a Pipeline is never accidentally unbounded.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{tokens: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees one slot.
func (s *Semaphore) Release() {
	<-s.tokens
}
