package executor

import (
	"container/heap"
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/crawlcore/internal/models"
)

// PushResult reports what Frontier.Push did with a URL.
type PushResult int

const (
	PushEnqueued PushResult = iota
	PushDuplicate
	PushFull
	PushClosed
)

// Frontier is the coordinator-owned priority queue:
// pop order favours shallower depth, then explicit priority, then
// insertion order, with deduplication and a soft cap on total size.
// Built on container/heap the way a crawler's URL queue typically is.
type Frontier struct {
	items   *urlHeap
	seen    map[string]bool
	mu      sync.Mutex
	cond    *sync.Cond
	closed  bool
	softCap int
}

type urlHeap []*models.URLRecord

func (h urlHeap) Len() int { return len(h) }

func (h urlHeap) Less(i, j int) bool {
	if h[i].Depth != h[j].Depth {
		return h[i].Depth < h[j].Depth
	}
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
}

func (h urlHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *urlHeap) Push(x interface{}) {
	*h = append(*h, x.(*models.URLRecord))
}

func (h *urlHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// NewFrontier builds an empty Frontier. softCap <= 0 means unbounded.
func NewFrontier(softCap int) *Frontier {
	h := &urlHeap{}
	heap.Init(h)
	f := &Frontier{items: h, seen: make(map[string]bool), softCap: softCap}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Push enqueues rec, deduplicating on normalized URL and enforcing the soft
// cap. A PushFull result means the caller should record a frontier_full
// failure rather than
// retry.
func (f *Frontier) Push(rec *models.URLRecord) PushResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return PushClosed
	}

	normalized := normalizeURL(rec.URL)
	if f.seen[normalized] {
		return PushDuplicate
	}
	if f.softCap > 0 && f.items.Len() >= f.softCap {
		return PushFull
	}

	f.seen[normalized] = true
	if rec.EnqueuedAt.IsZero() {
		rec.EnqueuedAt = time.Now()
	}
	heap.Push(f.items, rec)
	f.cond.Signal()
	return PushEnqueued
}

// Pop removes and returns the highest-priority URL, blocking until one is
// available, the frontier is closed, or ctx is done. Returns (nil, nil) on
// close with an empty queue.
func (f *Frontier) Pop(ctx context.Context) (*models.URLRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const maxWait = 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if f.items.Len() > 0 {
			item := heap.Pop(f.items).(*models.URLRecord)
			return item, nil
		}
		if f.closed {
			return nil, nil
		}

		timer := time.AfterFunc(maxWait, func() { f.cond.Broadcast() })
		f.cond.Wait()
		timer.Stop()
	}
}

// Len returns the number of URLs currently queued.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items.Len()
}

// Close wakes all blocked Pop callers; subsequent Push calls fail.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
}

// Snapshot returns a copy of every URL currently queued, in no particular
// order, for inclusion in a checkpoint's StateBundle. It does not consume
// the queue.
func (f *Frontier) Snapshot() []models.URLRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.URLRecord, 0, f.items.Len())
	for _, rec := range *f.items {
		out = append(out, *rec)
	}
	return out
}

// Seen reports whether a URL has ever been pushed (regardless of whether it
// has since been popped). The coordinator's discard check consults its own
// visited/failed sets, not Seen.
func (f *Frontier) Seen(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[normalizeURL(rawURL)]
}

func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}
	u.Fragment = ""
	if u.RawQuery != "" {
		query := u.Query()
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := url.Values{}
		for _, k := range keys {
			values[k] = query[k]
		}
		u.RawQuery = values.Encode()
	}
	return strings.ToLower(u.String())
}
