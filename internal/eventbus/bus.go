// Package eventbus implements the in-process event bus: single writer
// per crawl, bounded per-subscriber buffers, oldest-drop on overflow, and a
// 1000-event ring buffer per crawl for late subscribers.
//
// The teacher's own internal/services/events package is a plain broadcast
// pub/sub with no backpressure model; this package keeps its handler-free,
// channel-based shape but adds the bounded buffers and ring history the
// spec requires.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/crawlcore/internal/interfaces"
)

const ringBufferSize = 1000

// Bus is the concrete EventBus.
type Bus struct {
	mu      sync.RWMutex
	crawls  map[string]*crawlState
	logger  arbor.ILogger
}

var _ interfaces.EventBus = (*Bus)(nil)

type crawlState struct {
	mu          sync.Mutex
	crawlID     string
	nextEventID int64
	ring        []interfaces.Event
	ringStart   int
	ringLen     int
	subscribers map[*subscription]struct{}
}

type subscription struct {
	ch       chan interfaces.Event
	crawlID  string
	bus      *Bus
	closed   int32
	closeMu  sync.Mutex
}

func (s *subscription) Events() <-chan interfaces.Event { return s.ch }

func (s *subscription) Close() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	close(s.ch)

	s.bus.mu.Lock()
	if cs, ok := s.bus.crawls[s.crawlID]; ok {
		cs.mu.Lock()
		delete(cs.subscribers, s)
		cs.mu.Unlock()
	}
	s.bus.mu.Unlock()
}

// New constructs an empty Bus.
func New(logger arbor.ILogger) *Bus {
	return &Bus{
		crawls: make(map[string]*crawlState),
		logger: logger,
	}
}

func (b *Bus) stateFor(crawlID string) *crawlState {
	b.mu.RLock()
	cs, ok := b.crawls[crawlID]
	b.mu.RUnlock()
	if ok {
		return cs
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if cs, ok = b.crawls[crawlID]; ok {
		return cs
	}
	cs = &crawlState{
		crawlID:     crawlID,
		ring:        make([]interfaces.Event, ringBufferSize),
		subscribers: make(map[*subscription]struct{}),
	}
	b.crawls[crawlID] = cs
	return cs
}

func (b *Bus) Publish(crawlID string, eventType interfaces.EventType, data interface{}) interfaces.Event {
	cs := b.stateFor(crawlID)

	cs.mu.Lock()
	cs.nextEventID++
	ev := interfaces.Event{
		EventID:   cs.nextEventID,
		CrawlID:   crawlID,
		Timestamp: time.Now(),
		Type:      eventType,
		Data:      data,
	}
	cs.appendRing(ev)
	subs := make([]*subscription, 0, len(cs.subscribers))
	for s := range cs.subscribers {
		subs = append(subs, s)
	}
	cs.mu.Unlock()

	for _, s := range subs {
		b.deliver(cs, s, ev)
	}
	return ev
}

// deliver attempts a non-blocking send; on overflow it drops the oldest
// queued event for this subscriber and emits subscriber_lagged instead of
// ever blocking the publisher. To leave room for the lag marker ahead of
// ev, a buffer of two or more slots drops its two oldest events; a
// one-slot buffer drops one and gets ev without a lag marker.
func (b *Bus) deliver(cs *crawlState, s *subscription, ev interfaces.Event) {
	select {
	case s.ch <- ev:
		return
	default:
	}

	// Buffer full: drop oldest (two when there is room for the lag marker).
	withLag := cap(s.ch) >= 2
	drops := 1
	if withLag {
		drops = 2
	}
	for i := 0; i < drops; i++ {
		select {
		case <-s.ch:
		default:
		}
	}

	if b.logger != nil {
		b.logger.Warn().Str("crawl_id", cs.crawlID).Msg("subscriber lagged, dropped oldest event")
	}

	if withLag {
		lagEvent := interfaces.Event{
			EventID:   ev.EventID,
			CrawlID:   ev.CrawlID,
			Timestamp: ev.Timestamp,
			Type:      interfaces.EventSubscriberLagged,
		}
		select {
		case s.ch <- lagEvent:
		default:
		}
	}
	select {
	case s.ch <- ev:
	default:
		// Subscriber channel is being closed concurrently; drop silently.
	}
}

func (cs *crawlState) appendRing(ev interfaces.Event) {
	idx := (cs.ringStart + cs.ringLen) % ringBufferSize
	cs.ring[idx] = ev
	if cs.ringLen < ringBufferSize {
		cs.ringLen++
	} else {
		cs.ringStart = (cs.ringStart + 1) % ringBufferSize
	}
}

func (cs *crawlState) snapshot() []interfaces.Event {
	out := make([]interfaces.Event, cs.ringLen)
	for i := 0; i < cs.ringLen; i++ {
		out[i] = cs.ring[(cs.ringStart+i)%ringBufferSize]
	}
	return out
}

func (b *Bus) Subscribe(crawlID string, bufferSize int, replayHistory bool) interfaces.Subscription {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	cs := b.stateFor(crawlID)
	s := &subscription{
		ch:      make(chan interfaces.Event, bufferSize),
		crawlID: crawlID,
		bus:     b,
	}

	cs.mu.Lock()
	cs.subscribers[s] = struct{}{}
	var history []interfaces.Event
	if replayHistory {
		history = cs.snapshot()
	}
	cs.mu.Unlock()

	for _, ev := range history {
		select {
		case s.ch <- ev:
		default:
		}
	}
	return s
}

func (b *Bus) History(crawlID string) []interfaces.Event {
	cs := b.stateFor(crawlID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.snapshot()
}

func (b *Bus) Close(crawlID string) {
	b.mu.Lock()
	cs, ok := b.crawls[crawlID]
	if ok {
		delete(b.crawls, crawlID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	cs.mu.Lock()
	subs := make([]*subscription, 0, len(cs.subscribers))
	for s := range cs.subscribers {
		subs = append(subs, s)
	}
	cs.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}
