package interfaces

import "time"

// EventType enumerates the crawl lifecycle's event vocabulary.
type EventType string

const (
	EventCrawlStarted         EventType = "crawl_started"
	EventStateTransitioned    EventType = "state_transitioned"
	EventSubstateTransitioned EventType = "substate_transitioned"
	EventURLEnqueued          EventType = "url_enqueued"
	EventURLFetched           EventType = "url_fetched"
	EventURLFailed            EventType = "url_failed"
	EventDocumentFound        EventType = "document_found"
	EventDocumentProcessed    EventType = "document_processed"
	EventCheckpointCreated    EventType = "checkpoint_created"
	EventCheckpointRestored   EventType = "checkpoint_restored"
	EventIterationStarted     EventType = "iteration_started"
	EventIterationCompleted   EventType = "iteration_completed"
	EventPaused               EventType = "paused"
	EventResumed              EventType = "resumed"
	EventCancelled            EventType = "cancelled"
	EventError                EventType = "error"
	// EventSubscriberLagged is emitted to a lagging subscriber's own stream
	// when its buffer overflows and the oldest queued event was dropped.
	EventSubscriberLagged EventType = "subscriber_lagged"
)

// Event is one entry on the bus. EventID is monotonic per crawl.
type Event struct {
	EventID   int64       `json:"event_id"`
	CrawlID   string      `json:"crawl_id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Data      interface{} `json:"data,omitempty"`
}

// Subscription is a live handle returned by Subscribe. Events arrive on
// Events(); the subscriber must drain it or risk drops (bus never blocks the
// publisher). Close must be called to release the subscriber's buffer.
type Subscription interface {
	Events() <-chan Event
	Close()
}

// EventBus is the in-process pub/sub fan-out for crawl events: single
// writer per crawl, multiple subscribers, bounded per-subscriber buffers,
// oldest-drop on overflow, last-1000-events ring buffer per crawl for late
// subscribers.
type EventBus interface {
	// Publish appends an event for crawlID, assigning it the next monotonic
	// EventID, and fans it out to all current subscribers of crawlID. Never
	// blocks on a slow subscriber.
	Publish(crawlID string, eventType EventType, data interface{}) Event
	// Subscribe registers a new subscriber for crawlID with the given
	// buffer capacity. replayHistory, if true, first delivers the retained
	// ring-buffer history (oldest first) before live events.
	Subscribe(crawlID string, bufferSize int, replayHistory bool) Subscription
	// History returns the retained ring buffer for crawlID (oldest first),
	// up to the last 1000 events.
	History(crawlID string) []Event
	// Close shuts down all subscriptions for crawlID.
	Close(crawlID string)
}
