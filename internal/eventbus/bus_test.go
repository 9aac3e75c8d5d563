package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/crawlcore/internal/interfaces"
)

func TestPublishOrderingPerCrawl(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe("crawl-1", 16, false)
	defer sub.Close()

	b.Publish("crawl-1", interfaces.EventURLEnqueued, "a")
	b.Publish("crawl-1", interfaces.EventURLFetched, "b")
	b.Publish("crawl-1", interfaces.EventDocumentFound, "c")

	var got []interfaces.EventType
	for i := 0; i < 3; i++ {
		select {
		case ev := <-sub.Events():
			got = append(got, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}

	assert.Equal(t, []interfaces.EventType{
		interfaces.EventURLEnqueued,
		interfaces.EventURLFetched,
		interfaces.EventDocumentFound,
	}, got)
}

func TestOverflowDropsOldestAndEmitsLag(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe("crawl-2", 2, false)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		b.Publish("crawl-2", interfaces.EventURLFetched, i)
	}

	var types []interfaces.EventType
	drain := true
	for drain {
		select {
		case ev := <-sub.Events():
			types = append(types, ev.Type)
		default:
			drain = false
		}
	}

	require.NotEmpty(t, types)
	found := false
	for _, ty := range types {
		if ty == interfaces.EventSubscriberLagged {
			found = true
		}
	}
	assert.True(t, found, "expected a subscriber_lagged event after overflow")
}

func TestHistoryReplayToLateSubscriber(t *testing.T) {
	b := New(nil)
	for i := 0; i < 10; i++ {
		b.Publish("crawl-3", interfaces.EventURLFetched, i)
	}

	sub := b.Subscribe("crawl-3", 32, true)
	defer sub.Close()

	count := 0
	for {
		select {
		case <-sub.Events():
			count++
		case <-time.After(100 * time.Millisecond):
			assert.Equal(t, 10, count)
			return
		}
	}
}

func TestCloseReleasesSubscribers(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe("crawl-4", 4, false)
	b.Close("crawl-4")

	_, ok := <-sub.Events()
	assert.False(t, ok, "subscriber channel should be closed")
}
