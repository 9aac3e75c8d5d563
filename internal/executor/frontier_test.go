package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/crawlcore/internal/models"
)

func TestFrontierPopOrdersByDepthThenPriorityThenInsertion(t *testing.T) {
	f := NewFrontier(0)

	require.Equal(t, PushEnqueued, f.Push(&models.URLRecord{URL: "https://a.test/deep", Depth: 2}))
	require.Equal(t, PushEnqueued, f.Push(&models.URLRecord{URL: "https://a.test/shallow-low", Depth: 1, Priority: 5}))
	require.Equal(t, PushEnqueued, f.Push(&models.URLRecord{URL: "https://a.test/shallow-high", Depth: 1, Priority: 1}))

	first, err := f.Pop(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "https://a.test/shallow-high", first.URL)

	second, err := f.Pop(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "https://a.test/shallow-low", second.URL)

	third, err := f.Pop(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "https://a.test/deep", third.URL)
}

func TestFrontierDeduplicatesByNormalizedURL(t *testing.T) {
	f := NewFrontier(0)
	require.Equal(t, PushEnqueued, f.Push(&models.URLRecord{URL: "https://a.test/x?b=2&a=1"}))
	assert.Equal(t, PushDuplicate, f.Push(&models.URLRecord{URL: "https://A.TEST/x?a=1&b=2"}))
	assert.Equal(t, 1, f.Len())
}

func TestFrontierRejectsPushesAboveSoftCap(t *testing.T) {
	f := NewFrontier(1)
	require.Equal(t, PushEnqueued, f.Push(&models.URLRecord{URL: "https://a.test/1"}))
	assert.Equal(t, PushFull, f.Push(&models.URLRecord{URL: "https://a.test/2"}))
}

func TestFrontierPopReturnsNilAfterCloseWhenEmpty(t *testing.T) {
	f := NewFrontier(0)
	f.Close()
	item, err := f.Pop(t.Context())
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.Equal(t, PushClosed, f.Push(&models.URLRecord{URL: "https://a.test/late"}))
}

func TestFrontierPopUnblocksOnPush(t *testing.T) {
	f := NewFrontier(0)
	done := make(chan *models.URLRecord, 1)
	go func() {
		item, _ := f.Pop(t.Context())
		done <- item
	}()

	time.Sleep(20 * time.Millisecond)
	f.Push(&models.URLRecord{URL: "https://a.test/woken"})

	select {
	case item := <-done:
		require.NotNil(t, item)
		assert.Equal(t, "https://a.test/woken", item.URL)
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not unblock after Push")
	}
}
