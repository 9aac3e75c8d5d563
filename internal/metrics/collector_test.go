package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotConsistency(t *testing.T) {
	c := New()
	c.IncCounter("crawl-1", "urls_crawled", 10)
	c.IncCounter("crawl-1", "urls_failed", 2)
	c.SetGauge("crawl-1", "frontier_size", 42)

	snap := c.Snapshot("crawl-1")
	assert.Equal(t, int64(10), snap.Counters["urls_crawled"])
	assert.Equal(t, int64(2), snap.Counters["urls_failed"])
	assert.InDelta(t, float64(10)/12, snap.SuccessRate, 1e-9)
	assert.Equal(t, float64(42), snap.Gauges["frontier_size"])
}

func TestSuccessRateZeroWhenNoActivity(t *testing.T) {
	c := New()
	snap := c.Snapshot("crawl-empty")
	assert.Equal(t, float64(0), snap.SuccessRate)
}

func TestThroughputDerivedFromSamples(t *testing.T) {
	c := New()
	base := time.Now()

	c.IncCounter("crawl-2", "urls_crawled", 0)
	c.Sample("crawl-2", base)

	c.IncCounter("crawl-2", "urls_crawled", 30)
	c.Sample("crawl-2", base.Add(30*time.Second))

	snap := c.Snapshot("crawl-2")
	// 30 urls in 30s == 1/s == 60/min
	assert.InDelta(t, 60.0, snap.ThroughputPerMin, 0.01)
}

func TestSamplesSinceWindow(t *testing.T) {
	c := New()
	base := time.Now()
	for i := 0; i < 10; i++ {
		c.Sample("crawl-3", base.Add(time.Duration(i)*time.Second))
	}

	recent := c.SamplesSince("crawl-3", 3*time.Second)
	assert.LessOrEqual(t, len(recent), 4)
	assert.True(t, len(recent) >= 1)
}

func TestResetClearsState(t *testing.T) {
	c := New()
	c.IncCounter("crawl-4", "urls_crawled", 5)
	c.Reset("crawl-4")
	snap := c.Snapshot("crawl-4")
	assert.Equal(t, int64(0), snap.Counters["urls_crawled"])
}
