// Package metrics implements the metrics collector: counters, gauges,
// 1Hz rolling-window samples, and derived throughput/success-rate.
// Reads are torn-read-free via a per-crawl RWMutex whose write-side
// critical sections are counter/gauge updates only.
package metrics

import (
	"sync"
	"time"

	"github.com/ternarybob/crawlcore/internal/interfaces"
)

// window durations and their ring-buffer capacities at 1Hz sampling.
const (
	Window5m  = 5 * time.Minute
	Window1h  = time.Hour
	Window24h = 24 * time.Hour

	// maxSamples24h caps the ring buffer at 1440 samples. Sample appends one
	// entry per call with no per-minute aggregation, so at the executor's
	// 1Hz sampling the buffer holds the last 24 minutes, and the 1h and 24h
	// windows return at most that span.
	maxSamples24h = 1440
)

// Collector is the concrete MetricsCollector.
type Collector struct {
	mu     sync.RWMutex
	crawls map[string]*crawlMetrics
}

var _ interfaces.MetricsCollector = (*Collector)(nil)

type crawlMetrics struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]float64
	samples  []interfaces.Sample // ring buffer, oldest first, capped at maxSamples24h

	// lastThroughput is not read; throughput_per_min is derived from the
	// retained samples by computeThroughput.
	lastThroughput float64
}

// New constructs an empty Collector.
func New() *Collector {
	return &Collector{crawls: make(map[string]*crawlMetrics)}
}

func (c *Collector) stateFor(crawlID string) *crawlMetrics {
	c.mu.RLock()
	cm, ok := c.crawls[crawlID]
	c.mu.RUnlock()
	if ok {
		return cm
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cm, ok = c.crawls[crawlID]; ok {
		return cm
	}
	cm = &crawlMetrics{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
	}
	c.crawls[crawlID] = cm
	return cm
}

func (c *Collector) IncCounter(crawlID, name string, delta int64) {
	cm := c.stateFor(crawlID)
	cm.mu.Lock()
	cm.counters[name] += delta
	cm.mu.Unlock()
}

func (c *Collector) SetGauge(crawlID, name string, value float64) {
	cm := c.stateFor(crawlID)
	cm.mu.Lock()
	cm.gauges[name] = value
	cm.mu.Unlock()
}

// Sample records the current counters/gauges as one 1Hz point. Callers
// (typically a ticker owned by the executor) call this once per second.
func (c *Collector) Sample(crawlID string, at time.Time) {
	cm := c.stateFor(crawlID)

	cm.mu.Lock()
	defer cm.mu.Unlock()

	snap := interfaces.Sample{
		Timestamp: at,
		Counters:  copyInt64Map(cm.counters),
		Gauges:    copyFloat64Map(cm.gauges),
	}
	cm.samples = append(cm.samples, snap)
	if len(cm.samples) > maxSamples24h {
		cm.samples = cm.samples[len(cm.samples)-maxSamples24h:]
	}
}

// Snapshot returns a torn-read-free view with derived rates.
func (c *Collector) Snapshot(crawlID string) interfaces.MetricsSnapshot {
	cm := c.stateFor(crawlID)

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	counters := copyInt64Map(cm.counters)
	gauges := copyFloat64Map(cm.gauges)

	crawled := counters["urls_crawled"]
	failed := counters["urls_failed"]

	var successRate float64
	if total := crawled + failed; total > 0 {
		successRate = float64(crawled) / float64(total)
	}

	throughput := computeThroughput(cm.samples)

	return interfaces.MetricsSnapshot{
		Counters:         counters,
		Gauges:           gauges,
		ThroughputPerMin: throughput,
		SuccessRate:      successRate,
		Samples:          append([]interfaces.Sample(nil), cm.samples...),
	}
}

// computeThroughput derives urls_crawled/min from the oldest and newest
// retained samples (0 when they span no time), scaled to a per-minute rate.
func computeThroughput(samples []interfaces.Sample) float64 {
	if len(samples) < 2 {
		return 0
	}
	first := samples[0]
	last := samples[len(samples)-1]
	elapsed := last.Timestamp.Sub(first.Timestamp).Seconds()
	if elapsed <= 0 {
		return 0
	}
	deltaURLs := last.Counters["urls_crawled"] - first.Counters["urls_crawled"]
	perSecond := float64(deltaURLs) / elapsed
	return perSecond * 60
}

// SamplesSince returns samples within the given rolling window of "now",
// where "now" is the timestamp of the most recent sample.
func (c *Collector) SamplesSince(crawlID string, window time.Duration) []interfaces.Sample {
	cm := c.stateFor(crawlID)

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.samples) == 0 {
		return nil
	}
	cutoff := cm.samples[len(cm.samples)-1].Timestamp.Add(-window)

	out := make([]interfaces.Sample, 0, len(cm.samples))
	for _, s := range cm.samples {
		if !s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

func (c *Collector) Reset(crawlID string) {
	c.mu.Lock()
	delete(c.crawls, crawlID)
	c.mu.Unlock()
}

func copyInt64Map(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyFloat64Map(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// LastNSamples returns a copy of the last n retained samples, or of all of
// them when n <= 0 or n exceeds the number retained.
func (c *Collector) LastNSamples(crawlID string, n int) []interfaces.Sample {
	cm := c.stateFor(crawlID)
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if n <= 0 || n >= len(cm.samples) {
		return append([]interfaces.Sample(nil), cm.samples...)
	}
	return append([]interfaces.Sample(nil), cm.samples[len(cm.samples)-n:]...)
}
