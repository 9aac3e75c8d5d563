package interfaces

import "time"

// MetricsSnapshot is a torn-read-free view over a crawl's counters, gauges,
// and derived rates.
type MetricsSnapshot struct {
	Counters         map[string]int64
	Gauges           map[string]float64
	ThroughputPerMin float64
	SuccessRate      float64
	Samples          []Sample
}

// Sample is one 1Hz point retained in a rolling window.
type Sample struct {
	Timestamp time.Time
	Counters  map[string]int64
	Gauges    map[string]float64
}

// MetricsCollector tracks the named counters/gauges and
// derives throughput/success-rate from them.
type MetricsCollector interface {
	IncCounter(crawlID, name string, delta int64)
	SetGauge(crawlID, name string, value float64)
	// Sample records one 1Hz rolling-window point at the given timestamp
	// from the counters/gauges currently held for crawlID.
	Sample(crawlID string, at time.Time)
	Snapshot(crawlID string) MetricsSnapshot
	// SamplesSince returns retained samples for window (5m, 1h, 24h).
	SamplesSince(crawlID string, window time.Duration) []Sample
	Reset(crawlID string)
}
