package models

import "time"

// Crawl is the top-level identity + config + lifecycle pointer record.
// A Crawl exclusively owns its Iteration records.
type Crawl struct {
	ID         string      `json:"id" badgerhold:"key"`
	Config     CrawlConfig `json:"config"`
	State      State       `json:"state"`
	Substate   Substate    `json:"substate"`
	ParentIter string      `json:"parent_iteration_id,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Error      string      `json:"error,omitempty"`
}

// URLRecord is a frontier element.
type URLRecord struct {
	URL            string    `json:"url"`
	Depth          int       `json:"depth"`
	DiscoveredFrom string    `json:"discovered_from,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	AttemptCount   int       `json:"attempt_count"`
	// Priority favours seeds (0) and shallower URLs; lower sorts first.
	Priority int `json:"priority"`
}

// FailureRecord captures why a URL landed in the failed set.
type FailureRecord struct {
	URL        string    `json:"url"`
	Reason     string    `json:"reason"`
	StatusCode int       `json:"status_code,omitempty"`
	Attempts   int       `json:"attempts"`
	FailedAt   time.Time `json:"failed_at"`
}

// Progress tracks coarse crawl completion counters.
type Progress struct {
	TotalURLs     int     `json:"total_urls"`
	CompletedURLs int     `json:"completed_urls"`
	FailedURLs    int     `json:"failed_urls"`
	PendingURLs   int     `json:"pending_urls"`
	CurrentURL    string  `json:"current_url,omitempty"`
	Percentage    float64 `json:"percentage"`
}
