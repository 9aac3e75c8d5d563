package models

import "time"

// Iteration is one pass of a crawl chain.
//
// Invariants enforced by internal/iteration, not by this struct:
//   - iteration 0 has Mode=baseline and no ParentIterationID
//   - iteration N>0 has ParentIterationID == iteration N-1's ID
//   - BaselineIterationID always points at iteration 0 of the chain
//   - fingerprints for an iteration are only written before CompletedAt is set
type Iteration struct {
	ID                 string        `json:"iteration_id" badgerhold:"key"`
	CrawlID            string        `json:"crawl_id" badgerhold:"index"`
	IterationNumber    int           `json:"iteration_number"`
	ParentIterationID  string        `json:"parent_iteration_id,omitempty"`
	BaselineIterationID string       `json:"baseline_iteration_id,omitempty"`
	Mode               IterationMode `json:"mode"`
	StartedAt          time.Time     `json:"started_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	Stats              IterationStats `json:"stats"`
	Sealed             bool          `json:"sealed"`
}

// IterationStats summarizes a completed iteration.
type IterationStats struct {
	New       int `json:"new"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
	Failed    int `json:"failed"`
}

// Fingerprint is a document identity. Never mutated after
// write; uniqueness is (IterationID, URL).
type Fingerprint struct {
	// Key is IterationID+"|"+URL, used as the badgerhold primary key so
	// RecordFingerprint can Upsert idempotently.
	Key          string            `json:"key" badgerhold:"key"`
	IterationID  string            `json:"iteration_id" badgerhold:"index"`
	URL          string            `json:"url"`
	ContentHash  string            `json:"content_hash"`
	ETag         string            `json:"etag,omitempty"`
	LastModified string            `json:"last_modified,omitempty"`
	ByteSize     uint64            `json:"byte_size"`
	FetchedAt    time.Time         `json:"fetched_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// FingerprintKey builds the composite key used for storage.
func FingerprintKey(iterationID, url string) string {
	return iterationID + "|" + url
}

// CompareResult is the deterministic output of Compare(a, b).
type CompareResult struct {
	New       []string `json:"new"`
	Modified  []string `json:"modified"`
	Unchanged []string `json:"unchanged"`
	Deleted   []string `json:"deleted"`
	Summary   CompareSummary `json:"summary"`
}

// CompareSummary is the count rollup of a CompareResult.
type CompareSummary struct {
	New       int `json:"new"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
}
