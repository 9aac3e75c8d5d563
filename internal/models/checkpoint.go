package models

import "time"

// SchemaVersion is bumped whenever the StateBundle wire shape changes in a
// way Restore() must reject rather than silently misinterpret.
const SchemaVersion = 1

// Checkpoint is the metadata sidecar persisted uncompressed alongside a
// compressed StateBundle blob.
type Checkpoint struct {
	ID             string         `json:"checkpoint_id" badgerhold:"key"`
	CrawlID        string         `json:"crawl_id" badgerhold:"index"`
	SequenceNumber int64          `json:"sequence_number"`
	Kind           CheckpointKind `json:"kind"`
	CreatedAt      time.Time      `json:"created_at"`
	State          State          `json:"state"`
	Substate       Substate       `json:"substate"`
	SchemaVersion  int            `json:"schema_version"`
	Checksum       string         `json:"checksum"`
	// BlobPath is the on-disk path to the compressed StateBundle payload.
	BlobPath string `json:"blob_path"`
}

// IsTerminal mirrors State.IsTerminal for the checkpoint's captured state.
func (c Checkpoint) IsTerminal() bool {
	return c.State.IsTerminal()
}

// StateBundle is the authoritative content of a checkpoint:
// everything needed to resume execution from the exact point it was
// captured.
type StateBundle struct {
	CrawlID  string   `json:"crawl_id"`
	State    State    `json:"state"`
	Substate Substate `json:"substate"`
	// ResumeState is the state execution should continue from on restore:
	// equal to State, except when State==Paused, where it carries the
	// pre-pause state captured by the state machine so a restored executor doesn't need to re-enter Paused.
	ResumeState   State           `json:"resume_state"`
	Frontier      []URLRecord     `json:"frontier"`
	Visited       []string        `json:"visited"`
	Failed        []FailureRecord `json:"failed"`
	CompletedDocs []string        `json:"completed_documents"`
	Progress      Progress        `json:"progress"`
	MetricSamples []MetricSample  `json:"metric_samples"`
	Config        CrawlConfig     `json:"config"`
	IterationID   string          `json:"iteration_id"`
	BaselineID    string          `json:"baseline_iteration_id,omitempty"`
	ParentID      string          `json:"parent_iteration_id,omitempty"`
	SchemaVersion int             `json:"schema_version"`
}

// MetricSample is one point of the last-N metric samples carried in a
// checkpoint.
type MetricSample struct {
	Timestamp    time.Time          `json:"timestamp"`
	Counters     map[string]int64   `json:"counters"`
	Gauges       map[string]float64 `json:"gauges"`
}
