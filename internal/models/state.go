package models

// State is a top-level crawl lifecycle state.
type State string

const (
	StateQueued       State = "queued"
	StateInitializing State = "initializing"
	StateCrawling     State = "crawling"
	StateExtracting   State = "extracting"
	StateProcessing   State = "processing"
	StateCompleted    State = "completed"
	StatePaused       State = "paused"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// Substate refines a State with phase-specific progress.
type Substate string

const (
	// Crawling substates.
	SubstateDiscovering      Substate = "discovering"
	SubstateDownloadingPages Substate = "downloading_pages"
	SubstateDownloadingDocs  Substate = "downloading_docs"

	// Extracting substates.
	SubstateTextExtraction Substate = "text_extraction"
	SubstateTableDetection Substate = "table_detection"
	SubstateOCR            Substate = "ocr"

	// Processing substates.
	SubstateMetadata      Substate = "metadata"
	SubstateQualityScoring Substate = "quality_scoring"
	SubstateDeduplication Substate = "deduplication"
	SubstateExport        Substate = "export"

	SubstateNone Substate = ""
)

// IsTerminal reports whether a state admits no further transitions.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// ChangeClass classifies a URL's content relative to a prior iteration.
type ChangeClass string

const (
	ChangeNew       ChangeClass = "New"
	ChangeModified  ChangeClass = "Modified"
	ChangeUnchanged ChangeClass = "Unchanged"
	ChangeDeleted   ChangeClass = "Deleted"
)

// IterationMode selects how a child iteration relates fingerprints to its
// parent/baseline.
type IterationMode string

const (
	ModeBaseline    IterationMode = "baseline"
	ModeIncremental IterationMode = "incremental"
	ModeFull        IterationMode = "full"
)

// CheckpointKind records why a checkpoint was written.
type CheckpointKind string

const (
	CheckpointAuto   CheckpointKind = "auto"
	CheckpointManual CheckpointKind = "manual"
	CheckpointPause  CheckpointKind = "pause"
	CheckpointError  CheckpointKind = "error"
)
