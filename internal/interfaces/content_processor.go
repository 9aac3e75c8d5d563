package interfaces

import "context"

// DiscoveredURL is a link a ContentProcessor surfaces for the frontier,
// subject to the executor's depth/target-limit checks.
type DiscoveredURL struct {
	URL   string
	Depth int
}

// ProcessOutcome is the typed result a ContentProcessor returns, replacing
// exception-driven control flow.
type ProcessOutcome struct {
	Skipped    bool
	SkipReason string
	Failed     bool
	Err        error
	Discovered []DiscoveredURL
	// QualityScore is compared against CrawlConfig.MinQualityScore by the
	// executor only when Scored is true; processors that don't score content
	// leave Scored false, which the executor treats as "no judgement made"
	// rather than "failed".
	QualityScore float64
	Scored       bool
}

// ContentProcessor is the pluggable post-fetch stage: rich
// extraction (PDF/OCR/table parsing) is explicitly out of scope for this
// repo and lives behind this interface.
type ContentProcessor interface {
	Process(ctx context.Context, url string, body []byte, header map[string][]string) ProcessOutcome
}
