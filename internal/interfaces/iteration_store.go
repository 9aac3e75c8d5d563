package interfaces

import "github.com/ternarybob/crawlcore/internal/models"

// IterationStore materializes and queries the iteration graph and its
// fingerprint sets.
type IterationStore interface {
	CreateBaseline(crawlID string) (models.Iteration, error)
	// CreateChild allocates a new iteration whose parent is the crawl's
	// latest iteration and whose baseline is iteration 0. Fails unless the
	// parent is completed, or mode is full and allowForkFromFailed is true.
	CreateChild(crawlID string, mode models.IterationMode, allowForkFromFailed bool) (models.Iteration, error)
	GetIteration(iterationID string) (models.Iteration, error)
	// Latest returns the most recently created iteration for crawlID.
	Latest(crawlID string) (models.Iteration, error)
	GetFingerprints(iterationID string) (map[string]models.Fingerprint, error)
	RecordFingerprint(iterationID string, fp models.Fingerprint) error
	Complete(iterationID string, stats models.IterationStats) error
	Compare(iterationA, iterationB string) (models.CompareResult, error)
}
