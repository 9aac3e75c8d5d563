package interfaces

import "github.com/ternarybob/crawlcore/internal/models"

// CheckpointStore captures and restores executor state across process
// boundaries.
type CheckpointStore interface {
	Snapshot(crawlID string, bundle models.StateBundle, kind models.CheckpointKind) (models.Checkpoint, error)
	Latest(crawlID string) (models.Checkpoint, bool, error)
	Restore(checkpointID string) (models.StateBundle, error)
	Cleanup(crawlID string, keepLastN int) error
	List(crawlID string) ([]models.Checkpoint, error)
	Delete(checkpointID string) error
}
