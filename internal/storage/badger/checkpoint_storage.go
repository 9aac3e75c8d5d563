package badger

import (
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/crawlcore/internal/models"
)

// CheckpointStorage persists the uncompressed Checkpoint metadata sidecar;
// the compressed StateBundle blob itself lives on the filesystem under
// BlobPath and is handled by internal/checkpoint.
type CheckpointStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCheckpointStorage constructs a CheckpointStorage.
func NewCheckpointStorage(db *BadgerDB, logger arbor.ILogger) *CheckpointStorage {
	return &CheckpointStorage{db: db, logger: logger}
}

func (s *CheckpointStorage) SaveCheckpoint(cp *models.Checkpoint) error {
	if cp.ID == "" {
		return fmt.Errorf("checkpoint ID is required")
	}
	if err := s.db.Store().Upsert(cp.ID, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStorage) GetCheckpoint(id string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	if err := s.db.Store().Get(id, &cp); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("checkpoint not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return &cp, nil
}

// ListCheckpoints returns every checkpoint for crawlID ordered by ascending
// sequence number.
func (s *CheckpointStorage) ListCheckpoints(crawlID string) ([]models.Checkpoint, error) {
	var cps []models.Checkpoint
	if err := s.db.Store().Find(&cps, badgerhold.Where("CrawlID").Eq(crawlID)); err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	sort.Slice(cps, func(i, j int) bool { return cps[i].SequenceNumber < cps[j].SequenceNumber })
	return cps, nil
}

func (s *CheckpointStorage) DeleteCheckpoint(id string) error {
	if err := s.db.Store().Delete(id, &models.Checkpoint{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
