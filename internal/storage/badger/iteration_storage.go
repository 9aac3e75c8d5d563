package badger

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/crawlcore/internal/models"
)

// IterationStorage persists Iteration and Fingerprint records, following the
// teacher's DocumentStorage Upsert/Find/Where idiom.
type IterationStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewIterationStorage constructs an IterationStorage.
func NewIterationStorage(db *BadgerDB, logger arbor.ILogger) *IterationStorage {
	return &IterationStorage{db: db, logger: logger}
}

func (s *IterationStorage) SaveIteration(it *models.Iteration) error {
	if it.ID == "" {
		return fmt.Errorf("iteration ID is required")
	}
	if err := s.db.Store().Upsert(it.ID, it); err != nil {
		return fmt.Errorf("failed to save iteration: %w", err)
	}
	return nil
}

func (s *IterationStorage) GetIteration(id string) (*models.Iteration, error) {
	var it models.Iteration
	if err := s.db.Store().Get(id, &it); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("iteration not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get iteration: %w", err)
	}
	return &it, nil
}

// IterationsForCrawl returns every iteration for crawlID, unordered; callers
// sort by IterationNumber as needed.
func (s *IterationStorage) IterationsForCrawl(crawlID string) ([]models.Iteration, error) {
	var its []models.Iteration
	if err := s.db.Store().Find(&its, badgerhold.Where("CrawlID").Eq(crawlID)); err != nil {
		return nil, fmt.Errorf("failed to list iterations: %w", err)
	}
	return its, nil
}

func (s *IterationStorage) SaveFingerprint(fp *models.Fingerprint) error {
	if fp.Key == "" {
		return fmt.Errorf("fingerprint key is required")
	}
	if err := s.db.Store().Upsert(fp.Key, fp); err != nil {
		return fmt.Errorf("failed to save fingerprint: %w", err)
	}
	return nil
}

func (s *IterationStorage) GetFingerprint(key string) (*models.Fingerprint, error) {
	var fp models.Fingerprint
	if err := s.db.Store().Get(key, &fp); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get fingerprint: %w", err)
	}
	return &fp, nil
}

// FingerprintsForIteration returns all fingerprints recorded against
// iterationID, used to materialize IterationStore.GetFingerprints.
func (s *IterationStorage) FingerprintsForIteration(iterationID string) ([]models.Fingerprint, error) {
	var fps []models.Fingerprint
	if err := s.db.Store().Find(&fps, badgerhold.Where("IterationID").Eq(iterationID)); err != nil {
		return nil, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	return fps, nil
}
