// Package iteration implements the iteration store: the iteration
// chain (baseline/parent pointers), per-iteration fingerprint sets, and
// deterministic Compare.
package iteration

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/crawlcore/internal/interfaces"
	"github.com/ternarybob/crawlcore/internal/models"
	"github.com/ternarybob/crawlcore/internal/storage/badger"
)

// Store is the concrete IterationStore, backed by badgerhold for durable
// metadata and a per-iteration in-memory fingerprint cache, lazily filled
// from persistent storage on first access.
type Store struct {
	storage *badger.IterationStorage

	mu    sync.Mutex
	cache map[string]map[string]models.Fingerprint // iterationID -> url -> fp
}

var _ interfaces.IterationStore = (*Store)(nil)

// New constructs a Store over the given badger-backed iteration storage.
func New(storage *badger.IterationStorage) *Store {
	return &Store{
		storage: storage,
		cache:   make(map[string]map[string]models.Fingerprint),
	}
}

func (s *Store) CreateBaseline(crawlID string) (models.Iteration, error) {
	existing, err := s.storage.IterationsForCrawl(crawlID)
	if err != nil {
		return models.Iteration{}, err
	}
	for _, it := range existing {
		if it.IterationNumber == 0 {
			return models.Iteration{}, fmt.Errorf("baseline iteration already exists for crawl %s", crawlID)
		}
	}

	it := models.Iteration{
		ID:              crawlID + "-iter-0",
		CrawlID:         crawlID,
		IterationNumber: 0,
		Mode:            models.ModeBaseline,
		StartedAt:       time.Now(),
	}
	it.BaselineIterationID = it.ID

	if err := s.storage.SaveIteration(&it); err != nil {
		return models.Iteration{}, err
	}
	return it, nil
}

// CreateChild allocates a new iteration whose parent is the crawl's latest
// iteration and whose baseline is iteration 0. Fails unless
// the parent is completed, or mode is full and allowForkFromFailed is true.
func (s *Store) CreateChild(crawlID string, mode models.IterationMode, allowForkFromFailed bool) (models.Iteration, error) {
	parent, err := s.Latest(crawlID)
	if err != nil {
		return models.Iteration{}, fmt.Errorf("no baseline iteration exists for crawl %s: %w", crawlID, err)
	}

	if parent.CompletedAt == nil {
		if !(mode == models.ModeFull && allowForkFromFailed) {
			return models.Iteration{}, fmt.Errorf(
				"cannot create child iteration: parent %s is not completed", parent.ID)
		}
	}

	it := models.Iteration{
		ID:                  fmt.Sprintf("%s-iter-%d", crawlID, parent.IterationNumber+1),
		CrawlID:             crawlID,
		IterationNumber:     parent.IterationNumber + 1,
		ParentIterationID:   parent.ID,
		BaselineIterationID: parent.BaselineIterationID,
		Mode:                mode,
		StartedAt:           time.Now(),
	}
	if it.BaselineIterationID == "" {
		it.BaselineIterationID = parent.ID
	}

	if err := s.storage.SaveIteration(&it); err != nil {
		return models.Iteration{}, err
	}
	return it, nil
}

func (s *Store) GetIteration(iterationID string) (models.Iteration, error) {
	it, err := s.storage.GetIteration(iterationID)
	if err != nil {
		return models.Iteration{}, err
	}
	return *it, nil
}

// Latest returns the most recently created (highest IterationNumber)
// iteration for crawlID.
func (s *Store) Latest(crawlID string) (models.Iteration, error) {
	its, err := s.storage.IterationsForCrawl(crawlID)
	if err != nil {
		return models.Iteration{}, err
	}
	if len(its) == 0 {
		return models.Iteration{}, fmt.Errorf("no iterations exist for crawl %s", crawlID)
	}
	sort.Slice(its, func(i, j int) bool { return its[i].IterationNumber > its[j].IterationNumber })
	return its[0], nil
}

// GetFingerprints returns a read-only snapshot of the iteration's
// fingerprint map, lazily loading it from storage on first access.
func (s *Store) GetFingerprints(iterationID string) (map[string]models.Fingerprint, error) {
	s.mu.Lock()
	if cached, ok := s.cache[iterationID]; ok {
		s.mu.Unlock()
		return copyFingerprintMap(cached), nil
	}
	s.mu.Unlock()

	fps, err := s.storage.FingerprintsForIteration(iterationID)
	if err != nil {
		return nil, err
	}

	byURL := make(map[string]models.Fingerprint, len(fps))
	for _, fp := range fps {
		byURL[fp.URL] = fp
	}

	s.mu.Lock()
	s.cache[iterationID] = byURL
	s.mu.Unlock()

	return copyFingerprintMap(byURL), nil
}

// RecordFingerprint is idempotent on (iteration_id, url): an identical
// rewrite is a no-op; a differing rewrite is last-write-wins within the
// iteration. Fails with IterationSealed once Complete has
// been called.
func (s *Store) RecordFingerprint(iterationID string, fp models.Fingerprint) error {
	it, err := s.storage.GetIteration(iterationID)
	if err != nil {
		return err
	}
	if it.Sealed {
		return models.ErrIterationSealed
	}

	fp.IterationID = iterationID
	fp.Key = models.FingerprintKey(iterationID, fp.URL)

	// Fill the cache from storage first so it is never seeded empty over
	// fingerprints persisted before this process started.
	s.mu.Lock()
	_, loaded := s.cache[iterationID]
	s.mu.Unlock()
	if !loaded {
		if _, err := s.GetFingerprints(iterationID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	cached, ok := s.cache[iterationID]
	if !ok {
		cached = make(map[string]models.Fingerprint)
	}
	if existing, seen := cached[fp.URL]; seen && existing.ContentHash == fp.ContentHash &&
		existing.ETag == fp.ETag && existing.LastModified == fp.LastModified {
		s.mu.Unlock()
		return nil
	}
	cached[fp.URL] = fp
	s.cache[iterationID] = cached
	s.mu.Unlock()

	return s.storage.SaveFingerprint(&fp)
}

// Complete seals the iteration; subsequent RecordFingerprint calls fail.
func (s *Store) Complete(iterationID string, stats models.IterationStats) error {
	it, err := s.storage.GetIteration(iterationID)
	if err != nil {
		return err
	}
	if it.Sealed {
		return nil
	}
	now := time.Now()
	it.CompletedAt = &now
	it.Stats = stats
	it.Sealed = true
	return s.storage.SaveIteration(it)
}

// Compare computes set differences keyed by URL between two iterations,
// classifying the intersection by content hash, iterating URLs in sorted
// order so the result is deterministic.
func (s *Store) Compare(iterationA, iterationB string) (models.CompareResult, error) {
	a, err := s.GetFingerprints(iterationA)
	if err != nil {
		return models.CompareResult{}, err
	}
	b, err := s.GetFingerprints(iterationB)
	if err != nil {
		return models.CompareResult{}, err
	}

	result := models.CompareResult{
		New:       []string{},
		Modified:  []string{},
		Unchanged: []string{},
		Deleted:   []string{},
	}

	urls := make(map[string]struct{}, len(a)+len(b))
	for u := range a {
		urls[u] = struct{}{}
	}
	for u := range b {
		urls[u] = struct{}{}
	}
	sorted := make([]string, 0, len(urls))
	for u := range urls {
		sorted = append(sorted, u)
	}
	sort.Strings(sorted)

	for _, u := range sorted {
		fpA, inA := a[u]
		fpB, inB := b[u]
		switch {
		case !inA && inB:
			result.New = append(result.New, u)
		case inA && !inB:
			result.Deleted = append(result.Deleted, u)
		case fpA.ContentHash == fpB.ContentHash:
			result.Unchanged = append(result.Unchanged, u)
		default:
			result.Modified = append(result.Modified, u)
		}
	}

	result.Summary = models.CompareSummary{
		New:       len(result.New),
		Modified:  len(result.Modified),
		Unchanged: len(result.Unchanged),
		Deleted:   len(result.Deleted),
	}
	return result, nil
}

// CompareJSON renders a CompareResult the way it would be serialized for
// the control-plane boundary; exposed so callers can exercise testable
// property 3 (byte-identical JSON for byte-identical inputs) directly.
func CompareJSON(r models.CompareResult) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func copyFingerprintMap(m map[string]models.Fingerprint) map[string]models.Fingerprint {
	out := make(map[string]models.Fingerprint, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
