package iteration

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/crawlcore/internal/models"
	"github.com/ternarybob/crawlcore/internal/storage/badger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "iteration-badger-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir

	raw, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	db := badger.WrapStoreForTest(raw)
	storage := badger.NewIterationStorage(db, arbor.NewLogger())
	return New(storage)
}

func TestIterationChainIntegrity(t *testing.T) {
	s := newTestStore(t)

	baseline, err := s.CreateBaseline("crawl-1")
	require.NoError(t, err)
	assert.Equal(t, 0, baseline.IterationNumber)
	assert.Equal(t, baseline.ID, baseline.BaselineIterationID)

	require.NoError(t, s.Complete(baseline.ID, models.IterationStats{New: 3}))

	child, err := s.CreateChild("crawl-1", models.ModeIncremental, false)
	require.NoError(t, err)
	assert.Equal(t, 1, child.IterationNumber)
	assert.Equal(t, baseline.ID, child.ParentIterationID)
	assert.Equal(t, baseline.ID, child.BaselineIterationID)
}

func TestCreateChildRejectsIncompleteParent(t *testing.T) {
	s := newTestStore(t)
	baseline, err := s.CreateBaseline("crawl-2")
	require.NoError(t, err)
	_ = baseline

	_, err = s.CreateChild("crawl-2", models.ModeIncremental, false)
	assert.Error(t, err)
}

func TestCreateChildAllowsFullForkFromFailed(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateBaseline("crawl-3")
	require.NoError(t, err)

	_, err = s.CreateChild("crawl-3", models.ModeFull, true)
	assert.NoError(t, err)
}

func TestRecordFingerprintIdempotent(t *testing.T) {
	s := newTestStore(t)
	baseline, err := s.CreateBaseline("crawl-4")
	require.NoError(t, err)

	fp := models.Fingerprint{URL: "https://example.com/a", ContentHash: "abc"}
	require.NoError(t, s.RecordFingerprint(baseline.ID, fp))
	require.NoError(t, s.RecordFingerprint(baseline.ID, fp))

	fps, err := s.GetFingerprints(baseline.ID)
	require.NoError(t, err)
	assert.Len(t, fps, 1)
}

func TestRecordFingerprintFailsAfterSeal(t *testing.T) {
	s := newTestStore(t)
	baseline, err := s.CreateBaseline("crawl-5")
	require.NoError(t, err)
	require.NoError(t, s.Complete(baseline.ID, models.IterationStats{}))

	err = s.RecordFingerprint(baseline.ID, models.Fingerprint{URL: "https://example.com/a"})
	assert.ErrorIs(t, err, models.ErrIterationSealed)
}

func TestCompareIsDeterministicAndSound(t *testing.T) {
	s := newTestStore(t)
	baseline, err := s.CreateBaseline("crawl-6")
	require.NoError(t, err)
	require.NoError(t, s.RecordFingerprint(baseline.ID, models.Fingerprint{URL: "https://x/a", ContentHash: "h-a0"}))
	require.NoError(t, s.RecordFingerprint(baseline.ID, models.Fingerprint{URL: "https://x/b", ContentHash: "h-b0"}))
	require.NoError(t, s.RecordFingerprint(baseline.ID, models.Fingerprint{URL: "https://x/c", ContentHash: "h-c0"}))
	require.NoError(t, s.Complete(baseline.ID, models.IterationStats{New: 3}))

	child, err := s.CreateChild("crawl-6", models.ModeIncremental, false)
	require.NoError(t, err)
	require.NoError(t, s.RecordFingerprint(child.ID, models.Fingerprint{URL: "https://x/a", ContentHash: "h-a0"}))
	require.NoError(t, s.RecordFingerprint(child.ID, models.Fingerprint{URL: "https://x/b", ContentHash: "h-b0"}))
	require.NoError(t, s.RecordFingerprint(child.ID, models.Fingerprint{URL: "https://x/c", ContentHash: "h-c1"}))
	require.NoError(t, s.Complete(child.ID, models.IterationStats{Modified: 1, Unchanged: 2}))

	result, err := s.Compare(baseline.ID, child.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{}, result.New)
	assert.Equal(t, []string{"https://x/c"}, result.Modified)
	assert.Equal(t, []string{"https://x/a", "https://x/b"}, result.Unchanged)
	assert.Equal(t, []string{}, result.Deleted)

	resultAgain, err := s.Compare(baseline.ID, child.ID)
	require.NoError(t, err)
	j1, _ := CompareJSON(result)
	j2, _ := CompareJSON(resultAgain)
	assert.Equal(t, j1, j2)
}
