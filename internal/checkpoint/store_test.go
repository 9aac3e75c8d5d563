package checkpoint

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
	metaDir, err := os.MkdirTemp("", "checkpoint-badger-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(metaDir) })

	options := badgerhold.DefaultOptions
	options.Dir = metaDir
	options.ValueDir = metaDir
	raw, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	db := badger.WrapStoreForTest(raw)
	storage := badger.NewCheckpointStorage(db, arbor.NewLogger())

	blobDir, err := os.MkdirTemp("", "checkpoint-blob-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(blobDir) })

	s, err := New(storage, blobDir, arbor.NewLogger())
	require.NoError(t, err)
	return s
}

func sampleBundle(state models.State) models.StateBundle {
	return models.StateBundle{
		State:    state,
		Substate: models.SubstateDownloadingPages,
		Frontier: []models.URLRecord{{URL: "https://example.com/a"}},
		Visited:  []string{"https://example.com/seed"},
	}
}

func TestSnapshotThenLatestRoundTrips(t *testing.T) {
	s := newTestStore(t)
	cp, err := s.Snapshot("crawl-1", sampleBundle(models.StateCrawling), models.CheckpointAuto)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cp.SequenceNumber)

	latest, ok, err := s.Latest("crawl-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cp.ID, latest.ID)

	bundle, err := s.Restore(latest.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCrawling, bundle.State)
	assert.Equal(t, []string{"https://example.com/seed"}, bundle.Visited)
}

func TestSequenceNumbersMonotonic(t *testing.T) {
	s := newTestStore(t)
	cp1, err := s.Snapshot("crawl-2", sampleBundle(models.StateCrawling), models.CheckpointAuto)
	require.NoError(t, err)
	cp2, err := s.Snapshot("crawl-2", sampleBundle(models.StateCrawling), models.CheckpointAuto)
	require.NoError(t, err)
	assert.Equal(t, cp1.SequenceNumber+1, cp2.SequenceNumber)
}

func TestCorruptCheckpointSkippedByLatest(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Snapshot("crawl-3", sampleBundle(models.StateCrawling), models.CheckpointAuto)
	require.NoError(t, err)
	corrupt, err := s.Snapshot("crawl-3", sampleBundle(models.StateCrawling), models.CheckpointAuto)
	require.NoError(t, err)

	// Corrupt the second checkpoint's blob in place.
	require.NoError(t, os.WriteFile(corrupt.BlobPath, []byte("not valid zstd data"), 0o644))

	latest, ok, err := s.Latest("crawl-3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, corrupt.ID, latest.ID)

	_, err = s.Restore(corrupt.ID)
	assert.ErrorIs(t, err, models.ErrCorruptCheckpoint)
}

func TestRestoreRejectsTerminalCheckpoint(t *testing.T) {
	s := newTestStore(t)
	cp, err := s.Snapshot("crawl-4", sampleBundle(models.StateCompleted), models.CheckpointAuto)
	require.NoError(t, err)

	_, err = s.Restore(cp.ID)
	assert.ErrorIs(t, err, models.ErrTerminalCheckpoint)
}

func TestCleanupKeepsOnlyMostRecent(t *testing.T) {
	s := newTestStore(t)
	var ids []string
	for i := 0; i < 5; i++ {
		cp, err := s.Snapshot("crawl-5", sampleBundle(models.StateCrawling), models.CheckpointAuto)
		require.NoError(t, err)
		ids = append(ids, cp.ID)
	}

	require.NoError(t, s.Cleanup("crawl-5", 2))

	remaining, err := s.List("crawl-5")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
	assert.Equal(t, ids[3], remaining[0].ID)
	assert.Equal(t, ids[4], remaining[1].ID)
}
