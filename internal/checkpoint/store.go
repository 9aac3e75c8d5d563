// Package checkpoint implements the checkpoint store: atomic,
// compressed, versioned snapshots of executor state that support resume
// across process restarts.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/crawlcore/internal/common"
	"github.com/ternarybob/crawlcore/internal/interfaces"
	"github.com/ternarybob/crawlcore/internal/models"
	"github.com/ternarybob/crawlcore/internal/storage/badger"
)

// Store is the concrete CheckpointStore. Metadata sidecars live in
// badgerhold (via storage); compressed blobs live on the filesystem under
// blobDir, one file per checkpoint, named by checkpoint ID.
type Store struct {
	storage *badger.CheckpointStorage
	blobDir string
	logger  arbor.ILogger
}

var _ interfaces.CheckpointStore = (*Store)(nil)

// New constructs a Store. blobDir is created if missing.
func New(storage *badger.CheckpointStorage, blobDir string, logger arbor.ILogger) (*Store, error) {
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint blob dir: %w", err)
	}
	return &Store{storage: storage, blobDir: blobDir, logger: logger}, nil
}

// Snapshot serializes bundle to JSON, compresses it with zstd (a generic
// streaming compressor achieving well over 2x on the repetitive frontier
// URL lists), and writes it to a temp file followed by an
// atomic rename so a partial file is never observed as a valid checkpoint.
func (s *Store) Snapshot(crawlID string, bundle models.StateBundle, kind models.CheckpointKind) (models.Checkpoint, error) {
	bundle.CrawlID = crawlID
	bundle.SchemaVersion = models.SchemaVersion

	raw, err := json.Marshal(bundle)
	if err != nil {
		return models.Checkpoint{}, models.NewError(models.KindStorageError, "", fmt.Errorf("marshal state bundle: %w", err))
	}

	compressed, err := compressZstd(raw)
	if err != nil {
		return models.Checkpoint{}, models.NewError(models.KindStorageError, "", fmt.Errorf("compress state bundle: %w", err))
	}

	seq, err := s.nextSequenceNumber(crawlID)
	if err != nil {
		return models.Checkpoint{}, err
	}

	checksum := sha256Hex(compressed)
	id := common.NewCheckpointID()
	blobPath := filepath.Join(s.blobDir, id+".zst")

	if err := writeAtomic(blobPath, compressed); err != nil {
		return models.Checkpoint{}, models.NewError(models.KindStorageError, "", fmt.Errorf("write checkpoint blob: %w", err))
	}

	cp := models.Checkpoint{
		ID:             id,
		CrawlID:        crawlID,
		SequenceNumber: seq,
		Kind:           kind,
		CreatedAt:      time.Now(),
		State:          bundle.State,
		Substate:       bundle.Substate,
		SchemaVersion:  models.SchemaVersion,
		Checksum:       checksum,
		BlobPath:       blobPath,
	}

	if err := s.storage.SaveCheckpoint(&cp); err != nil {
		_ = os.Remove(blobPath)
		return models.Checkpoint{}, models.NewError(models.KindStorageError, "", err)
	}

	if s.logger != nil {
		s.logger.Debug().Str("crawl_id", crawlID).Int64("sequence", seq).Str("kind", string(kind)).Msg("checkpoint snapshot written")
	}
	return cp, nil
}

// Latest returns the highest sequence number with an intact payload.
// Corrupt checkpoints are skipped with a logged warning, never silently
// treated as missing.
func (s *Store) Latest(crawlID string) (models.Checkpoint, bool, error) {
	cps, err := s.storage.ListCheckpoints(crawlID)
	if err != nil {
		return models.Checkpoint{}, false, err
	}
	sort.Slice(cps, func(i, j int) bool { return cps[i].SequenceNumber > cps[j].SequenceNumber })

	for _, cp := range cps {
		if s.verify(cp) == nil {
			return cp, true, nil
		}
		if s.logger != nil {
			s.logger.Warn().Str("crawl_id", crawlID).Int64("sequence", cp.SequenceNumber).Msg("skipping corrupt checkpoint")
		}
	}
	return models.Checkpoint{}, false, nil
}

func (s *Store) verify(cp models.Checkpoint) error {
	blob, err := os.ReadFile(cp.BlobPath)
	if err != nil {
		return err
	}
	if sha256Hex(blob) != cp.Checksum {
		return models.ErrCorruptCheckpoint
	}
	return nil
}

// Restore decompresses and unmarshals the checkpoint's blob, enforcing the
// terminal-state and schema-version guards.
func (s *Store) Restore(checkpointID string) (models.StateBundle, error) {
	cp, err := s.storage.GetCheckpoint(checkpointID)
	if err != nil {
		return models.StateBundle{}, err
	}

	if cp.IsTerminal() {
		return models.StateBundle{}, models.ErrTerminalCheckpoint
	}
	if cp.SchemaVersion != models.SchemaVersion {
		return models.StateBundle{}, models.ErrSchemaMismatch
	}

	blob, err := os.ReadFile(cp.BlobPath)
	if err != nil {
		return models.StateBundle{}, models.NewError(models.KindCorruptCheckpoint, "", err)
	}
	if sha256Hex(blob) != cp.Checksum {
		return models.StateBundle{}, models.ErrCorruptCheckpoint
	}

	raw, err := decompressZstd(blob)
	if err != nil {
		return models.StateBundle{}, models.NewError(models.KindCorruptCheckpoint, "", err)
	}

	var bundle models.StateBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return models.StateBundle{}, models.NewError(models.KindCorruptCheckpoint, "", err)
	}
	return bundle, nil
}

// Cleanup retains the N most recent checkpoints and deletes the rest. It
// never deletes the checkpoint currently being restored by asking callers
// to pass keepLastN large enough to include it, since Restore and Cleanup
// are never invoked concurrently for the same crawl in this design.
func (s *Store) Cleanup(crawlID string, keepLastN int) error {
	cps, err := s.storage.ListCheckpoints(crawlID)
	if err != nil {
		return err
	}
	sort.Slice(cps, func(i, j int) bool { return cps[i].SequenceNumber > cps[j].SequenceNumber })

	if keepLastN < 0 {
		keepLastN = 0
	}
	if len(cps) <= keepLastN {
		return nil
	}

	for _, cp := range cps[keepLastN:] {
		if err := s.Delete(cp.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) List(crawlID string) ([]models.Checkpoint, error) {
	cps, err := s.storage.ListCheckpoints(crawlID)
	if err != nil {
		return nil, err
	}
	sort.Slice(cps, func(i, j int) bool { return cps[i].SequenceNumber < cps[j].SequenceNumber })
	return cps, nil
}

func (s *Store) Delete(checkpointID string) error {
	cp, err := s.storage.GetCheckpoint(checkpointID)
	if err != nil {
		return err
	}
	if err := os.Remove(cp.BlobPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint blob: %w", err)
	}
	return s.storage.DeleteCheckpoint(checkpointID)
}

func (s *Store) nextSequenceNumber(crawlID string) (int64, error) {
	cps, err := s.storage.ListCheckpoints(crawlID)
	if err != nil {
		return 0, err
	}
	var max int64 = -1
	for _, cp := range cps {
		if cp.SequenceNumber > max {
			max = cp.SequenceNumber
		}
	}
	return max + 1, nil
}

func compressZstd(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

func decompressZstd(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(compressed, nil)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// writeAtomic writes data to a temp file in the same directory as path and
// renames it into place, so a crash mid-write never leaves a partial file
// observable under the final name.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
