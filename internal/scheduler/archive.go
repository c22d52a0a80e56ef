package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"freshtrack/internal/db"
	"freshtrack/internal/types"
)

// ExpiredReadingStore pages and deletes expired readings. Implemented by
// db.ReadingRepository.
type ExpiredReadingStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.Reading, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// ArchiveStore persists compressed reading batches. Implemented by
// db.ArchiveRepository.
type ArchiveStore interface {
	Insert(ctx context.Context, a *db.ReadingArchive) error
}

// ReadingArchiver moves readings past the retention window out of the hot
// table into compressed cold-storage blobs. Batches are compressed with
// zstd; deletion happens only after the archive row is durably written, so
// a crash mid-run duplicates at worst, never loses.
type ReadingArchiver struct {
	readings  ExpiredReadingStore
	archives  ArchiveStore
	retention time.Duration
	batchSize int
	maxBatch  int
	encoder   *zstd.Encoder
	logger    types.Logger
}

// NewReadingArchiver builds a ReadingArchiver. retention is how long
// readings stay in the hot table; maxBatches bounds one run to keep the
// Lambda inside its timeout during backfills.
func NewReadingArchiver(readings ExpiredReadingStore, archives ArchiveStore,
	retention time.Duration, batchSize, maxBatches int, logger types.Logger) (*ReadingArchiver, error) {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	if batchSize <= 0 {
		batchSize = 5000
	}
	if maxBatches <= 0 {
		maxBatches = 10
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return &ReadingArchiver{
		readings:  readings,
		archives:  archives,
		retention: retention,
		batchSize: batchSize,
		maxBatch:  maxBatches,
		encoder:   encoder,
		logger:    logger,
	}, nil
}

// Archive compresses and removes readings observed before now minus the
// retention window. Returns the total number of readings archived.
func (a *ReadingArchiver) Archive(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-a.retention)
	total := 0

	for i := 0; i < a.maxBatch; i++ {
		batch, err := a.readings.ListBefore(ctx, cutoff, a.batchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}

		if err := a.archiveBatch(ctx, batch); err != nil {
			return total, err
		}
		total += len(batch)

		if len(batch) < a.batchSize {
			break
		}
	}

	if total > 0 {
		a.logger.Info("readings archived", "count", total, "cutoff", cutoff)
	}
	return total, nil
}

func (a *ReadingArchiver) archiveBatch(ctx context.Context, batch []types.Reading) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to serialize reading batch: %w", err)
	}
	blob := a.encoder.EncodeAll(payload, nil)

	// Batches come back oldest first.
	archive := &db.ReadingArchive{
		FromObserved: batch[0].ObservedAt,
		ToObserved:   batch[len(batch)-1].ObservedAt,
		ReadingCount: len(batch),
		Blob:         blob,
	}
	if err := a.archives.Insert(ctx, archive); err != nil {
		return err
	}

	ids := make([]string, len(batch))
	for i, rd := range batch {
		ids[i] = rd.ID
	}
	_, err = a.readings.DeleteByIDs(ctx, ids)
	return err
}
