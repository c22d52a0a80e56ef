package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"freshtrack/internal/types"
)

// ArchiveRepository provides data access for the reading_archives table,
// where expired readings are kept as compressed blobs after retention
// cleanup removes them from the hot table.
type ArchiveRepository struct {
	db DBTX
}

// NewArchiveRepository creates an ArchiveRepository backed by the given
// database connection (pool or transaction).
func NewArchiveRepository(db DBTX) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// ReadingArchive is one compressed batch of expired readings.
type ReadingArchive struct {
	ID           string    `json:"id" db:"id"`
	FromObserved time.Time `json:"from_observed" db:"from_observed"`
	ToObserved   time.Time `json:"to_observed" db:"to_observed"`
	ReadingCount int       `json:"reading_count" db:"reading_count"`
	Blob         []byte    `json:"-" db:"blob"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Insert stores one compressed archive batch.
func (r *ArchiveRepository) Insert(ctx context.Context, a *ReadingArchive) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO reading_archives (id, from_observed, to_observed, reading_count, blob)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID,
		a.FromObserved,
		a.ToObserved,
		a.ReadingCount,
		a.Blob,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert reading archive", err)
	}
	return nil
}
