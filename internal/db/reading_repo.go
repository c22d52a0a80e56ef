package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"freshtrack/internal/types"
)

// ReadingRepository provides data access for the readings table. Readings
// are append-only; the only mutation besides insert is retention deletion
// performed by the archiver.
type ReadingRepository struct {
	db DBTX
}

// NewReadingRepository creates a ReadingRepository backed by the given
// database connection (pool or transaction).
func NewReadingRepository(db DBTX) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// Insert persists a reading. Duplicate deliveries of the same observation
// (same unit_id and observed_at, a fact of at-least-once queue semantics)
// are idempotent no-ops; the second return reports whether a row was
// actually written.
func (r *ReadingRepository) Insert(ctx context.Context, reading *types.Reading) (bool, error) {
	if reading.ID == "" {
		reading.ID = uuid.NewString()
	}
	if reading.ReceivedAt.IsZero() {
		reading.ReceivedAt = time.Now().UTC()
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO readings (id, unit_id, temperature, humidity, observed_at, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (unit_id, observed_at) DO NOTHING`,
		reading.ID,
		reading.UnitID,
		reading.Temperature,
		reading.Humidity,
		reading.ObservedAt,
		reading.ReceivedAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert reading", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecentWindow returns the most recent readings for a unit ordered oldest to
// newest, sized for consecutive-count evaluation. The window is keyed on
// observed_at so late-arriving readings slot into their true position.
func (r *ReadingRepository) RecentWindow(ctx context.Context, unitID string, limit int) ([]types.Reading, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, unit_id, temperature, humidity, observed_at, received_at
		 FROM (
		     SELECT id, unit_id, temperature, humidity, observed_at, received_at
		     FROM readings
		     WHERE unit_id = $1
		     ORDER BY observed_at DESC
		     LIMIT $2
		 ) w
		 ORDER BY observed_at ASC`,
		unitID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query reading window", err)
	}
	defer rows.Close()

	var readings []types.Reading
	for rows.Next() {
		var rd types.Reading
		if err := rows.Scan(&rd.ID, &rd.UnitID, &rd.Temperature, &rd.Humidity,
			&rd.ObservedAt, &rd.ReceivedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reading row", err)
		}
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating reading rows", err)
	}

	return readings, nil
}

// ListBefore returns up to limit readings observed before the cutoff,
// oldest first. Used by the archiver to page through expired data.
func (r *ReadingRepository) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.Reading, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, unit_id, temperature, humidity, observed_at, received_at
		 FROM readings
		 WHERE observed_at < $1
		 ORDER BY observed_at ASC
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expired readings", err)
	}
	defer rows.Close()

	var readings []types.Reading
	for rows.Next() {
		var rd types.Reading
		if err := rows.Scan(&rd.ID, &rd.UnitID, &rd.Temperature, &rd.Humidity,
			&rd.ObservedAt, &rd.ReceivedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reading row", err)
		}
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating reading rows", err)
	}

	return readings, nil
}

// DeleteByIDs hard-deletes readings by primary key after they have been
// archived. Returns the count of deleted rows.
func (r *ReadingRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM readings WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete archived readings", err)
	}
	return tag.RowsAffected(), nil
}

// LastObservedAt returns the observed_at of the unit's most recent reading.
// The second return is false when the unit has no readings at all.
func (r *ReadingRepository) LastObservedAt(ctx context.Context, unitID string) (time.Time, bool, error) {
	var last *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT MAX(observed_at) FROM readings WHERE unit_id = $1`,
		unitID,
	).Scan(&last)
	if err != nil {
		return time.Time{}, false, types.NewAppError(types.ErrCodeInternalDB, "failed to query last reading", err)
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return *last, true, nil
}
