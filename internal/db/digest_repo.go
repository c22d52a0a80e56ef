package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"freshtrack/internal/types"
)

// DigestRepository provides data access for the digest_schedules table, the
// durable scheduling substrate for recurring per-user digests. The primary
// key is (user_id, cadence), which is what makes schedule sync naturally
// idempotent: re-syncing identical preferences rewrites the same rows.
type DigestRepository struct {
	db DBTX
}

// NewDigestRepository creates a DigestRepository backed by the given
// database connection (pool or transaction).
func NewDigestRepository(db DBTX) *DigestRepository {
	return &DigestRepository{db: db}
}

// Upsert writes a schedule keyed on (user_id, cadence).
func (r *DigestRepository) Upsert(ctx context.Context, s *types.DigestSchedule) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO digest_schedules (user_id, cadence, timezone, enabled, next_run_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (user_id, cadence) DO UPDATE SET
			timezone = EXCLUDED.timezone,
			enabled = EXCLUDED.enabled,
			next_run_at = EXCLUDED.next_run_at,
			updated_at = NOW()`,
		s.UserID,
		string(s.Cadence),
		s.Timezone,
		s.Enabled,
		s.NextRunAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert digest schedule", err)
	}
	return nil
}

// Delete removes one (user, cadence) schedule. Deleting a schedule that
// does not exist is a no-op, which keeps preference sync idempotent.
func (r *DigestRepository) Delete(ctx context.Context, userID string, cadence types.DigestCadence) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM digest_schedules WHERE user_id = $1 AND cadence = $2`,
		userID, string(cadence),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete digest schedule", err)
	}
	return nil
}

// DeleteAllForUser removes every schedule for a user. Called on account
// deactivation.
func (r *DigestRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM digest_schedules WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete digest schedules", err)
	}
	return nil
}

// ListForUser retrieves a user's schedules.
func (r *DigestRepository) ListForUser(ctx context.Context, userID string) ([]types.DigestSchedule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, cadence, timezone, enabled, next_run_at, updated_at
		 FROM digest_schedules
		 WHERE user_id = $1
		 ORDER BY cadence`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list digest schedules", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// ListDue retrieves enabled schedules whose next_run_at has passed, oldest
// first, in batches. The digest trigger job advances next_run_at after a
// successful enqueue so a schedule is never picked up twice for one slot.
func (r *DigestRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]types.DigestSchedule, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT user_id, cadence, timezone, enabled, next_run_at, updated_at
		 FROM digest_schedules
		 WHERE enabled AND next_run_at <= $1
		 ORDER BY next_run_at ASC
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list due digest schedules", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// AdvanceNextRun moves a schedule's next_run_at forward. Conditional on the
// stored value still matching the one the caller dispatched, so two
// overlapping trigger runs cannot double-fire the same slot; the second
// return reports whether this caller won.
func (r *DigestRepository) AdvanceNextRun(ctx context.Context, userID string, cadence types.DigestCadence, from, to time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE digest_schedules SET next_run_at = $1, updated_at = NOW()
		 WHERE user_id = $2 AND cadence = $3 AND next_run_at = $4`,
		to, userID, string(cadence), from,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to advance digest schedule", err)
	}
	return tag.RowsAffected() > 0, nil
}

func collectSchedules(rows pgx.Rows) ([]types.DigestSchedule, error) {
	var schedules []types.DigestSchedule
	for rows.Next() {
		var s types.DigestSchedule
		if err := rows.Scan(&s.UserID, &s.Cadence, &s.Timezone, &s.Enabled,
			&s.NextRunAt, &s.UpdatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan digest schedule row", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating digest schedule rows", err)
	}
	return schedules, nil
}
