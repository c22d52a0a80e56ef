package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"freshtrack/internal/types"
)

// AttemptRepository provides data access for the notification_attempts
// table, the audit trail of every delivery try.
//
// Two invariants are enforced here rather than in callers: attempt numbers
// are strictly increasing per (alert, channel), and terminal statuses (sent,
// failed-permanent) are immutable. A late provider callback arriving after
// an attempt has already failed permanently must not resurrect it.
type AttemptRepository struct {
	db DBTX
}

// NewAttemptRepository creates an AttemptRepository backed by the given
// database connection (pool or transaction).
func NewAttemptRepository(db DBTX) *AttemptRepository {
	return &AttemptRepository{db: db}
}

const attemptColumns = `id, alert_id, channel, destination, attempt_number, status,
	provider_error_code, failure_category, provider_message_id, next_retry_at,
	last_attempt_at, created_at`

func scanAttempt(row pgx.Row) (*types.NotificationAttempt, error) {
	var a types.NotificationAttempt
	var providerErrorCode, failureCategory, providerMsgID *string
	err := row.Scan(&a.ID, &a.AlertID, &a.Channel, &a.Destination, &a.AttemptNumber,
		&a.Status, &providerErrorCode, &failureCategory, &providerMsgID,
		&a.NextRetryAt, &a.LastAttemptAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if providerErrorCode != nil {
		a.ProviderErrorCode = *providerErrorCode
	}
	if failureCategory != nil {
		a.FailureCategory = *failureCategory
	}
	if providerMsgID != nil {
		a.ProviderMsgID = *providerMsgID
	}
	return &a, nil
}

// Create records a new pending attempt. The attempt number is assigned
// inside the insert from the current maximum for the (alert, channel) pair,
// so concurrent creators still produce a strictly increasing sequence.
func (r *AttemptRepository) Create(ctx context.Context, a *types.NotificationAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = types.AttemptPending
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO notification_attempts
		 (id, alert_id, channel, destination, attempt_number, status, last_attempt_at)
		 SELECT $1, $2, $3, $4,
		        COALESCE(MAX(attempt_number), 0) + 1, $5, NOW()
		 FROM notification_attempts
		 WHERE alert_id = $2 AND channel = $3
		 RETURNING attempt_number, last_attempt_at, created_at`,
		a.ID,
		a.AlertID,
		string(a.Channel),
		a.Destination,
		string(a.Status),
	)
	if err := row.Scan(&a.AttemptNumber, &a.LastAttemptAt, &a.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification attempt", err)
	}
	return nil
}

// GetByID retrieves a single attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, attemptID string) (*types.NotificationAttempt, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM notification_attempts WHERE id = $1`,
		attemptID,
	)

	a, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAttempt, "notification attempt not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get notification attempt", err)
	}
	return a, nil
}

// GetByProviderMessageID resolves a provider callback to its attempt.
func (r *AttemptRepository) GetByProviderMessageID(ctx context.Context, providerMsgID string) (*types.NotificationAttempt, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM notification_attempts
		 WHERE provider_message_id = $1
		 ORDER BY attempt_number DESC
		 LIMIT 1`,
		providerMsgID,
	)

	a, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAttempt,
				"no attempt for provider message id", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to resolve provider message id", err)
	}
	return a, nil
}

// StatusUpdate carries the mutable outcome fields of an attempt.
type StatusUpdate struct {
	Status            types.AttemptStatus
	ProviderErrorCode string
	FailureCategory   types.FailureCategory
	ProviderMsgID     string
	NextRetryAt       *time.Time
}

// UpdateStatus applies a delivery outcome. The update is guarded so terminal
// rows are never modified; attempting to do so returns a conflict error,
// which callers treat as a duplicate or late signal and drop.
func (r *AttemptRepository) UpdateStatus(ctx context.Context, attemptID string, u StatusUpdate) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_attempts SET
			status = $1,
			provider_error_code = COALESCE($2, provider_error_code),
			failure_category = COALESCE($3, failure_category),
			provider_message_id = COALESCE($4, provider_message_id),
			next_retry_at = $5,
			last_attempt_at = NOW()
		 WHERE id = $6
		   AND status NOT IN ('sent', 'failed-permanent')`,
		string(u.Status),
		nilIfEmpty(u.ProviderErrorCode),
		nilIfEmpty(string(u.FailureCategory)),
		nilIfEmpty(u.ProviderMsgID),
		u.NextRetryAt,
		attemptID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update attempt status", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the attempt does not exist or it is already terminal.
		if _, getErr := r.GetByID(ctx, attemptID); getErr != nil {
			return getErr
		}
		return types.NewAppError(types.ErrCodeConflictTerminalState,
			"attempt is in a terminal state", nil)
	}
	return nil
}

// ListDeferredDue returns parked attempts whose retry time has passed,
// oldest first. Deferred rows are backoff delays longer than the queue
// supports; failed-retryable rows are retries whose re-publish failed and
// need rescue. Both come back through the requeue job.
func (r *AttemptRepository) ListDeferredDue(ctx context.Context, limit int) ([]*types.NotificationAttempt, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+attemptColumns+` FROM notification_attempts
		 WHERE status IN ('deferred', 'failed-retryable') AND next_retry_at <= NOW()
		 ORDER BY next_retry_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list deferred attempts", err)
	}
	defer rows.Close()

	var attempts []*types.NotificationAttempt
	for rows.Next() {
		a, scanErr := scanAttempt(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan attempt row", scanErr)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating attempt rows", err)
	}

	return attempts, nil
}

// ListByAlert retrieves the full attempt history for an alert, every channel
// included, in attempt order.
func (r *AttemptRepository) ListByAlert(ctx context.Context, alertID string) ([]*types.NotificationAttempt, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+attemptColumns+` FROM notification_attempts
		 WHERE alert_id = $1
		 ORDER BY channel, attempt_number`,
		alertID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list attempts", err)
	}
	defer rows.Close()

	var attempts []*types.NotificationAttempt
	for rows.Next() {
		a, scanErr := scanAttempt(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan attempt row", scanErr)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating attempt rows", err)
	}

	return attempts, nil
}
