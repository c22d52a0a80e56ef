package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"freshtrack/internal/types"
)

// AlertRepository provides data access for the alerts table.
//
// The table carries a partial unique index on unit_id WHERE resolved_at IS
// NULL, making "at most one active alert per unit" a database invariant
// rather than an application hope. Escalation and resolution are written as
// conditional updates so a concurrent resolve and a late escalate can never
// interleave into a corrupt row.
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates an AlertRepository backed by the given database
// connection (pool or transaction).
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, unit_id, rule_id, severity, triggered_at, resolved_at, acknowledged_by`

func scanAlert(row pgx.Row) (*types.Alert, error) {
	var a types.Alert
	var acknowledgedBy *string
	err := row.Scan(&a.ID, &a.UnitID, &a.RuleID, &a.Severity, &a.TriggeredAt,
		&a.ResolvedAt, &acknowledgedBy)
	if err != nil {
		return nil, err
	}
	if acknowledgedBy != nil {
		a.AcknowledgedBy = *acknowledgedBy
	}
	return &a, nil
}

// GetActiveByUnit retrieves the unit's active (unresolved) alert, or a
// not-found error when the unit is clear.
func (r *AlertRepository) GetActiveByUnit(ctx context.Context, unitID string) (*types.Alert, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts
		 WHERE unit_id = $1 AND resolved_at IS NULL`,
		unitID,
	)

	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAlert, "no active alert for unit", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get active alert", err)
	}
	return a, nil
}

// GetByID retrieves an alert regardless of resolution state.
func (r *AlertRepository) GetByID(ctx context.Context, alertID string) (*types.Alert, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = $1`,
		alertID,
	)

	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAlert, "alert not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get alert", err)
	}
	return a, nil
}

// Create opens a new alert. The partial unique index rejects the insert when
// an active alert already exists for the unit; that collision surfaces as a
// conflict error so the caller can fall back to the surviving row.
func (r *AlertRepository) Create(ctx context.Context, alert *types.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO alerts (id, unit_id, rule_id, severity, triggered_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		alert.ID,
		alert.UnitID,
		alert.RuleID,
		string(alert.Severity),
		alert.TriggeredAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictAlertActive,
				"unit already has an active alert", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create alert", err)
	}
	return nil
}

// Escalate raises the severity of an active alert. The update is conditional
// on the alert still being active and on the new severity being strictly
// worse, so replayed or out-of-order messages collapse to no-ops. The second
// return reports whether a row changed.
func (r *AlertRepository) Escalate(ctx context.Context, alertID string, from, to types.UnitStateKind) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET severity = $1
		 WHERE id = $2 AND resolved_at IS NULL AND severity = $3`,
		string(to),
		alertID,
		string(from),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to escalate alert", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Resolve closes an active alert. Conditional on the alert still being
// active; resolving an already resolved alert reports false with no error,
// which is what a replayed resolution should see. TriggeredAt is never
// touched.
func (r *AlertRepository) Resolve(ctx context.Context, alertID string, resolvedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET resolved_at = $1
		 WHERE id = $2 AND resolved_at IS NULL`,
		resolvedAt,
		alertID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to resolve alert", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Acknowledge records the human who took ownership of an active alert.
func (r *AlertRepository) Acknowledge(ctx context.Context, alertID, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET acknowledged_by = $1
		 WHERE id = $2 AND resolved_at IS NULL`,
		userID,
		alertID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to acknowledge alert", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictAlertResolved,
			"alert is not active", nil)
	}
	return nil
}

// ListByUnit retrieves an alert history for a unit, newest first.
func (r *AlertRepository) ListByUnit(ctx context.Context, unitID string, limit int) ([]*types.Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts
		 WHERE unit_id = $1
		 ORDER BY triggered_at DESC
		 LIMIT $2`,
		unitID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list alerts", err)
	}
	defer rows.Close()

	var alerts []*types.Alert
	for rows.Next() {
		a, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert row", scanErr)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating alert rows", err)
	}

	return alerts, nil
}

// ListResolvedBetween retrieves alerts resolved inside a window, used by the
// digest builder to summarize a period's incidents.
func (r *AlertRepository) ListResolvedBetween(ctx context.Context, unitIDs []string, from, to time.Time) ([]*types.Alert, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts
		 WHERE unit_id = ANY($1) AND resolved_at >= $2 AND resolved_at < $3
		 ORDER BY resolved_at DESC`,
		unitIDs, from, to,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list resolved alerts", err)
	}
	defer rows.Close()

	var alerts []*types.Alert
	for rows.Next() {
		a, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert row", scanErr)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating alert rows", err)
	}

	return alerts, nil
}
