package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"freshtrack/internal/types"
)

// RuleRepository provides data access for the alert_rules table. Each unit
// carries exactly one active rule; rule updates replace the row in place.
type RuleRepository struct {
	db DBTX
}

// NewRuleRepository creates a RuleRepository backed by the given database
// connection (pool or transaction).
func NewRuleRepository(db DBTX) *RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `id, unit_id, temp_min, temp_max, consecutive_to_trigger,
	consecutive_to_resolve, created_at, updated_at`

// GetByUnit retrieves the active rule for a unit.
func (r *RuleRepository) GetByUnit(ctx context.Context, unitID string) (*types.AlertRule, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM alert_rules WHERE unit_id = $1`,
		unitID,
	)

	var rule types.AlertRule
	err := row.Scan(&rule.ID, &rule.UnitID, &rule.TempMin, &rule.TempMax,
		&rule.ConsecutiveReadingsToTrigger, &rule.ConsecutiveReadingsToResolve,
		&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRule, "no rule configured for unit", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get alert rule", err)
	}
	return &rule, nil
}

// Upsert writes a unit's rule, replacing any existing one. Validation runs
// before the write so a rule with min >= max or zero counts never lands.
func (r *RuleRepository) Upsert(ctx context.Context, rule *types.AlertRule) error {
	if err := types.ValidateRule(rule); err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO alert_rules
		 (id, unit_id, temp_min, temp_max, consecutive_to_trigger, consecutive_to_resolve,
		  created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 ON CONFLICT (unit_id) DO UPDATE SET
			temp_min = EXCLUDED.temp_min,
			temp_max = EXCLUDED.temp_max,
			consecutive_to_trigger = EXCLUDED.consecutive_to_trigger,
			consecutive_to_resolve = EXCLUDED.consecutive_to_resolve,
			updated_at = NOW()`,
		rule.ID,
		rule.UnitID,
		rule.TempMin,
		rule.TempMax,
		rule.ConsecutiveReadingsToTrigger,
		rule.ConsecutiveReadingsToResolve,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert alert rule", err)
	}
	return nil
}
