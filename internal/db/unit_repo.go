package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"freshtrack/internal/types"
)

// UnitRepository provides data access for the units table and for
// hierarchy membership lookups (area, site, organization).
type UnitRepository struct {
	db DBTX
}

// NewUnitRepository creates a UnitRepository backed by the given database
// connection (pool or transaction).
func NewUnitRepository(db DBTX) *UnitRepository {
	return &UnitRepository{db: db}
}

const unitColumns = `id, area_id, site_id, organization_id, name, created_at`

// GetByID retrieves a single unit.
func (r *UnitRepository) GetByID(ctx context.Context, unitID string) (*types.Unit, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+unitColumns+` FROM units WHERE id = $1`,
		unitID,
	)

	var u types.Unit
	if err := row.Scan(&u.ID, &u.AreaID, &u.SiteID, &u.OrganizationID, &u.Name, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUnit, "unit not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get unit", err)
	}
	return &u, nil
}

// ListByContainer retrieves all units belonging to a container at the given
// hierarchy level. Results are ordered by unit ID so aggregation tie-breaks
// are deterministic.
func (r *UnitRepository) ListByContainer(ctx context.Context, kind types.ContainerKind, containerID string) ([]types.Unit, error) {
	var column string
	switch kind {
	case types.ContainerArea:
		column = "area_id"
	case types.ContainerSite:
		column = "site_id"
	case types.ContainerOrganization:
		column = "organization_id"
	default:
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("unknown container kind %q", kind), nil)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+unitColumns+` FROM units WHERE `+column+` = $1 ORDER BY id`,
		containerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list units", err)
	}
	defer rows.Close()

	var units []types.Unit
	for rows.Next() {
		var u types.Unit
		if err := rows.Scan(&u.ID, &u.AreaID, &u.SiteID, &u.OrganizationID, &u.Name, &u.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan unit row", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating unit rows", err)
	}

	return units, nil
}

// ListPage retrieves units in stable ID order for batch jobs such as the
// offline sweep. Pass the last seen ID as the cursor, empty for the first
// page.
func (r *UnitRepository) ListPage(ctx context.Context, afterID string, limit int) ([]types.Unit, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+unitColumns+` FROM units WHERE id > $1 ORDER BY id LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to page units", err)
	}
	defer rows.Close()

	var units []types.Unit
	for rows.Next() {
		var u types.Unit
		if err := rows.Scan(&u.ID, &u.AreaID, &u.SiteID, &u.OrganizationID, &u.Name, &u.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan unit row", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating unit rows", err)
	}

	return units, nil
}

// ListSubscribedIDs retrieves the IDs of the units a user is subscribed to,
// in stable order. Used by digest generation.
func (r *UnitRepository) ListSubscribedIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT unit_id FROM unit_subscriptions WHERE user_id = $1 ORDER BY unit_id`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list subscribed units", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription row", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating subscription rows", err)
	}

	return ids, nil
}
