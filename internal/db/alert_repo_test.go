package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"freshtrack/internal/types"
)

func TestAlertRepository_Create_Success(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewAlertRepository(dbtx)

	dbtx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	alert := &types.Alert{
		UnitID:      "unit-1",
		RuleID:      "rule-1",
		Severity:    types.StateCritical,
		TriggeredAt: time.Now().UTC(),
	}
	err := repo.Create(context.Background(), alert)
	require.NoError(t, err)
	assert.NotEmpty(t, alert.ID)
	dbtx.AssertExpectations(t)
}

func TestAlertRepository_Create_ActiveAlertConflict(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewAlertRepository(dbtx)

	// Partial unique index on unit_id WHERE resolved_at IS NULL.
	pgErr := &pgconn.PgError{Code: "23505"}
	dbtx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, pgErr)

	err := repo.Create(context.Background(), &types.Alert{
		UnitID:      "unit-1",
		RuleID:      "rule-1",
		Severity:    types.StateCritical,
		TriggeredAt: time.Now().UTC(),
	})
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeConflictAlertActive, appErr.Code)
}

func TestAlertRepository_GetActiveByUnit_NotFound(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewAlertRepository(dbtx)

	dbtx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetActiveByUnit(context.Background(), "unit-1")
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeNotFoundAlert, appErr.Code)
}

func TestAlertRepository_Resolve_AlreadyResolvedIsNoOp(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewAlertRepository(dbtx)

	dbtx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	changed, err := repo.Resolve(context.Background(), "alert-1", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestAlertRepository_Escalate_RequiresCurrentSeverity(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewAlertRepository(dbtx)

	// The conditional update matched nothing: either resolved meanwhile or
	// severity already changed.
	dbtx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	changed, err := repo.Escalate(context.Background(), "alert-1",
		types.StateCritical, types.StateOffline)
	require.NoError(t, err)
	assert.False(t, changed)
}
