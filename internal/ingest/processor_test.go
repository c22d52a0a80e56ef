package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freshtrack/internal/classifier"
	"freshtrack/internal/statecache"
	"freshtrack/internal/types"
)

var testNow = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

type nopLogger struct{}

func (nopLogger) Info(msg string, args ...any)    {}
func (nopLogger) Error(msg string, args ...any)   {}
func (nopLogger) Warn(msg string, args ...any)    {}
func (l nopLogger) With(args ...any) types.Logger { return l }

type fakeReadings struct {
	inserted  []*types.Reading
	duplicate bool
	insertErr error
	window    []types.Reading
	windowErr error
}

func (f *fakeReadings) Insert(ctx context.Context, reading *types.Reading) (bool, error) {
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if f.duplicate {
		return false, nil
	}
	f.inserted = append(f.inserted, reading)
	return true, nil
}

func (f *fakeReadings) RecentWindow(ctx context.Context, unitID string, limit int) ([]types.Reading, error) {
	return f.window, f.windowErr
}

type fakeUnits struct {
	unit *types.Unit
	err  error
}

func (f *fakeUnits) GetByID(ctx context.Context, unitID string) (*types.Unit, error) {
	return f.unit, f.err
}

type fakeRules struct {
	rule *types.AlertRule
	err  error
}

func (f *fakeRules) GetByUnit(ctx context.Context, unitID string) (*types.AlertRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rule, nil
}

type fakeLifecycle struct {
	states  []types.UnitState
	ruleIDs []string
	err     error
}

func (f *fakeLifecycle) Apply(ctx context.Context, ruleID string, state types.UnitState) error {
	f.states = append(f.states, state)
	f.ruleIDs = append(f.ruleIDs, ruleID)
	return f.err
}

func testUnit() *types.Unit {
	return &types.Unit{ID: "unit-1", CreatedAt: testNow.Add(-48 * time.Hour)}
}

func testRule() *types.AlertRule {
	return &types.AlertRule{
		ID:                          "rule-1",
		UnitID:                      "unit-1",
		TempMin:                     2,
		TempMax:                     8,
		ConsecutiveReadingsToTrigger: 3,
		ConsecutiveReadingsToResolve: 2,
	}
}

func testMessage() types.ReadingMessage {
	return types.ReadingMessage{
		UnitID:      "unit-1",
		Temperature: 4.5,
		ObservedAt:  testNow.Add(-time.Minute),
	}
}

// windowFor builds the stored window the repository would return after the
// new reading is inserted: history plus the new reading, oldest first.
func windowFor(temps []float64, last time.Time) []types.Reading {
	window := make([]types.Reading, len(temps))
	for i, temp := range temps {
		window[i] = types.Reading{
			ID:          "r" + string(rune('0'+i)),
			UnitID:      "unit-1",
			Temperature: temp,
			ObservedAt:  last.Add(-time.Duration(len(temps)-1-i) * time.Minute),
		}
	}
	return window
}

type fixture struct {
	readings  *fakeReadings
	units     *fakeUnits
	rules     *fakeRules
	lifecycle *fakeLifecycle
	cache     *statecache.Cache
	processor *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: testNow}
	f := &fixture{
		readings:  &fakeReadings{},
		units:     &fakeUnits{unit: testUnit()},
		rules:     &fakeRules{rule: testRule()},
		lifecycle: &fakeLifecycle{},
		cache:     statecache.New(statecache.Config{}, clock),
	}
	f.processor = New(Config{
		Readings:   f.readings,
		Units:      f.units,
		Rules:      f.rules,
		Cache:      f.cache,
		Lifecycle:  f.lifecycle,
		Classifier: classifier.DefaultConfig(),
		WindowSize: 10,
		Clock:      clock,
		Logger:     nopLogger{},
	})
	return f
}

func TestProcess_NormalReading(t *testing.T) {
	f := newFixture(t)
	f.readings.window = windowFor([]float64{4.0, 4.2, 4.5}, testNow.Add(-time.Minute))

	require.NoError(t, f.processor.Process(context.Background(), testMessage()))

	require.Len(t, f.readings.inserted, 1)
	assert.Equal(t, testNow, f.readings.inserted[0].ReceivedAt)
	assert.NotEmpty(t, f.readings.inserted[0].ID)

	require.Len(t, f.lifecycle.states, 1)
	assert.Equal(t, types.StateNormal, f.lifecycle.states[0].State)
	assert.Equal(t, "rule-1", f.lifecycle.ruleIDs[0])

	cached, ok := f.cache.Get("unit-1")
	require.True(t, ok)
	assert.Equal(t, types.StateNormal, cached.State)
}

func TestProcess_ConfirmedExcursionGoesCritical(t *testing.T) {
	f := newFixture(t)
	f.readings.window = windowFor([]float64{12.0, 12.5, 13.0}, testNow.Add(-time.Minute))

	require.NoError(t, f.processor.Process(context.Background(), testMessage()))

	require.Len(t, f.lifecycle.states, 1)
	assert.Equal(t, types.StateCritical, f.lifecycle.states[0].State)
}

func TestProcess_StaleInRangeReadingDoesNotResolveExcursion(t *testing.T) {
	f := newFixture(t)

	// A delayed in-range reading arrives after a confirmed excursion. In
	// the persisted window it sorts by observed_at, oldest first, so the
	// out-of-range tail streak is untouched.
	f.readings.window = windowFor([]float64{4.0, 12.0, 12.5, 13.0}, testNow.Add(-time.Minute))

	msg := testMessage()
	msg.Temperature = 4.0
	msg.ObservedAt = testNow.Add(-10 * time.Minute)
	require.NoError(t, f.processor.Process(context.Background(), msg))

	require.Len(t, f.lifecycle.states, 1)
	assert.Equal(t, types.StateCritical, f.lifecycle.states[0].State)
	// The state is attributed to the true latest reading, not the stale one.
	window := f.readings.window
	assert.Equal(t, window[len(window)-1].ID, f.lifecycle.states[0].SourceReadingID)
}

func TestProcess_DuplicateReadingShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.readings.duplicate = true

	require.NoError(t, f.processor.Process(context.Background(), testMessage()))

	assert.Empty(t, f.lifecycle.states)
	_, ok := f.cache.Get("unit-1")
	assert.False(t, ok)
}

func TestProcess_InvalidReadingRejected(t *testing.T) {
	f := newFixture(t)

	msg := testMessage()
	msg.UnitID = ""
	err := f.processor.Process(context.Background(), msg)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidReading, appErr.Code)
	assert.Empty(t, f.readings.inserted)
}

func TestProcess_FutureObservationRejected(t *testing.T) {
	f := newFixture(t)

	msg := testMessage()
	msg.ObservedAt = time.Now().UTC().Add(time.Hour)
	require.Error(t, f.processor.Process(context.Background(), msg))
}

func TestProcess_UnknownUnitRejectedBeforeInsert(t *testing.T) {
	f := newFixture(t)
	f.units.unit = nil
	f.units.err = types.NewAppError(types.ErrCodeNotFoundUnit, "no unit", nil)

	err := f.processor.Process(context.Background(), testMessage())
	require.Error(t, err)
	assert.Empty(t, f.readings.inserted)
}

func TestProcess_NoRuleOnlyOfflineDimension(t *testing.T) {
	f := newFixture(t)
	f.rules.rule = nil
	f.rules.err = types.NewAppError(types.ErrCodeNotFoundRule, "no rule", nil)
	// Out of the default 2..8 range, but no thresholds are configured.
	f.readings.window = windowFor([]float64{15.0, 15.0, 15.0}, testNow.Add(-time.Minute))

	require.NoError(t, f.processor.Process(context.Background(), testMessage()))

	require.Len(t, f.lifecycle.states, 1)
	assert.Equal(t, types.StateNormal, f.lifecycle.states[0].State)
	assert.Equal(t, "", f.lifecycle.ruleIDs[0])
}

func TestProcess_RuleLookupFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.rules.err = errors.New("db down")
	f.readings.window = windowFor([]float64{4.0}, testNow.Add(-time.Minute))

	require.Error(t, f.processor.Process(context.Background(), testMessage()))
	assert.Empty(t, f.lifecycle.states)
}

func TestProcess_LifecycleFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.readings.window = windowFor([]float64{4.0}, testNow.Add(-time.Minute))
	f.lifecycle.err = errors.New("sqs unavailable")

	require.Error(t, f.processor.Process(context.Background(), testMessage()))
}
