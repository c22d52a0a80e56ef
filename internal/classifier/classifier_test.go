package classifier

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"freshtrack/internal/types"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// testRule is a 2..8 degree band with trigger after 3 consecutive
// out-of-range readings and resolve after 2 consecutive in-range readings.
func testRule() types.AlertRule {
	return types.AlertRule{
		ID:                           "rule-1",
		UnitID:                       "unit-1",
		TempMin:                      2.0,
		TempMax:                      8.0,
		ConsecutiveReadingsToTrigger: 3,
		ConsecutiveReadingsToResolve: 2,
	}
}

// readings builds a window of plausible readings spaced one minute apart,
// ending one minute before testNow.
func readings(temps ...float64) []types.Reading {
	out := make([]types.Reading, len(temps))
	for i, t := range temps {
		out[i] = types.Reading{
			ID:          fmt.Sprintf("r-%d", i),
			UnitID:      "unit-1",
			Temperature: t,
			ObservedAt:  testNow.Add(-time.Duration(len(temps)-i) * time.Minute),
		}
	}
	return out
}

// classifySeq classifies the last reading in the sequence with the rest as
// history, using a unit old enough that grace never applies.
func classifySeq(t *testing.T, temps ...float64) types.UnitStateKind {
	t.Helper()
	seq := readings(temps...)
	state := Classify(Input{
		Reading:       seq[len(seq)-1],
		Rule:          testRule(),
		History:       seq[:len(seq)-1],
		UnitCreatedAt: testNow.Add(-48 * time.Hour),
	}, testNow, DefaultConfig())
	return state.State
}

func TestClassify_NormalWhenInRange(t *testing.T) {
	assert.Equal(t, types.StateNormal, classifySeq(t, 4.0, 5.0, 6.0))
}

func TestClassify_BoundariesAreInRange(t *testing.T) {
	// TempMin and TempMax are themselves safe values.
	assert.Equal(t, types.StateNormal, classifySeq(t, 2.0, 8.0, 2.0))
}

func TestClassify_DebounceHoldsWarningBelowTriggerCount(t *testing.T) {
	assert.Equal(t, types.StateWarning, classifySeq(t, 5.0, 9.5))
	assert.Equal(t, types.StateWarning, classifySeq(t, 5.0, 9.5, 9.7))
}

func TestClassify_CriticalAtTriggerCount(t *testing.T) {
	assert.Equal(t, types.StateCritical, classifySeq(t, 5.0, 9.5, 9.7, 10.1))
}

func TestClassify_InterruptedStreakResetsDebounce(t *testing.T) {
	// Two out, one in, two out: never three consecutive.
	assert.Equal(t, types.StateWarning, classifySeq(t, 9.5, 9.7, 5.0, 9.5, 9.7))
}

func TestClassify_HysteresisHoldsCriticalUntilResolveCount(t *testing.T) {
	// Confirmed excursion followed by a single in-range reading: resolve
	// count is 2, so the unit stays critical.
	assert.Equal(t, types.StateCritical, classifySeq(t, 9.5, 9.7, 10.1, 5.0))
}

func TestClassify_ResolvesAfterResolveCount(t *testing.T) {
	assert.Equal(t, types.StateNormal, classifySeq(t, 9.5, 9.7, 10.1, 5.0, 5.2))
}

func TestClassify_UnconfirmedExcursionResolvesImmediately(t *testing.T) {
	// Only two out-of-range readings: never critical, so hysteresis does
	// not apply and a single in-range reading returns the unit to normal.
	assert.Equal(t, types.StateNormal, classifySeq(t, 9.5, 9.7, 5.0))
}

func TestClassify_ImplausibleReadingIsWarning(t *testing.T) {
	assert.Equal(t, types.StateWarning, classifySeq(t, 5.0, 5.0, 120.0))
}

func TestClassify_ImplausibleHumidityIsWarning(t *testing.T) {
	seq := readings(5.0, 5.0)
	bad := 140.0
	seq[1].Humidity = &bad
	state := Classify(Input{
		Reading:       seq[1],
		Rule:          testRule(),
		History:       seq[:1],
		UnitCreatedAt: testNow.Add(-48 * time.Hour),
	}, testNow, DefaultConfig())
	assert.Equal(t, types.StateWarning, state.State)
}

func TestClassify_ImplausibleReadingBreaksOutOfRangeStreak(t *testing.T) {
	// An implausible value between out-of-range readings must not count
	// toward the trigger streak.
	assert.Equal(t, types.StateWarning, classifySeq(t, 9.5, 120.0, 9.5, 9.7))
}

func TestClassify_OfflineOverridesValueState(t *testing.T) {
	seq := readings(5.0, 5.0, 5.0)
	stale := seq[len(seq)-1]
	stale.ObservedAt = testNow.Add(-20 * time.Minute)
	state := Classify(Input{
		Reading:       stale,
		Rule:          testRule(),
		History:       seq[:len(seq)-1],
		UnitCreatedAt: testNow.Add(-48 * time.Hour),
	}, testNow, DefaultConfig())
	assert.Equal(t, types.StateOffline, state.State)
}

func TestClassify_NewUnitGraceSuppressesOffline(t *testing.T) {
	stale := types.Reading{
		ID:          "r-0",
		UnitID:      "unit-1",
		Temperature: 5.0,
		ObservedAt:  testNow.Add(-30 * time.Minute),
	}
	state := Classify(Input{
		Reading:       stale,
		Rule:          testRule(),
		UnitCreatedAt: testNow.Add(-30 * time.Minute),
	}, testNow, DefaultConfig())
	assert.Equal(t, types.StateNormal, state.State)
}

func TestClassify_ExactTimeoutBoundaryIsNotOffline(t *testing.T) {
	cfg := DefaultConfig()
	edge := types.Reading{
		ID:          "r-0",
		UnitID:      "unit-1",
		Temperature: 5.0,
		ObservedAt:  testNow.Add(-cfg.OfflineTimeout),
	}
	state := Classify(Input{
		Reading:       edge,
		Rule:          testRule(),
		UnitCreatedAt: testNow.Add(-48 * time.Hour),
	}, testNow, cfg)
	assert.Equal(t, types.StateNormal, state.State)
}

func TestClassify_CarriesSourceReadingID(t *testing.T) {
	seq := readings(5.0, 5.0)
	state := Classify(Input{
		Reading:       seq[1],
		Rule:          testRule(),
		History:       seq[:1],
		UnitCreatedAt: testNow.Add(-48 * time.Hour),
	}, testNow, DefaultConfig())
	assert.Equal(t, "r-1", state.SourceReadingID)
	assert.Equal(t, "unit-1", state.UnitID)
	assert.Equal(t, testNow, state.ComputedAt)
}

func TestClassifyNoData(t *testing.T) {
	cfg := DefaultConfig()

	recent := ClassifyNoData(testNow.Add(-30*time.Minute), testNow, cfg)
	assert.Equal(t, types.StateNormal, recent.State)

	old := ClassifyNoData(testNow.Add(-2*time.Hour), testNow, cfg)
	assert.Equal(t, types.StateOffline, old.State)
}
