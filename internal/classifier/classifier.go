// Package classifier turns a reading stream into unit operating states.
//
// Classification is a pure function over the latest reading, the unit's
// active alert rule, and a short rolling window of prior readings. It has no
// side effects; persistence of the result is the caller's responsibility.
//
// State priority is fixed: normal(0) < warning(1) < critical(2) < offline(3).
// Offline overrides every value-derived state: a unit that cannot be
// observed must never be reported as reassuringly normal.
package classifier

import (
	"time"

	"freshtrack/internal/types"
)

// Config holds the platform-wide classification timeouts. Threshold values
// are per unit and arrive with the AlertRule.
type Config struct {
	// OfflineTimeout is the maximum silence before a unit is offline.
	OfflineTimeout time.Duration

	// NewUnitGrace exempts a newly created unit from offline classification
	// until it has had a chance to make first contact.
	NewUnitGrace time.Duration
}

// DefaultConfig returns the documented defaults: 15 minute offline timeout,
// 1 hour new-unit grace.
func DefaultConfig() Config {
	return Config{
		OfflineTimeout: 15 * time.Minute,
		NewUnitGrace:   1 * time.Hour,
	}
}

// Input carries everything one classification needs.
type Input struct {
	// Reading is the latest observation for the unit.
	Reading types.Reading

	// Rule is the unit's active threshold configuration.
	Rule types.AlertRule

	// History is the rolling window of prior readings, ordered oldest to
	// newest and excluding Reading. It must be long enough to cover the
	// rule's consecutive-count thresholds.
	History []types.Reading

	// UnitCreatedAt anchors the new-unit grace period.
	UnitCreatedAt time.Time
}

// Classify computes the unit's operating state at the instant "now".
//
// Decision order:
//  1. Offline override: no reading within OfflineTimeout of now (grace
//     period for new units).
//  2. Implausible sensor values classify as warning (manual intervention).
//  3. Debounce: critical only after ConsecutiveReadingsToTrigger consecutive
//     out-of-range readings; a shorter streak is warning.
//  4. Hysteresis: after a confirmed excursion, the unit returns to normal
//     only once ConsecutiveReadingsToResolve consecutive in-range readings
//     have arrived; until then it remains critical.
func Classify(in Input, now time.Time, cfg Config) types.UnitState {
	state := types.UnitState{
		UnitID:          in.Reading.UnitID,
		ComputedAt:      now,
		SourceReadingID: in.Reading.ID,
	}

	if Offline(in.Reading.ObservedAt, in.UnitCreatedAt, now, cfg) {
		state.State = types.StateOffline
		return state
	}

	if !in.Reading.Plausible() {
		state.State = types.StateWarning
		return state
	}

	state.State = classifyValue(in)
	return state
}

// ClassifyNoData computes the state of a unit for which no reading exists at
// all. Used by the offline sweep and by query-time recomputation when the
// readings window comes back empty. Absence of data surfaces as offline
// after the grace period, never as normal.
func ClassifyNoData(unitCreatedAt, now time.Time, cfg Config) types.UnitState {
	state := types.UnitState{ComputedAt: now}
	if now.Sub(unitCreatedAt) <= cfg.NewUnitGrace {
		state.State = types.StateNormal
		return state
	}
	state.State = types.StateOffline
	return state
}

// Offline reports whether the silence since the last observation exceeds the
// timeout, honoring the new-unit grace period.
func Offline(lastObserved, unitCreatedAt, now time.Time, cfg Config) bool {
	if now.Sub(unitCreatedAt) <= cfg.NewUnitGrace {
		return false
	}
	return now.Sub(lastObserved) > cfg.OfflineTimeout
}

// classifyValue evaluates the debounce/hysteresis rules over the reading
// window. The window is scanned newest-first; an implausible reading
// terminates streak counting because consecutive-count thresholds require an
// unbroken run of trustworthy observations.
func classifyValue(in Input) types.UnitStateKind {
	seq := make([]types.Reading, 0, len(in.History)+1)
	seq = append(seq, in.History...)
	seq = append(seq, in.Reading)

	rule := in.Rule

	// Tail streak of the latest readings: either in-range or out-of-range.
	latestIn := rule.InRange(in.Reading.Temperature)

	if !latestIn {
		out := tailStreak(seq, func(r types.Reading) bool {
			return r.Plausible() && !rule.InRange(r.Temperature)
		})
		if out >= rule.ConsecutiveReadingsToTrigger {
			return types.StateCritical
		}
		// Excursion detected but not yet confirmed past the trigger count.
		return types.StateWarning
	}

	inStreak := tailStreak(seq, func(r types.Reading) bool {
		return r.Plausible() && rule.InRange(r.Temperature)
	})

	// Hysteresis: if the readings immediately before the in-range streak
	// formed a confirmed excursion, hold critical until the resolve count
	// is met. Trigger and resolve counts are asymmetric to avoid flapping.
	if inStreak < rule.ConsecutiveReadingsToResolve {
		prior := seq[:len(seq)-inStreak]
		out := tailStreak(prior, func(r types.Reading) bool {
			return r.Plausible() && !rule.InRange(r.Temperature)
		})
		if out >= rule.ConsecutiveReadingsToTrigger {
			return types.StateCritical
		}
	}

	return types.StateNormal
}

// tailStreak counts how many readings at the end of seq satisfy pred,
// stopping at the first that does not.
func tailStreak(seq []types.Reading, pred func(types.Reading) bool) int {
	n := 0
	for i := len(seq) - 1; i >= 0; i-- {
		if !pred(seq[i]) {
			break
		}
		n++
	}
	return n
}
