package hierarchy

import (
	"context"
	"errors"

	"freshtrack/internal/classifier"
	"freshtrack/internal/statecache"
	"freshtrack/internal/types"
)

// ReadingWindower fetches the recent reading window for a unit, oldest
// first.
type ReadingWindower interface {
	RecentWindow(ctx context.Context, unitID string, limit int) ([]types.Reading, error)
}

// RuleGetter fetches the active rule for a unit.
type RuleGetter interface {
	GetByUnit(ctx context.Context, unitID string) (*types.AlertRule, error)
}

// CachedResolver resolves unit states cache-first and recomputes from the
// readings window on a miss, writing the result back so the next dashboard
// refresh is cheap.
type CachedResolver struct {
	cache    *statecache.Cache
	readings ReadingWindower
	rules    RuleGetter
	cfg      classifier.Config
	window   int
	clock    types.Clock
}

// NewCachedResolver builds a CachedResolver. window bounds the readings
// fetched per recomputation.
func NewCachedResolver(cache *statecache.Cache, readings ReadingWindower, rules RuleGetter,
	cfg classifier.Config, window int, clock types.Clock) *CachedResolver {
	if clock == nil {
		clock = types.RealClock{}
	}
	if window <= 0 {
		window = 20
	}
	return &CachedResolver{
		cache:    cache,
		readings: readings,
		rules:    rules,
		cfg:      cfg,
		window:   window,
		clock:    clock,
	}
}

// Resolve returns the unit's current state.
func (r *CachedResolver) Resolve(ctx context.Context, unit types.Unit) (types.UnitState, error) {
	if st, ok := r.cache.Get(unit.ID); ok {
		return st, nil
	}

	st, err := r.recompute(ctx, unit)
	if err != nil {
		return types.UnitState{}, err
	}
	r.cache.Put(st)
	return st, nil
}

// recompute classifies the unit from scratch.
func (r *CachedResolver) recompute(ctx context.Context, unit types.Unit) (types.UnitState, error) {
	now := r.clock.Now()

	window, err := r.readings.RecentWindow(ctx, unit.ID, r.window)
	if err != nil {
		return types.UnitState{}, err
	}
	if len(window) == 0 {
		st := classifier.ClassifyNoData(unit.CreatedAt, now, r.cfg)
		st.UnitID = unit.ID
		return st, nil
	}

	rule, err := r.rules.GetByUnit(ctx, unit.ID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundRule {
			// No thresholds configured: only the offline dimension applies.
			rule = nil
		} else {
			return types.UnitState{}, err
		}
	}

	latest := window[len(window)-1]
	if rule == nil {
		st := types.UnitState{
			UnitID:          unit.ID,
			State:           types.StateNormal,
			ComputedAt:      now,
			SourceReadingID: latest.ID,
		}
		if classifier.Offline(latest.ObservedAt, unit.CreatedAt, now, r.cfg) {
			st.State = types.StateOffline
		}
		return st, nil
	}

	return classifier.Classify(classifier.Input{
		Reading:       latest,
		Rule:          *rule,
		History:       window[:len(window)-1],
		UnitCreatedAt: unit.CreatedAt,
	}, now, r.cfg), nil
}
