// Package hierarchy computes aggregated worst-case states for containers in
// the organizational tree (area, site, organization).
//
// Aggregated states are pure derived data: recomputed on read from the
// member units' states, never stored durably. The worst state wins by fixed
// priority, and ties are broken by the lowest unit ID so repeated queries
// over identical inputs name the same contributing unit.
package hierarchy

import (
	"context"

	"golang.org/x/sync/errgroup"

	"freshtrack/internal/types"
)

// resolveConcurrency bounds the per-query fan-out when resolving member
// unit states.
const resolveConcurrency = 8

// UnitLister lists the member units of a container.
type UnitLister interface {
	ListByContainer(ctx context.Context, kind types.ContainerKind, containerID string) ([]types.Unit, error)
}

// StateResolver produces the current state of a single unit, from cache or
// by recomputation.
type StateResolver interface {
	Resolve(ctx context.Context, unit types.Unit) (types.UnitState, error)
}

// Aggregator answers worst-state queries for hierarchy containers.
type Aggregator struct {
	units    UnitLister
	resolver StateResolver
	clock    types.Clock
	logger   types.Logger
}

// NewAggregator builds an Aggregator.
func NewAggregator(units UnitLister, resolver StateResolver, clock types.Clock, logger types.Logger) *Aggregator {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Aggregator{units: units, resolver: resolver, clock: clock, logger: logger}
}

// WorstState computes the aggregated state of a container. Member states
// are resolved concurrently; a resolver failure degrades that unit to
// offline rather than failing the whole query, because an unanswerable unit
// and an unreachable unit deserve the same pessimism.
//
// An empty container aggregates to normal with no contributing unit.
func (a *Aggregator) WorstState(ctx context.Context, kind types.ContainerKind, containerID string) (types.HierarchyState, error) {
	units, err := a.units.ListByContainer(ctx, kind, containerID)
	if err != nil {
		return types.HierarchyState{}, err
	}

	result := types.HierarchyState{
		ContainerID:   containerID,
		ContainerKind: kind,
		WorstState:    types.StateNormal,
		ComputedAt:    a.clock.Now(),
	}
	if len(units) == 0 {
		return result, nil
	}

	states := make([]types.UnitState, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)

	for i, unit := range units {
		g.Go(func() error {
			st, resolveErr := a.resolver.Resolve(gctx, unit)
			if resolveErr != nil {
				if a.logger != nil {
					a.logger.Warn("unit state resolution failed, degrading to offline",
						"unit_id", unit.ID, "error", resolveErr)
				}
				st = types.UnitState{UnitID: unit.ID, State: types.StateOffline, ComputedAt: a.clock.Now()}
			}
			states[i] = st
			return nil
		})
	}
	// Workers never return errors; Wait only observes context cancellation.
	if err := g.Wait(); err != nil {
		return types.HierarchyState{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.HierarchyState{}, err
	}

	// Units arrive ordered by ID and the reduction keeps the first
	// occurrence of the worst priority, which yields the lowest-ID
	// contributing unit deterministically.
	for _, st := range states {
		if st.State.WorseThan(result.WorstState) {
			result.WorstState = st.State
			result.ContributingUnitID = st.UnitID
		}
	}
	if result.ContributingUnitID == "" && len(units) > 0 {
		// All units normal: attribute the state to the first member.
		result.ContributingUnitID = units[0].ID
	}

	return result, nil
}
