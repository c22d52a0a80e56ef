// Package alerts implements the alert lifecycle: trigger, escalate, resolve.
//
// The manager consumes freshly computed unit states and reconciles them
// against the unit's active alert. Three invariants govern every path:
// at most one active alert per unit, exactly one event per real transition,
// and replayed or out-of-order inputs collapse to no-ops.
package alerts

import (
	"context"
	"errors"
	"time"

	"freshtrack/internal/types"
)

// AlertStore is the persistence surface the manager needs. Implemented by
// db.AlertRepository; the conditional-update semantics of Escalate and
// Resolve are part of this contract.
type AlertStore interface {
	GetActiveByUnit(ctx context.Context, unitID string) (*types.Alert, error)
	Create(ctx context.Context, alert *types.Alert) error
	Escalate(ctx context.Context, alertID string, from, to types.UnitStateKind) (bool, error)
	Resolve(ctx context.Context, alertID string, resolvedAt time.Time) (bool, error)
}

// Manager applies state transitions to the alert lifecycle.
type Manager struct {
	store  AlertStore
	sink   types.AlertEventSink
	push   types.PushEmitter
	logger types.Logger

	locks keyedMutex
}

// NewManager builds a Manager. push may be nil when no realtime collaborator
// is wired.
func NewManager(store AlertStore, sink types.AlertEventSink, push types.PushEmitter, logger types.Logger) *Manager {
	return &Manager{store: store, sink: sink, push: push, logger: logger}
}

// Apply reconciles a newly computed unit state against the unit's alert.
//
// Per-unit serialization makes the read-decide-write sequence atomic with
// respect to other workers in this process; the conditional updates in the
// store close the gap across processes. A transition that the store reports
// as already applied emits nothing, which is what keeps replays at exactly
// one event per real transition.
func (m *Manager) Apply(ctx context.Context, ruleID string, state types.UnitState) error {
	mu := m.locks.lock(state.UnitID)
	defer mu.Unlock()

	active, err := m.store.GetActiveByUnit(ctx, state.UnitID)
	if err != nil && !isNotFound(err) {
		return err
	}

	switch {
	case active == nil:
		if !state.State.Alertable() {
			// Normal or warning with no active alert: nothing to do.
			// Warning never opens an alert; it is an unconfirmed excursion.
			return nil
		}
		return m.trigger(ctx, ruleID, state)

	case state.State == types.StateNormal:
		return m.resolve(ctx, active, state)

	case state.State.WorseThan(active.Severity):
		return m.escalate(ctx, active, state)

	default:
		// Same severity repeated, or warning while an alert is active:
		// the excursion continues, no transition occurred.
		return nil
	}
}

func (m *Manager) trigger(ctx context.Context, ruleID string, state types.UnitState) error {
	alert := &types.Alert{
		UnitID:      state.UnitID,
		RuleID:      ruleID,
		Severity:    state.State,
		TriggeredAt: state.ComputedAt,
	}
	if err := m.store.Create(ctx, alert); err != nil {
		if isConflict(err) {
			// Lost a cross-process race; the winner emitted the event.
			m.logger.Info("alert trigger lost race, skipping",
				"unit_id", state.UnitID)
			return nil
		}
		return err
	}

	return m.emit(ctx, types.AlertEvent{
		AlertID:   alert.ID,
		UnitID:    state.UnitID,
		RuleID:    ruleID,
		Severity:  state.State,
		Kind:      types.AlertEventTriggered,
		Timestamp: state.ComputedAt,
	})
}

func (m *Manager) escalate(ctx context.Context, active *types.Alert, state types.UnitState) error {
	changed, err := m.store.Escalate(ctx, active.ID, active.Severity, state.State)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	return m.emit(ctx, types.AlertEvent{
		AlertID:   active.ID,
		UnitID:    state.UnitID,
		RuleID:    active.RuleID,
		Severity:  state.State,
		Kind:      types.AlertEventEscalated,
		Timestamp: state.ComputedAt,
	})
}

func (m *Manager) resolve(ctx context.Context, active *types.Alert, state types.UnitState) error {
	changed, err := m.store.Resolve(ctx, active.ID, state.ComputedAt)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	return m.emit(ctx, types.AlertEvent{
		AlertID:   active.ID,
		UnitID:    state.UnitID,
		RuleID:    active.RuleID,
		Severity:  active.Severity,
		Kind:      types.AlertEventResolved,
		Timestamp: state.ComputedAt,
	})
}

// emit hands the event to the dispatcher queue and, best-effort, to the
// realtime push collaborator. A queue failure is returned to the caller so
// the surrounding message is redelivered; push failures are swallowed
// inside the emitter and never affect the lifecycle.
func (m *Manager) emit(ctx context.Context, event types.AlertEvent) error {
	if err := m.sink.Enqueue(ctx, event); err != nil {
		m.logger.Error("failed to enqueue alert event",
			"alert_id", event.AlertID, "kind", event.Kind, "error", err)
		return err
	}
	if m.push != nil {
		m.push.Emit(ctx, event)
	}
	m.logger.Info("alert event emitted",
		"alert_id", event.AlertID, "unit_id", event.UnitID,
		"kind", event.Kind, "severity", event.Severity)
	return nil
}

func isNotFound(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundAlert
}

func isConflict(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictAlertActive
}
