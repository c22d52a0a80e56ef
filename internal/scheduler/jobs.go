package scheduler

import (
	"context"
	"time"

	"freshtrack/internal/classifier"
	"freshtrack/internal/db"
	"freshtrack/internal/types"
)

// UnitPager pages through all units by ascending ID. Implemented by
// db.UnitRepository.
type UnitPager interface {
	ListPage(ctx context.Context, afterID string, limit int) ([]types.Unit, error)
}

// ObservationReader exposes the last observation time per unit. Implemented
// by db.ReadingRepository.
type ObservationReader interface {
	LastObservedAt(ctx context.Context, unitID string) (time.Time, bool, error)
}

// Lifecycle applies a computed state to the alert lifecycle. Implemented by
// alerts.Manager.
type Lifecycle interface {
	Apply(ctx context.Context, ruleID string, state types.UnitState) error
}

// RuleFinder fetches the active rule for a unit. Implemented by
// db.RuleRepository.
type RuleFinder interface {
	GetByUnit(ctx context.Context, unitID string) (*types.AlertRule, error)
}

// OfflineSweeper walks every unit and raises offline alerts for the ones
// that have gone silent. Reading ingestion only evaluates units that are
// still reporting; the sweep is what catches the ones that stopped.
type OfflineSweeper struct {
	units     UnitPager
	readings  ObservationReader
	rules     RuleFinder
	lifecycle Lifecycle
	cfg       classifier.Config
	pageSize  int
	logger    types.Logger
}

// NewOfflineSweeper builds an OfflineSweeper.
func NewOfflineSweeper(units UnitPager, readings ObservationReader, rules RuleFinder,
	lifecycle Lifecycle, cfg classifier.Config, pageSize int, logger types.Logger) *OfflineSweeper {
	if pageSize <= 0 {
		pageSize = 200
	}
	return &OfflineSweeper{
		units:     units,
		readings:  readings,
		rules:     rules,
		lifecycle: lifecycle,
		cfg:       cfg,
		pageSize:  pageSize,
		logger:    logger,
	}
}

// Sweep scans all units once and applies an offline state for every unit
// whose silence exceeds the timeout. Fail-soft per unit: one unit's lookup
// failure never stalls the scan. Returns the number of units flagged
// offline.
func (s *OfflineSweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	flagged := 0
	afterID := ""
	for {
		page, err := s.units.ListPage(ctx, afterID, s.pageSize)
		if err != nil {
			return flagged, err
		}
		if len(page) == 0 {
			return flagged, nil
		}
		for _, unit := range page {
			offline, err := s.sweepUnit(ctx, unit, now)
			if err != nil {
				s.logger.Error("offline sweep failed for unit, continuing",
					"unit_id", unit.ID, "error", err)
				continue
			}
			if offline {
				flagged++
			}
		}
		afterID = page[len(page)-1].ID
		if len(page) < s.pageSize {
			return flagged, nil
		}
	}
}

func (s *OfflineSweeper) sweepUnit(ctx context.Context, unit types.Unit, now time.Time) (bool, error) {
	lastObserved, found, err := s.readings.LastObservedAt(ctx, unit.ID)
	if err != nil {
		return false, err
	}

	var state types.UnitState
	if !found {
		state = classifier.ClassifyNoData(unit.CreatedAt, now, s.cfg)
		state.UnitID = unit.ID
	} else if classifier.Offline(lastObserved, unit.CreatedAt, now, s.cfg) {
		state = types.UnitState{UnitID: unit.ID, State: types.StateOffline, ComputedAt: now}
	} else {
		return false, nil
	}
	if state.State != types.StateOffline {
		return false, nil
	}

	// The offline dimension applies even without configured thresholds, so
	// a missing rule is not an error here.
	ruleID := ""
	if rule, err := s.rules.GetByUnit(ctx, unit.ID); err == nil {
		ruleID = rule.ID
	}

	if err := s.lifecycle.Apply(ctx, ruleID, state); err != nil {
		return false, err
	}
	return true, nil
}

// ParkedAttemptLister returns deferred and parked attempts whose retry time
// has passed. Implemented by db.AttemptRepository.
type ParkedAttemptLister interface {
	ListDeferredDue(ctx context.Context, limit int) ([]*types.NotificationAttempt, error)
	UpdateStatus(ctx context.Context, attemptID string, u db.StatusUpdate) error
}

// AlertGetter fetches an alert by ID. Implemented by db.AlertRepository.
type AlertGetter interface {
	GetByID(ctx context.Context, alertID string) (*types.Alert, error)
}

// RetrySender re-publishes a delivery message with an incremented retry
// count. Implemented by dispatch.EventPublisher.
type RetrySender interface {
	PublishRetry(ctx context.Context, msg types.AlertEventMessage, delay time.Duration) error
}

// RequeueService returns parked notification attempts to the delivery queue.
// Two populations land here: attempts whose computed backoff exceeded the
// queue's maximum delay, and attempts whose retry publish itself failed.
type RequeueService struct {
	attempts  ParkedAttemptLister
	alerts    AlertGetter
	publisher RetrySender
	batchSize int
	logger    types.Logger
}

// NewRequeueService builds a RequeueService.
func NewRequeueService(attempts ParkedAttemptLister, alerts AlertGetter,
	publisher RetrySender, batchSize int, logger types.Logger) *RequeueService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &RequeueService{
		attempts:  attempts,
		alerts:    alerts,
		publisher: publisher,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Requeue re-publishes every due parked attempt. Attempts whose alert has
// since resolved are closed out instead of retried. Fail-soft per attempt.
// Returns the number of attempts re-published.
func (s *RequeueService) Requeue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.attempts.ListDeferredDue(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, attempt := range due {
		if err := s.requeueOne(ctx, attempt, now); err != nil {
			s.logger.Error("requeue failed for attempt, continuing",
				"attempt_id", attempt.ID, "alert_id", attempt.AlertID, "error", err)
			continue
		}
		requeued++
	}
	return requeued, nil
}

func (s *RequeueService) requeueOne(ctx context.Context, attempt *types.NotificationAttempt, now time.Time) error {
	alert, err := s.alerts.GetByID(ctx, attempt.AlertID)
	if err != nil {
		return err
	}

	// Notifying about an alert that resolved while the attempt was parked
	// would only confuse the recipient.
	if !alert.Active() {
		return s.attempts.UpdateStatus(ctx, attempt.ID, db.StatusUpdate{
			Status:            types.AttemptFailedPermanent,
			ProviderErrorCode: "alert_resolved",
		})
	}

	msg := types.AlertEventMessage{
		Event: types.AlertEvent{
			AlertID:   alert.ID,
			UnitID:    alert.UnitID,
			RuleID:    alert.RuleID,
			Severity:  alert.Severity,
			Kind:      types.AlertEventTriggered,
			Timestamp: now,
		},
		Channel:     attempt.Channel,
		Destination: attempt.Destination,
		// PublishRetry increments before sending, so hand it the count of
		// attempts already burned minus one.
		RetryCount: attempt.AttemptNumber - 1,
	}
	if err := s.publisher.PublishRetry(ctx, msg, 0); err != nil {
		return err
	}

	// Move the row out of the parked pool so the next run does not pick it
	// up again. The new delivery writes its own attempt row.
	return s.attempts.UpdateStatus(ctx, attempt.ID, db.StatusUpdate{Status: types.AttemptRetrying})
}
