// Package scheduler owns the recurring work of the platform: per-user digest
// scheduling and triggering, the offline sweep, deferred-attempt requeue,
// and reading archival.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"freshtrack/internal/types"
)

// DigestConfig mirrors the platform digest defaults: the local delivery
// hour and the weekly delivery day. Zero values fall back to 09:00 local
// and Monday in the constructor.
type DigestConfig struct {
	DailyHour int
	WeeklyDay time.Weekday
	BatchSize int
}

// DigestStore is the schedule persistence surface. Implemented by
// db.DigestRepository.
type DigestStore interface {
	Upsert(ctx context.Context, s *types.DigestSchedule) error
	Delete(ctx context.Context, userID string, cadence types.DigestCadence) error
	DeleteAllForUser(ctx context.Context, userID string) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]types.DigestSchedule, error)
	AdvanceNextRun(ctx context.Context, userID string, cadence types.DigestCadence, from, to time.Time) (bool, error)
}

// DigestMessage is the SQS payload that tells the digest worker to build
// and deliver one user's digest for one period.
type DigestMessage struct {
	UserID      string              `json:"user_id"`
	Cadence     types.DigestCadence `json:"cadence"`
	Timezone    string              `json:"timezone"`
	PeriodEnd   time.Time           `json:"period_end"`
	PeriodStart time.Time           `json:"period_start"`
	TraceID     string              `json:"trace_id,omitempty"`
}

// SQSSender abstracts the SQS SendMessage operation for testability.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// DigestScheduler reconciles user digest preferences into durable schedules
// and fires the ones that come due.
type DigestScheduler struct {
	store  DigestStore
	queue  SQSSender
	qurl   string
	cfg    DigestConfig
	clock  types.Clock
	logger types.Logger
}

// NewDigestScheduler builds a DigestScheduler.
func NewDigestScheduler(store DigestStore, queue SQSSender, queueURL string, cfg DigestConfig, clock types.Clock, logger types.Logger) *DigestScheduler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if cfg.DailyHour == 0 {
		cfg.DailyHour = 9
	}
	if cfg.WeeklyDay == time.Sunday {
		cfg.WeeklyDay = time.Monday
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &DigestScheduler{
		store:  store,
		queue:  queue,
		qurl:   queueURL,
		cfg:    cfg,
		clock:  clock,
		logger: logger,
	}
}

// Sync reconciles one user's digest preferences against the schedule table.
// Cadences present in the preferences are upserted with a freshly computed
// next run; supported cadences absent from them are removed. Re-syncing
// identical preferences is a no-op by construction of the (user, cadence)
// key.
func (d *DigestScheduler) Sync(ctx context.Context, userID string, prefs types.DigestPreferences) error {
	if err := types.ValidateTimezone(prefs.Timezone); err != nil {
		return err
	}

	wanted := make(map[types.DigestCadence]bool, len(prefs.Cadences))
	for _, cadence := range prefs.Cadences {
		if !cadence.Valid() {
			return types.NewAppError(types.ErrCodeValidationMissingField,
				fmt.Sprintf("unknown digest cadence %q", cadence), nil)
		}
		wanted[cadence] = true
	}

	now := d.clock.Now()
	for _, cadence := range []types.DigestCadence{types.CadenceDaily, types.CadenceWeekly} {
		if wanted[cadence] {
			nextRun, err := NextRun(now, cadence, prefs.Timezone, d.cfg)
			if err != nil {
				return err
			}
			if err := d.store.Upsert(ctx, &types.DigestSchedule{
				UserID:    userID,
				Cadence:   cadence,
				Timezone:  prefs.Timezone,
				Enabled:   true,
				NextRunAt: nextRun,
			}); err != nil {
				return err
			}
		} else {
			if err := d.store.Delete(ctx, userID, cadence); err != nil {
				return err
			}
		}
	}

	d.logger.Info("digest schedules synced", "user_id", userID,
		"cadences", len(prefs.Cadences), "timezone", prefs.Timezone)
	return nil
}

// RemoveAll drops every schedule for a user. Idempotent; called on account
// deactivation.
func (d *DigestScheduler) RemoveAll(ctx context.Context, userID string) error {
	return d.store.DeleteAllForUser(ctx, userID)
}

// TriggerDue fires every schedule whose next run has passed and advances it
// to the following occurrence. Processing is fail-soft per schedule: one
// user's bad timezone or a transient publish failure never blocks the rest
// of the batch. Returns the number of digests fired.
func (d *DigestScheduler) TriggerDue(ctx context.Context) (int, error) {
	now := d.clock.Now()
	due, err := d.store.ListDue(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, schedule := range due {
		if err := d.fire(ctx, schedule, now); err != nil {
			d.logger.Error("digest trigger failed, continuing batch",
				"user_id", schedule.UserID, "cadence", schedule.Cadence, "error", err)
			continue
		}
		fired++
	}
	return fired, nil
}

func (d *DigestScheduler) fire(ctx context.Context, schedule types.DigestSchedule, now time.Time) error {
	next, err := NextRun(now, schedule.Cadence, schedule.Timezone, d.cfg)
	if err != nil {
		return err
	}

	// Claim the slot before publishing. A competing trigger run loses the
	// conditional update and skips; losing a claim is not an error.
	won, err := d.store.AdvanceNextRun(ctx, schedule.UserID, schedule.Cadence, schedule.NextRunAt, next)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	msg := DigestMessage{
		UserID:      schedule.UserID,
		Cadence:     schedule.Cadence,
		Timezone:    schedule.Timezone,
		PeriodEnd:   schedule.NextRunAt,
		PeriodStart: periodStart(schedule.NextRunAt, schedule.Cadence),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = d.queue.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.qurl),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("digest scheduler: failed to publish digest for user %s: %w", msg.UserID, err)
	}

	d.logger.Info("digest fired", "user_id", msg.UserID, "cadence", msg.Cadence,
		"period_end", msg.PeriodEnd)
	return nil
}

// periodStart derives the covered period from the slot time.
func periodStart(periodEnd time.Time, cadence types.DigestCadence) time.Time {
	if cadence == types.CadenceWeekly {
		return periodEnd.AddDate(0, 0, -7)
	}
	return periodEnd.AddDate(0, 0, -1)
}

// NextRun computes the next delivery instant for a cadence in the user's
// timezone, returned in UTC.
//
// Daily digests run at the configured local hour; weekly digests run at
// that hour on the configured weekday. Constructing the target with
// time.Date in the user's location keeps DST transitions correct: the wall
// clock hour is what users expect to stay fixed.
func NextRun(now time.Time, cadence types.DigestCadence, tz string, cfg DigestConfig) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, types.NewAppError(types.ErrCodeValidationInvalidTimezone,
			fmt.Sprintf("unknown timezone %q", tz), err)
	}

	localNow := now.In(loc)

	switch cadence {
	case types.CadenceWeekly:
		target := time.Date(localNow.Year(), localNow.Month(), localNow.Day(),
			cfg.DailyHour, 0, 0, 0, loc)
		daysAhead := (int(cfg.WeeklyDay) - int(target.Weekday()) + 7) % 7
		target = target.AddDate(0, 0, daysAhead)
		if !target.After(localNow) {
			target = target.AddDate(0, 0, 7)
		}
		return target.UTC(), nil

	case types.CadenceDaily:
		target := time.Date(localNow.Year(), localNow.Month(), localNow.Day(),
			cfg.DailyHour, 0, 0, 0, loc)
		if !target.After(localNow) {
			target = target.AddDate(0, 0, 1)
		}
		return target.UTC(), nil

	default:
		return time.Time{}, types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("unknown digest cadence %q", cadence), nil)
	}
}
