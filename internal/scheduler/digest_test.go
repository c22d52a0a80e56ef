package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freshtrack/internal/types"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

type nopLogger struct{}

func (nopLogger) Info(msg string, args ...any)    {}
func (nopLogger) Error(msg string, args ...any)   {}
func (nopLogger) Warn(msg string, args ...any)    {}
func (l nopLogger) With(args ...any) types.Logger { return l }

type fakeDigestStore struct {
	upserts   []types.DigestSchedule
	deletes   []types.DigestCadence
	wipedUser string
	due       []types.DigestSchedule
	listErr   error
	advanceOK bool
	advErr    error
	advanced  []time.Time
}

func (f *fakeDigestStore) Upsert(ctx context.Context, s *types.DigestSchedule) error {
	f.upserts = append(f.upserts, *s)
	return nil
}

func (f *fakeDigestStore) Delete(ctx context.Context, userID string, cadence types.DigestCadence) error {
	f.deletes = append(f.deletes, cadence)
	return nil
}

func (f *fakeDigestStore) DeleteAllForUser(ctx context.Context, userID string) error {
	f.wipedUser = userID
	return nil
}

func (f *fakeDigestStore) ListDue(ctx context.Context, now time.Time, limit int) ([]types.DigestSchedule, error) {
	return f.due, f.listErr
}

func (f *fakeDigestStore) AdvanceNextRun(ctx context.Context, userID string, cadence types.DigestCadence, from, to time.Time) (bool, error) {
	f.advanced = append(f.advanced, to)
	return f.advanceOK, f.advErr
}

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	return &sqs.SendMessageOutput{}, f.err
}

var testDigestCfg = DigestConfig{DailyHour: 9, WeeklyDay: time.Monday, BatchSize: 50}

func newTestScheduler(store *fakeDigestStore, queue *fakeSQS, now time.Time) *DigestScheduler {
	return NewDigestScheduler(store, queue, "https://sqs.test/digests", testDigestCfg,
		&fakeClock{now: now}, nopLogger{})
}

func TestNextRun_DailyBeforeLocalHour(t *testing.T) {
	// 06:00 in New York is 10:00 UTC (EDT).
	now := time.Date(2026, 6, 10, 10, 0, 0, 0, time.UTC)

	next, err := NextRun(now, types.CadenceDaily, "America/New_York", testDigestCfg)
	require.NoError(t, err)

	// Same day 09:00 EDT = 13:00 UTC.
	assert.Equal(t, time.Date(2026, 6, 10, 13, 0, 0, 0, time.UTC), next)
}

func TestNextRun_DailyAfterLocalHourRollsToTomorrow(t *testing.T) {
	// 12:00 in New York.
	now := time.Date(2026, 6, 10, 16, 0, 0, 0, time.UTC)

	next, err := NextRun(now, types.CadenceDaily, "America/New_York", testDigestCfg)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 6, 11, 13, 0, 0, 0, time.UTC), next)
}

func TestNextRun_DailyAcrossDSTKeepsWallClock(t *testing.T) {
	// 2026-03-07 20:00 EST, the evening before US spring-forward.
	now := time.Date(2026, 3, 8, 1, 0, 0, 0, time.UTC)

	next, err := NextRun(now, types.CadenceDaily, "America/New_York", testDigestCfg)
	require.NoError(t, err)

	// Next 09:00 local is already EDT, so UTC-4 instead of UTC-5.
	assert.Equal(t, time.Date(2026, 3, 8, 13, 0, 0, 0, time.UTC), next)
	loc, _ := time.LoadLocation("America/New_York")
	assert.Equal(t, 9, next.In(loc).Hour())
}

func TestNextRun_WeeklyLandsOnConfiguredWeekday(t *testing.T) {
	// Wednesday 2026-06-10 in UTC.
	now := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

	next, err := NextRun(now, types.CadenceWeekly, "UTC", testDigestCfg)
	require.NoError(t, err)

	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC), next)
}

func TestNextRun_WeeklySameDayPastHourRollsAWeek(t *testing.T) {
	// Monday 10:00 UTC, one hour past the slot.
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

	next, err := NextRun(now, types.CadenceWeekly, "UTC", testDigestCfg)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 6, 22, 9, 0, 0, 0, time.UTC), next)
}

func TestNextRun_UnknownTimezone(t *testing.T) {
	_, err := NextRun(time.Now(), types.CadenceDaily, "Mars/Olympus_Mons", testDigestCfg)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidTimezone, appErr.Code)
}

func TestSync_UpsertsWantedAndDeletesUnwanted(t *testing.T) {
	store := &fakeDigestStore{}
	s := newTestScheduler(store, &fakeSQS{}, time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC))

	err := s.Sync(context.Background(), "user-1", types.DigestPreferences{
		Cadences: []types.DigestCadence{types.CadenceDaily},
		Timezone: "Europe/Berlin",
	})
	require.NoError(t, err)

	require.Len(t, store.upserts, 1)
	assert.Equal(t, types.CadenceDaily, store.upserts[0].Cadence)
	assert.Equal(t, "Europe/Berlin", store.upserts[0].Timezone)
	assert.True(t, store.upserts[0].Enabled)
	assert.False(t, store.upserts[0].NextRunAt.IsZero())

	require.Len(t, store.deletes, 1)
	assert.Equal(t, types.CadenceWeekly, store.deletes[0])
}

func TestNewDigestScheduler_ZeroConfigUsesDocumentedDefaults(t *testing.T) {
	store := &fakeDigestStore{}
	// Wednesday 2026-06-10, zero-valued config.
	s := NewDigestScheduler(store, &fakeSQS{}, "https://sqs.test/digests", DigestConfig{},
		&fakeClock{now: time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)}, nopLogger{})

	err := s.Sync(context.Background(), "user-1", types.DigestPreferences{
		Cadences: []types.DigestCadence{types.CadenceWeekly},
		Timezone: "UTC",
	})
	require.NoError(t, err)

	require.Len(t, store.upserts, 1)
	assert.Equal(t, time.Monday, store.upserts[0].NextRunAt.Weekday())
	assert.Equal(t, 9, store.upserts[0].NextRunAt.Hour())
}

func TestSync_EmptyPreferencesClearsBothCadences(t *testing.T) {
	store := &fakeDigestStore{}
	s := newTestScheduler(store, &fakeSQS{}, time.Now())

	err := s.Sync(context.Background(), "user-1", types.DigestPreferences{Timezone: "UTC"})
	require.NoError(t, err)

	assert.Empty(t, store.upserts)
	assert.ElementsMatch(t, []types.DigestCadence{types.CadenceDaily, types.CadenceWeekly}, store.deletes)
}

func TestSync_InvalidTimezoneRejected(t *testing.T) {
	store := &fakeDigestStore{}
	s := newTestScheduler(store, &fakeSQS{}, time.Now())

	err := s.Sync(context.Background(), "user-1", types.DigestPreferences{
		Cadences: []types.DigestCadence{types.CadenceDaily},
		Timezone: "Not/AZone",
	})
	require.Error(t, err)
	assert.Empty(t, store.upserts)
}

func TestRemoveAll(t *testing.T) {
	store := &fakeDigestStore{}
	s := newTestScheduler(store, &fakeSQS{}, time.Now())

	require.NoError(t, s.RemoveAll(context.Background(), "user-9"))
	assert.Equal(t, "user-9", store.wipedUser)
}

func TestTriggerDue_FiresAndAdvances(t *testing.T) {
	now := time.Date(2026, 6, 10, 14, 0, 0, 0, time.UTC)
	slot := time.Date(2026, 6, 10, 13, 0, 0, 0, time.UTC)
	store := &fakeDigestStore{
		due: []types.DigestSchedule{{
			UserID:    "user-1",
			Cadence:   types.CadenceDaily,
			Timezone:  "America/New_York",
			NextRunAt: slot,
		}},
		advanceOK: true,
	}
	queue := &fakeSQS{}
	s := newTestScheduler(store, queue, now)

	fired, err := s.TriggerDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	require.Len(t, store.advanced, 1)
	assert.Equal(t, time.Date(2026, 6, 11, 13, 0, 0, 0, time.UTC), store.advanced[0])

	require.Len(t, queue.inputs, 1)
	var msg DigestMessage
	require.NoError(t, json.Unmarshal([]byte(*queue.inputs[0].MessageBody), &msg))
	assert.Equal(t, "user-1", msg.UserID)
	assert.Equal(t, types.CadenceDaily, msg.Cadence)
	assert.Equal(t, slot, msg.PeriodEnd)
	assert.Equal(t, slot.AddDate(0, 0, -1), msg.PeriodStart)
}

func TestTriggerDue_LostClaimSkipsPublish(t *testing.T) {
	store := &fakeDigestStore{
		due: []types.DigestSchedule{{
			UserID: "user-1", Cadence: types.CadenceDaily, Timezone: "UTC",
			NextRunAt: time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC),
		}},
		advanceOK: false,
	}
	queue := &fakeSQS{}
	s := newTestScheduler(store, queue, time.Date(2026, 6, 10, 9, 30, 0, 0, time.UTC))

	fired, err := s.TriggerDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Empty(t, queue.inputs)
}

func TestTriggerDue_BadScheduleDoesNotBlockBatch(t *testing.T) {
	store := &fakeDigestStore{
		due: []types.DigestSchedule{
			{UserID: "user-bad", Cadence: types.CadenceDaily, Timezone: "Broken/Zone",
				NextRunAt: time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)},
			{UserID: "user-ok", Cadence: types.CadenceDaily, Timezone: "UTC",
				NextRunAt: time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)},
		},
		advanceOK: true,
	}
	queue := &fakeSQS{}
	s := newTestScheduler(store, queue, time.Date(2026, 6, 10, 9, 30, 0, 0, time.UTC))

	fired, err := s.TriggerDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	require.Len(t, queue.inputs, 1)
}

func TestTriggerDue_ListFailurePropagates(t *testing.T) {
	store := &fakeDigestStore{listErr: errors.New("db down")}
	s := newTestScheduler(store, &fakeSQS{}, time.Now())

	_, err := s.TriggerDue(context.Background())
	require.Error(t, err)
}
