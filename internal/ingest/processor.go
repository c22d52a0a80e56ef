// Package ingest implements the reading ingestion pipeline: persist an
// incoming sensor reading, reclassify the unit, refresh the state cache,
// and hand the computed state to the alert lifecycle.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"freshtrack/internal/classifier"
	"freshtrack/internal/statecache"
	"freshtrack/internal/types"
)

// ReadingStore persists readings and serves the classification window.
// Implemented by db.ReadingRepository.
type ReadingStore interface {
	Insert(ctx context.Context, reading *types.Reading) (bool, error)
	RecentWindow(ctx context.Context, unitID string, limit int) ([]types.Reading, error)
}

// UnitGetter fetches unit metadata. Implemented by db.UnitRepository.
type UnitGetter interface {
	GetByID(ctx context.Context, unitID string) (*types.Unit, error)
}

// RuleGetter fetches the active rule for a unit. Implemented by
// db.RuleRepository.
type RuleGetter interface {
	GetByUnit(ctx context.Context, unitID string) (*types.AlertRule, error)
}

// Lifecycle applies a computed state to the alert lifecycle. Implemented by
// alerts.Manager.
type Lifecycle interface {
	Apply(ctx context.Context, ruleID string, state types.UnitState) error
}

// Processor runs the ingestion pipeline for one reading at a time. Per-unit
// ordering is the queue's job; the processor itself is safe for concurrent
// use across units.
type Processor struct {
	readings  ReadingStore
	units     UnitGetter
	rules     RuleGetter
	cache     *statecache.Cache
	lifecycle Lifecycle
	cfg       classifier.Config
	window    int
	clock     types.Clock
	logger    types.Logger
}

// Config holds the dependencies needed to create a Processor.
type Config struct {
	Readings   ReadingStore
	Units      UnitGetter
	Rules      RuleGetter
	Cache      *statecache.Cache
	Lifecycle  Lifecycle
	Classifier classifier.Config
	// WindowSize bounds the readings fetched for classification. Must cover
	// the largest configured debounce plus hysteresis streak.
	WindowSize int
	Clock      types.Clock
	Logger     types.Logger
}

// New creates a Processor.
func New(cfg Config) *Processor {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 20
	}
	return &Processor{
		readings:  cfg.Readings,
		units:     cfg.Units,
		rules:     cfg.Rules,
		cache:     cfg.Cache,
		lifecycle: cfg.Lifecycle,
		cfg:       cfg.Classifier,
		window:    cfg.WindowSize,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
}

// Process ingests one reading end to end. Validation failures and unknown
// units are permanent and reported as such so queue consumers drop the
// message instead of redriving it; everything else is retryable.
func (p *Processor) Process(ctx context.Context, msg types.ReadingMessage) error {
	now := p.clock.Now()

	reading := &types.Reading{
		ID:          uuid.NewString(),
		UnitID:      msg.UnitID,
		Temperature: msg.Temperature,
		Humidity:    msg.Humidity,
		ObservedAt:  msg.ObservedAt,
		ReceivedAt:  now,
	}
	if err := types.ValidateReading(reading); err != nil {
		return err
	}

	unit, err := p.units.GetByID(ctx, msg.UnitID)
	if err != nil {
		return err
	}

	inserted, err := p.readings.Insert(ctx, reading)
	if err != nil {
		return err
	}
	if !inserted {
		// Same (unit, observed_at) pair already processed; a redelivered
		// message must not re-run the lifecycle.
		p.logger.Info("duplicate reading dropped", "unit_id", msg.UnitID,
			"observed_at", msg.ObservedAt, "trace_id", msg.TraceID)
		return nil
	}

	state, ruleID, err := p.classify(ctx, *unit, now)
	if err != nil {
		return err
	}
	p.cache.Put(state)

	return p.lifecycle.Apply(ctx, ruleID, state)
}

// classify recomputes the unit state from the persisted window, which now
// includes the reading just inserted.
func (p *Processor) classify(ctx context.Context, unit types.Unit, now time.Time) (types.UnitState, string, error) {
	window, err := p.readings.RecentWindow(ctx, unit.ID, p.window)
	if err != nil {
		return types.UnitState{}, "", err
	}
	if len(window) == 0 {
		st := classifier.ClassifyNoData(unit.CreatedAt, now, p.cfg)
		st.UnitID = unit.ID
		return st, "", nil
	}

	latest := window[len(window)-1]

	rule, err := p.rules.GetByUnit(ctx, unit.ID)
	if err != nil {
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNotFoundRule {
			return types.UnitState{}, "", err
		}
		// No thresholds configured: only the offline dimension applies.
		st := types.UnitState{
			UnitID:          unit.ID,
			State:           types.StateNormal,
			ComputedAt:      now,
			SourceReadingID: latest.ID,
		}
		if classifier.Offline(latest.ObservedAt, unit.CreatedAt, now, p.cfg) {
			st.State = types.StateOffline
		}
		return st, "", nil
	}

	st := classifier.Classify(classifier.Input{
		Reading:       latest,
		Rule:          *rule,
		History:       window[:len(window)-1],
		UnitCreatedAt: unit.CreatedAt,
	}, now, p.cfg)
	return st, rule.ID, nil
}
