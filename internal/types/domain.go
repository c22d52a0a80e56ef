package types

import (
	"time"
)

// Reading is one normalized sensor observation for a storage unit. The
// ingestion collaborator delivers these; the classifier consumes them.
// Duplicates (same UnitID + ObservedAt) are idempotent no-ops at the
// persistence layer.
type Reading struct {
	ID          string    `json:"id" db:"id"`
	UnitID      string    `json:"unit_id" db:"unit_id" validate:"required"`
	Temperature float64   `json:"temperature" db:"temperature"`
	Humidity    *float64  `json:"humidity,omitempty" db:"humidity"`
	ObservedAt  time.Time `json:"observed_at" db:"observed_at" validate:"required"`
	ReceivedAt  time.Time `json:"received_at" db:"received_at"`
}

// Unit is a temperature-sensitive storage unit under monitoring.
type Unit struct {
	ID             string    `json:"id" db:"id"`
	AreaID         string    `json:"area_id" db:"area_id"`
	SiteID         string    `json:"site_id" db:"site_id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// UnitState is the computed operating status of a unit. Derived data: the
// durable source of truth remains the readings and alerts tables; UnitState
// only ever lives in the state cache or in API responses.
type UnitState struct {
	UnitID          string        `json:"unit_id"`
	State           UnitStateKind `json:"state"`
	ComputedAt      time.Time     `json:"computed_at"`
	SourceReadingID string        `json:"source_reading_id,omitempty"`
}

// HierarchyState is the aggregated worst-case state for a container
// (area/site/organization). Recomputed on read, never stored durably.
type HierarchyState struct {
	ContainerID       string        `json:"container_id"`
	ContainerKind     ContainerKind `json:"container_kind"`
	WorstState        UnitStateKind `json:"worst_state"`
	ContributingUnitID string       `json:"contributing_unit_id,omitempty"`
	ComputedAt        time.Time     `json:"computed_at"`
}

// AlertRule is the threshold configuration for one unit.
// Invariants: TempMin < TempMax; trigger/resolve counts >= 1.
type AlertRule struct {
	ID                         string    `json:"id" db:"id"`
	UnitID                     string    `json:"unit_id" db:"unit_id"`
	TempMin                    float64   `json:"temp_min" db:"temp_min"`
	TempMax                    float64   `json:"temp_max" db:"temp_max" validate:"gtfield=TempMin"`
	ConsecutiveReadingsToTrigger int     `json:"consecutive_readings_to_trigger" db:"consecutive_to_trigger" validate:"min=1"`
	ConsecutiveReadingsToResolve int     `json:"consecutive_readings_to_resolve" db:"consecutive_to_resolve" validate:"min=1"`
	CreatedAt                  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt                  time.Time `json:"updated_at" db:"updated_at"`
}

// InRange reports whether a temperature is within the rule's safe range.
func (r AlertRule) InRange(temp float64) bool {
	return temp >= r.TempMin && temp <= r.TempMax
}

// Alert is an active or historical excursion incident. At most one active
// (ResolvedAt == nil) alert exists per unit at any time; TriggeredAt is
// immutable after creation.
type Alert struct {
	ID             string        `json:"id" db:"id"`
	UnitID         string        `json:"unit_id" db:"unit_id"`
	RuleID         string        `json:"rule_id" db:"rule_id"`
	Severity       UnitStateKind `json:"severity" db:"severity"`
	TriggeredAt    time.Time     `json:"triggered_at" db:"triggered_at"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
	AcknowledgedBy string        `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
}

// Active reports whether the alert is unresolved.
func (a Alert) Active() bool {
	return a.ResolvedAt == nil
}

// AlertEvent is a lifecycle transition handed to the dispatcher and the
// realtime push collaborator. Exactly one event is emitted per trigger,
// escalation, and resolution.
type AlertEvent struct {
	AlertID   string         `json:"alert_id"`
	UnitID    string         `json:"unit_id"`
	RuleID    string         `json:"rule_id"`
	Severity  UnitStateKind  `json:"severity"`
	Kind      AlertEventKind `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
}

// Contact is a notification destination for a responsible human.
type Contact struct {
	ID          string      `json:"id" db:"id"`
	UserID      string      `json:"user_id" db:"user_id"`
	Channel     ChannelType `json:"channel" db:"channel"`
	Destination string      `json:"destination" db:"destination"`
	Enabled     bool        `json:"enabled" db:"enabled"`
}

// NotificationAttempt is one delivery try for an alert on one channel.
// AttemptNumber is strictly increasing per (alert, channel); terminal
// statuses are immutable.
type NotificationAttempt struct {
	ID                string        `json:"id" db:"id"`
	AlertID           string        `json:"alert_id" db:"alert_id"`
	Channel           ChannelType   `json:"channel" db:"channel"`
	Destination       string        `json:"destination" db:"destination"`
	AttemptNumber     int           `json:"attempt_number" db:"attempt_number"`
	Status            AttemptStatus `json:"status" db:"status"`
	ProviderErrorCode string        `json:"provider_error_code,omitempty" db:"provider_error_code"`
	FailureCategory   string        `json:"failure_category,omitempty" db:"failure_category"`
	ProviderMsgID     string        `json:"provider_message_id,omitempty" db:"provider_message_id"`
	NextRetryAt       *time.Time    `json:"next_retry_at,omitempty" db:"next_retry_at"`
	LastAttemptAt     time.Time     `json:"last_attempt_at" db:"last_attempt_at"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
}

// DeliveryResult is the synchronous outcome of a channel Send.
type DeliveryResult struct {
	ProviderMessageID string
	ProviderErrorCode string
	Category          FailureCategory
	RetryAfter        *time.Duration
}

// DigestPreferences is the per-user digest configuration the scheduler
// reconciles against. A cadence absent from Cadences is disabled.
type DigestPreferences struct {
	Cadences []DigestCadence `json:"cadences"`
	Timezone string          `json:"timezone"`
}

// DigestSchedule is one recurring per-user digest job. At most one schedule
// exists per (UserID, Cadence); the pair is the substrate's upsert key.
type DigestSchedule struct {
	UserID    string        `json:"user_id" db:"user_id"`
	Cadence   DigestCadence `json:"cadence" db:"cadence"`
	Timezone  string        `json:"timezone" db:"timezone"`
	Enabled   bool          `json:"enabled" db:"enabled"`
	NextRunAt time.Time     `json:"next_run_at" db:"next_run_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// ScheduleKey returns the substrate key for a (user, cadence) pair.
func ScheduleKey(userID string, cadence DigestCadence) string {
	return "digest_" + userID + "_" + string(cadence)
}
