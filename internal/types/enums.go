package types

// UnitStateKind is the computed operating state of a storage unit.
type UnitStateKind string

const (
	StateNormal   UnitStateKind = "normal"
	StateWarning  UnitStateKind = "warning"
	StateCritical UnitStateKind = "critical"
	StateOffline  UnitStateKind = "offline"
)

// statePriority is the fixed severity ordering. It is the sole basis for
// hierarchy aggregation and for deciding whether a new classification is
// worse than an active alert's severity.
var statePriority = map[UnitStateKind]int{
	StateNormal:   0,
	StateWarning:  1,
	StateCritical: 2,
	StateOffline:  3,
}

// Priority returns the numeric severity of the state. Unknown states rank
// below normal so that a corrupt value can never mask a real excursion.
func (s UnitStateKind) Priority() int {
	if p, ok := statePriority[s]; ok {
		return p
	}
	return -1
}

// WorseThan reports whether s is strictly more severe than other.
func (s UnitStateKind) WorseThan(other UnitStateKind) bool {
	return s.Priority() > other.Priority()
}

// Alertable reports whether the state opens an alert when no alert is active.
// Only critical and offline classifications trigger alerts; warning is an
// unconfirmed excursion and never alerts on its own.
func (s UnitStateKind) Alertable() bool {
	return s == StateCritical || s == StateOffline
}

// ContainerKind identifies a level of the organizational hierarchy.
type ContainerKind string

const (
	ContainerArea         ContainerKind = "area"
	ContainerSite         ContainerKind = "site"
	ContainerOrganization ContainerKind = "organization"
)

// AlertEventKind identifies a lifecycle transition emitted to the dispatcher
// and the realtime push collaborator.
type AlertEventKind string

const (
	AlertEventTriggered AlertEventKind = "triggered"
	AlertEventEscalated AlertEventKind = "escalated"
	AlertEventResolved  AlertEventKind = "resolved"
)

// ChannelType identifies a notification delivery channel.
type ChannelType string

const (
	ChannelSMS   ChannelType = "sms"
	ChannelEmail ChannelType = "email"
)

// AttemptStatus enumerates all valid states for a notification attempt.
// These values MUST match the CHECK constraint in notification_attempts.
type AttemptStatus string

const (
	AttemptPending         AttemptStatus = "pending"
	AttemptSent            AttemptStatus = "sent"
	AttemptRetrying        AttemptStatus = "retrying"
	AttemptDeferred        AttemptStatus = "deferred"
	AttemptFailedRetryable AttemptStatus = "failed-retryable"
	AttemptFailedPermanent AttemptStatus = "failed-permanent"
)

// Terminal reports whether the status is immutable. A late provider callback
// must never reopen a terminal attempt.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptSent || s == AttemptFailedPermanent
}

// FailureCategory is the three-way classification of a delivery failure.
// It governs whether a retry is attempted.
type FailureCategory string

const (
	// FailureUnrecoverable marks permanent failures: invalid, opted-out, or
	// blocked destinations and malformed content. Never retried.
	FailureUnrecoverable FailureCategory = "unrecoverable"

	// FailureRetryable marks transient failures: rate limiting, temporary
	// provider unavailability, provider-side internal errors.
	FailureRetryable FailureCategory = "retryable"

	// FailureUnknown is assigned to codes absent from the taxonomy table.
	// Unknown defaults to retry: a wasted retry beats a silently dropped
	// safety-critical alert.
	FailureUnknown FailureCategory = "unknown"
)

// ShouldRetry resolves the category into a retry decision.
func (c FailureCategory) ShouldRetry() bool {
	return c != FailureUnrecoverable
}

// DigestCadence identifies a recurring digest frequency.
type DigestCadence string

const (
	CadenceDaily  DigestCadence = "daily"
	CadenceWeekly DigestCadence = "weekly"
)

// Valid reports whether the cadence is one of the supported values.
func (c DigestCadence) Valid() bool {
	return c == CadenceDaily || c == CadenceWeekly
}
