package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// Clock abstracts time for testability. Every time-dependent component
// (classifier, state cache, lifecycle manager, schedulers) takes a Clock at
// construction rather than calling time.Now directly.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// NotificationChannel is the polymorphic delivery channel contract.
// Implemented by the SMS and email channels; new channels implement this
// interface without modifying the dispatcher core.
type NotificationChannel interface {
	// Type returns the channel type (e.g., "sms", "email").
	Type() ChannelType

	// ValidateDestination checks destination syntax before any provider
	// contact. A syntactically invalid destination is an unrecoverable
	// failure that must never reach the provider.
	ValidateDestination(destination string) error

	// Send executes the transmission of a formatted payload. A non-nil
	// DeliveryResult carries the provider code and failure category; a bare
	// error is infrastructure-level and treated as retryable by default.
	Send(ctx context.Context, destination string, payload []byte) (*DeliveryResult, error)

	// ClassifyError maps a provider error code into the three-way taxonomy.
	ClassifyError(providerCode string) FailureCategory
}

// AlertEventSink consumes lifecycle transitions. The dispatcher implements
// this; the lifecycle manager never depends on dispatch internals.
type AlertEventSink interface {
	Enqueue(ctx context.Context, event AlertEvent) error
}

// PushEmitter is the best-effort realtime push collaborator. Emit must
// never block or fail a lifecycle transition.
type PushEmitter interface {
	Emit(ctx context.Context, event AlertEvent)
}

// Logger defines the structured logging interface used throughout the
// platform.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}
