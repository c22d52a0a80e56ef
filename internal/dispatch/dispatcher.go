package dispatch

import (
	"context"
	"fmt"
	"time"

	"freshtrack/internal/db"
	"freshtrack/internal/types"
)

// AttemptStore is the attempt persistence surface the dispatcher needs.
// Implemented by db.AttemptRepository.
type AttemptStore interface {
	Create(ctx context.Context, a *types.NotificationAttempt) error
	UpdateStatus(ctx context.Context, attemptID string, u db.StatusUpdate) error
}

// ContactStore resolves and maintains notification destinations.
type ContactStore interface {
	ListEnabledForUnit(ctx context.Context, unitID string) ([]types.Contact, error)
	Disable(ctx context.Context, contactID string) error
}

// RetryPublisher re-publishes delivery messages for later attempts.
type RetryPublisher interface {
	PublishDelivery(ctx context.Context, msg types.AlertEventMessage) error
	PublishRetry(ctx context.Context, msg types.AlertEventMessage, delay time.Duration) error
}

// Dispatcher consumes alert event messages. A message without a channel is
// a fan-out request: it expands into one delivery message per enabled
// contact. A message with a channel is a single delivery attempt against
// that contact's destination.
type Dispatcher struct {
	channels  map[types.ChannelType]types.NotificationChannel
	attempts  AttemptStore
	contacts  ContactStore
	publisher RetryPublisher
	taxonomy  *Taxonomy
	policy    RetryPolicy
	metrics   Metrics
	clock     types.Clock
	logger    types.Logger
}

// NewDispatcher builds a Dispatcher over the given channel implementations.
func NewDispatcher(
	channels []types.NotificationChannel,
	attempts AttemptStore,
	contacts ContactStore,
	publisher RetryPublisher,
	taxonomy *Taxonomy,
	policy RetryPolicy,
	metrics Metrics,
	clock types.Clock,
	logger types.Logger,
) *Dispatcher {
	byType := make(map[types.ChannelType]types.NotificationChannel, len(channels))
	for _, ch := range channels {
		byType[ch.Type()] = ch
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Dispatcher{
		channels:  byType,
		attempts:  attempts,
		contacts:  contacts,
		publisher: publisher,
		taxonomy:  taxonomy,
		policy:    policy,
		metrics:   metrics,
		clock:     clock,
		logger:    logger,
	}
}

// Dispatch processes one alert event message.
func (d *Dispatcher) Dispatch(ctx context.Context, msg types.AlertEventMessage) error {
	if msg.Channel == "" {
		return d.fanOut(ctx, msg)
	}
	return d.deliver(ctx, msg)
}

// fanOut expands a lifecycle event into one delivery message per enabled
// contact. Publishing is at-least-once: a partial failure returns an error
// so the fan-out message is redelivered, and the resulting duplicate
// delivery messages each record their own attempt.
func (d *Dispatcher) fanOut(ctx context.Context, msg types.AlertEventMessage) error {
	contacts, err := d.contacts.ListEnabledForUnit(ctx, msg.Event.UnitID)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		d.logger.Warn("no enabled contacts for unit, alert event undeliverable",
			"unit_id", msg.Event.UnitID, "alert_id", msg.Event.AlertID)
		return nil
	}

	var publishErr error
	for _, c := range contacts {
		if _, ok := d.channels[c.Channel]; !ok {
			d.logger.Warn("contact uses unsupported channel, skipping",
				"contact_id", c.ID, "channel", c.Channel)
			continue
		}
		delivery := types.AlertEventMessage{
			Event:       msg.Event,
			Channel:     c.Channel,
			Destination: c.Destination,
			ContactID:   c.ID,
			TraceID:     msg.TraceID,
		}
		if err := d.publisher.PublishDelivery(ctx, delivery); err != nil {
			d.logger.Error("failed to publish delivery message",
				"contact_id", c.ID, "alert_id", msg.Event.AlertID, "error", err)
			publishErr = err
		}
	}
	return publishErr
}

// deliver executes one attempt against a provider and records the outcome.
func (d *Dispatcher) deliver(ctx context.Context, msg types.AlertEventMessage) error {
	channel, ok := d.channels[msg.Channel]
	if !ok {
		return fmt.Errorf("dispatch: no channel registered for %q", msg.Channel)
	}

	attempt := &types.NotificationAttempt{
		AlertID:     msg.Event.AlertID,
		Channel:     msg.Channel,
		Destination: msg.Destination,
	}
	if err := d.attempts.Create(ctx, attempt); err != nil {
		return err
	}

	// Destination syntax is checked before any provider contact. A failure
	// here can never succeed on retry.
	if err := channel.ValidateDestination(msg.Destination); err != nil {
		d.logger.Warn("invalid destination, failing permanently",
			"attempt_id", attempt.ID, "channel", msg.Channel, "error", err)
		d.metrics.RecordDelivery(ctx, msg.Channel, MetricFailed)
		return d.attempts.UpdateStatus(ctx, attempt.ID, db.StatusUpdate{
			Status:            types.AttemptFailedPermanent,
			ProviderErrorCode: "invalid_destination",
			FailureCategory:   types.FailureUnrecoverable,
		})
	}

	payload, err := RenderPayload(msg.Event, msg.Channel)
	if err != nil {
		return err
	}

	start := d.clock.Now()
	result, sendErr := channel.Send(ctx, msg.Destination, payload)
	d.metrics.RecordLatency(ctx, msg.Channel, d.clock.Now().Sub(start))

	if sendErr == nil && (result == nil || result.ProviderErrorCode == "") {
		d.metrics.RecordDelivery(ctx, msg.Channel, MetricSuccess)
		providerMsgID := ""
		if result != nil {
			providerMsgID = result.ProviderMessageID
		}
		d.logger.Info("notification delivered",
			"attempt_id", attempt.ID, "channel", msg.Channel,
			"attempt_number", attempt.AttemptNumber, "trace_id", msg.TraceID)
		return d.attempts.UpdateStatus(ctx, attempt.ID, db.StatusUpdate{
			Status:        types.AttemptSent,
			ProviderMsgID: providerMsgID,
		})
	}

	return d.handleFailure(ctx, msg, attempt, result, sendErr)
}

// handleFailure classifies the outcome and routes it to a terminal status,
// a queued retry, or a deferred parking slot.
func (d *Dispatcher) handleFailure(ctx context.Context, msg types.AlertEventMessage,
	attempt *types.NotificationAttempt, result *types.DeliveryResult, sendErr error) error {

	code := ""
	category := types.FailureUnknown
	var retryAfter *time.Duration
	if result != nil {
		code = result.ProviderErrorCode
		retryAfter = result.RetryAfter
		if result.Category != "" {
			category = result.Category
		} else if code != "" {
			category = d.taxonomy.Classify(msg.Channel, code)
		}
	}
	// A bare infrastructure error with no provider response stays unknown,
	// and unknown is retried.

	d.logger.Warn("notification delivery failed",
		"attempt_id", attempt.ID, "channel", msg.Channel, "provider_code", code,
		"category", category, "retry_count", msg.RetryCount,
		"error", sendErr, "trace_id", msg.TraceID)

	if !category.ShouldRetry() {
		d.metrics.RecordDelivery(ctx, msg.Channel, MetricFailed)
		if err := d.attempts.UpdateStatus(ctx, attempt.ID, db.StatusUpdate{
			Status:            types.AttemptFailedPermanent,
			ProviderErrorCode: code,
			FailureCategory:   category,
		}); err != nil {
			return err
		}
		if DestinationBlocked(code) && msg.ContactID != "" {
			if err := d.contacts.Disable(ctx, msg.ContactID); err != nil {
				d.logger.Error("failed to disable blocked contact",
					"contact_id", msg.ContactID, "error", err)
			}
		}
		return nil
	}

	attemptsUsed := msg.RetryCount + 1
	if d.policy.Exhausted(attemptsUsed) {
		d.metrics.RecordDelivery(ctx, msg.Channel, MetricExhausted)
		d.logger.Error("notification retries exhausted",
			"attempt_id", attempt.ID, "alert_id", msg.Event.AlertID,
			"channel", msg.Channel, "attempts", attemptsUsed)
		return d.attempts.UpdateStatus(ctx, attempt.ID, db.StatusUpdate{
			Status:            types.AttemptFailedPermanent,
			ProviderErrorCode: "max_retries_exceeded",
			FailureCategory:   category,
		})
	}

	delay := CalculateNextRetry(d.policy, msg.RetryCount, retryAfter)
	nextRetryAt := d.clock.Now().Add(delay)

	if delay > maxSQSDelay {
		// Parking pattern: the queue cannot hold a message this long, so
		// the attempt waits in the table until the requeue job finds it.
		return d.attempts.UpdateStatus(ctx, attempt.ID, db.StatusUpdate{
			Status:            types.AttemptDeferred,
			ProviderErrorCode: code,
			FailureCategory:   category,
			NextRetryAt:       &nextRetryAt,
		})
	}

	if err := d.publisher.PublishRetry(ctx, msg, delay); err != nil {
		// Could not schedule the retry. Record the failure with its due
		// time so the requeue job rescues it instead of losing the alert.
		d.logger.Error("failed to publish retry, parking attempt for rescue",
			"attempt_id", attempt.ID, "error", err)
		return d.attempts.UpdateStatus(ctx, attempt.ID, db.StatusUpdate{
			Status:            types.AttemptFailedRetryable,
			ProviderErrorCode: code,
			FailureCategory:   category,
			NextRetryAt:       &nextRetryAt,
		})
	}

	return d.attempts.UpdateStatus(ctx, attempt.ID, db.StatusUpdate{
		Status:            types.AttemptRetrying,
		ProviderErrorCode: code,
		FailureCategory:   category,
		NextRetryAt:       &nextRetryAt,
	})
}
