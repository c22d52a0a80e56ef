package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"freshtrack/internal/types"
)

// maxSQSDelay is the SQS DelaySeconds ceiling. Delays beyond it use the
// deferred parking pattern instead of queue delay.
const maxSQSDelay = 900 * time.Second

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// EventPublisher publishes alert event messages to the dispatch SQS queue,
// both for initial fan-out and for retry re-publication.
type EventPublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

// NewEventPublisher creates an EventPublisher targeting the alert event
// queue.
func NewEventPublisher(client SQSSender, queueURL string, logger types.Logger) *EventPublisher {
	return &EventPublisher{client: client, queueURL: queueURL, logger: logger}
}

// Enqueue publishes a fan-out message for a fresh lifecycle event with no
// delay. Implements types.AlertEventSink for the lifecycle manager.
func (p *EventPublisher) Enqueue(ctx context.Context, event types.AlertEvent) error {
	return p.send(ctx, types.AlertEventMessage{Event: event}, 0)
}

// PublishDelivery publishes a per-contact delivery message.
func (p *EventPublisher) PublishDelivery(ctx context.Context, msg types.AlertEventMessage) error {
	return p.send(ctx, msg, 0)
}

// PublishRetry re-publishes a delivery message for a later attempt. The
// RetryCount is incremented BEFORE serialization so the next consumer sees
// an accurate attempt number; the delay is clamped to the SQS ceiling, and
// callers wanting longer delays must park the attempt as deferred instead.
func (p *EventPublisher) PublishRetry(ctx context.Context, msg types.AlertEventMessage, delay time.Duration) error {
	msg.RetryCount++
	return p.send(ctx, msg, delay)
}

func (p *EventPublisher) send(ctx context.Context, msg types.AlertEventMessage, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("event publisher: failed to marshal message: %w", err)
	}

	delaySec := int32(delay.Seconds())
	if delaySec > int32(maxSQSDelay.Seconds()) {
		delaySec = int32(maxSQSDelay.Seconds())
	}
	if delaySec < 0 {
		delaySec = 0
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySec,
	})
	if err != nil {
		return fmt.Errorf("event publisher: failed to send message to %s: %w", p.queueURL, err)
	}

	p.logger.Info("alert event message published",
		"alert_id", msg.Event.AlertID,
		"kind", msg.Event.Kind,
		"channel", msg.Channel,
		"retry_count", msg.RetryCount,
		"delay_seconds", delaySec,
		"trace_id", msg.TraceID,
	)

	return nil
}
