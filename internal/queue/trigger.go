// Package queue provides SQS-based message producers feeding the ingestion
// and realtime push pipelines.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"freshtrack/internal/config"
	"freshtrack/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ReadingTrigger enqueues sensor readings for asynchronous processing. The
// ingestion API accepts a reading, validates its shape, and hands it off
// here; classification and alerting happen in the reading worker.
type ReadingTrigger struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

// NewReadingTrigger creates a ReadingTrigger reading its queue URL from the
// AWS configuration.
func NewReadingTrigger(client SQSSender, awsCfg config.AWSConfig, logger types.Logger) *ReadingTrigger {
	return &ReadingTrigger{
		client:   client,
		queueURL: awsCfg.ReadingQueue,
		logger:   logger,
	}
}

// Enqueue publishes one reading message. A missing trace ID is filled in so
// the worker side can always correlate.
func (t *ReadingTrigger) Enqueue(ctx context.Context, msg types.ReadingMessage) error {
	if msg.TraceID == "" {
		msg.TraceID = uuid.NewString()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize reading message: %w", err)
	}

	_, err = t.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue,
			fmt.Sprintf("failed to enqueue reading for unit %s", msg.UnitID), err)
	}

	t.logger.Info("reading enqueued", "unit_id", msg.UnitID,
		"observed_at", msg.ObservedAt, "trace_id", msg.TraceID)
	return nil
}

// PushEmitter publishes alert lifecycle transitions to the realtime push
// queue for fan-out to connected dashboard clients. Implements
// types.PushEmitter: emission is best-effort and never fails the caller.
type PushEmitter struct {
	client   SQSSender
	queueURL string
	source   string
	logger   types.Logger
}

// NewPushEmitter creates a PushEmitter. An empty queue URL disables
// emission entirely, which is the local-development default.
func NewPushEmitter(client SQSSender, awsCfg config.AWSConfig, logger types.Logger) *PushEmitter {
	return &PushEmitter{
		client:   client,
		queueURL: awsCfg.PushQueue,
		source:   "freshtrack-alerts",
		logger:   logger,
	}
}

// Emit wraps the event in the standard envelope and publishes it. Failures
// are logged and swallowed: realtime push is a convenience layer, the
// durable record is the alert row and the notification queue.
func (e *PushEmitter) Emit(ctx context.Context, event types.AlertEvent) {
	if e.queueURL == "" {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("failed to serialize push event", "alert_id", event.AlertID, "error", err)
		return
	}
	envelope := types.EventEnvelope{
		EventID:   uuid.NewString(),
		EventType: "alert." + string(event.Kind),
		Timestamp: time.Now().UTC(),
		Source:    e.source,
		Payload:   payload,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		e.logger.Error("failed to serialize push envelope", "alert_id", event.AlertID, "error", err)
		return
	}

	if _, err := e.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(e.queueURL),
		MessageBody: aws.String(string(body)),
	}); err != nil {
		e.logger.Warn("push emission failed", "alert_id", event.AlertID,
			"event_type", envelope.EventType, "error", err)
	}
}
