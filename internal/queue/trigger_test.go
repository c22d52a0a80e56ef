package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freshtrack/internal/config"
	"freshtrack/internal/types"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{}, nil
}

type nopLogger struct{}

func (nopLogger) Info(msg string, args ...any)    {}
func (nopLogger) Error(msg string, args ...any)   {}
func (nopLogger) Warn(msg string, args ...any)    {}
func (l nopLogger) With(args ...any) types.Logger { return l }

func testAWSConfig() config.AWSConfig {
	return config.AWSConfig{
		ReadingQueue: "https://sqs.test/readings",
		PushQueue:    "https://sqs.test/push",
	}
}

func TestReadingTrigger_Enqueue(t *testing.T) {
	client := &fakeSQS{}
	trigger := NewReadingTrigger(client, testAWSConfig(), nopLogger{})

	err := trigger.Enqueue(context.Background(), types.ReadingMessage{
		UnitID:      "unit-1",
		Temperature: 4.5,
		ObservedAt:  time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, client.inputs, 1)
	assert.Equal(t, "https://sqs.test/readings", *client.inputs[0].QueueUrl)

	var msg types.ReadingMessage
	require.NoError(t, json.Unmarshal([]byte(*client.inputs[0].MessageBody), &msg))
	assert.Equal(t, "unit-1", msg.UnitID)
	assert.NotEmpty(t, msg.TraceID)
}

func TestReadingTrigger_PreservesCallerTraceID(t *testing.T) {
	client := &fakeSQS{}
	trigger := NewReadingTrigger(client, testAWSConfig(), nopLogger{})

	err := trigger.Enqueue(context.Background(), types.ReadingMessage{
		UnitID:     "unit-1",
		ObservedAt: time.Now().UTC(),
		TraceID:    "trace-abc",
	})
	require.NoError(t, err)

	var msg types.ReadingMessage
	require.NoError(t, json.Unmarshal([]byte(*client.inputs[0].MessageBody), &msg))
	assert.Equal(t, "trace-abc", msg.TraceID)
}

func TestReadingTrigger_SendFailure(t *testing.T) {
	client := &fakeSQS{err: errors.New("sqs unavailable")}
	trigger := NewReadingTrigger(client, testAWSConfig(), nopLogger{})

	err := trigger.Enqueue(context.Background(), types.ReadingMessage{UnitID: "unit-1"})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalQueue, appErr.Code)
}

func testEvent() types.AlertEvent {
	return types.AlertEvent{
		AlertID:   "alert-1",
		UnitID:    "unit-1",
		Severity:  types.StateCritical,
		Kind:      types.AlertEventTriggered,
		Timestamp: time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestPushEmitter_WrapsEventInEnvelope(t *testing.T) {
	client := &fakeSQS{}
	emitter := NewPushEmitter(client, testAWSConfig(), nopLogger{})

	emitter.Emit(context.Background(), testEvent())

	require.Len(t, client.inputs, 1)
	assert.Equal(t, "https://sqs.test/push", *client.inputs[0].QueueUrl)

	var envelope types.EventEnvelope
	require.NoError(t, json.Unmarshal([]byte(*client.inputs[0].MessageBody), &envelope))
	assert.Equal(t, "alert.triggered", envelope.EventType)
	assert.Equal(t, "freshtrack-alerts", envelope.Source)
	assert.NotEmpty(t, envelope.EventID)

	var event types.AlertEvent
	require.NoError(t, json.Unmarshal(envelope.Payload, &event))
	assert.Equal(t, "alert-1", event.AlertID)
}

func TestPushEmitter_DisabledWithoutQueueURL(t *testing.T) {
	client := &fakeSQS{}
	emitter := NewPushEmitter(client, config.AWSConfig{}, nopLogger{})

	emitter.Emit(context.Background(), testEvent())
	assert.Empty(t, client.inputs)
}

func TestPushEmitter_SwallowsSendFailure(t *testing.T) {
	client := &fakeSQS{err: errors.New("sqs unavailable")}
	emitter := NewPushEmitter(client, testAWSConfig(), nopLogger{})

	// Must not panic or propagate.
	emitter.Emit(context.Background(), testEvent())
	assert.Len(t, client.inputs, 1)
}
