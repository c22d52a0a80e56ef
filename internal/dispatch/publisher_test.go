package dispatch

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

type capturingSQS struct {
	inputs  []*sqs.SendMessageInput
	sendErr error
}

func (c *capturingSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	c.inputs = append(c.inputs, params)
	return &sqs.SendMessageOutput{}, nil
}

func TestEventPublisher_PublishRetryIncrementsRetryCountBeforeSerializing(t *testing.T) {
	client := &capturingSQS{}
	pub := NewEventPublisher(client, "https://sqs.test/alert-events", nopLogger{})

	msg := deliveryMsg(2)
	err := pub.PublishRetry(context.Background(), msg, time.Minute)
	require.NoError(t, err)

	require.Len(t, client.inputs, 1)
	var sent types.AlertEventMessage
	require.NoError(t, json.Unmarshal([]byte(*client.inputs[0].MessageBody), &sent))
	assert.Equal(t, 3, sent.RetryCount)
	assert.Equal(t, int32(60), client.inputs[0].DelaySeconds)
}

func TestEventPublisher_DelayClampedToSQSMaximum(t *testing.T) {
	client := &capturingSQS{}
	pub := NewEventPublisher(client, "https://sqs.test/alert-events", nopLogger{})

	err := pub.PublishRetry(context.Background(), deliveryMsg(0), time.Hour)
	require.NoError(t, err)

	require.Len(t, client.inputs, 1)
	assert.Equal(t, int32(900), client.inputs[0].DelaySeconds)
}

func TestEventPublisher_EnqueueFanoutHasNoDelay(t *testing.T) {
	client := &capturingSQS{}
	pub := NewEventPublisher(client, "https://sqs.test/alert-events", nopLogger{})

	err := pub.Enqueue(context.Background(), testEvent())
	require.NoError(t, err)

	require.Len(t, client.inputs, 1)
	assert.Equal(t, int32(0), client.inputs[0].DelaySeconds)

	var sent types.AlertEventMessage
	require.NoError(t, json.Unmarshal([]byte(*client.inputs[0].MessageBody), &sent))
	assert.Empty(t, sent.Channel)
	assert.Equal(t, "alert-1", sent.Event.AlertID)
	assert.Zero(t, sent.RetryCount)
}

func TestEventPublisher_SendFailureWrapped(t *testing.T) {
	client := &capturingSQS{sendErr: errors.New("throttled")}
	pub := NewEventPublisher(client, "https://sqs.test/alert-events", nopLogger{})

	err := pub.Enqueue(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event publisher")
}
