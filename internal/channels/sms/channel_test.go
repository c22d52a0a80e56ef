package sms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freshtrack/internal/external"
	"freshtrack/internal/types"
)

type fakeProvider struct {
	input external.SMSInput
	sid   string
	err   error
}

func (f *fakeProvider) Send(ctx context.Context, input external.SMSInput) (string, error) {
	f.input = input
	return f.sid, f.err
}

type nopLogger struct{}

func (nopLogger) Info(msg string, args ...any)    {}
func (nopLogger) Error(msg string, args ...any)   {}
func (nopLogger) Warn(msg string, args ...any)    {}
func (l nopLogger) With(args ...any) types.Logger { return l }

func TestChannel_Type(t *testing.T) {
	c := New(Config{Provider: &fakeProvider{}, Logger: nopLogger{}})
	assert.Equal(t, types.ChannelSMS, c.Type())
}

func TestChannel_ValidateDestination(t *testing.T) {
	c := New(Config{Provider: &fakeProvider{}, Logger: nopLogger{}})

	assert.NoError(t, c.ValidateDestination("+15551234567"))
	assert.Error(t, c.ValidateDestination("555-1234"))
	assert.Error(t, c.ValidateDestination(""))
}

func TestChannel_Send_Success(t *testing.T) {
	provider := &fakeProvider{sid: "SM123"}
	c := New(Config{Provider: provider, Logger: nopLogger{}})

	result, err := c.Send(context.Background(), "+15551234567", []byte("FreshTrack: unit-1 critical"))
	require.NoError(t, err)
	assert.Equal(t, "SM123", result.ProviderMessageID)
	assert.Equal(t, "+15551234567", provider.input.To)
	assert.Equal(t, "FreshTrack: unit-1 critical", provider.input.Body)
}

func TestChannel_Send_ProviderErrorCarriesCodeAndRetryAfter(t *testing.T) {
	retryAfter := 30 * time.Second
	provider := &fakeProvider{err: &external.ProviderError{
		Code:       "20429",
		StatusCode: 429,
		RetryAfter: &retryAfter,
	}}
	c := New(Config{
		Provider: provider,
		Classify: func(code string) types.FailureCategory { return types.FailureRetryable },
		Logger:   nopLogger{},
	})

	result, err := c.Send(context.Background(), "+15551234567", []byte("body"))
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "20429", result.ProviderErrorCode)
	assert.Equal(t, types.FailureRetryable, result.Category)
	require.NotNil(t, result.RetryAfter)
	assert.Equal(t, retryAfter, *result.RetryAfter)
}

func TestChannel_Send_InfrastructureErrorHasNoResult(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	c := New(Config{Provider: provider, Logger: nopLogger{}})

	result, err := c.Send(context.Background(), "+15551234567", []byte("body"))
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestChannel_ClassifyError_DefaultsToUnknown(t *testing.T) {
	c := New(Config{Provider: &fakeProvider{}, Logger: nopLogger{}})
	assert.Equal(t, types.FailureUnknown, c.ClassifyError("99999"))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "***4567", Redact("+15551234567"))
	assert.Equal(t, "***", Redact("123"))
}
