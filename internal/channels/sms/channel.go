// Package sms implements the SMS notification channel over a pluggable
// SMSProvider (Twilio in production, a logging stub locally).
package sms

import (
	"context"
	"errors"

	"freshtrack/internal/external"
	"freshtrack/internal/types"
)

// Channel implements types.NotificationChannel for SMS delivery.
type Channel struct {
	provider external.SMSProvider
	classify func(code string) types.FailureCategory
	logger   types.Logger
}

// Config holds the dependencies needed to create a Channel.
type Config struct {
	Provider external.SMSProvider
	// Classify maps provider error codes to failure categories; wired from
	// the dispatch taxonomy.
	Classify func(code string) types.FailureCategory
	Logger   types.Logger
}

// New creates an SMS Channel.
func New(cfg Config) *Channel {
	return &Channel{
		provider: cfg.Provider,
		classify: cfg.Classify,
		logger:   cfg.Logger,
	}
}

// Type returns the channel type identifier for SMS.
func (c *Channel) Type() types.ChannelType {
	return types.ChannelSMS
}

// ValidateDestination checks that the destination is an E.164 phone number
// before any provider contact.
func (c *Channel) ValidateDestination(destination string) error {
	return types.ValidatePhoneNumber(destination)
}

// Send delivers one SMS. The payload is the pre-rendered plain text body.
func (c *Channel) Send(ctx context.Context, destination string, body []byte) (*types.DeliveryResult, error) {
	c.logger.Info("attempting sms delivery", "dest", Redact(destination))

	sid, err := c.provider.Send(ctx, external.SMSInput{
		To:   destination,
		Body: string(body),
	})
	if err != nil {
		var provErr *external.ProviderError
		if errors.As(err, &provErr) {
			return &types.DeliveryResult{
				ProviderErrorCode: provErr.Code,
				Category:          c.ClassifyError(provErr.Code),
				RetryAfter:        provErr.RetryAfter,
			}, err
		}
		return nil, err
	}

	return &types.DeliveryResult{ProviderMessageID: sid}, nil
}

// ClassifyError maps a provider error code into the failure taxonomy.
func (c *Channel) ClassifyError(providerCode string) types.FailureCategory {
	if c.classify == nil {
		return types.FailureUnknown
	}
	return c.classify(providerCode)
}

// Redact masks a phone number for log output, keeping only the last four
// digits.
func Redact(number string) string {
	if len(number) <= 4 {
		return "***"
	}
	return "***" + number[len(number)-4:]
}
