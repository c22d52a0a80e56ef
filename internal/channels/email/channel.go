// Package email implements the email notification channel over a pluggable
// EmailProvider (SendGrid in production, a logging stub locally).
package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"freshtrack/internal/external"
	"freshtrack/internal/types"
)

// Channel implements types.NotificationChannel for email delivery.
type Channel struct {
	provider external.EmailProvider
	classify func(code string) types.FailureCategory
	logger   types.Logger
}

// Config holds the dependencies needed to create a Channel.
type Config struct {
	Provider external.EmailProvider
	// Classify maps provider error codes to failure categories; wired from
	// the dispatch taxonomy.
	Classify func(code string) types.FailureCategory
	Logger   types.Logger
}

// New creates an email Channel.
func New(cfg Config) *Channel {
	return &Channel{
		provider: cfg.Provider,
		classify: cfg.Classify,
		logger:   cfg.Logger,
	}
}

// Type returns the channel type identifier for email.
func (c *Channel) Type() types.ChannelType {
	return types.ChannelEmail
}

// ValidateDestination checks email address syntax before any provider
// contact.
func (c *Channel) ValidateDestination(destination string) error {
	return types.ValidateEmailAddress(destination)
}

// payload is the JSON shape the dispatcher renders for email deliveries.
type payload struct {
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	BodyText string `json:"body_text"`
}

// Send delivers one email. Provider-reported failures come back as a
// DeliveryResult carrying the provider code and its classification;
// infrastructure failures come back as a bare error and default to retry.
func (c *Channel) Send(ctx context.Context, destination string, body []byte) (*types.DeliveryResult, error) {
	c.logger.Info("attempting email delivery", "dest", Redact(destination))

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("email channel: failed to unmarshal payload: %w", err)
	}

	msgID, err := c.provider.Send(ctx, external.EmailInput{
		To:       destination,
		Subject:  p.Subject,
		BodyHTML: p.BodyHTML,
		BodyText: p.BodyText,
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
		// Infrastructure-level failure: no provider verdict exists.
		return nil, err
	}

	return &types.DeliveryResult{ProviderMessageID: msgID}, nil
}

// ClassifyError maps a provider error code into the failure taxonomy.
func (c *Channel) ClassifyError(providerCode string) types.FailureCategory {
	if c.classify == nil {
		return types.FailureUnknown
	}
	return c.classify(providerCode)
}
