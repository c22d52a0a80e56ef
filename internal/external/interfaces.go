package external

import (
	"context"
	"fmt"
	"time"
)

// EmailInput is the provider-agnostic email send request.
type EmailInput struct {
	To       string
	Subject  string
	BodyHTML string
	BodyText string
}

// SMSInput is the provider-agnostic SMS send request.
type SMSInput struct {
	To   string
	Body string
}

// EmailProvider abstracts the transactional email vendor. Implemented by
// SendGridClient and by StubEmailProvider for local development.
type EmailProvider interface {
	// Send transmits one email and returns the provider message ID.
	// Provider-reported failures come back as *ProviderError.
	Send(ctx context.Context, input EmailInput) (string, error)
}

// SMSProvider abstracts the SMS vendor. Implemented by TwilioClient and by
// StubSMSProvider for local development.
type SMSProvider interface {
	// Send transmits one SMS and returns the provider message SID.
	// Provider-reported failures come back as *ProviderError.
	Send(ctx context.Context, input SMSInput) (string, error)
}

// ProviderError is a failure reported by the provider itself, as opposed to
// an infrastructure failure reaching it. Code carries the provider's error
// identifier for taxonomy classification; RetryAfter carries an explicit
// provider backoff request when one was given.
type ProviderError struct {
	Code       string
	StatusCode int
	Message    string
	RetryAfter *time.Duration
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %s (http %d): %s", e.Code, e.StatusCode, e.Message)
}
