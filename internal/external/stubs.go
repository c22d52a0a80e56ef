package external

import (
	"context"

	"github.com/google/uuid"

	"freshtrack/internal/types"
)

// StubEmailProvider logs sends instead of delivering. Wired when no email
// API key is configured (local development, CI).
type StubEmailProvider struct {
	Logger types.Logger
}

// Send logs the email and succeeds with a synthetic message ID.
func (s *StubEmailProvider) Send(ctx context.Context, input EmailInput) (string, error) {
	if s.Logger != nil {
		s.Logger.Info("stub email send", "to", input.To, "subject", input.Subject)
	}
	return "stub-email-" + uuid.NewString(), nil
}

// StubSMSProvider logs sends instead of delivering. Wired when no SMS
// credentials are configured.
type StubSMSProvider struct {
	Logger types.Logger
}

// Send logs the SMS and succeeds with a synthetic SID.
func (s *StubSMSProvider) Send(ctx context.Context, input SMSInput) (string, error) {
	if s.Logger != nil {
		s.Logger.Info("stub sms send", "to", input.To)
	}
	return "stub-sms-" + uuid.NewString(), nil
}
