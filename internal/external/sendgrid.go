package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"freshtrack/internal/types"
)

// sendGridAPIBase is the default SendGrid API base URL. Overridable for
// tests via SendGridClientConfig.BaseURL.
const sendGridAPIBase = "https://api.sendgrid.com"

// SendGridClientConfig holds the configuration for creating a SendGridClient.
type SendGridClientConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
	BaseURL     string
	Logger      types.Logger
}

// SendGridClient implements EmailProvider against the SendGrid v3 Mail Send
// API through BaseClient, inheriting the circuit breaker and retry behavior.
type SendGridClient struct {
	base *BaseClient
	cfg  SendGridClientConfig
}

// NewSendGridClient creates a SendGridClient. The httpClient timeout should
// be around 10 seconds; alert delivery cannot afford long hangs.
func NewSendGridClient(httpClient *http.Client, cfg SendGridClientConfig) *SendGridClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = sendGridAPIBase
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &SendGridClient{
		base: NewBaseClient(httpClient, "sendgrid", DefaultRetryPolicy(), "FreshTrack/1.0"),
		cfg:  cfg,
	}
}

// NewSendGridClientWithBase creates a SendGridClient over a caller-provided
// BaseClient. Used in tests to disable retries.
func NewSendGridClientWithBase(base *BaseClient, cfg SendGridClientConfig) *SendGridClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = sendGridAPIBase
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &SendGridClient{base: base, cfg: cfg}
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridPayload struct {
	Personalizations []struct {
		To []sendGridAddress `json:"to"`
	} `json:"personalizations"`
	From    sendGridAddress `json:"from"`
	Subject string          `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

// Send transmits an email and returns the provider message ID from the
// X-Message-Id response header.
//
// Status handling: 2xx succeeds; 429/5xx surface from BaseClient as
// AppErrors after its in-process retries; remaining 4xx come back as
// *ProviderError carrying the status code for taxonomy classification.
func (s *SendGridClient) Send(ctx context.Context, input EmailInput) (string, error) {
	payload := sendGridPayload{
		From:    sendGridAddress{Email: s.cfg.FromAddress, Name: s.cfg.FromName},
		Subject: input.Subject,
	}
	payload.Personalizations = append(payload.Personalizations, struct {
		To []sendGridAddress `json:"to"`
	}{To: []sendGridAddress{{Email: input.To}}})
	if input.BodyText != "" {
		payload.Content = append(payload.Content, struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		}{Type: "text/plain", Value: input.BodyText})
	}
	if input.BodyHTML != "" {
		payload.Content = append(payload.Content, struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		}{Type: "text/html", Value: input.BodyHTML})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to marshal sendgrid payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to build sendgrid request", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Header.Get("X-Message-Id"), nil
	}

	// Remaining 4xx: provider rejected the message.
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return "", &ProviderError{
		Code:       strconv.Itoa(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("sendgrid rejected send: %s", truncate(string(respBody), 256)),
		RetryAfter: parseRetryAfter(resp),
	}
}

// parseRetryAfter extracts a Retry-After duration from a response, if any.
func parseRetryAfter(resp *http.Response) *time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return nil
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		d := time.Duration(seconds) * time.Second
		return &d
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
