package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"freshtrack/internal/types"
)

// twilioAPIBase is the default Twilio API base URL. Overridable for tests
// via TwilioClientConfig.BaseURL.
const twilioAPIBase = "https://api.twilio.com"

// TwilioClientConfig holds the configuration for creating a TwilioClient.
type TwilioClientConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string
	Logger     types.Logger
}

// TwilioClient implements SMSProvider against the Twilio Messages API
// through BaseClient.
type TwilioClient struct {
	base *BaseClient
	cfg  TwilioClientConfig
}

// NewTwilioClient creates a TwilioClient.
func NewTwilioClient(httpClient *http.Client, cfg TwilioClientConfig) *TwilioClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioAPIBase
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &TwilioClient{
		base: NewBaseClient(httpClient, "twilio", DefaultRetryPolicy(), "FreshTrack/1.0"),
		cfg:  cfg,
	}
}

// NewTwilioClientWithBase creates a TwilioClient over a caller-provided
// BaseClient. Used in tests to disable retries.
func NewTwilioClientWithBase(base *BaseClient, cfg TwilioClientConfig) *TwilioClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioAPIBase
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &TwilioClient{base: base, cfg: cfg}
}

// twilioMessageResponse is the subset of the Messages API response the
// client reads. On errors Twilio returns code/message in the same shape.
type twilioMessageResponse struct {
	SID     string `json:"sid"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send transmits one SMS and returns the message SID.
//
// Twilio reports per-message failures as 4xx with a numeric error code in
// the body; those come back as *ProviderError with the code stringified for
// taxonomy classification. 429/5xx surface from BaseClient after its
// in-process retries.
func (t *TwilioClient) Send(ctx context.Context, input SMSInput) (string, error) {
	form := url.Values{}
	form.Set("To", input.To)
	form.Set("From", t.cfg.FromNumber)
	form.Set("Body", input.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		t.cfg.BaseURL, t.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to build twilio request", err)
	}
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed twilioMessageResponse
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return parsed.SID, nil
	}

	code := strconv.Itoa(parsed.Code)
	if parsed.Code == 0 {
		code = strconv.Itoa(resp.StatusCode)
	}
	return "", &ProviderError{
		Code:       code,
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("twilio rejected send: %s", truncate(parsed.Message, 256)),
		RetryAfter: parseRetryAfter(resp),
	}
}
