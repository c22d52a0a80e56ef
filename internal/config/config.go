// Package config defines the global configuration structure for the
// FreshTrack platform. Configuration is loaded once at process
// initialization (Lambda cold start or server boot) and is immutable
// thereafter. It follows 12-Factor App principles by strictly separating
// code from configuration.
//
// Any missing required value or invalid format causes the application to
// fail immediately on startup.
package config

import (
	"time"

	"freshtrack/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the FreshTrack platform.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"freshtrack-service"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server     ServerConfig
	Database   DatabaseConfig
	AWS        AWSConfig
	Classifier ClassifierConfig
	Cache      CacheConfig
	Dispatch   DispatchConfig
	SMS        SMSConfig
	Email      EmailConfig
	Digest     DigestConfig
	Security   SecurityConfig
	Archive    ArchiveConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Requests per second allowed on the provider callback endpoints.
	CallbackRateLimit float64 `envconfig:"CALLBACK_RATE_LIMIT" default:"50"`
	CallbackRateBurst int     `envconfig:"CALLBACK_RATE_BURST" default:"100"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	ReadingQueue    string `envconfig:"SQS_READINGS" validate:"required,url"`
	AlertEventQueue string `envconfig:"SQS_ALERT_EVENTS" validate:"required,url"`
	PushQueue       string `envconfig:"SQS_PUSH_EVENTS"`
	DigestQueue     string `envconfig:"SQS_DIGESTS"`
	DlqURL          string `envconfig:"SQS_DLQ"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`

	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"FreshTrack"`
}

// ClassifierConfig holds the classification timeouts. Threshold values live
// per unit in AlertRule; these are the platform-wide defaults.
type ClassifierConfig struct {
	// OfflineTimeout is how long a unit may go without a reading before its
	// state is offline, regardless of the last known value.
	OfflineTimeout time.Duration `envconfig:"CLASSIFIER_OFFLINE_TIMEOUT" default:"15m"`

	// NewUnitGrace exempts newly created units from offline classification
	// until first contact is plausible.
	NewUnitGrace time.Duration `envconfig:"CLASSIFIER_NEW_UNIT_GRACE" default:"1h"`

	// HistoryWindow bounds the rolling window of prior readings fetched for
	// consecutive-count evaluation.
	HistoryWindow int `envconfig:"CLASSIFIER_HISTORY_WINDOW" default:"20"`
}

// CacheConfig tunes the in-memory unit state cache.
type CacheConfig struct {
	TTL           time.Duration `envconfig:"CACHE_TTL" default:"2m"`
	MaxEntries    int           `envconfig:"CACHE_MAX_ENTRIES" default:"10000"`
	SweepInterval time.Duration `envconfig:"CACHE_SWEEP_INTERVAL" default:"60s"`
}

// DispatchConfig tunes the notification dispatcher.
type DispatchConfig struct {
	MaxAttempts   int           `envconfig:"DISPATCH_MAX_ATTEMPTS" default:"5"`
	BaseDelay     time.Duration `envconfig:"DISPATCH_BASE_DELAY" default:"30s"`
	MaxDelay      time.Duration `envconfig:"DISPATCH_MAX_DELAY" default:"15m"`
	BackoffFactor float64       `envconfig:"DISPATCH_BACKOFF_FACTOR" default:"2.0"`

	// ErrorCodesJSON extends the built-in provider error taxonomy without
	// code changes. JSON mapping: "channel" -> "provider_code" -> "category".
	// Example: {"sms": {"30007": "unrecoverable"}}
	ErrorCodesJSON string `envconfig:"DISPATCH_ERROR_CODES_JSON"`
}

// SMSConfig holds SMS delivery provider credentials.
type SMSConfig struct {
	AccountSID SecretString `envconfig:"SMS_ACCOUNT_SID"`
	AuthToken  SecretString `envconfig:"SMS_AUTH_TOKEN"`
	FromNumber string       `envconfig:"SMS_FROM_NUMBER"`
	APIBaseURL string       `envconfig:"SMS_API_BASE_URL" default:"https://api.twilio.com"`
}

// EmailConfig holds email delivery provider credentials.
type EmailConfig struct {
	APIKey      SecretString `envconfig:"EMAIL_API_KEY"`
	FromAddress string       `envconfig:"EMAIL_FROM_ADDRESS" default:"alerts@freshtrack.io"`
	FromName    string       `envconfig:"EMAIL_FROM_NAME" default:"FreshTrack Alerts"`
	APIBaseURL  string       `envconfig:"EMAIL_API_BASE_URL" default:"https://api.sendgrid.com"`
}

// DigestConfig holds digest scheduling defaults.
type DigestConfig struct {
	// DailyHour is the local hour at which daily digests fire.
	DailyHour int `envconfig:"DIGEST_DAILY_HOUR" default:"9"`
	// WeeklyDay is the local weekday for weekly digests (0=Sunday..6=Saturday).
	WeeklyDay int `envconfig:"DIGEST_WEEKLY_DAY" default:"1"`
	BatchSize int `envconfig:"DIGEST_BATCH_SIZE" default:"100"`
}

// SecurityConfig holds inbound callback authentication settings.
type SecurityConfig struct {
	// CallbackToken authenticates provider delivery-status callbacks. The
	// comparison against the presented token is constant-time.
	CallbackToken SecretString `envconfig:"CALLBACK_TOKEN" validate:"required,min=16"`

	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ArchiveConfig tunes the cold-storage reading archiver.
type ArchiveConfig struct {
	RetentionDays int `envconfig:"ARCHIVE_RETENTION_DAYS" default:"90"`
	BatchSize     int `envconfig:"ARCHIVE_BATCH_SIZE" default:"5000"`
	// Zstd compression level for archived blobs (1=fastest, 4=best).
	CompressionLevel int `envconfig:"ARCHIVE_COMPRESSION_LEVEL" default:"3"`
}
