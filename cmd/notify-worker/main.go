// Package main is the entrypoint for the Notify Worker Lambda function.
//
// The worker consumes alert event messages from the alert events SQS queue.
// Fan-out messages expand into per-contact delivery messages; delivery
// messages execute one provider attempt through the dispatcher, which owns
// the retry, parking, and failure-classification logic.
//
// Cold start wires the database pool, the SMS and email providers (real
// clients when credentials are configured, logging stubs otherwise), the
// failure taxonomy, and CloudWatch delivery metrics.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"freshtrack/internal/channels/email"
	"freshtrack/internal/channels/sms"
	"freshtrack/internal/config"
	"freshtrack/internal/db"
	"freshtrack/internal/dispatch"
	"freshtrack/internal/external"
	"freshtrack/internal/logging"
	"freshtrack/internal/types"
)

// Handler holds the dependencies for the notify worker.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	logger     types.Logger
}

// Handle processes an SQS event with partial batch responses. The
// dispatcher records terminal outcomes itself; an error here means the
// outcome was not recorded and the message must be redriven.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process alert event message",
				"message_id", record.MessageId, "error", err)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}

	return response, nil
}

func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var msg types.AlertEventMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("dropping malformed alert event message",
			"message_id", record.MessageId, "error", err)
		return nil
	}
	return h.dispatcher.Dispatch(ctx, msg)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.NewDefault(cfg.LogLevel)
	logger.Info("notify worker initializing", "environment", cfg.Environment)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := newSQSClient(awsCfg, cfg.AWS.EndpointURL)
	cwClient := cloudwatch.NewFromConfig(awsCfg)

	taxonomy, err := dispatch.NewTaxonomy(cfg.Dispatch.ErrorCodesJSON)
	if err != nil {
		return fmt.Errorf("building failure taxonomy: %w", err)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}

	smsChannel := sms.New(sms.Config{
		Provider: smsProvider(httpClient, cfg, logger),
		Classify: func(code string) types.FailureCategory {
			return taxonomy.Classify(types.ChannelSMS, code)
		},
		Logger: logger,
	})
	emailChannel := email.New(email.Config{
		Provider: emailProvider(httpClient, cfg, logger),
		Classify: func(code string) types.FailureCategory {
			return taxonomy.Classify(types.ChannelEmail, code)
		},
		Logger: logger,
	})

	publisher := dispatch.NewEventPublisher(sqsClient, cfg.AWS.AlertEventQueue, logger)
	metrics := dispatch.NewCloudWatchMetrics(cwClient, cfg.AWS.MetricNamespace, logger)

	dispatcher := dispatch.NewDispatcher(
		[]types.NotificationChannel{smsChannel, emailChannel},
		db.NewAttemptRepository(pool),
		db.NewContactRepository(pool),
		publisher,
		taxonomy,
		dispatch.RetryPolicy{
			MaxAttempts:   cfg.Dispatch.MaxAttempts,
			BaseDelay:     cfg.Dispatch.BaseDelay,
			MaxDelay:      cfg.Dispatch.MaxDelay,
			BackoffFactor: cfg.Dispatch.BackoffFactor,
		},
		metrics,
		nil,
		logger,
	)

	handler := &Handler{dispatcher: dispatcher, logger: logger}
	lambda.Start(handler.Handle)
	return nil
}

// smsProvider returns the Twilio client when credentials are configured, a
// logging stub otherwise.
func smsProvider(httpClient *http.Client, cfg *config.Config, logger types.Logger) external.SMSProvider {
	if cfg.SMS.AccountSID.Unmask() == "" {
		logger.Warn("SMS credentials not configured, using stub provider")
		return &external.StubSMSProvider{Logger: logger}
	}
	return external.NewTwilioClient(httpClient, external.TwilioClientConfig{
		AccountSID: cfg.SMS.AccountSID.Unmask(),
		AuthToken:  cfg.SMS.AuthToken.Unmask(),
		FromNumber: cfg.SMS.FromNumber,
		BaseURL:    cfg.SMS.APIBaseURL,
		Logger:     logger,
	})
}

// emailProvider returns the SendGrid client when an API key is configured,
// a logging stub otherwise.
func emailProvider(httpClient *http.Client, cfg *config.Config, logger types.Logger) external.EmailProvider {
	if cfg.Email.APIKey.Unmask() == "" {
		logger.Warn("email API key not configured, using stub provider")
		return &external.StubEmailProvider{Logger: logger}
	}
	return external.NewSendGridClient(httpClient, external.SendGridClientConfig{
		APIKey:      cfg.Email.APIKey.Unmask(),
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		BaseURL:     cfg.Email.APIBaseURL,
		Logger:      logger,
	})
}

func newSQSClient(awsCfg aws.Config, endpoint string) *sqs.Client {
	if endpoint == "" {
		return sqs.NewFromConfig(awsCfg)
	}
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}
