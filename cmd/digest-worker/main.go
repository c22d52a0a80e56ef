// Package main is the entrypoint for the Digest Worker Lambda function.
//
// The worker consumes digest messages from the digest SQS queue. Each
// message names one user and one period; the worker summarizes that user's
// alert activity over the period and emails it to their enabled contacts.
//
// A quiet period produces no email. Delivery failures to individual
// contacts are logged and skipped; only repository failures redrive the
// message, since the scheduler has already claimed the period and a silent
// drop would lose it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"freshtrack/internal/config"
	"freshtrack/internal/db"
	"freshtrack/internal/digest"
	"freshtrack/internal/external"
	"freshtrack/internal/logging"
	"freshtrack/internal/scheduler"
	"freshtrack/internal/types"
)

// Handler holds the dependencies for the digest worker.
type Handler struct {
	generator *digest.Generator
	deliverer *digest.Deliverer
	logger    types.Logger
}

// Handle processes an SQS event with partial batch responses.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process digest message",
				"message_id", record.MessageId, "error", err)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}

	return response, nil
}

func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var msg scheduler.DigestMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("dropping malformed digest message",
			"message_id", record.MessageId, "error", err)
		return nil
	}

	logger := h.logger.With("user_id", msg.UserID, "cadence", string(msg.Cadence))

	content, err := h.generator.Build(ctx, msg)
	if err != nil {
		if errors.Is(err, digest.ErrEmpty) {
			logger.Info("quiet digest period, nothing to send")
			return nil
		}
		return err
	}

	subject, body := digest.Render(content, msg.Cadence, msg.Timezone)
	if err := h.deliverer.Deliver(ctx, msg.UserID, subject, body); err != nil {
		return err
	}

	logger.Info("digest processed",
		"resolved", len(content.Resolved), "active", len(content.Active))
	return nil
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
	logger.Info("digest worker initializing", "environment", cfg.Environment)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}

	generator := digest.NewGenerator(
		db.NewUnitRepository(pool),
		db.NewAlertRepository(pool),
		logger,
	)
	deliverer := digest.NewDeliverer(
		db.NewContactRepository(pool),
		emailProvider(httpClient, cfg, logger),
		logger,
	)

	handler := &Handler{generator: generator, deliverer: deliverer, logger: logger}
	lambda.Start(handler.Handle)
	return nil
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
