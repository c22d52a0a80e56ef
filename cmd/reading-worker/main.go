// Package main is the entrypoint for the Reading Worker Lambda function.
//
// The worker consumes reading messages from the readings SQS queue and runs
// each through the ingestion pipeline: validation, idempotent persistence,
// classification, and the alert lifecycle. The Lambda SQS integration uses
// partial batch responses, so only messages that fail with a retryable
// error are redriven.
//
// Cold start wires the database pool, AWS clients, the state cache, and the
// lifecycle manager; the handler itself holds no per-invocation state.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"freshtrack/internal/alerts"
	"freshtrack/internal/classifier"
	"freshtrack/internal/config"
	"freshtrack/internal/db"
	"freshtrack/internal/dispatch"
	"freshtrack/internal/ingest"
	"freshtrack/internal/logging"
	"freshtrack/internal/queue"
	"freshtrack/internal/statecache"
	"freshtrack/internal/types"
)

// Handler holds the dependencies for the reading worker.
type Handler struct {
	processor *ingest.Processor
	logger    types.Logger
}

// Handle processes an SQS event. Each record is processed independently;
// failures that can succeed on redelivery are reported as partial batch
// failures, permanent failures are logged and acknowledged.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process reading message",
				"message_id", record.MessageId, "error", err)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}

	return response, nil
}

func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var msg types.ReadingMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		// Unparseable bodies never improve on redelivery.
		h.logger.Error("dropping malformed reading message",
			"message_id", record.MessageId, "error", err)
		return nil
	}

	err := h.processor.Process(ctx, msg)
	if err == nil {
		return nil
	}
	if isPermanent(err) {
		h.logger.Warn("dropping permanently failed reading",
			"unit_id", msg.UnitID, "trace_id", msg.TraceID, "error", err)
		return nil
	}
	return err
}

// isPermanent reports whether a processing error is one redelivery cannot
// fix: malformed readings and unknown units.
func isPermanent(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case types.ErrCodeValidationInvalidReading, types.ErrCodeNotFoundUnit:
		return true
	}
	return false
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
	logger.Info("reading worker initializing", "environment", cfg.Environment)

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

	cache := statecache.New(statecache.Config{
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
	}, nil)

	eventSink := dispatch.NewEventPublisher(sqsClient, cfg.AWS.AlertEventQueue, logger)
	push := queue.NewPushEmitter(sqsClient, cfg.AWS, logger)
	lifecycle := alerts.NewManager(db.NewAlertRepository(pool), eventSink, push, logger)

	processor := ingest.New(ingest.Config{
		Readings:  db.NewReadingRepository(pool),
		Units:     db.NewUnitRepository(pool),
		Rules:     db.NewRuleRepository(pool),
		Cache:     cache,
		Lifecycle: lifecycle,
		Classifier: classifier.Config{
			OfflineTimeout: cfg.Classifier.OfflineTimeout,
			NewUnitGrace:   cfg.Classifier.NewUnitGrace,
		},
		WindowSize: cfg.Classifier.HistoryWindow,
		Logger:     logger,
	})

	handler := &Handler{processor: processor, logger: logger}
	lambda.Start(handler.Handle)
	return nil
}

func newSQSClient(awsCfg aws.Config, endpoint string) *sqs.Client {
	if endpoint == "" {
		return sqs.NewFromConfig(awsCfg)
	}
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}
