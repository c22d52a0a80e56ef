// Package main is the entrypoint for the scheduled jobs Lambda function.
//
// A single binary serves every EventBridge schedule; the rule's input
// payload names the task to run. Tasks: the offline sweep, the deferred
// attempt requeue, the digest trigger, and the reading archiver.
//
// An optional reference time in the payload overrides the wall clock,
// which makes backfills and replays deterministic.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"freshtrack/internal/alerts"
	"freshtrack/internal/classifier"
	"freshtrack/internal/config"
	"freshtrack/internal/db"
	"freshtrack/internal/dispatch"
	"freshtrack/internal/logging"
	"freshtrack/internal/queue"
	"freshtrack/internal/scheduler"
	"freshtrack/internal/types"
)

// Handler multiplexes scheduled task payloads onto the job services.
type Handler struct {
	sweeper  *scheduler.OfflineSweeper
	requeue  *scheduler.RequeueService
	digests  *scheduler.DigestScheduler
	archiver *scheduler.ReadingArchiver
	logger   types.Logger
}

// Handle runs one scheduled task.
func (h *Handler) Handle(ctx context.Context, payload scheduler.JobPayload) error {
	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	logger := h.logger.With("task", string(payload.Task))
	logger.Info("scheduled task starting", "reference_time", now.Format(time.RFC3339))
	start := time.Now()

	var (
		count int
		err   error
	)
	switch payload.Task {
	case scheduler.TaskOfflineSweep:
		count, err = h.sweeper.Sweep(ctx, now)
	case scheduler.TaskRequeueDeferred:
		count, err = h.requeue.Requeue(ctx, now)
	case scheduler.TaskTriggerDigests:
		count, err = h.digests.TriggerDue(ctx)
	case scheduler.TaskArchiveReadings:
		count, err = h.archiver.Archive(ctx, now)
	default:
		return fmt.Errorf("unknown task %q", payload.Task)
	}

	if err != nil {
		logger.Error("scheduled task failed", "error", err, "processed", count)
		return err
	}
	logger.Info("scheduled task completed",
		"processed", count, "duration_ms", time.Since(start).Milliseconds())
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
	logger.Info("jobs runner initializing", "environment", cfg.Environment)

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

	unitRepo := db.NewUnitRepository(pool)
	readingRepo := db.NewReadingRepository(pool)
	ruleRepo := db.NewRuleRepository(pool)
	alertRepo := db.NewAlertRepository(pool)
	attemptRepo := db.NewAttemptRepository(pool)

	classifierCfg := classifier.Config{
		OfflineTimeout: cfg.Classifier.OfflineTimeout,
		NewUnitGrace:   cfg.Classifier.NewUnitGrace,
	}

	eventSink := dispatch.NewEventPublisher(sqsClient, cfg.AWS.AlertEventQueue, logger)
	push := queue.NewPushEmitter(sqsClient, cfg.AWS, logger)
	lifecycle := alerts.NewManager(alertRepo, eventSink, push, logger)

	sweeper := scheduler.NewOfflineSweeper(unitRepo, readingRepo, ruleRepo,
		lifecycle, classifierCfg, 0, logger)
	requeue := scheduler.NewRequeueService(attemptRepo, alertRepo, eventSink, 0, logger)
	digests := scheduler.NewDigestScheduler(db.NewDigestRepository(pool), sqsClient,
		cfg.AWS.DigestQueue, scheduler.DigestConfig{
			DailyHour: cfg.Digest.DailyHour,
			WeeklyDay: time.Weekday(cfg.Digest.WeeklyDay),
			BatchSize: cfg.Digest.BatchSize,
		}, nil, logger)

	archiver, err := scheduler.NewReadingArchiver(readingRepo, db.NewArchiveRepository(pool),
		time.Duration(cfg.Archive.RetentionDays)*24*time.Hour, cfg.Archive.BatchSize, 0, logger)
	if err != nil {
		return fmt.Errorf("building archiver: %w", err)
	}

	handler := &Handler{
		sweeper:  sweeper,
		requeue:  requeue,
		digests:  digests,
		archiver: archiver,
		logger:   logger,
	}
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
