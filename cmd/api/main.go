// Package main is the entry point for the FreshTrack API server.
//
// It loads configuration, connects the database pool and AWS clients, wires
// the domain handlers onto the core chassis (middleware, routing, health
// checks), and serves HTTP with graceful shutdown on SIGINT/SIGTERM.
//
// The provider callback routes are mounted in their own route group behind
// bearer-token authentication and a per-IP rate limiter; everything else
// under /v1 uses only the global middleware chain.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"

	"freshtrack/internal/api/handlers"
	"freshtrack/internal/classifier"
	"freshtrack/internal/config"
	"freshtrack/internal/core"
	"freshtrack/internal/db"
	"freshtrack/internal/dispatch"
	"freshtrack/internal/hierarchy"
	"freshtrack/internal/logging"
	"freshtrack/internal/queue"
	"freshtrack/internal/scheduler"
	"freshtrack/internal/security"
	"freshtrack/internal/statecache"
	"freshtrack/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.NewDefault(cfg.LogLevel)
	logger.Info("freshtrack API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		pool.Close()
		return fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := newSQSClient(awsCfg, cfg.AWS.EndpointURL)
	cwClient := cloudwatch.NewFromConfig(awsCfg)

	// Repositories.
	unitRepo := db.NewUnitRepository(pool)
	readingRepo := db.NewReadingRepository(pool)
	ruleRepo := db.NewRuleRepository(pool)
	alertRepo := db.NewAlertRepository(pool)
	attemptRepo := db.NewAttemptRepository(pool)
	digestRepo := db.NewDigestRepository(pool)

	// State cache with a background expiry sweeper for the process lifetime.
	cache := statecache.New(statecache.Config{
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
	}, nil)
	go cache.RunSweeper(ctx, cfg.Cache.SweepInterval, logger)

	classifierCfg := classifier.Config{
		OfflineTimeout: cfg.Classifier.OfflineTimeout,
		NewUnitGrace:   cfg.Classifier.NewUnitGrace,
	}
	resolver := hierarchy.NewCachedResolver(cache, readingRepo, ruleRepo,
		classifierCfg, cfg.Classifier.HistoryWindow, nil)
	aggregator := hierarchy.NewAggregator(unitRepo, resolver, nil, logger)

	taxonomy, err := dispatch.NewTaxonomy(cfg.Dispatch.ErrorCodesJSON)
	if err != nil {
		pool.Close()
		return fmt.Errorf("building failure taxonomy: %w", err)
	}

	trigger := queue.NewReadingTrigger(sqsClient, cfg.AWS, logger)
	digestScheduler := scheduler.NewDigestScheduler(digestRepo, sqsClient, cfg.AWS.DigestQueue,
		scheduler.DigestConfig{
			DailyHour: cfg.Digest.DailyHour,
			WeeklyDay: time.Weekday(cfg.Digest.WeeklyDay),
			BatchSize: cfg.Digest.BatchSize,
		}, nil, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = newRequestMetrics(ctx, cwClient, cfg.AWS.MetricNamespace, logger)
	srv.OnShutdown(func() error {
		pool.Close()
		return nil
	})
	srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{
		ProbeName: "database",
		Fn:        pool.Ping,
	})

	// Domain handlers.
	readingHandler := handlers.NewReadingHandler(trigger, logger)
	unitHandler := handlers.NewUnitHandler(unitRepo, resolver, ruleRepo, alertRepo, cache, logger)
	containerHandler := handlers.NewContainerHandler(aggregator, logger)
	digestHandler := handlers.NewDigestHandler(digestScheduler, digestRepo, logger)
	callbackHandler := handlers.NewCallbackHandler(attemptRepo, taxonomy, logger)

	callbackAuth := core.CallbackAuthMiddleware(security.HashCallbackToken(cfg.Security.CallbackToken.Unmask()))
	callbackLimiter := core.NewRateLimiter(cfg.Server.CallbackRateLimit, cfg.Server.CallbackRateBurst)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		readingHandler.RegisterRoutes,
		unitHandler.RegisterRoutes,
		containerHandler.RegisterRoutes,
		digestHandler.RegisterRoutes,
		func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(callbackAuth)
				r.Use(callbackLimiter.Middleware)
				callbackHandler.RegisterRoutes(r)
			})
		},
	)

	srv.MountRoutes()

	return serveHTTP(srv, cfg, logger)
}

// newSQSClient builds the SQS client, honoring a custom endpoint for
// LocalStack in development.
func newSQSClient(awsCfg aws.Config, endpoint string) *sqs.Client {
	if endpoint == "" {
		return sqs.NewFromConfig(awsCfg)
	}
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}

// serveHTTP runs the server with graceful shutdown on SIGINT/SIGTERM.
func serveHTTP(srv *core.Server, cfg *config.Config, logger types.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// requestMetrics pushes request telemetry to CloudWatch asynchronously so
// metric emission never sits on the request path.
type requestMetrics struct {
	data   chan cwtypes.MetricDatum
	logger types.Logger
}

func newRequestMetrics(ctx context.Context, client *cloudwatch.Client, namespace string, logger types.Logger) *requestMetrics {
	m := &requestMetrics{
		data:   make(chan cwtypes.MetricDatum, 256),
		logger: logger,
	}
	go m.flushLoop(ctx, client, namespace)
	return m
}

// RecordRequest implements core.MetricsCollector. Drops data when the
// buffer is full rather than blocking a request.
func (m *requestMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	datum := cwtypes.MetricDatum{
		MetricName: aws.String("APIRequestLatency"),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("Method"), Value: aws.String(method)},
			{Name: aws.String("Endpoint"), Value: aws.String(endpoint)},
			{Name: aws.String("Status"), Value: aws.String(status)},
		},
	}
	select {
	case m.data <- datum:
	default:
	}
}

func (m *requestMetrics) flushLoop(ctx context.Context, client *cloudwatch.Client, namespace string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	var pending []cwtypes.MetricDatum
	flush := func() {
		if len(pending) == 0 {
			return
		}
		_, err := client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(namespace),
			MetricData: pending,
		})
		if err != nil {
			m.logger.Warn("failed to flush request metrics", "error", err, "count", len(pending))
		}
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-m.data:
			pending = append(pending, d)
			if len(pending) >= 20 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

var _ core.MetricsCollector = (*requestMetrics)(nil)
