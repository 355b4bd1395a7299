package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/text/language"

	"github.com/chatlens/sentiment-worker/internal/config"
	"github.com/chatlens/sentiment-worker/internal/consumer"
	"github.com/chatlens/sentiment-worker/internal/dlq"
	"github.com/chatlens/sentiment-worker/internal/healthz"
	"github.com/chatlens/sentiment-worker/internal/logging"
	"github.com/chatlens/sentiment-worker/internal/metrics"
	"github.com/chatlens/sentiment-worker/internal/msk"
	"github.com/chatlens/sentiment-worker/internal/pipeline"
	"github.com/chatlens/sentiment-worker/internal/predict"
	"github.com/chatlens/sentiment-worker/internal/ratelimit"
	"github.com/chatlens/sentiment-worker/internal/retry"
	"github.com/chatlens/sentiment-worker/internal/seen"
	"github.com/chatlens/sentiment-worker/internal/telemetry"
	"github.com/chatlens/sentiment-worker/internal/translate"
	"github.com/chatlens/sentiment-worker/internal/watch"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	logging.Configure(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	logger := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		tp, err := telemetry.Init()
		if err != nil {
			logger.Error("tracing init failed", "error", err)
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	brokers := cfg.Brokers
	var auth *msk.ConnectionInfo
	if cfg.UsesMSK() {
		resolver, err := msk.NewResolver(ctx, cfg.AWSRegion)
		if err != nil {
			logger.Error("msk resolver setup failed", "error", err)
			return 1
		}
		info, err := resolver.Lookup(ctx, cfg.ClusterARN, cfg.SecretName)
		if err != nil {
			logger.Error("msk connection lookup failed", "error", err)
			return 1
		}
		brokers = info.Brokers
		auth = &info
		logger.Info("resolved msk connection", "brokers", len(brokers))
	}

	m := metrics.New()

	translationAPI, err := translate.NewGoogleAPI(ctx, cfg.CredentialsFile)
	if err != nil {
		logger.Error("translation client setup failed", "error", err)
		return 1
	}
	target, err := language.Parse(cfg.TargetLanguage)
	if err != nil {
		logger.Error("invalid target language", "language", cfg.TargetLanguage, "error", err)
		return 1
	}

	var limiter *ratelimit.TokenBucket
	if cfg.RateLimitPerSec > 0 {
		limiter = ratelimit.New(cfg.RateLimitPerSec, cfg.MaxInflight)
		logger.Info("outbound rate limit enabled", "per_sec", cfg.RateLimitPerSec)
	}

	translator := translate.NewClient(translationAPI, target,
		translate.WithTimeout(cfg.CallTimeout),
		translate.WithRetryPolicy(stagePolicy(cfg, m, "translate")),
		translate.WithLimiter(limiter),
	)

	predictOpts := []predict.Option{
		predict.WithTimeout(cfg.CallTimeout),
		predict.WithRetryPolicy(stagePolicy(cfg, m, "predict")),
		predict.WithLimiter(limiter),
	}
	if cfg.PredictAuthToken != "" {
		predictOpts = append(predictOpts, predict.WithAuthToken(cfg.PredictAuthToken))
	}
	predictor := predict.NewClient(cfg.PredictURL, &http.Client{Timeout: cfg.CallTimeout + time.Second}, predictOpts...)

	resultSink, err := newKafkaResultSink(brokers, auth, cfg.ResultTopic)
	if err != nil {
		logger.Error("result sink setup failed", "error", err)
		return 1
	}
	defer resultSink.Close()

	seenStore, err := seen.FromConfig(cfg.Seen.Type, cfg.Seen.RedisURL, cfg.Seen.Capacity, cfg.Seen.TTL)
	if err != nil {
		logger.Error("seen store setup failed", "error", err)
		return 1
	}

	watchSet := watch.NewSet(cfg.WatchChannels)
	logger.Info("watching channels", "count", watchSet.Size())

	pl := pipeline.New(
		pipeline.Config{
			Workers:      cfg.MaxInflight,
			RecordBuffer: cfg.BatchSize,
			DLQBuffer:    cfg.MaxInflight,
		},
		watchSet, translator, predictor, resultSink,
		pipeline.WithObserver(m),
		pipeline.WithSeenStore(seenStore),
		pipeline.WithLogger(logger),
	)

	source, err := newKafkaSource(brokers, auth, cfg.SourceTopic, cfg.GroupID, cfg.BatchSize, cfg.FetchTimeout, logger)
	if err != nil {
		logger.Error("kafka source setup failed", "error", err)
		return 1
	}
	defer source.Close()

	cons := consumer.New(source, pl.Records(), pl.Results(),
		consumer.WithObserver(m),
		consumer.WithLogger(logger),
	)

	dlqSink, err := newKafkaDLQSink(brokers, auth, cfg.DLQTopic, logger)
	if err != nil {
		logger.Error("dlq sink setup failed", "error", err)
		return 1
	}
	defer dlqSink.Close()

	dlqOpts := []dlq.Option{dlq.WithObserver(m), dlq.WithLogger(logger)}
	if cfg.DLQFallbackPath != "" {
		fileSink, err := dlq.NewFileSink(cfg.DLQFallbackPath)
		if err != nil {
			logger.Error("dlq fallback setup failed", "error", err)
			return 1
		}
		dlqOpts = append(dlqOpts, dlq.WithFallback(fileSink))
		logger.Info("dlq file fallback enabled", "path", cfg.DLQFallbackPath)
	}
	dlqHandler := dlq.NewHandler(pl.DLQ(), dlqSink, dlqOpts...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/healthz", healthz.NewChecker(cons))
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	logger.Info("starting sentiment worker",
		"source_topic", cfg.SourceTopic,
		"result_topic", cfg.ResultTopic,
		"group", cfg.GroupID,
		"max_inflight", cfg.MaxInflight,
		"batch_size", cfg.BatchSize,
	)

	var wg sync.WaitGroup
	fatal := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		pl.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		dlqHandler.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := cons.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fatal <- err
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	stop()
	_ = metricsSrv.Close()

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(cfg.ShutdownGrace):
		logger.Error("shutdown grace period expired, exiting without full drain")
	}

	select {
	case err := <-fatal:
		logger.Error("fatal consumer error", "error", err)
		return 1
	default:
	}
	logger.Info("shutdown complete")
	return 0
}

// stagePolicy builds the capped retry policy for an outbound stage, wiring
// retry attempts into metrics and logs.
func stagePolicy(cfg config.Config, m *metrics.Metrics, stage string) retry.Policy {
	return retry.Policy{
		MaxAttempts: uint(cfg.RetryMaxAttempts),
		Notify: func(err error, wait time.Duration) {
			m.RecordStageRetry(stage)
			logging.L().Warn("stage call retrying", "stage", stage, "wait", wait, "error", err)
		},
	}
}
