// Command worker runs the classification consumer: it claims tasks from the
// queue, classifies staged files, and publishes results. A -healthcheck
// flag reads the heartbeat file for container health probes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/file-classifier/internal/adapter/model"
	"github.com/fairyhunter13/file-classifier/internal/adapter/observability"
	"github.com/fairyhunter13/file-classifier/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/file-classifier/internal/adapter/redisstore"
	tikaext "github.com/fairyhunter13/file-classifier/internal/adapter/textextractor/tika"
	"github.com/fairyhunter13/file-classifier/internal/classifier"
	"github.com/fairyhunter13/file-classifier/internal/config"
	"github.com/fairyhunter13/file-classifier/internal/domain"
	"github.com/fairyhunter13/file-classifier/internal/worker"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "check the heartbeat file and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	if *healthcheck {
		// Allow three missed heartbeats before reporting unhealthy.
		if err := worker.CheckHealth(cfg.HealthcheckFile, 3*cfg.HeartbeatInterval); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	store := redisstore.New(cfg.RedisAddr())
	defer func() { _ = store.Close() }()
	if err := pingWithRetry(store.Ping); err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	broker := redisq.New(store, cfg.TaskTTL)

	keywords, err := classifier.LoadKeywords(cfg.KeywordsFile)
	if err != nil {
		slog.Error("keyword load failed", slog.Any("error", err))
		os.Exit(1)
	}

	extractor := tikaext.New(cfg.TikaURL)

	// Probe the inference sidecar once; an absent model means the worker
	// runs keyword-only for its lifetime.
	var predictor domain.ModelPredictor
	if cfg.ModelURL != "" {
		mc := model.New(cfg.ModelURL, cfg.ModelTimeout)
		probeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := mc.Ready(probeCtx); err != nil {
			slog.Warn("model sidecar not ready; keyword-only mode", slog.Any("error", err))
		} else {
			predictor = mc
		}
		cancel()
	}
	svc := classifier.New(keywords, extractor, predictor)

	w := worker.New(broker, svc, worker.Options{
		ID:           cfg.WorkerID,
		ClaimTimeout: cfg.ClaimTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		hb := worker.NewHeartbeat(w, cfg.HealthcheckFile, cfg.HeartbeatInterval, cfg.WorkerIdleThreshold)
		hb.Run(ctx)
	}()

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker stopped", slog.Any("error", err))
	}
	wg.Wait()
	slog.Info("worker exited", slog.String("worker_id", w.ID()))
}

func pingWithRetry(ping func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return ping(ctx)
	}, bo)
}
