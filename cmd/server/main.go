// Command server starts the classification ingest API together with the
// queue-depth scaling controller.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/file-classifier/internal/adapter/httpserver"
	"github.com/fairyhunter13/file-classifier/internal/adapter/observability"
	"github.com/fairyhunter13/file-classifier/internal/adapter/orchestrator"
	"github.com/fairyhunter13/file-classifier/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/file-classifier/internal/adapter/redisstore"
	"github.com/fairyhunter13/file-classifier/internal/app"
	"github.com/fairyhunter13/file-classifier/internal/config"
	"github.com/fairyhunter13/file-classifier/internal/scaling"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Infra: broker store
	store := redisstore.New(cfg.RedisAddr())
	defer func() { _ = store.Close() }()
	if err := pingWithRetry(store.Ping); err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}

	broker := redisq.New(store, cfg.TaskTTL)

	// Scaling controller runs inside the API process.
	orch := orchestrator.NewCompose(cfg.ComposeWorkerService)
	controller := scaling.New(store, broker, orch, scaling.Options{
		MinWorkers:       cfg.MinWorkers,
		MaxWorkers:       cfg.MaxWorkers,
		HighThreshold:    cfg.QueueHighThreshold,
		LowThreshold:     cfg.QueueLowThreshold,
		Interval:         cfg.ScalingInterval,
		Cooldown:         cfg.ScalingCooldown,
		FallbackReplicas: cfg.WorkerReplicas,
	})
	scalerCtx, stopScaler := context.WithCancel(context.Background())
	defer stopScaler()
	go controller.Run(scalerCtx)

	tikaCheck := app.BuildTikaCheck(cfg)

	srv := httpserver.NewServer(cfg, broker, controller, tikaCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	stopScaler()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

// pingWithRetry probes the store with exponential backoff so the process
// survives the broker starting a few seconds later in compose.
func pingWithRetry(ping func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return ping(ctx)
	}, bo)
}
