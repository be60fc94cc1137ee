// Package worker runs the classification consumer: it claims tasks from the
// broker, classifies the staged file, publishes the outcome, and cleans up.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/file-classifier/internal/domain"
)

// failedPredictedType marks results of tasks that errored before a label
// could be assigned. Distinct from the classifier's unknown_file label,
// which is a successful classification.
const failedPredictedType = "unknown"

// Broker is the slice of the task broker the worker consumes.
type Broker interface {
	ClaimNext(ctx context.Context, timeout time.Duration) (*domain.Task, error)
	PublishResult(ctx context.Context, task *domain.Task, predictedType string, success bool, errMsg string) error
}

// Options tune a Worker; zero values fall back to defaults.
type Options struct {
	ID           string
	ClaimTimeout time.Duration
}

// Worker consumes classification tasks until its context is canceled.
// An in-flight task is always finished and published before Run returns.
type Worker struct {
	id           string
	broker       Broker
	classifier   domain.Classifier
	claimTimeout time.Duration

	// lastActivity is the unix-nano time of the last claimed task, read by
	// the heartbeat to compute idle seconds.
	lastActivity atomic.Int64
}

// New constructs a Worker.
func New(broker Broker, classifier domain.Classifier, opts Options) *Worker {
	id := opts.ID
	if id == "" {
		host, _ := os.Hostname()
		id = fmt.Sprintf("worker-%s-%d", host, os.Getpid())
	}
	ct := opts.ClaimTimeout
	if ct <= 0 {
		ct = time.Second
	}
	w := &Worker{id: id, broker: broker, classifier: classifier, claimTimeout: ct}
	w.lastActivity.Store(time.Now().UnixNano())
	return w
}

// ID returns the worker identifier used in logs and heartbeats.
func (w *Worker) ID() string { return w.id }

// IdleSeconds reports how long the worker has gone without claiming a task.
func (w *Worker) IdleSeconds() float64 {
	return time.Since(time.Unix(0, w.lastActivity.Load())).Seconds()
}

// Run is the claim loop. Broker errors back off exponentially; an idle pop
// is not an error and polls again immediately.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("worker started", slog.String("worker_id", w.id))
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping", slog.String("worker_id", w.id))
			return ctx.Err()
		default:
		}

		task, err := w.broker.ClaimNext(ctx, w.claimTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			wait := bo.NextBackOff()
			slog.Error("claim failed; backing off",
				slog.String("worker_id", w.id),
				slog.Duration("wait", wait), slog.Any("error", err))
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
		if task == nil {
			continue
		}

		w.lastActivity.Store(time.Now().UnixNano())
		// The claimed task is finished even when shutdown has begun.
		w.process(context.WithoutCancel(ctx), task)
	}
}

// process classifies one task and publishes the outcome. Failures become a
// failed terminal result; nothing escapes the loop.
func (w *Worker) process(ctx context.Context, task *domain.Task) {
	log := slog.With(slog.String("worker_id", w.id), slog.String("task_id", task.TaskID))
	log.Info("processing task", slog.String("file_path", task.FilePath))

	path := resolvePath(task.FilePath)
	label, err := w.classifier.Classify(ctx, path)

	var pubErr error
	if err != nil {
		log.Error("classification failed", slog.Any("error", err))
		pubErr = w.broker.PublishResult(ctx, task, failedPredictedType, false, err.Error())
	} else {
		log.Info("task completed", slog.String("predicted_type", label))
		pubErr = w.broker.PublishResult(ctx, task, label, true, "")
	}
	if pubErr != nil {
		log.Error("result publish failed", slog.Any("error", pubErr))
	}

	// Staged files are removed on every outcome so the temp dir cannot grow.
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		log.Warn("staged file not removed", slog.String("path", path), slog.Any("error", rmErr))
	}
}

// resolvePath maps a task file path to the worker's filesystem. Paths staged
// relative to the API working directory live under /app inside the worker
// container.
func resolvePath(p string) string {
	if _, err := os.Stat(p); err == nil {
		return p
	}
	if !filepath.IsAbs(p) {
		alt := filepath.Join("/app", p)
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}
	return p
}
