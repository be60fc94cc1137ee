// Package scaling watches the task queue and resizes the worker pool. The
// controller runs inside the API process and publishes its view of the
// world to the worker_scaling_metrics hash for the status endpoints.
package scaling

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/fairyhunter13/file-classifier/internal/adapter/observability"
	"github.com/fairyhunter13/file-classifier/internal/domain"
)

// MetricsKey is the hash holding the controller's published metrics.
const MetricsKey = "worker_scaling_metrics"

// QueueLengther is the slice of the broker the controller reads.
type QueueLengther interface {
	QueueLength(ctx context.Context) (int64, error)
}

// Options tune the Controller; zero values fall back to defaults.
type Options struct {
	MinWorkers    int
	MaxWorkers    int
	HighThreshold int
	LowThreshold  int
	Interval      time.Duration
	Cooldown      time.Duration
	// FallbackReplicas seeds the worker count when the metrics hash has no
	// prior value (first tick after a cold start).
	FallbackReplicas int
}

func (o *Options) applyDefaults() {
	if o.MinWorkers <= 0 {
		o.MinWorkers = 2
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 10
	}
	if o.HighThreshold <= 0 {
		o.HighThreshold = 20
	}
	if o.LowThreshold <= 0 {
		o.LowThreshold = 5
	}
	if o.Interval <= 0 {
		o.Interval = 30 * time.Second
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 60 * time.Second
	}
	if o.FallbackReplicas <= 0 {
		o.FallbackReplicas = o.MinWorkers
	}
}

// Controller implements the queue-depth scaling loop (one per deployment).
type Controller struct {
	store domain.Store
	queue QueueLengther
	orch  domain.Orchestrator
	opts  Options
	now   func() time.Time

	mu          sync.Mutex
	current     int
	lastQueue   int64
	lastScaling time.Time
}

// New constructs a Controller. The initial last-scaling time sits in the
// past so the first tick is free to act.
func New(store domain.Store, queue QueueLengther, orch domain.Orchestrator, opts Options) *Controller {
	opts.applyDefaults()
	c := &Controller{
		store: store,
		queue: queue,
		orch:  orch,
		opts:  opts,
		now:   time.Now,
	}
	c.current = opts.FallbackReplicas
	c.lastScaling = c.now().Add(-2 * opts.Cooldown)
	return c
}

// Run ticks until ctx is canceled. Each tick publishes metrics whether or
// not a scaling action fires.
func (c *Controller) Run(ctx context.Context) {
	slog.Info("scaling controller started",
		slog.Int("min_workers", c.opts.MinWorkers),
		slog.Int("max_workers", c.opts.MaxWorkers),
		slog.Duration("interval", c.opts.Interval))
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	c.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scaling controller stopping")
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick runs one evaluation: refresh queue depth and worker count, decide,
// act, publish. Exported for the tests.
func (c *Controller) Tick(ctx context.Context) {
	qlen, err := c.queue.QueueLength(ctx)
	if err != nil {
		slog.Error("queue length unavailable; skipping tick", slog.Any("error", err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastQueue = qlen
	c.current = c.discoverWorkersLocked(ctx)
	observability.QueueDepth.Set(float64(qlen))
	observability.WorkerCount.Set(float64(c.current))

	target, direction := c.decideLocked(qlen)
	if direction != "" {
		if err := c.orch.SetReplicas(ctx, target); err != nil {
			slog.Error("scaling action failed",
				slog.String("direction", direction),
				slog.Int("target", target), slog.Any("error", err))
		} else {
			observability.RecordScalingAction(direction)
			slog.Info("scaled workers",
				slog.String("direction", direction),
				slog.Int("target", target), slog.Int64("queue_length", qlen))
		}
		// The hash is the authoritative count for external orchestration;
		// the target becomes current regardless of the action's outcome.
		c.current = target
		observability.WorkerCount.Set(float64(target))
		c.lastScaling = c.now()
		c.publishLocked(ctx, qlen, target)
		return
	}
	c.publishLocked(ctx, qlen, c.current)
}

// decideLocked returns the target replica count and direction ("up",
// "down", or "" for no action). Cooldown suppresses consecutive actions.
func (c *Controller) decideLocked(qlen int64) (int, string) {
	if c.now().Sub(c.lastScaling) < c.opts.Cooldown {
		return c.current, ""
	}
	switch {
	case qlen > int64(c.opts.HighThreshold) && c.current < c.opts.MaxWorkers:
		step := int(qlen / 10)
		if step < 1 {
			step = 1
		}
		target := c.current + step
		if target > c.opts.MaxWorkers {
			target = c.opts.MaxWorkers
		}
		return target, "up"
	case qlen < int64(c.opts.LowThreshold) && c.current > c.opts.MinWorkers:
		return c.current - 1, "down"
	default:
		return c.current, ""
	}
}

// discoverWorkersLocked resolves the current worker count: the published
// hash first, the configured fallback next, live enumeration last.
func (c *Controller) discoverWorkersLocked(ctx context.Context) int {
	fields, err := c.store.HashGetAll(ctx, MetricsKey)
	if err == nil && len(fields) > 0 {
		if n, err := strconv.Atoi(fields["current_worker_count"]); err == nil && n > 0 {
			return n
		}
	}
	if c.current > 0 {
		return c.current
	}
	if n, err := c.orch.WorkerCount(ctx); err == nil && n >= 0 {
		return n
	}
	return c.opts.FallbackReplicas
}

// publishLocked writes the metrics hash. Publish failures are logged; the
// in-memory snapshot keeps the status endpoint serviceable.
func (c *Controller) publishLocked(ctx context.Context, qlen int64, target int) {
	fields := map[string]any{
		"current_worker_count": c.current,
		"target_worker_count":  target,
		"min_workers":          c.opts.MinWorkers,
		"max_workers":          c.opts.MaxWorkers,
		"queue_length":         qlen,
		"worker_count":         c.current,
		"timestamp":            float64(c.now().UnixNano()) / float64(time.Second),
		"last_scaling_time":    float64(c.lastScaling.UnixNano()) / float64(time.Second),
	}
	if err := c.store.HashSet(ctx, MetricsKey, fields); err != nil {
		slog.Warn("scaling metrics publish failed", slog.Any("error", err))
	}
}

// SetWorkers applies a manual replica count from the admin endpoint. The
// manual action also arms the cooldown so the loop does not immediately
// fight the operator.
func (c *Controller) SetWorkers(ctx context.Context, n int) error {
	if err := c.orch.SetReplicas(ctx, n); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = n
	c.lastScaling = c.now()
	observability.WorkerCount.Set(float64(n))
	c.publishLocked(ctx, c.lastQueue, n)
	return nil
}

// Status returns the published metrics, preferring the hash and falling
// back to the controller's in-memory view when the store is unreachable.
func (c *Controller) Status(ctx context.Context) domain.ScalingMetrics {
	fields, err := c.store.HashGetAll(ctx, MetricsKey)
	if err != nil || len(fields) == 0 {
		if err != nil {
			slog.Warn("scaling metrics unavailable; serving in-memory snapshot", slog.Any("error", err))
		}
		return c.Snapshot()
	}
	m := c.Snapshot()
	if n, err := strconv.Atoi(fields["current_worker_count"]); err == nil {
		m.CurrentWorkerCount = n
		m.WorkerCount = n
	}
	if n, err := strconv.Atoi(fields["min_workers"]); err == nil {
		m.MinWorkers = n
	}
	if n, err := strconv.Atoi(fields["max_workers"]); err == nil {
		m.MaxWorkers = n
	}
	if n, err := strconv.ParseInt(fields["queue_length"], 10, 64); err == nil {
		m.QueueLength = n
	}
	if f, err := strconv.ParseFloat(fields["timestamp"], 64); err == nil {
		m.Timestamp = f
	}
	if f, err := strconv.ParseFloat(fields["last_scaling_time"], 64); err == nil {
		m.LastScalingTime = f
	}
	return m
}

// Snapshot returns the controller's in-memory metrics view.
func (c *Controller) Snapshot() domain.ScalingMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.ScalingMetrics{
		CurrentWorkerCount: c.current,
		MinWorkers:         c.opts.MinWorkers,
		MaxWorkers:         c.opts.MaxWorkers,
		QueueLength:        c.lastQueue,
		WorkerCount:        c.current,
		Timestamp:          float64(c.now().UnixNano()) / float64(time.Second),
		LastScalingTime:    float64(c.lastScaling.UnixNano()) / float64(time.Second),
	}
}

// SetClock overrides the controller's time source in tests and re-seeds the
// last-scaling time against the new clock.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	c.lastScaling = now().Add(-2 * c.opts.Cooldown)
}
