package worker

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/file-classifier/internal/domain"
)

// Heartbeat status values.
const (
	StatusHealthy = "healthy"
	StatusIdle    = "idle"
)

// Heartbeat periodically writes the worker's liveness file. Container
// healthchecks read the file back with ReadHealth.
type Heartbeat struct {
	worker        *Worker
	path          string
	interval      time.Duration
	idleThreshold time.Duration
}

// NewHeartbeat constructs a Heartbeat for w writing to path.
func NewHeartbeat(w *Worker, path string, interval, idleThreshold time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if idleThreshold <= 0 {
		idleThreshold = 5 * time.Minute
	}
	return &Heartbeat{worker: w, path: path, interval: interval, idleThreshold: idleThreshold}
}

// Run writes the heartbeat file every interval until ctx is canceled. The
// file is removed on exit so a stopped worker fails its healthcheck fast.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.write()
	for {
		select {
		case <-ctx.Done():
			if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
				slog.Warn("heartbeat file not removed", slog.Any("error", err))
			}
			return
		case <-ticker.C:
			h.write()
		}
	}
}

func (h *Heartbeat) write() {
	idle := h.worker.IdleSeconds()
	status := StatusHealthy
	if idle > h.idleThreshold.Seconds() {
		status = StatusIdle
	}
	body := fmt.Sprintf("worker_id: %s\ntimestamp: %d\nidle_seconds: %.1f\nstatus: %s\n",
		h.worker.ID(), time.Now().Unix(), idle, status)

	// Write-then-rename keeps readers from seeing a partial file.
	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		slog.Warn("heartbeat write failed", slog.String("path", h.path), slog.Any("error", err))
		return
	}
	if err := os.Rename(tmp, h.path); err != nil {
		slog.Warn("heartbeat rename failed", slog.String("path", h.path), slog.Any("error", err))
	}
}

// ReadHealth parses a heartbeat file.
func ReadHealth(path string) (*domain.WorkerHealth, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("op=worker.ReadHealth: %w", err)
	}
	defer func() { _ = f.Close() }()

	var h domain.WorkerHealth
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.TrimSpace(key) {
		case "worker_id":
			h.WorkerID = val
		case "timestamp":
			sec, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("op=worker.ReadHealth timestamp: %w", err)
			}
			h.Timestamp = time.Unix(sec, 0)
		case "idle_seconds":
			idle, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("op=worker.ReadHealth idle_seconds: %w", err)
			}
			h.IdleSeconds = idle
		case "status":
			h.Status = val
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("op=worker.ReadHealth: %w", err)
	}
	if h.WorkerID == "" || h.Timestamp.IsZero() {
		return nil, fmt.Errorf("op=worker.ReadHealth: incomplete heartbeat in %s", path)
	}
	return &h, nil
}

// CheckHealth reports whether the heartbeat at path is recent. maxAge should
// exceed the heartbeat interval with slack for scheduler jitter.
func CheckHealth(path string, maxAge time.Duration) error {
	h, err := ReadHealth(path)
	if err != nil {
		return err
	}
	if age := time.Since(h.Timestamp); age > maxAge {
		return fmt.Errorf("op=worker.CheckHealth: heartbeat stale by %s", age.Round(time.Second))
	}
	return nil
}
