// Package orchestrator applies worker replica counts to the runtime. The
// compose implementation shells out to docker compose, which is how the
// default deployment runs workers.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/fairyhunter13/file-classifier/internal/domain"
)

// Compose scales a docker compose service, implementing domain.Orchestrator.
type Compose struct {
	service string
}

// NewCompose constructs a Compose orchestrator for the named service.
func NewCompose(service string) *Compose {
	if service == "" {
		service = "worker"
	}
	return &Compose{service: service}
}

// SetReplicas scales the worker service to n via docker compose up --scale.
func (c *Compose) SetReplicas(ctx context.Context, n int) error {
	cmd := exec.CommandContext(ctx, "docker", "compose", "up", "-d", "--no-recreate",
		"--scale", fmt.Sprintf("%s=%d", c.service, n), c.service)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("op=orchestrator.SetReplicas %s=%d: %w: %v (%s)",
			c.service, n, domain.ErrOrchestrator, err, strings.TrimSpace(string(out)))
	}
	slog.Info("scaled worker service", slog.String("service", c.service), slog.Int("replicas", n))
	return nil
}

// WorkerCount enumerates running containers of the worker service. Returns
// -1 when docker is unreachable so callers can fall back to other sources.
func (c *Compose) WorkerCount(ctx context.Context) (int, error) {
	cmd := exec.CommandContext(ctx, "docker", "compose", "ps", "-q", "--status", "running", c.service)
	out, err := cmd.Output()
	if err != nil {
		return -1, fmt.Errorf("op=orchestrator.WorkerCount: %w: %v", domain.ErrOrchestrator, err)
	}
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return 0, nil
	}
	return len(strings.Split(trimmed, "\n")), nil
}

// Static is a no-op orchestrator for deployments where replicas are managed
// externally. SetReplicas succeeds without side effects and WorkerCount
// reports the configured value.
type Static struct {
	replicas int
}

// NewStatic constructs a Static orchestrator reporting n workers.
func NewStatic(n int) *Static { return &Static{replicas: n} }

// SetReplicas records the requested count.
func (s *Static) SetReplicas(_ context.Context, n int) error {
	s.replicas = n
	return nil
}

// WorkerCount returns the recorded count.
func (s *Static) WorkerCount(context.Context) (int, error) { return s.replicas, nil }
