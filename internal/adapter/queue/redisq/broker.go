// Package redisq implements the task broker on top of the key-value store:
// a list-shaped queue of classification tasks, TTL-bounded status and
// task-data records, and per-task result queues.
package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/file-classifier/internal/adapter/observability"
	"github.com/fairyhunter13/file-classifier/internal/domain"
)

const (
	// TaskQueue is the shared list all workers consume from.
	TaskQueue = "classification_tasks"

	resultQueuePrefix = "results/"
	statusKeyPrefix   = "task_status_"
	dataKeyPrefix     = "task_data_"
)

// Broker mediates between the ingest API and the workers (C2).
type Broker struct {
	store domain.Store
	ttl   time.Duration
}

// New constructs a Broker. ttl bounds every record the broker writes.
func New(store domain.Store, ttl time.Duration) *Broker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Broker{store: store, ttl: ttl}
}

// StatusKey returns the status-record key for a task id.
func StatusKey(taskID string) string { return statusKeyPrefix + taskID }

// DataKey returns the task-data key for a task id.
func DataKey(taskID string) string { return dataKeyPrefix + taskID }

// ResultQueue returns the result-queue name for a task id.
func ResultQueue(taskID string) string { return resultQueuePrefix + taskID }

// Submit mints a task id, writes the status and task-data records, then
// pushes the task onto the queue. The record writes precede the push so a
// fast worker always finds the status record after popping.
func (b *Broker) Submit(ctx context.Context, filePath, filename string) (string, string, error) {
	taskID := uuid.NewString()
	resultQueue := ResultQueue(taskID)

	task := domain.Task{
		TaskID:      taskID,
		FilePath:    filePath,
		Filename:    filename,
		ResultQueue: resultQueue,
		Status:      domain.TaskPending,
	}
	status := domain.StatusRecord{
		TaskID:   taskID,
		Filename: filename,
		Status:   domain.TaskPending,
	}

	sb, err := json.Marshal(status)
	if err != nil {
		return "", "", fmt.Errorf("op=broker.Submit: %w", err)
	}
	tb, err := json.Marshal(task)
	if err != nil {
		return "", "", fmt.Errorf("op=broker.Submit: %w", err)
	}
	if err := b.store.SetWithTTL(ctx, StatusKey(taskID), sb, b.ttl); err != nil {
		return "", "", fmt.Errorf("op=broker.Submit status: %w", err)
	}
	if err := b.store.SetWithTTL(ctx, DataKey(taskID), tb, b.ttl); err != nil {
		return "", "", fmt.Errorf("op=broker.Submit data: %w", err)
	}
	if err := b.store.ListPushLeft(ctx, TaskQueue, tb); err != nil {
		return "", "", fmt.Errorf("op=broker.Submit push: %w", err)
	}
	observability.EnqueueTask()
	slog.Info("task submitted", slog.String("task_id", taskID), slog.String("file_path", filePath))
	return taskID, resultQueue, nil
}

// ClaimNext blocks up to timeout for the next task and marks it processing.
// A missing or expired status record does not fail the claim: delivery is
// at-least-once, so the task is returned anyway with a warning.
func (b *Broker) ClaimNext(ctx context.Context, timeout time.Duration) (*domain.Task, error) {
	payload, err := b.store.ListBlockingPopRight(ctx, TaskQueue, timeout)
	if err != nil {
		return nil, fmt.Errorf("op=broker.ClaimNext: %w", err)
	}
	if payload == nil {
		return nil, nil
	}
	var task domain.Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("op=broker.ClaimNext decode: %w", err)
	}
	task.Status = domain.TaskProcessing
	if err := b.updateStatus(ctx, task.TaskID, func(rec *domain.StatusRecord) {
		rec.Status = domain.TaskProcessing
	}); err != nil {
		slog.Warn("claimed task without status record",
			slog.String("task_id", task.TaskID), slog.Any("error", err))
	}
	observability.StartProcessingTask()
	return &task, nil
}

// PublishResult writes the terminal status record and appends the single
// result element to the task's result queue. The result write is attempted
// even when the status update fails.
func (b *Broker) PublishResult(ctx context.Context, task *domain.Task, predictedType string, success bool, errMsg string) error {
	terminal := domain.TaskCompleted
	if !success {
		terminal = domain.TaskFailed
	}
	if err := b.updateStatus(ctx, task.TaskID, func(rec *domain.StatusRecord) {
		rec.Status = terminal
		rec.PredictedType = predictedType
		ok := success
		rec.Success = &ok
		rec.Error = errMsg
	}); err != nil {
		slog.Error("status update failed; still publishing result",
			slog.String("task_id", task.TaskID), slog.Any("error", err))
	}

	res := domain.TaskResult{PredictedType: predictedType, Success: success, Error: errMsg}
	rb, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("op=broker.PublishResult: %w", err)
	}
	if err := b.store.ListPushRight(ctx, task.ResultQueue, rb); err != nil {
		return fmt.Errorf("op=broker.PublishResult push: %w", err)
	}
	// Orphaned results expire with the rest of the task's records.
	if err := b.store.Expire(ctx, task.ResultQueue, b.ttl); err != nil {
		slog.Warn("result queue ttl not set", slog.String("task_id", task.TaskID), slog.Any("error", err))
	}
	if success {
		observability.CompleteTask(predictedType)
	} else {
		observability.FailTask()
	}
	return nil
}

// AwaitResult blocks up to timeout for the first element of a result queue.
// Timing out does not cancel the task; (nil, nil) signals no result yet.
func (b *Broker) AwaitResult(ctx context.Context, resultQueue string, timeout time.Duration) (*domain.TaskResult, error) {
	payload, err := b.store.ListBlockingPopLeft(ctx, resultQueue, timeout)
	if err != nil {
		return nil, fmt.Errorf("op=broker.AwaitResult: %w", err)
	}
	if payload == nil {
		return nil, nil
	}
	var res domain.TaskResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("op=broker.AwaitResult decode: %w", err)
	}
	return &res, nil
}

// GetStatus returns the status record for a task id, or
// domain.ErrNotFound when the task is unknown or expired.
func (b *Broker) GetStatus(ctx context.Context, taskID string) (*domain.StatusRecord, error) {
	raw, err := b.store.Get(ctx, StatusKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("op=broker.GetStatus: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("op=broker.GetStatus %s: %w", taskID, domain.ErrNotFound)
	}
	var rec domain.StatusRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("op=broker.GetStatus decode: %w", err)
	}
	return &rec, nil
}

// QueueLength returns the current depth of the task queue.
func (b *Broker) QueueLength(ctx context.Context) (int64, error) {
	return b.store.ListLen(ctx, TaskQueue)
}

// Ping probes the backing store.
func (b *Broker) Ping(ctx context.Context) error { return b.store.Ping(ctx) }

// updateStatus applies mutate to the stored record and writes it back with a
// fresh TTL. Illegal backward transitions are dropped, keeping the observed
// status sequence monotonic under redelivery.
func (b *Broker) updateStatus(ctx context.Context, taskID string, mutate func(*domain.StatusRecord)) error {
	raw, err := b.store.Get(ctx, StatusKey(taskID))
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("status record %s: %w", taskID, domain.ErrNotFound)
	}
	var rec domain.StatusRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return err
	}
	prev := rec.Status
	mutate(&rec)
	if rec.Status != prev && !prev.CanTransition(rec.Status) {
		slog.Warn("illegal status transition dropped",
			slog.String("task_id", taskID),
			slog.String("from", string(prev)), slog.String("to", string(rec.Status)))
		return nil
	}
	nb, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.store.SetWithTTL(ctx, StatusKey(taskID), nb, b.ttl)
}
