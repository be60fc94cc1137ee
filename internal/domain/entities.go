package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrTooLarge          = errors.New("payload too large")
	ErrUnsupportedMedia  = errors.New("unsupported media type")
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrClassification    = errors.New("classification error")
	ErrOrchestrator      = errors.New("orchestrator error")
	ErrInternal          = errors.New("internal error")
)

// TaskStatus is the per-task lifecycle state. Transitions are monotonic:
// pending -> processing -> completed|failed.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// CanTransition reports whether moving from s to next is a legal forward
// step of the task state machine.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskProcessing
	case TaskProcessing:
		return next == TaskCompleted || next == TaskFailed
	default:
		return false
	}
}

// Terminal reports whether s is a terminal state.
func (s TaskStatus) Terminal() bool { return s == TaskCompleted || s == TaskFailed }

// Category labels emitted by the classifier.
const (
	LabelDriversLicense = "drivers_license"
	LabelBankStatement  = "bank_statement"
	LabelInvoice        = "invoice"
	LabelTaxReturn      = "tax_return"
	LabelMedicalRecord  = "medical_record"
	LabelInsuranceClaim = "insurance_claim"
	LabelUnknown        = "unknown_file"
)

// Categories lists the known document categories in lexicographic order.
func Categories() []string {
	return []string{
		LabelBankStatement,
		LabelDriversLicense,
		LabelInsuranceClaim,
		LabelInvoice,
		LabelMedicalRecord,
		LabelTaxReturn,
	}
}

// Task is the unit of work flowing through the classification queue.
// FilePath must be visible to both the API and the workers.
type Task struct {
	TaskID      string     `json:"task_id"`
	FilePath    string     `json:"file_path"`
	Filename    string     `json:"filename"`
	ResultQueue string     `json:"result_queue"`
	Status      TaskStatus `json:"status"`
}

// StatusRecord is the TTL-bounded per-task status read by the poll endpoint.
type StatusRecord struct {
	TaskID        string     `json:"task_id"`
	Filename      string     `json:"filename"`
	Status        TaskStatus `json:"status"`
	PredictedType string     `json:"predicted_type,omitempty"`
	Success       *bool      `json:"success,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// TaskResult is the single terminal outcome appended to a result queue.
type TaskResult struct {
	PredictedType string `json:"predicted_type"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

// ScalingMetrics mirrors the worker_scaling_metrics hash.
type ScalingMetrics struct {
	CurrentWorkerCount int     `json:"current_worker_count"`
	MinWorkers         int     `json:"min_workers"`
	MaxWorkers         int     `json:"max_workers"`
	QueueLength        int64   `json:"queue_length"`
	WorkerCount        int     `json:"worker_count"`
	Timestamp          float64 `json:"timestamp"`
	LastScalingTime    float64 `json:"last_scaling_time"`
}

// WorkerHealth is the heartbeat a worker writes every interval.
type WorkerHealth struct {
	WorkerID    string
	Timestamp   time.Time
	IdleSeconds float64
	Status      string // healthy | idle
}

// Ports

// Store is the key-value broker capability set (C1). Implementations map
// transport failures to ErrBrokerUnavailable.
//
//go:generate mockery --name=Store --with-expecter --filename=store_mock.go
type Store interface {
	ListPushLeft(ctx context.Context, name string, payload []byte) error
	ListPushRight(ctx context.Context, name string, payload []byte) error
	// Blocking pops wait up to timeout; a miss returns (nil, nil).
	ListBlockingPopLeft(ctx context.Context, name string, timeout time.Duration) ([]byte, error)
	ListBlockingPopRight(ctx context.Context, name string, timeout time.Duration) ([]byte, error)
	ListLen(ctx context.Context, name string) (int64, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns (nil, nil) for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	HashSet(ctx context.Context, key string, fields map[string]any) error
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	Ping(ctx context.Context) error
}

// Classifier assigns a category label to the file at path.
type Classifier interface {
	Classify(ctx context.Context, path string) (string, error)
}

// TextExtractor extracts plain text from a file at path with the provided
// original filename. Implementations may call external services (e.g. Tika).
type TextExtractor interface {
	ExtractPath(ctx context.Context, fileName, path string) (string, error)
}

// ModelPredictor is the learned-model side of the hybrid classifier. The
// model itself (features, embeddings, training) lives behind this port.
type ModelPredictor interface {
	Predict(ctx context.Context, text string, features map[string]KeywordStats) (string, error)
}

// KeywordStats is the per-category keyword triplet feeding both the model
// feature vector and the override rule.
type KeywordStats struct {
	Count   int     `json:"count"`
	Unique  int     `json:"unique"`
	Density float64 `json:"density"`
}

// Orchestrator applies a worker replica count; the mechanics are opaque.
type Orchestrator interface {
	SetReplicas(ctx context.Context, n int) error
	// WorkerCount enumerates running workers; -1 when unknown.
	WorkerCount(ctx context.Context) (int, error)
}
