package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fairyhunter13/file-classifier/internal/config"
	"github.com/fairyhunter13/file-classifier/internal/domain"
)

// TaskBroker is the slice of the broker the API uses.
type TaskBroker interface {
	Submit(ctx context.Context, filePath, filename string) (taskID, resultQueue string, err error)
	GetStatus(ctx context.Context, taskID string) (*domain.StatusRecord, error)
	Ping(ctx context.Context) error
}

// Scaler is the slice of the scaling controller the API uses.
type Scaler interface {
	SetWorkers(ctx context.Context, n int) error
	Status(ctx context.Context) domain.ScalingMetrics
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg       config.Config
	Broker    TaskBroker
	Scaler    Scaler
	TikaCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, broker TaskBroker, scaler Scaler, tikaCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Broker: broker, Scaler: scaler, TikaCheck: tikaCheck}
}

// allowedExt enforces the upload extension allowlist.
func allowedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".docx", ".xlsx", ".jpg", ".jpeg", ".png", ".txt":
		return true
	}
	return false
}

// sniffedMIME pins the expected content type for the formats with reliable
// magic bytes. Plain text has no signature and is exempt.
var sniffedMIME = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// ClassifyFileHandler accepts a multipart upload, stages it in the shared
// temp directory, and enqueues a classification task. Extension and size
// are validated before the broker is touched.
func (s *Server) ClassifyFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxBytes := s.Cfg.MaxUploadBytes()
		// Slack for multipart framing; the payload itself is re-checked below.
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeDetail(w, http.StatusRequestEntityTooLarge, "File too large")
				return
			}
			writeDetail(w, http.StatusUnprocessableEntity, "Invalid multipart body")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "No file provided")
			return
		}
		defer func() { _ = file.Close() }()

		filename := filepath.Base(header.Filename)
		if filename == "" || filename == "." || filename == string(filepath.Separator) {
			writeDetail(w, http.StatusUnprocessableEntity, "No filename provided")
			return
		}
		if !allowedExt(filename) {
			writeDetail(w, http.StatusUnsupportedMediaType, "Unsupported file type")
			return
		}

		data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
		if err != nil {
			writeError(w, fmt.Errorf("%w: read upload: %v", domain.ErrInternal, err), "Failed to read file")
			return
		}
		if int64(len(data)) > maxBytes {
			writeDetail(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		mt := mimetype.Detect(data)
		if want, ok := sniffedMIME[strings.ToLower(filepath.Ext(filename))]; ok && !mt.Is(want) {
			LoggerFrom(r).Warn("upload content mismatch",
				slog.String("filename", filename),
				slog.String("detected_mime", mt.String()))
			writeDetail(w, http.StatusUnsupportedMediaType, "File content does not match extension")
			return
		}
		LoggerFrom(r).Debug("upload received",
			slog.String("filename", filename),
			slog.Int("size_bytes", len(data)),
			slog.String("detected_mime", mt.String()))

		if err := os.MkdirAll(s.Cfg.TempDir, 0o755); err != nil {
			writeError(w, fmt.Errorf("%w: temp dir: %v", domain.ErrInternal, err), "Failed to store file")
			return
		}
		stagedPath := filepath.Join(s.Cfg.TempDir, uuid.NewString()+"_"+filename)
		if err := os.WriteFile(stagedPath, data, 0o600); err != nil {
			writeError(w, fmt.Errorf("%w: stage upload: %v", domain.ErrInternal, err), "Failed to store file")
			return
		}

		taskID, _, err := s.Broker.Submit(r.Context(), stagedPath, filename)
		if err != nil {
			// The broker owns nothing yet; remove the orphaned staging file.
			if rmErr := os.Remove(stagedPath); rmErr != nil && !os.IsNotExist(rmErr) {
				LoggerFrom(r).Warn("staged file not removed", slog.Any("error", rmErr))
			}
			detail := ""
			if errors.Is(err, domain.ErrBrokerUnavailable) {
				detail = "Classification service unavailable"
			}
			writeError(w, err, detail)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"task_id":  taskID,
			"filename": filename,
			"status":   string(domain.TaskPending),
		})
	}
}

// ClassificationStatusHandler returns the status record for a task id.
func (s *Server) ClassificationStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "task_id")
		if len(taskID) < 10 {
			writeDetail(w, http.StatusBadRequest, "Invalid task ID format")
			return
		}
		rec, err := s.Broker.GetStatus(r.Context(), taskID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeDetail(w, http.StatusNotFound, fmt.Sprintf("Task %s not found", taskID))
				return
			}
			writeError(w, err, "")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// HealthHandler reports component health. The broker down means unhealthy
// (503); zero workers degrades the report but keeps the API serving.
func (s *Server) HealthHandler() http.HandlerFunc {
	type workersComponent struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		components := map[string]any{"api": "up"}
		if err := s.Broker.Ping(ctx); err != nil {
			components["redis"] = "down"
			components["workers"] = workersComponent{Status: "unknown"}
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":     "unhealthy",
				"components": components,
			})
			return
		}
		components["redis"] = "up"

		status := "healthy"
		workers := workersComponent{Status: "up", Count: s.Scaler.Status(ctx).WorkerCount}
		if workers.Count <= 0 {
			workers = workersComponent{Status: "down", Count: 0}
			status = "degraded"
		}
		components["workers"] = workers
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     status,
			"components": components,
		})
	}
}

// ScalingStatusHandler returns the scaling metrics snapshot. Always 200:
// the controller falls back to its in-memory view on broker errors.
func (s *Server) ScalingStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Scaler.Status(r.Context()))
	}
}

// SetWorkersHandler applies a manual worker count from the path parameter.
func (s *Server) SetWorkersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "count")
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "Worker count must be an integer")
			return
		}
		if err := getValidator().Var(n, "gte=1,lte=20"); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "Worker count must be between 1 and 20")
			return
		}
		if err := s.Scaler.SetWorkers(r.Context(), n); err != nil {
			LoggerFrom(r).Error("manual scaling failed", slog.Int("count", n), slog.Any("error", err))
			writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("Scaling error: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "success",
			"message": fmt.Sprintf("Worker count set to %d", n),
		})
	}
}

// ReadyzHandler probes the broker and the text extractor.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if err := s.Broker.Ping(ctx); err != nil {
			checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
		} else {
			checks = append(checks, check{Name: "redis", OK: true})
		}
		if s.TikaCheck != nil {
			if err := s.TikaCheck(ctx); err != nil {
				checks = append(checks, check{Name: "tika", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "tika", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
