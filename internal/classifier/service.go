// Package classifier implements the hybrid document classifier: keyword
// statistics over extracted text combined with a learned-model prediction
// through an override rule.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fairyhunter13/file-classifier/internal/adapter/observability"
	"github.com/fairyhunter13/file-classifier/internal/domain"
	"github.com/fairyhunter13/file-classifier/pkg/textx"
)

// Override rule thresholds: the keyword prediction wins over the model only
// when it is this strong.
const (
	overrideMinScore      = 3
	overrideMinConfidence = 0.65
)

// localExts are read directly without a round-trip to the extraction server.
var localExts = map[string]bool{".txt": true, ".csv": true}

// extractableExts go through the text extractor (OCR included for images
// and image-only PDFs).
var extractableExts = map[string]bool{
	".pdf": true, ".docx": true,
	".jpg": true, ".jpeg": true, ".png": true,
	".bmp": true, ".tiff": true, ".tif": true, ".gif": true,
}

// Service implements domain.Classifier.
type Service struct {
	keywords  map[string][]string
	extractor domain.TextExtractor
	model     domain.ModelPredictor
}

// New constructs a Service. model may be nil: the service then runs in
// keyword-only mode, which is logged once at startup.
func New(keywords map[string][]string, extractor domain.TextExtractor, model domain.ModelPredictor) *Service {
	if model == nil {
		slog.Warn("classifier model unavailable; falling back to keyword-only classification")
	}
	return &Service{keywords: keywords, extractor: extractor, model: model}
}

// Classify extracts text from the file at path and returns the category
// label. A missing or unreadable file is a ClassificationError; every other
// internal failure degrades to the unknown label.
func (s *Service) Classify(ctx context.Context, path string) (string, error) {
	start := time.Now()
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("op=classifier.Classify %s: %w: %v", path, domain.ErrClassification, err)
	}

	text := s.extractText(ctx, path)
	stats := ComputeStats(s.keywords, text)
	kwLabel, kwScore, kwConfidence := KeywordPrediction(stats)

	label := s.decide(ctx, text, stats, kwLabel, kwScore, kwConfidence)
	observability.ClassificationDuration.Observe(time.Since(start).Seconds())
	slog.Debug("classified",
		slog.String("path", path),
		slog.String("label", label),
		slog.String("keyword_label", kwLabel),
		slog.Int("keyword_score", kwScore),
		slog.Float64("keyword_confidence", kwConfidence))
	return label, nil
}

// decide applies the override rule between the keyword and model strategies.
func (s *Service) decide(ctx context.Context, text string, stats map[string]domain.KeywordStats, kwLabel string, kwScore int, kwConfidence float64) string {
	if s.model == nil {
		return kwLabel
	}
	modelLabel, err := s.model.Predict(ctx, text, stats)
	if err != nil {
		slog.Warn("model prediction failed; using keyword prediction", slog.Any("error", err))
		return kwLabel
	}
	if kwLabel != domain.LabelUnknown &&
		kwScore >= overrideMinScore &&
		kwConfidence > overrideMinConfidence &&
		kwLabel != modelLabel {
		return kwLabel
	}
	return modelLabel
}

// extractText returns the plain text of the file, or "" when extraction is
// impossible; classification then proceeds on empty statistics.
func (s *Service) extractText(ctx context.Context, path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case localExts[ext]:
		raw, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("local read failed", slog.String("path", path), slog.Any("error", err))
			return ""
		}
		return textx.SanitizeText(string(raw))
	case extractableExts[ext]:
		if s.extractor == nil {
			slog.Warn("no text extractor configured", slog.String("path", path))
			return ""
		}
		text, err := s.extractor.ExtractPath(ctx, filepath.Base(path), path)
		if err != nil {
			slog.Warn("text extraction failed", slog.String("path", path), slog.Any("error", err))
			return ""
		}
		return text
	default:
		return ""
	}
}
