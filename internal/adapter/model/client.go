// Package model reaches the learned gradient-boosted classifier through an
// inference sidecar. The model internals (content embeddings, training)
// live entirely on the other side of this HTTP contract.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fairyhunter13/file-classifier/internal/domain"
)

// Feature scaling applied to the keyword triplets before they join the
// 768-dim content embedding in the model's feature vector.
const (
	countScale   = 50
	uniqueScale  = 100
	densityScale = 500
)

// Client implements domain.ModelPredictor against the inference sidecar.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// New constructs a Client. The circuit breaker opens after consecutive
// sidecar failures so a dead model does not stall every classification.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "model-predictor",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("model breaker state change",
				slog.String("name", name),
				slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    cb,
	}
}

type scaledTriplet struct {
	Count   float64 `json:"count"`
	Unique  float64 `json:"unique"`
	Density float64 `json:"density"`
}

type predictRequest struct {
	Text     string                   `json:"text"`
	Features map[string]scaledTriplet `json:"features"`
}

type predictResponse struct {
	Label string `json:"label"`
}

// Predict posts the text and scaled keyword triplets and returns the
// model's category label.
func (c *Client) Predict(ctx context.Context, text string, features map[string]domain.KeywordStats) (string, error) {
	req := predictRequest{Text: text, Features: make(map[string]scaledTriplet, len(features))}
	for cat, st := range features {
		req.Features[cat] = scaledTriplet{
			Count:   float64(st.Count) * countScale,
			Unique:  float64(st.Unique) * uniqueScale,
			Density: st.Density * densityScale,
		}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("op=model.Predict: %w", err)
	}

	out, err := c.breaker.Execute(func() (any, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("model status %d", resp.StatusCode)
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		var pr predictResponse
		if err := json.Unmarshal(b, &pr); err != nil {
			return nil, err
		}
		if pr.Label == "" {
			return nil, fmt.Errorf("model returned empty label")
		}
		return pr.Label, nil
	})
	if err != nil {
		return "", fmt.Errorf("op=model.Predict: %w", err)
	}
	return out.(string), nil
}

// Ready probes the sidecar so startup can decide between hybrid and
// keyword-only mode.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("model status %d", resp.StatusCode)
	}
	return nil
}
