package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defHTTPTimeout = 30 * time.Second

type httpRegistry struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRegistry talks to an MLflow-style tracking server over its model
// endpoints.
func NewHTTPRegistry(baseURL string, timeout time.Duration) Registry {
	if timeout == 0 {
		timeout = defHTTPTimeout
	}

	return &httpRegistry{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type putModelReq struct {
	SessionID string             `json:"session_id"`
	Weights   []float64          `json:"weights"`
	Metrics   map[string]float64 `json:"metrics"`
}

type putModelRes struct {
	VersionID string `json:"version_id"`
}

func (r *httpRegistry) PutModel(ctx context.Context, sessionID string, weights []float64, metrics map[string]float64) (string, error) {
	if len(weights) == 0 {
		return "", ErrEmptyWeights
	}

	body, err := json.Marshal(putModelReq{
		SessionID: sessionID,
		Weights:   weights,
		Metrics:   metrics,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal model payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/models", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to post model to registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("registry returned error: %d", resp.StatusCode)
	}

	var res putModelRes
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("failed to decode registry response: %w", err)
	}

	return res.VersionID, nil
}

type getModelRes struct {
	Weights  []float64 `json:"weights"`
	Metadata Metadata  `json:"metadata"`
}

func (r *httpRegistry) GetLatestModel(ctx context.Context, tag string) ([]float64, Metadata, error) {
	u := fmt.Sprintf("%s/models/latest?tag=%s", r.baseURL, url.QueryEscape(tag))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch latest model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, ErrModelNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("registry returned error: %d", resp.StatusCode)
	}

	var res getModelRes
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, nil, fmt.Errorf("failed to decode registry response: %w", err)
	}

	return res.Weights, res.Metadata, nil
}
