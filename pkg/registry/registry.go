// Package registry is the adapter contract for the external model store.
// The core depends only on this interface, not on a tracking backend.
package registry

import (
	"context"
	"errors"
)

var (
	ErrModelNotFound = errors.New("no model version for tag")
	ErrEmptyWeights  = errors.New("model weights are empty")
)

type Metadata map[string]any

type Registry interface {
	// PutModel persists the final weights and metrics of a session and
	// returns the new version ID.
	PutModel(ctx context.Context, sessionID string, weights []float64, metrics map[string]float64) (string, error)

	// GetLatestModel returns the newest version registered under tag.
	GetLatestModel(ctx context.Context, tag string) ([]float64, Metadata, error)
}
