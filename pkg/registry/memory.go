package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type version struct {
	id        string
	sessionID string
	weights   []float64
	metrics   map[string]float64
	createdAt time.Time
}

type inMemoryRegistry struct {
	mu       sync.RWMutex
	versions map[string][]version
}

// NewInMemoryRegistry keeps versions in process memory, keyed by session
// cluster tag. Used by tests and single-node deployments.
func NewInMemoryRegistry() Registry {
	return &inMemoryRegistry{
		versions: make(map[string][]version),
	}
}

func (r *inMemoryRegistry) PutModel(_ context.Context, sessionID string, weights []float64, metrics map[string]float64) (string, error) {
	if len(weights) == 0 {
		return "", ErrEmptyWeights
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v := version{
		id:        uuid.NewString(),
		sessionID: sessionID,
		weights:   append([]float64(nil), weights...),
		metrics:   metrics,
		createdAt: time.Now(),
	}
	r.versions[sessionID] = append(r.versions[sessionID], v)

	return v.id, nil
}

func (r *inMemoryRegistry) GetLatestModel(_ context.Context, tag string) ([]float64, Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.versions[tag]
	if !ok || len(versions) == 0 {
		return nil, nil, ErrModelNotFound
	}

	latest := versions[len(versions)-1]
	meta := Metadata{
		"version_id": latest.id,
		"session_id": latest.sessionID,
		"created_at": latest.createdAt,
	}
	for k, v := range latest.metrics {
		meta[k] = v
	}

	return append([]float64(nil), latest.weights...), meta, nil
}
