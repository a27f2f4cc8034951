package registry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefMaxAttempts     = 5
	defInitialInterval = 500 * time.Millisecond
)

type retrying struct {
	reg         Registry
	maxAttempts uint64
	initial     time.Duration
}

// NewRetrying wraps a registry so PutModel is retried with exponential
// backoff. Reads are not retried; callers decide how stale they can be.
func NewRetrying(reg Registry, maxAttempts uint64) Registry {
	if maxAttempts == 0 {
		maxAttempts = DefMaxAttempts
	}

	return &retrying{
		reg:         reg,
		maxAttempts: maxAttempts,
		initial:     defInitialInterval,
	}
}

func (r *retrying) PutModel(ctx context.Context, sessionID string, weights []float64, metrics map[string]float64) (string, error) {
	var versionID string

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.initial

	operation := func() error {
		id, err := r.reg.PutModel(ctx, sessionID, weights, metrics)
		if err != nil {
			return err
		}
		versionID = id

		return nil
	}

	// maxAttempts-1 retries after the first try.
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, r.maxAttempts-1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}

	return versionID, nil
}

func (r *retrying) GetLatestModel(ctx context.Context, tag string) ([]float64, Metadata, error) {
	return r.reg.GetLatestModel(ctx, tag)
}
