package aggregate

import (
	"errors"

	"github.com/fedloop/fedloop/session"
)

var (
	ErrNoUpdates     = errors.New("no updates provided for aggregation")
	ErrShapeMismatch = errors.New("updates carry deltas of different shapes")
	ErrNoSamples     = errors.New("updates carry no samples")
)

// Result is the weighted aggregate of one round's accepted updates.
type Result struct {
	Delta        []float64 `json:"delta"`
	Metric       float64   `json:"metric"`
	TotalSamples int64     `json:"total_samples"`
	NumUpdates   int       `json:"num_updates"`
}

type Aggregator interface {
	Aggregate(updates []session.ClientUpdate) (Result, error)
}

type fedAvg struct{}

// NewFedAvg returns the sample-count-weighted mean aggregator:
// result = Σ(n_i × delta_i) / Σ(n_i). The same weighting applies to the
// local evaluation metric.
func NewFedAvg() Aggregator {
	return fedAvg{}
}

func (fedAvg) Aggregate(updates []session.ClientUpdate) (Result, error) {
	if len(updates) == 0 {
		return Result{}, ErrNoUpdates
	}

	shape := len(updates[0].Delta)
	var totalSamples int64
	for _, u := range updates {
		if len(u.Delta) != shape {
			return Result{}, ErrShapeMismatch
		}
		totalSamples += int64(u.NumSamples)
	}
	if totalSamples <= 0 {
		return Result{}, ErrNoSamples
	}

	delta := make([]float64, shape)
	var metric float64
	norm := float64(totalSamples)
	for _, u := range updates {
		w := float64(u.NumSamples)
		for i, v := range u.Delta {
			delta[i] += v * w
		}
		metric += u.Metric * w
	}
	for i := range delta {
		delta[i] /= norm
	}
	metric /= norm

	return Result{
		Delta:        delta,
		Metric:       metric,
		TotalSamples: totalSamples,
		NumUpdates:   len(updates),
	}, nil
}
