// Package clientproxy represents one data-holding node inside a session.
// Local training is executed externally; the proxy only carries the
// contract: global weights in, (sample count, weight delta, metric) out.
package clientproxy

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/fedloop/fedloop/node"
	"github.com/fedloop/fedloop/pkg/errors"
	"github.com/fedloop/fedloop/session"
)

// Trainer is the externally-implemented local training step.
type Trainer interface {
	Train(ctx context.Context, globalWeights []float64) (numSamples int, delta []float64, metric float64, err error)
}

type Proxy struct {
	mu sync.Mutex

	node           node.Node
	trainer        Trainer
	schema         int
	malformedLimit int
	strikes        int
}

func New(n node.Node, trainer Trainer, schema, malformedLimit int) *Proxy {
	if malformedLimit <= 0 {
		malformedLimit = session.DefMalformedLimit
	}

	return &Proxy{
		node:           n,
		trainer:        trainer,
		schema:         schema,
		malformedLimit: malformedLimit,
	}
}

func (p *Proxy) Node() node.Node {
	return p.node
}

// Healthy reports whether the node is still admissible for rounds of the
// current session. Health resets with a new proxy, so exclusion never
// outlives the session.
func (p *Proxy) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.strikes < p.malformedLimit
}

func (p *Proxy) Strikes() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.strikes
}

// RunRound executes one local training step and validates its result
// before it ever reaches the coordinator. A malformed result counts a
// strike; past the limit the proxy reports ErrNodeExcluded.
func (p *Proxy) RunRound(ctx context.Context, sessionID string, round int, globalWeights []float64) (session.ClientUpdate, error) {
	if !p.Healthy() {
		return session.ClientUpdate{}, errors.ErrNodeExcluded
	}

	numSamples, delta, metric, err := p.trainer.Train(ctx, globalWeights)
	if err != nil {
		return session.ClientUpdate{}, err
	}

	if err := ValidateDelta(delta, p.schema); err != nil || numSamples <= 0 {
		p.mu.Lock()
		p.strikes++
		p.mu.Unlock()

		return session.ClientUpdate{}, errors.ErrMalformedUpdate
	}

	return session.ClientUpdate{
		SessionID:  sessionID,
		NodeID:     p.node.ID,
		Round:      round,
		NumSamples: numSamples,
		Delta:      delta,
		Metric:     metric,
		ReceivedAt: time.Now(),
	}, nil
}

// ValidateDelta checks a weight delta against the global model schema:
// exact length and finite values only.
func ValidateDelta(delta []float64, schema int) error {
	if len(delta) != schema {
		return errors.ErrMalformedUpdate
	}
	for _, v := range delta {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.ErrMalformedUpdate
		}
	}

	return nil
}
