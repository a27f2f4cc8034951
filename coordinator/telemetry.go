package coordinator

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
)

// Telemetry carries the domain counters consumed by the external metrics
// system: rounds completed, session outcomes and observed drift scores.
type Telemetry struct {
	RoundsCompleted metrics.Counter
	SessionOutcomes metrics.Counter
	DriftScore      metrics.Histogram
}

func NopTelemetry() *Telemetry {
	return &Telemetry{
		RoundsCompleted: discard.NewCounter(),
		SessionOutcomes: discard.NewCounter(),
		DriftScore:      discard.NewHistogram(),
	}
}
