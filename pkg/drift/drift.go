// Package drift compares a reference data window against a current one and
// produces a verdict used to gate retraining. Statistics are pluggable; the
// monitor never blocks the coordination path.
package drift

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

type Verdict string

const (
	VerdictOK               Verdict = "OK"
	VerdictDrift            Verdict = "DRIFT"
	VerdictInsufficientData Verdict = "INSUFFICIENT_DATA"
)

const (
	StatisticPSI = "psi"
	StatisticKS  = "ks"

	ReduceMean = "mean"
	ReduceMax  = "max"

	DefThreshold  = 0.5
	DefMinSamples = 30
)

var (
	ErrNoCommonFeatures = errors.New("windows share no features")
	ErrEmptyWindow      = errors.New("window has no samples")
	ErrUnknownStatistic = errors.New("unknown drift statistic")
	ErrUnknownReduction = errors.New("unknown reduction")
)

// Statistic is a per-feature distributional distance bounded to [0,1],
// 0 only when both samples are identical under the statistic.
type Statistic interface {
	Name() string
	Distance(reference, current []float64) float64
}

// Window is a named sample of feature columns.
type Window struct {
	ID       string               `json:"id"`
	Features map[string][]float64 `json:"features"`
}

// SampleCount returns the shortest feature column; a ragged window only
// counts rows present in every feature.
func (w Window) SampleCount() int {
	count := -1
	for _, col := range w.Features {
		if count < 0 || len(col) < count {
			count = len(col)
		}
	}
	if count < 0 {
		return 0
	}

	return count
}

type Report struct {
	ReferenceWindow string             `json:"reference_window"`
	CurrentWindow   string             `json:"current_window"`
	Score           float64            `json:"score"`
	Verdict         Verdict            `json:"verdict"`
	Statistic       string             `json:"statistic"`
	FeatureScores   map[string]float64 `json:"feature_scores,omitempty"`
	SampleCount     int                `json:"sample_count"`
	ComputedAt      time.Time          `json:"computed_at"`
}

type Config struct {
	Statistic  string  `json:"statistic"`
	Reduction  string  `json:"reduction"`
	Threshold  float64 `json:"threshold"`
	MinSamples int     `json:"min_samples"`
}

func (c *Config) Validate() error {
	if c.Statistic == "" {
		c.Statistic = StatisticPSI
	}
	if c.Reduction == "" {
		c.Reduction = ReduceMean
	}
	if c.Reduction != ReduceMean && c.Reduction != ReduceMax {
		return fmt.Errorf("%w: %s", ErrUnknownReduction, c.Reduction)
	}
	if c.Threshold == 0 {
		c.Threshold = DefThreshold
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return errors.New("threshold must be in [0,1]")
	}
	if c.MinSamples == 0 {
		c.MinSamples = DefMinSamples
	}
	if c.MinSamples < 1 {
		return errors.New("min_samples must be positive")
	}

	return nil
}

type Monitor struct {
	stat       Statistic
	reduction  string
	threshold  float64
	minSamples int
}

func NewMonitor(cfg Config) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var stat Statistic
	switch cfg.Statistic {
	case StatisticPSI:
		stat = NewPSI(0)
	case StatisticKS:
		stat = NewKS()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStatistic, cfg.Statistic)
	}

	return &Monitor{
		stat:       stat,
		reduction:  cfg.Reduction,
		threshold:  cfg.Threshold,
		minSamples: cfg.MinSamples,
	}, nil
}

// NewMonitorWith builds a monitor around a caller-supplied statistic.
func NewMonitorWith(stat Statistic, cfg Config) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if stat == nil {
		return nil, ErrUnknownStatistic
	}

	return &Monitor{
		stat:       stat,
		reduction:  cfg.Reduction,
		threshold:  cfg.Threshold,
		minSamples: cfg.MinSamples,
	}, nil
}

// Compute produces a drift report. A current window below the minimum
// sample count always yields VerdictInsufficientData, never OK.
func (m *Monitor) Compute(reference, current Window) (Report, error) {
	if reference.SampleCount() == 0 {
		return Report{}, ErrEmptyWindow
	}
	// An empty current window is below any minimum sample count.
	if current.SampleCount() == 0 {
		return Report{
			ReferenceWindow: reference.ID,
			CurrentWindow:   current.ID,
			Verdict:         VerdictInsufficientData,
			Statistic:       m.stat.Name(),
			ComputedAt:      time.Now(),
		}, nil
	}

	scores := make(map[string]float64)
	names := make([]string, 0, len(reference.Features))
	for name := range reference.Features {
		if _, ok := current.Features[name]; ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return Report{}, ErrNoCommonFeatures
	}
	sort.Strings(names)

	for _, name := range names {
		scores[name] = clamp01(m.stat.Distance(reference.Features[name], current.Features[name]))
	}

	score := reduce(scores, names, m.reduction)

	report := Report{
		ReferenceWindow: reference.ID,
		CurrentWindow:   current.ID,
		Score:           score,
		Statistic:       m.stat.Name(),
		FeatureScores:   scores,
		SampleCount:     current.SampleCount(),
		ComputedAt:      time.Now(),
	}

	switch {
	case current.SampleCount() < m.minSamples:
		report.Verdict = VerdictInsufficientData
	case score > m.threshold:
		report.Verdict = VerdictDrift
	default:
		report.Verdict = VerdictOK
	}

	return report, nil
}

func reduce(scores map[string]float64, names []string, reduction string) float64 {
	switch reduction {
	case ReduceMax:
		var max float64
		for _, name := range names {
			if scores[name] > max {
				max = scores[name]
			}
		}

		return max
	default:
		var sum float64
		for _, name := range names {
			sum += scores[name]
		}

		return sum / float64(len(names))
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}

	return v
}
