package drift

import (
	"math"
	"sort"
)

const (
	defPSIBins = 10
	psiEpsilon = 1e-6
)

// psi is a population-stability-index statistic. Raw PSI is unbounded
// above, so the distance is normalized to 1-exp(-psi), which is 0 exactly
// when the binned distributions match and approaches 1 as they diverge.
type psi struct {
	bins int
}

func NewPSI(bins int) Statistic {
	if bins <= 0 {
		bins = defPSIBins
	}

	return &psi{bins: bins}
}

func (p *psi) Name() string {
	return StatisticPSI
}

func (p *psi) Distance(reference, current []float64) float64 {
	if len(reference) == 0 || len(current) == 0 {
		return 0
	}

	edges := binEdges(reference, p.bins)
	refHist := histogram(reference, edges)
	curHist := histogram(current, edges)

	var raw float64
	for i := range refHist {
		pr := math.Max(refHist[i], psiEpsilon)
		cu := math.Max(curHist[i], psiEpsilon)
		raw += (pr - cu) * math.Log(pr/cu)
	}

	return 1 - math.Exp(-raw)
}

// binEdges returns quantile cut points of the reference sample so each bin
// holds roughly the same reference mass.
func binEdges(sample []float64, bins int) []float64 {
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)

	edges := make([]float64, 0, bins-1)
	for i := 1; i < bins; i++ {
		idx := i * len(sorted) / bins
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		edges = append(edges, sorted[idx])
	}

	return edges
}

func histogram(sample []float64, edges []float64) []float64 {
	counts := make([]float64, len(edges)+1)
	for _, v := range sample {
		counts[bucket(v, edges)]++
	}
	for i := range counts {
		counts[i] /= float64(len(sample))
	}

	return counts
}

func bucket(v float64, edges []float64) int {
	for i, e := range edges {
		if v < e {
			return i
		}
	}

	return len(edges)
}
