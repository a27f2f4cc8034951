package drift

import (
	"math"
	"sort"
)

// ks is the two-sample Kolmogorov-Smirnov statistic: the largest vertical
// distance between the two empirical CDFs. Already bounded to [0,1] and 0
// only for identical empirical distributions.
type ks struct{}

func NewKS() Statistic {
	return ks{}
}

func (ks) Name() string {
	return StatisticKS
}

func (ks) Distance(reference, current []float64) float64 {
	if len(reference) == 0 || len(current) == 0 {
		return 0
	}

	ref := make([]float64, len(reference))
	copy(ref, reference)
	sort.Float64s(ref)
	cur := make([]float64, len(current))
	copy(cur, current)
	sort.Float64s(cur)

	var distance float64
	i, j := 0, 0
	for i < len(ref) && j < len(cur) {
		// Both ECDFs step at the same value; consume the tie from each side
		// before measuring the gap, or equal samples score nonzero.
		v := math.Min(ref[i], cur[j])
		for i < len(ref) && ref[i] == v {
			i++
		}
		for j < len(cur) && cur[j] == v {
			j++
		}
		d := math.Abs(float64(i)/float64(len(ref)) - float64(j)/float64(len(cur)))
		if d > distance {
			distance = d
		}
	}

	return distance
}
