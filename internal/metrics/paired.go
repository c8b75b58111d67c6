package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// exactWilcoxonLimit is the largest sample for which the exact null
// distribution is used.
const exactWilcoxonLimit = 50

// WilcoxonResult is a two-sided Wilcoxon signed-rank test.
type WilcoxonResult struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"pValue"`
	N         int     `json:"n"`
	Exact     bool    `json:"exact"`
}

// Wilcoxon tests paired samples x and y. Zero differences are dropped; the
// statistic is min(R+, R-). Samples of up to 50 nonzero differences without
// tied magnitudes use the exact distribution, larger or tied samples the
// normal approximation with tie correction and no continuity correction.
func Wilcoxon(x, y []float64) (WilcoxonResult, bool) {
	if len(x) != len(y) {
		return WilcoxonResult{}, false
	}
	var diffs []float64
	for i := range x {
		if d := y[i] - x[i]; d != 0 {
			diffs = append(diffs, d)
		}
	}
	n := len(diffs)
	if n == 0 {
		return WilcoxonResult{}, false
	}

	abs := make([]float64, n)
	for i, d := range diffs {
		abs[i] = math.Abs(d)
	}
	ranks, ties := averageRanks(abs)

	var rPlus, rMinus float64
	for i, d := range diffs {
		if d > 0 {
			rPlus += ranks[i]
		} else {
			rMinus += ranks[i]
		}
	}
	t := math.Min(rPlus, rMinus)
	res := WilcoxonResult{Statistic: t, N: n}

	if n <= exactWilcoxonLimit && len(ties) == 0 {
		res.Exact = true
		res.PValue = math.Min(1, 2*exactSignedRankCDF(n, int(t)))
		return res, true
	}

	fn := float64(n)
	mean := fn * (fn + 1) / 4
	variance := fn * (fn + 1) * (2*fn + 1)
	for _, c := range ties {
		tc := float64(c)
		variance -= 0.5 * tc * (tc*tc - 1)
	}
	se := math.Sqrt(variance / 24)
	if se == 0 {
		return WilcoxonResult{}, false
	}
	z := (t - mean) / se
	res.PValue = math.Min(1, 2*distuv.UnitNormal.Survival(math.Abs(z)))
	return res, true
}

// averageRanks ranks xs from 1, giving tied values their average rank. It
// also returns the sizes of the tie groups.
func averageRanks(xs []float64) ([]float64, []int) {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	ranks := make([]float64, len(xs))
	var ties []int
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		if j > i {
			ties = append(ties, j-i+1)
		}
		i = j + 1
	}
	return ranks, ties
}

// exactSignedRankCDF returns P(T <= k) for the signed-rank statistic of n
// untied observations.
func exactSignedRankCDF(n, k int) float64 {
	maxSum := n * (n + 1) / 2
	counts := make([]float64, maxSum+1)
	counts[0] = 1
	for r := 1; r <= n; r++ {
		for s := maxSum; s >= r; s-- {
			counts[s] += counts[s-r]
		}
	}
	if k > maxSum {
		k = maxSum
	}
	total := math.Pow(2, float64(n))
	return floats.Sum(counts[:k+1]) / total
}

// CohensDav is the paired effect size (mean(x)-mean(y)) / sqrt((var x + var y)/2)
// with sample variances.
func CohensDav(x, y []float64) MetricResult {
	if len(x) < 2 || len(x) != len(y) {
		return notCalculated(len(x))
	}
	vx := stat.Variance(x, nil)
	vy := stat.Variance(y, nil)
	denom := math.Sqrt((vx + vy) / 2)
	if denom == 0 {
		return notCalculated(len(x))
	}
	return MetricResult{Value: (stat.Mean(x, nil) - stat.Mean(y, nil)) / denom, Calculated: true, SampleSize: len(x)}
}

// Interval is a two-sided confidence interval.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// PairedCI is the Student t confidence interval of mean(y-x).
func PairedCI(x, y []float64, level float64) (Interval, bool) {
	n := len(x)
	if n < 2 || n != len(y) {
		return Interval{}, false
	}
	diff := make([]float64, n)
	floats.SubTo(diff, y, x)
	mean, sd := stat.MeanStdDev(diff, nil)
	sem := sd / math.Sqrt(float64(n))
	tc := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}.Quantile(1 - (1-level)/2)
	return Interval{Lower: mean - tc*sem, Upper: mean + tc*sem}, true
}

// BenjaminiHochberg returns FDR-adjusted p-values in input order.
func BenjaminiHochberg(ps []float64) []float64 {
	m := len(ps)
	if m == 0 {
		return nil
	}
	idx := make([]int, m)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return ps[idx[a]] < ps[idx[b]] })

	adj := make([]float64, m)
	running := 1.0
	for r := m - 1; r >= 0; r-- {
		i := idx[r]
		v := ps[i] * float64(m) / float64(r+1)
		running = math.Min(running, v)
		adj[i] = running
	}
	return adj
}

// SignificanceLabel maps a p-value to stars.
func SignificanceLabel(p float64) string {
	switch {
	case p < 0.001:
		return "***"
	case p < 0.01:
		return "**"
	case p < 0.05:
		return "*"
	default:
		return "ns"
	}
}
