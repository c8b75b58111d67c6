// Package metrics holds the descriptive and inferential statistics used by
// the suspicious-response checks and the group analysis.
package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// MetricResult is a statistic that may not be computable for small samples.
type MetricResult struct {
	Value      float64 `json:"value"`
	Calculated bool    `json:"calculated"`
	SampleSize int     `json:"sampleSize,omitempty"`
}

func notCalculated(n int) MetricResult {
	return MetricResult{Value: math.NaN(), SampleSize: n}
}

// Mean returns the arithmetic mean.
func Mean(xs []float64) MetricResult {
	if len(xs) == 0 {
		return notCalculated(0)
	}
	return MetricResult{Value: stat.Mean(xs, nil), Calculated: true, SampleSize: len(xs)}
}

// StdDev returns the sample standard deviation (n-1 denominator).
func StdDev(xs []float64) MetricResult {
	if len(xs) < 2 {
		return notCalculated(len(xs))
	}
	return MetricResult{Value: stat.StdDev(xs, nil), Calculated: true, SampleSize: len(xs)}
}

// Quantile interpolates linearly between order statistics (the common
// "type 7" definition). xs need not be sorted.
func Quantile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// IQRBounds returns the Tukey fences Q1-1.5*IQR and Q3+1.5*IQR.
func IQRBounds(xs []float64) (lower, upper float64) {
	q1 := Quantile(xs, 0.25)
	q3 := Quantile(xs, 0.75)
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr
}

// TrimmedMean averages the values inside the IQR fences.
func TrimmedMean(xs []float64) MetricResult {
	if len(xs) == 0 {
		return notCalculated(0)
	}
	lower, upper := IQRBounds(xs)
	kept := make([]float64, 0, len(xs))
	for _, x := range xs {
		if x >= lower && x <= upper {
			kept = append(kept, x)
		}
	}
	return Mean(kept)
}
