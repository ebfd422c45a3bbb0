package util

import "math"

// Clamp01 bounds v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Mean returns the arithmetic mean, or fallback for an empty slice.
func Mean(vals []float64, fallback float64) float64 {
	if len(vals) == 0 {
		return fallback
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// MinMax returns the smallest and largest values; zeros when empty.
func MinMax(vals []float64) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// PercentDelta computes (curr-prev)/prev*100, or 0 if prev is zero.
func PercentDelta(prev, curr float64) float64 {
	if prev == 0 {
		return 0
	}
	return (curr - prev) / math.Abs(prev) * 100
}

// CoefficientOfVariation is stddev/mean; 0 for fewer than two samples or zero mean.
func CoefficientOfVariation(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	mean := Mean(vals, 0)
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(vals))) / math.Abs(mean)
}

// Ratio returns num/den clamped to [0,1]; 1 when den is zero.
func Ratio(num, den float64) float64 {
	if den == 0 {
		return 1
	}
	return Clamp01(num / den)
}
