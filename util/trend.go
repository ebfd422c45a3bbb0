package util

import "github.com/ftahirops/xdiag/model"

const (
	trendWindow    = 5
	trendMinSample = 6
	trendThreshold = 0.10
)

// ComputeTrend compares the mean of the last five values to the mean of the
// up-to-five values before them. A change above 10% either way is a trend;
// fewer than six samples is always stable.
func ComputeTrend(values []float64) model.Trend {
	if len(values) < trendMinSample {
		return model.TrendStable
	}
	recent := values[len(values)-trendWindow:]
	priorEnd := len(values) - trendWindow
	priorStart := priorEnd - trendWindow
	if priorStart < 0 {
		priorStart = 0
	}
	prior := values[priorStart:priorEnd]

	rm := Mean(recent, 0)
	pm := Mean(prior, 0)
	if pm == 0 {
		if rm > 0 {
			return model.TrendIncreasing
		}
		return model.TrendStable
	}
	change := (rm - pm) / pm
	switch {
	case change > trendThreshold:
		return model.TrendIncreasing
	case change < -trendThreshold:
		return model.TrendDecreasing
	}
	return model.TrendStable
}
