package model

import "time"

// Trend is the direction of a signal over its rolling window.
// Direction is literal: for a health score Increasing is good, for
// memory or latency Increasing is bad.
type Trend int

const (
	TrendUnknown Trend = iota
	TrendStable
	TrendIncreasing
	TrendDecreasing
)

func (t Trend) String() string {
	switch t {
	case TrendStable:
		return "STABLE"
	case TrendIncreasing:
		return "INCREASING"
	case TrendDecreasing:
		return "DECREASING"
	}
	return "UNKNOWN"
}

// HealthLabel renders the trend of a higher-is-better score.
func (t Trend) HealthLabel() string {
	switch t {
	case TrendIncreasing:
		return "IMPROVING"
	case TrendDecreasing:
		return "DEGRADING"
	case TrendStable:
		return "STABLE"
	}
	return "UNKNOWN"
}

func (t Trend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Trend) UnmarshalText(b []byte) error {
	switch string(b) {
	case "STABLE":
		*t = TrendStable
	case "INCREASING":
		*t = TrendIncreasing
	case "DECREASING":
		*t = TrendDecreasing
	default:
		*t = TrendUnknown
	}
	return nil
}

// HealthScore is the weighted system health composite.
type HealthScore struct {
	Overall           float64                   `json:"overall"`
	Components        map[ComponentType]float64 `json:"components"`
	ResourceHealth    float64                   `json:"resource_health"`
	PerformanceHealth float64                   `json:"performance_health"`
	Factors           []string                  `json:"factors,omitempty"`
	Trend             Trend                     `json:"trend"`
	Confidence        float64                   `json:"confidence"`
	Timestamp         time.Time                 `json:"timestamp"`
}

// Level buckets the overall score the same way factors are banded.
func (h HealthScore) Level() string {
	switch {
	case h.Timestamp.IsZero():
		return "UNKNOWN"
	case h.Overall < 0.3:
		return "CRITICAL"
	case h.Overall < 0.6:
		return "WARNING"
	}
	return "OK"
}
