package engine

import (
	"fmt"
	"math"

	"github.com/ftahirops/xdiag/model"
	"github.com/ftahirops/xdiag/util"
)

// Term weights for OverallScore.
const (
	componentWeight   = 0.5
	resourceWeight    = 0.3
	performanceWeight = 0.2
)

// Factor bands.
const (
	criticalBand = 0.3
	warningBand  = 0.6
)

// LatencyScore buckets network latency into the five-step ladder.
func LatencyScore(ms float64) float64 {
	switch {
	case ms < 50:
		return 1.0
	case ms < 100:
		return 0.8
	case ms < 200:
		return 0.6
	case ms < 500:
		return 0.4
	}
	return 0.2
}

// ResourceHealth is the unweighted mean of memory headroom, CPU headroom,
// the latency ladder and battery fraction.
func ResourceHealth(u model.ResourceUsage) float64 {
	return util.Clamp01(util.Mean([]float64{
		1 - u.MemoryFraction(),
		1 - util.Clamp01(u.CPUPercent/100),
		LatencyScore(u.NetworkLatencyMs),
		util.Clamp01(u.BatteryPercent / 100),
	}, 1))
}

// metric reads m[key], falling back to def when absent or NaN.
func metric(m map[string]float64, key string, def float64) float64 {
	v, ok := m[key]
	if !ok || math.IsNaN(v) {
		return def
	}
	return v
}

// ComponentScore applies the component-specific rule. Every ComponentType
// must have a case; an unknown value is a programming error.
func ComponentScore(c model.ComponentType, m map[string]float64, u model.ResourceUsage) float64 {
	var score float64
	switch c {
	case model.ComponentConnectionPool:
		used := 0.0
		if limit := metric(m, "max_connections", 0); limit > 0 {
			used = metric(m, "active_connections", 0) / limit
		}
		score = 1 - 0.5*used - metric(m, "failure_rate", 0)
	case model.ComponentCache:
		score = metric(m, "hit_rate", 1)
	case model.ComponentCompression:
		score = 1 - metric(m, "error_rate", 0)
		if ratio, ok := m["compression_ratio"]; ok {
			score *= 0.5 + 0.5*math.Min(1, math.Max(0, ratio))
		}
	case model.ComponentPipeline:
		fill := 0.0
		if limit := metric(m, "max_queue_depth", 0); limit > 0 {
			fill = metric(m, "queue_depth", 0) / limit
		}
		score = (1 - fill) * (1 - metric(m, "error_rate", 0))
	case model.ComponentMetrics:
		score = 1 - metric(m, "dropped_ratio", 0)
	case model.ComponentNetwork:
		score = LatencyScore(metric(m, "latency_ms", u.NetworkLatencyMs))
	case model.ComponentSystem:
		score = (2 - u.MemoryFraction() - util.Clamp01(u.CPUPercent/100)) / 2
	default:
		panic(fmt.Sprintf("engine: no health rule for component %d", int(c)))
	}
	return util.Clamp01(score)
}

// resourceDriven reports whether a component is scored from resource samples
// and therefore needs no metrics source.
func resourceDriven(c model.ComponentType) bool {
	switch c {
	case model.ComponentNetwork, model.ComponentSystem:
		return true
	case model.ComponentConnectionPool, model.ComponentCache, model.ComponentCompression,
		model.ComponentPipeline, model.ComponentMetrics:
		return false
	}
	panic(fmt.Sprintf("engine: unclassified component %d", int(c)))
}

// OverallScore is 0.5*mean(components) + 0.3*resource + 0.2*performance.
// With no components the component term is 1.
func OverallScore(components []float64, resource, performance float64) float64 {
	c := util.Mean(components, 1)
	return util.Clamp01(componentWeight*c + resourceWeight*util.Clamp01(resource) + performanceWeight*util.Clamp01(performance))
}

// HealthFactors annotates every score that falls into a warning or critical band.
func HealthFactors(components map[model.ComponentType]float64, resource, performance float64) []string {
	var out []string
	for _, c := range model.AllComponents() {
		v, ok := components[c]
		if !ok {
			continue
		}
		if f := bandFactor(c.String()+" health", v); f != "" {
			out = append(out, f)
		}
	}
	if f := bandFactor("resource health", resource); f != "" {
		out = append(out, f)
	}
	if f := bandFactor("performance health", performance); f != "" {
		out = append(out, f)
	}
	return out
}

func bandFactor(label string, v float64) string {
	switch {
	case v < criticalBand:
		return fmt.Sprintf("CRITICAL: %s %.2f", label, v)
	case v < warningBand:
		return fmt.Sprintf("WARNING: %s %.2f", label, v)
	}
	return ""
}

// scoreConfidence is the share of components that reported, halved when the
// resource probe failed this tick.
func scoreConfidence(available int, probeFailed bool) float64 {
	conf := float64(available) / float64(model.ComponentCount())
	if probeFailed {
		conf /= 2
	}
	return util.Clamp01(conf)
}
