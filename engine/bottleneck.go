package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/ftahirops/xdiag/model"
	"github.com/ftahirops/xdiag/util"
)

// Resource bottleneck thresholds.
const (
	memHighFraction     = 0.8
	memCriticalFraction = 0.9
	cpuHighPct          = 75.0
	cpuCriticalPct      = 90.0
	latHighMs           = 100.0
	latCriticalMs       = 200.0
	latMagnitudeCapMs   = 500.0
	degradedCutoff      = 0.1
)

// BottleneckInput is everything one detection pass reads.
type BottleneckInput struct {
	Components map[model.ComponentType]float64
	Resources  model.ResourceUsage
	// Trends keyed by model.Signal* name.
	Trends map[string]model.Trend
	Now    time.Time
}

// DetectBottlenecks runs the component, resource and trend passes and returns
// the combined list ordered by severity then magnitude, both descending.
func DetectBottlenecks(in BottleneckInput) []model.Bottleneck {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	var out []model.Bottleneck
	out = append(out, componentPass(in)...)
	out = append(out, resourcePass(in)...)
	out = append(out, trendPass(in)...)
	sortBottlenecks(out)
	return out
}

func sortBottlenecks(bs []model.Bottleneck) {
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].Severity != bs[j].Severity {
			return bs[i].Severity > bs[j].Severity
		}
		return bs[i].Impact.Magnitude > bs[j].Impact.Magnitude
	})
}

func componentPass(in BottleneckInput) []model.Bottleneck {
	var out []model.Bottleneck
	for _, c := range model.AllComponents() {
		score, ok := in.Components[c]
		if !ok || score >= criticalBand {
			continue
		}
		sev := model.SeverityHigh
		if score < degradedCutoff {
			sev = model.SeverityCritical
		}
		out = append(out, model.Bottleneck{
			Type:      model.BottleneckComponentDegradation,
			Severity:  sev,
			Component: c,
			Impact: model.Impact{
				Magnitude:          1 - score,
				AffectedComponents: []model.ComponentType{c},
				UserImpact:         fmt.Sprintf("%s is degraded (health %.2f)", c, score),
			},
			Recommendations: componentAdvice(c),
			Timestamp:       in.Now,
		})
	}
	return out
}

func componentAdvice(c model.ComponentType) []string {
	switch c {
	case model.ComponentConnectionPool:
		return []string{"Increase connection pool size", "Check for leaked connections"}
	case model.ComponentCache:
		return []string{"Increase cache capacity", "Review cache eviction policy"}
	case model.ComponentCompression:
		return []string{"Lower compression level", "Check input data for already-compressed payloads"}
	case model.ComponentPipeline:
		return []string{"Add pipeline workers", "Reduce batch size to drain the queue"}
	case model.ComponentMetrics:
		return []string{"Reduce metrics sampling rate", "Increase metrics buffer size"}
	case model.ComponentNetwork:
		return []string{"Check network connectivity", "Enable request batching"}
	case model.ComponentSystem:
		return []string{"Reduce background work", "Free memory held by idle components"}
	}
	panic(fmt.Sprintf("engine: no advice for component %d", int(c)))
}

func resourcePass(in BottleneckInput) []model.Bottleneck {
	var out []model.Bottleneck
	u := in.Resources

	if mem := u.MemoryFraction(); mem > memHighFraction {
		sev := model.SeverityHigh
		if mem > memCriticalFraction {
			sev = model.SeverityCritical
		}
		out = append(out, model.Bottleneck{
			Type:      model.BottleneckMemoryPressure,
			Severity:  sev,
			Component: model.ComponentSystem,
			Impact: model.Impact{
				Magnitude: mem,
				AffectedComponents: []model.ComponentType{
					model.ComponentCache, model.ComponentPipeline, model.ComponentSystem,
				},
				UserImpact: fmt.Sprintf("memory at %.0f%%, allocations may stall", mem*100),
			},
			Recommendations: []string{
				"Reduce cache size",
				"Trigger garbage collection",
				"Lower pipeline buffer limits",
			},
			Timestamp: in.Now,
		})
	}

	if u.CPUPercent > cpuHighPct {
		sev := model.SeverityHigh
		if u.CPUPercent > cpuCriticalPct {
			sev = model.SeverityCritical
		}
		out = append(out, model.Bottleneck{
			Type:      model.BottleneckCPUSaturation,
			Severity:  sev,
			Component: model.ComponentSystem,
			Impact: model.Impact{
				Magnitude: util.Clamp01(u.CPUPercent / 100),
				AffectedComponents: []model.ComponentType{
					model.ComponentPipeline, model.ComponentCompression, model.ComponentSystem,
				},
				UserImpact: fmt.Sprintf("CPU at %.0f%%, processing is delayed", u.CPUPercent),
			},
			Recommendations: []string{
				"Reduce worker thread count",
				"Lower compression level",
				"Defer non-critical background tasks",
			},
			Timestamp: in.Now,
		})
	}

	if u.NetworkLatencyMs > latHighMs {
		sev := model.SeverityHigh
		if u.NetworkLatencyMs > latCriticalMs {
			sev = model.SeverityCritical
		}
		mag := u.NetworkLatencyMs / latMagnitudeCapMs
		if mag > 1 {
			mag = 1
		}
		out = append(out, model.Bottleneck{
			Type:      model.BottleneckNetworkLatency,
			Severity:  sev,
			Component: model.ComponentNetwork,
			Impact: model.Impact{
				Magnitude: mag,
				AffectedComponents: []model.ComponentType{
					model.ComponentNetwork, model.ComponentConnectionPool,
				},
				UserImpact: fmt.Sprintf("network latency %.0fms, responses are slow", u.NetworkLatencyMs),
			},
			Recommendations: []string{
				"Enable request batching",
				"Increase connection keep-alive",
				"Enable payload compression",
			},
			Timestamp: in.Now,
		})
	}
	return out
}

func trendPass(in BottleneckInput) []model.Bottleneck {
	var out []model.Bottleneck
	memUp := in.Trends[model.SignalMemory] == model.TrendIncreasing
	cpuUp := in.Trends[model.SignalCPU] == model.TrendIncreasing
	latUp := in.Trends[model.SignalLatency] == model.TrendIncreasing

	if memUp {
		out = append(out, model.Bottleneck{
			Type:      model.BottleneckMemoryLeak,
			Severity:  model.SeverityMedium,
			Component: model.ComponentSystem,
			Impact: model.Impact{
				Magnitude:          in.Resources.MemoryFraction(),
				AffectedComponents: []model.ComponentType{model.ComponentSystem, model.ComponentCache},
				UserImpact:         "memory usage keeps rising",
			},
			Recommendations: []string{"Inspect cache growth", "Check for unreleased buffers"},
			Timestamp:       in.Now,
		})
	}
	if cpuUp {
		out = append(out, model.Bottleneck{
			Type:      model.BottleneckThreadContention,
			Severity:  model.SeverityMedium,
			Component: model.ComponentSystem,
			Impact: model.Impact{
				Magnitude:          util.Clamp01(in.Resources.CPUPercent / 100),
				AffectedComponents: []model.ComponentType{model.ComponentSystem, model.ComponentPipeline},
				UserImpact:         "CPU usage keeps rising",
			},
			Recommendations: []string{"Review lock hold times", "Reduce concurrent workers"},
			Timestamp:       in.Now,
		})
	}

	rising := 0
	for _, up := range []bool{memUp, cpuUp, latUp} {
		if up {
			rising++
		}
	}
	if rising >= 2 {
		out = append(out, model.Bottleneck{
			Type:      model.BottleneckResourceExhaustion,
			Severity:  model.SeverityHigh,
			Component: model.ComponentSystem,
			Impact: model.Impact{
				Magnitude:          float64(rising) / 3,
				AffectedComponents: model.AllComponents(),
				UserImpact:         fmt.Sprintf("%d of 3 resource signals rising together", rising),
			},
			Recommendations: []string{"Apply the efficiency profile", "Shed non-essential load"},
			Timestamp:       in.Now,
		})
	}
	return out
}
