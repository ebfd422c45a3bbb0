package tuner

import (
	"fmt"
	"math"
	"sort"

	"github.com/ftahirops/xdiag/model"
)

// Rule triggers.
const (
	memoryTrigger    = 0.8
	cpuTrigger       = 75.0
	latencyTrigger   = 100.0
	componentTrigger = 0.6
)

// AnalysisInput is what one recommendation pass reads.
type AnalysisInput struct {
	Snapshot    model.PerformanceSnapshot
	Bottlenecks []model.Bottleneck
	Params      map[string]float64
}

// Analyze applies the rule set to a snapshot and returns the recommendations
// at or above minConfidence, ranked by priority times expected improvement.
func Analyze(in AnalysisInput, minConfidence float64) []model.OptimizationRecommendation {
	s := in.Snapshot
	u := s.ResourceUsage
	p := func(name string) float64 {
		if v, ok := in.Params[name]; ok {
			return v
		}
		return DefaultParameters()[name]
	}
	var recs []model.OptimizationRecommendation

	if mem := u.MemoryFraction(); mem > memoryTrigger {
		recs = append(recs, model.OptimizationRecommendation{
			Type:                model.OptimizeMemory,
			Priority:            bySeverity(mem > 0.9, model.SeverityCritical, model.SeverityHigh),
			Confidence:          0.85,
			ExpectedImprovement: 0.15,
			Description:         fmt.Sprintf("Memory at %.0f%%: shrink caches and collect garbage sooner", mem*100),
			Parameters: map[string]float64{
				ParamCacheSizeMB:     clampParam(ParamCacheSizeMB, p(ParamCacheSizeMB)*0.75),
				ParamGCTargetPercent: clampParam(ParamGCTargetPercent, p(ParamGCTargetPercent)*0.75),
			},
		})
	}

	if u.CPUPercent > cpuTrigger {
		recs = append(recs, model.OptimizationRecommendation{
			Type:                model.OptimizeCPU,
			Priority:            bySeverity(u.CPUPercent > 90, model.SeverityCritical, model.SeverityHigh),
			Confidence:          0.8,
			ExpectedImprovement: 0.2,
			Description:         fmt.Sprintf("CPU at %.0f%%: reduce worker threads and compression effort", u.CPUPercent),
			Parameters: map[string]float64{
				ParamWorkerThreads:      clampParam(ParamWorkerThreads, math.Round(p(ParamWorkerThreads)*0.75)),
				ParamSamplingIntervalMs: clampParam(ParamSamplingIntervalMs, p(ParamSamplingIntervalMs)*2),
			},
		})
	}

	if u.NetworkLatencyMs > latencyTrigger {
		recs = append(recs, model.OptimizationRecommendation{
			Type:                model.OptimizeNetwork,
			Priority:            bySeverity(u.NetworkLatencyMs > 200, model.SeverityCritical, model.SeverityHigh),
			Confidence:          0.75,
			ExpectedImprovement: 0.25,
			Description:         fmt.Sprintf("Latency %.0fms: batch requests and keep connections alive longer", u.NetworkLatencyMs),
			Parameters: map[string]float64{
				ParamRequestBatching: 1,
				ParamBatchSize:       clampParam(ParamBatchSize, p(ParamBatchSize)*2),
				ParamKeepAliveSec:    clampParam(ParamKeepAliveSec, p(ParamKeepAliveSec)*2),
			},
		})
	}

	if h, ok := s.ComponentScores[model.ComponentCache]; ok && h < componentTrigger {
		recs = append(recs, model.OptimizationRecommendation{
			Type:                model.OptimizeCache,
			Priority:            bySeverity(h < 0.3, model.SeverityHigh, model.SeverityMedium),
			Confidence:          0.9,
			ExpectedImprovement: 0.2,
			Description:         fmt.Sprintf("Cache health %.2f: grow the cache", h),
			Parameters: map[string]float64{
				ParamCacheSizeMB: clampParam(ParamCacheSizeMB, p(ParamCacheSizeMB)*1.5),
			},
		})
	}

	if h, ok := s.ComponentScores[model.ComponentConnectionPool]; ok && h < componentTrigger {
		recs = append(recs, model.OptimizationRecommendation{
			Type:                model.OptimizeConnectionPool,
			Priority:            bySeverity(h < 0.3, model.SeverityHigh, model.SeverityMedium),
			Confidence:          0.8,
			ExpectedImprovement: 0.15,
			Description:         fmt.Sprintf("Connection pool health %.2f: enlarge the pool", h),
			Parameters: map[string]float64{
				ParamPoolSize:      clampParam(ParamPoolSize, math.Round(p(ParamPoolSize)*1.5)),
				ParamConnTimeoutMs: clampParam(ParamConnTimeoutMs, p(ParamConnTimeoutMs)*1.5),
			},
		})
	}

	if h, ok := s.ComponentScores[model.ComponentCompression]; ok && h < componentTrigger {
		recs = append(recs, model.OptimizationRecommendation{
			Type:                model.OptimizeCompression,
			Priority:            bySeverity(h < 0.3, model.SeverityMedium, model.SeverityLow),
			Confidence:          0.65,
			ExpectedImprovement: 0.10,
			Description:         fmt.Sprintf("Compression health %.2f: lower the compression level", h),
			Parameters: map[string]float64{
				ParamCompressionLevel: clampParam(ParamCompressionLevel, p(ParamCompressionLevel)-2),
			},
		})
	}

	escalate(recs, in.Bottlenecks)

	out := recs[:0]
	for _, r := range recs {
		if r.Confidence >= minConfidence {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score() > out[j].Score()
	})
	return out
}

// escalate raises recommendations addressing a critical bottleneck to
// critical priority.
func escalate(recs []model.OptimizationRecommendation, bs []model.Bottleneck) {
	hot := make(map[model.OptimizationType]bool)
	for _, b := range bs {
		if b.Severity != model.SeverityCritical {
			continue
		}
		if t, ok := targetFor(b); ok {
			hot[t] = true
		}
	}
	for i := range recs {
		if hot[recs[i].Type] {
			recs[i].Priority = model.SeverityCritical
		}
	}
}

// targetFor maps a bottleneck to the optimization type that addresses it.
func targetFor(b model.Bottleneck) (model.OptimizationType, bool) {
	switch b.Type {
	case model.BottleneckMemoryPressure, model.BottleneckMemoryLeak:
		return model.OptimizeMemory, true
	case model.BottleneckCPUSaturation, model.BottleneckThreadContention:
		return model.OptimizeCPU, true
	case model.BottleneckNetworkLatency:
		return model.OptimizeNetwork, true
	case model.BottleneckComponentDegradation:
		switch b.Component {
		case model.ComponentCache:
			return model.OptimizeCache, true
		case model.ComponentConnectionPool:
			return model.OptimizeConnectionPool, true
		case model.ComponentCompression:
			return model.OptimizeCompression, true
		case model.ComponentNetwork:
			return model.OptimizeNetwork, true
		}
	}
	return "", false
}

// selectToApply drops types already running and caps the batch so no more
// than maxConcurrent executions are in flight.
func selectToApply(recs []model.OptimizationRecommendation, active map[model.OptimizationType]bool, maxConcurrent int) []model.OptimizationRecommendation {
	room := maxConcurrent - len(active)
	var out []model.OptimizationRecommendation
	for _, r := range recs {
		if room <= 0 {
			break
		}
		if active[r.Type] {
			continue
		}
		out = append(out, r)
		room--
	}
	return out
}

func bySeverity(cond bool, yes, no model.Severity) model.Severity {
	if cond {
		return yes
	}
	return no
}

func clampParam(name string, v float64) float64 {
	b, ok := paramBounds[name]
	if !ok {
		return v
	}
	return math.Min(b[1], math.Max(b[0], v))
}
