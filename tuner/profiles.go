package tuner

import (
	"errors"
	"sort"

	"github.com/ftahirops/xdiag/model"
)

// ErrUnknownProfile is returned for a profile name not in Profiles.
var ErrUnknownProfile = errors.New("unknown optimization profile")

// Profile is a named bundle of recommendations applied together.
type Profile struct {
	Name            string
	Description     string
	Recommendations []model.OptimizationRecommendation
}

// Profiles defines the built-in bundles.
var Profiles = map[string]Profile{
	"high_performance": {
		Name:        "high_performance",
		Description: "Favor throughput and latency over resource use",
		Recommendations: []model.OptimizationRecommendation{
			{Type: model.OptimizeCache, Priority: model.SeverityHigh, Confidence: 1, ExpectedImprovement: 0.2,
				Description: "Large cache", Parameters: map[string]float64{ParamCacheSizeMB: 1024}},
			{Type: model.OptimizeCPU, Priority: model.SeverityHigh, Confidence: 1, ExpectedImprovement: 0.2,
				Description: "More workers, faster sampling", Parameters: map[string]float64{ParamWorkerThreads: 32, ParamSamplingIntervalMs: 500}},
			{Type: model.OptimizeConnectionPool, Priority: model.SeverityHigh, Confidence: 1, ExpectedImprovement: 0.15,
				Description: "Wide connection pool", Parameters: map[string]float64{ParamPoolSize: 100, ParamConnTimeoutMs: 10000}},
			{Type: model.OptimizeCompression, Priority: model.SeverityMedium, Confidence: 1, ExpectedImprovement: 0.1,
				Description: "Light compression", Parameters: map[string]float64{ParamCompressionLevel: 1}},
		},
	},
	"balanced": {
		Name:        "balanced",
		Description: "Default trade-off between speed and resource use",
		Recommendations: []model.OptimizationRecommendation{
			{Type: model.OptimizeCache, Priority: model.SeverityMedium, Confidence: 1, ExpectedImprovement: 0.1,
				Description: "Default cache", Parameters: map[string]float64{ParamCacheSizeMB: 256}},
			{Type: model.OptimizeCPU, Priority: model.SeverityMedium, Confidence: 1, ExpectedImprovement: 0.1,
				Description: "Default workers", Parameters: map[string]float64{ParamWorkerThreads: 8, ParamSamplingIntervalMs: 1000}},
			{Type: model.OptimizeConnectionPool, Priority: model.SeverityMedium, Confidence: 1, ExpectedImprovement: 0.1,
				Description: "Default pool", Parameters: map[string]float64{ParamPoolSize: 20, ParamConnTimeoutMs: 5000}},
			{Type: model.OptimizeCompression, Priority: model.SeverityLow, Confidence: 1, ExpectedImprovement: 0.05,
				Description: "Default compression", Parameters: map[string]float64{ParamCompressionLevel: 6}},
		},
	},
	"efficiency": {
		Name:        "efficiency",
		Description: "Minimize memory, CPU and battery use",
		Recommendations: []model.OptimizationRecommendation{
			{Type: model.OptimizeMemory, Priority: model.SeverityHigh, Confidence: 1, ExpectedImprovement: 0.15,
				Description: "Small cache, aggressive GC", Parameters: map[string]float64{ParamCacheSizeMB: 64, ParamGCTargetPercent: 50}},
			{Type: model.OptimizeCPU, Priority: model.SeverityHigh, Confidence: 1, ExpectedImprovement: 0.15,
				Description: "Few workers, slow sampling", Parameters: map[string]float64{ParamWorkerThreads: 2, ParamSamplingIntervalMs: 5000}},
			{Type: model.OptimizeNetwork, Priority: model.SeverityMedium, Confidence: 1, ExpectedImprovement: 0.1,
				Description: "Batch requests", Parameters: map[string]float64{ParamRequestBatching: 1, ParamBatchSize: 128}},
			{Type: model.OptimizeCompression, Priority: model.SeverityMedium, Confidence: 1, ExpectedImprovement: 0.1,
				Description: "Strong compression", Parameters: map[string]float64{ParamCompressionLevel: 9}},
		},
	},
}

// ProfileNames lists the built-in profiles in name order.
func ProfileNames() []string {
	names := make([]string, 0, len(Profiles))
	for n := range Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LookupProfile returns a deep copy of the named profile.
func LookupProfile(name string) (Profile, error) {
	p, ok := Profiles[name]
	if !ok {
		return Profile{}, ErrUnknownProfile
	}
	recs := make([]model.OptimizationRecommendation, len(p.Recommendations))
	for i, r := range p.Recommendations {
		params := make(map[string]float64, len(r.Parameters))
		for k, v := range r.Parameters {
			params[k] = v
		}
		r.Parameters = params
		recs[i] = r
	}
	p.Recommendations = recs
	return p, nil
}

// mergedParameters flattens a profile into one change set. Later entries win.
func (p Profile) mergedParameters() map[string]float64 {
	out := make(map[string]float64)
	for _, r := range p.Recommendations {
		for k, v := range r.Parameters {
			out[k] = v
		}
	}
	return out
}
