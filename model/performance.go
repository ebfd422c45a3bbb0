package model

import "time"

// PerformanceSnapshot is captured on every tuner tick.
type PerformanceSnapshot struct {
	Timestamp           time.Time                 `json:"timestamp"`
	ResourceUsage       ResourceUsage             `json:"resource_usage"`
	HealthScore         float64                   `json:"health_score"`
	ComponentScores     map[ComponentType]float64 `json:"component_scores,omitempty"`
	BottleneckCount     int                       `json:"bottleneck_count"`
	CriticalBottlenecks int                       `json:"critical_bottlenecks"`
	ResponseTimeMs      float64                   `json:"response_time_ms"`
	Throughput          float64                   `json:"throughput"`
	ErrorRate           float64                   `json:"error_rate"`
}

// PerformanceBaseline is the averaged reference profile.
type PerformanceBaseline struct {
	AverageHealthScore  float64   `json:"average_health_score"`
	AverageResponseTime float64   `json:"average_response_time_ms"`
	AverageThroughput   float64   `json:"average_throughput"`
	AverageErrorRate    float64   `json:"average_error_rate"`
	ResourceUtilization float64   `json:"resource_utilization"`
	Samples             int       `json:"samples"`
	Timestamp           time.Time `json:"timestamp"`
}

// OptimizationType names a tunable area.
type OptimizationType string

const (
	OptimizeMemory         OptimizationType = "MEMORY"
	OptimizeCPU            OptimizationType = "CPU"
	OptimizeNetwork        OptimizationType = "NETWORK"
	OptimizeCache          OptimizationType = "CACHE"
	OptimizeConnectionPool OptimizationType = "CONNECTION_POOL"
	OptimizeCompression    OptimizationType = "COMPRESSION"
)

// OptimizationRecommendation is a proposed parameter change.
type OptimizationRecommendation struct {
	Type                OptimizationType   `json:"type"`
	Priority            Severity           `json:"priority"`
	Confidence          float64            `json:"confidence"`
	ExpectedImprovement float64            `json:"expected_improvement"`
	Description         string             `json:"description"`
	Parameters          map[string]float64 `json:"parameters"`
}

// Score is the ranking weight priority × expected improvement.
func (r OptimizationRecommendation) Score() float64 {
	return float64(r.Priority.Priority()) * r.ExpectedImprovement
}

// OptimizationExecution records one applied recommendation.
type OptimizationExecution struct {
	Key            string                     `json:"key"`
	Recommendation OptimizationRecommendation `json:"recommendation"`
	Success        bool                       `json:"success"`
	Improvement    float64                    `json:"improvement"`
	Before         PerformanceSnapshot        `json:"before"`
	After          PerformanceSnapshot        `json:"after"`
	Error          string                     `json:"error,omitempty"`
	AppliedAt      time.Time                  `json:"applied_at"`
	Previous       map[string]float64         `json:"previous,omitempty"`
	RolledBack     bool                       `json:"rolled_back"`
	RolledBackAt   time.Time                  `json:"rolled_back_at,omitempty"`
}

// OptimizationResult groups executions from one run or profile.
type OptimizationResult struct {
	ID                 string                  `json:"id"`
	Profile            string                  `json:"profile,omitempty"`
	Executions         []OptimizationExecution `json:"executions"`
	OverallImprovement float64                 `json:"overall_improvement"`
	Timestamp          time.Time               `json:"timestamp"`
}

// OptimizationStatus is the tuner's read-only summary.
type OptimizationStatus struct {
	BaselineEstablished bool                    `json:"baseline_established"`
	Baseline            *PerformanceBaseline    `json:"baseline,omitempty"`
	Active              []OptimizationExecution `json:"active,omitempty"`
	TotalExecuted       int                     `json:"total_executed"`
	Successful          int                     `json:"successful"`
	RolledBack          int                     `json:"rolled_back"`
	LastRun             time.Time               `json:"last_run,omitempty"`
	LastRollback        time.Time               `json:"last_rollback,omitempty"`
	Parameters          map[string]float64      `json:"parameters,omitempty"`
	PerformanceHealth   float64                 `json:"performance_health"`
	PerformanceTrend    Trend                   `json:"performance_trend"`
	Stability           float64                 `json:"stability"`
}
