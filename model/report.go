package model

import "time"

// DiagnosticReport is the composite snapshot handed to UI and export.
type DiagnosticReport struct {
	GeneratedAt     time.Time         `json:"generated_at"`
	Health          HealthScore       `json:"health"`
	ComponentHealth []ComponentHealth `json:"component_health,omitempty"`
	Bottlenecks     []Bottleneck      `json:"bottlenecks,omitempty"`
	Resources       ResourceUsage     `json:"resources"`
	RecentResources []ResourceUsage   `json:"recent_resources,omitempty"`
	ResourceTrends  []ResourceTrend   `json:"resource_trends,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
	OverheadMs      float64           `json:"overhead_ms"`
	AvgOverheadMs   float64           `json:"avg_overhead_ms"`
}
