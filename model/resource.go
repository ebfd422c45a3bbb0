package model

import "time"

// ResourceUsage is one sample of host resources.
type ResourceUsage struct {
	CPUPercent       float64   `json:"cpu_percent"`
	MemoryUsedMB     float64   `json:"memory_used_mb"`
	MemoryTotalMB    float64   `json:"memory_total_mb"`
	NetworkLatencyMs float64   `json:"network_latency_ms"`
	BatteryPercent   float64   `json:"battery_percent"`
	ThreadCount      int       `json:"thread_count"`
	DiskPercent      float64   `json:"disk_percent"`
	Timestamp        time.Time `json:"timestamp"`
}

// MemoryFraction returns used/total in [0,1], or 0 when total is unknown.
func (r ResourceUsage) MemoryFraction() float64 {
	if r.MemoryTotalMB <= 0 {
		return 0
	}
	f := r.MemoryUsedMB / r.MemoryTotalMB
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// MemoryPercent is MemoryFraction scaled to 0..100.
func (r ResourceUsage) MemoryPercent() float64 {
	return r.MemoryFraction() * 100
}

// Resource signal names used by trends and alert contexts.
const (
	SignalMemory  = "memory"
	SignalCPU     = "cpu"
	SignalLatency = "network_latency"
	SignalBattery = "battery"
)

// ResourceTrend summarizes one resource signal over the rolling window.
type ResourceTrend struct {
	Signal  string  `json:"signal"`
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Trend   Trend   `json:"trend"`
}
