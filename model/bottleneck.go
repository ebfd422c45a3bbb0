package model

import (
	"fmt"
	"strings"
	"time"
)

// Severity is a totally ordered impact level.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// Priority is the numeric sort weight, 1 (LOW) to 4 (CRITICAL).
func (s Severity) Priority() int { return int(s) + 1 }

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "LOW":
		*s = SeverityLow
	case "MEDIUM":
		*s = SeverityMedium
	case "HIGH":
		*s = SeverityHigh
	case "CRITICAL":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// BottleneckType classifies a detected bottleneck.
type BottleneckType string

const (
	BottleneckComponentDegradation BottleneckType = "COMPONENT_DEGRADATION"
	BottleneckMemoryPressure       BottleneckType = "MEMORY_PRESSURE"
	BottleneckCPUSaturation        BottleneckType = "CPU_SATURATION"
	BottleneckNetworkLatency       BottleneckType = "NETWORK_LATENCY"
	BottleneckMemoryLeak           BottleneckType = "MEMORY_LEAK"
	BottleneckThreadContention     BottleneckType = "THREAD_CONTENTION"
	BottleneckResourceExhaustion   BottleneckType = "RESOURCE_EXHAUSTION"
)

// Impact describes how much a bottleneck costs.
type Impact struct {
	Magnitude          float64         `json:"magnitude"`
	AffectedComponents []ComponentType `json:"affected_components,omitempty"`
	UserImpact         string          `json:"user_impact"`
}

// Bottleneck is an immutable detection record.
type Bottleneck struct {
	Type            BottleneckType `json:"type"`
	Severity        Severity       `json:"severity"`
	Component       ComponentType  `json:"component"`
	Impact          Impact         `json:"impact"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}
