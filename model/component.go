package model

import (
	"fmt"
	"time"
)

// ComponentType identifies a monitored subsystem.
type ComponentType int

const (
	ComponentConnectionPool ComponentType = iota
	ComponentCache
	ComponentCompression
	ComponentPipeline
	ComponentMetrics
	ComponentNetwork
	ComponentSystem
	componentCount
)

var componentNames = [componentCount]string{
	"CONNECTION_POOL",
	"CACHE",
	"COMPRESSION",
	"PIPELINE",
	"METRICS",
	"NETWORK",
	"SYSTEM",
}

// AllComponents returns every component kind in declaration order.
func AllComponents() []ComponentType {
	out := make([]ComponentType, 0, componentCount)
	for c := ComponentType(0); c < componentCount; c++ {
		out = append(out, c)
	}
	return out
}

// ComponentCount is the number of component kinds.
func ComponentCount() int { return int(componentCount) }

func (c ComponentType) String() string {
	if c < 0 || c >= componentCount {
		return "UNKNOWN"
	}
	return componentNames[c]
}

// Valid reports whether c is a declared component kind.
func (c ComponentType) Valid() bool {
	return c >= 0 && c < componentCount
}

// ParseComponentType maps a name like "CACHE" back to its ComponentType.
func ParseComponentType(s string) (ComponentType, error) {
	for i, name := range componentNames {
		if name == s {
			return ComponentType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown component %q", s)
}

func (c ComponentType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ComponentType) UnmarshalText(b []byte) error {
	v, err := ParseComponentType(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ComponentHealth is the per-tick health of one component.
type ComponentHealth struct {
	Component ComponentType      `json:"component"`
	Score     float64            `json:"score"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}
