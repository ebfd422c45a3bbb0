package model

import (
	"fmt"
	"strings"
	"time"
)

// AlertType identifies the signal an alert was raised for.
type AlertType string

const (
	AlertHealthDegraded      AlertType = "HEALTH_DEGRADED"
	AlertPerformanceDegraded AlertType = "PERFORMANCE_DEGRADED"
	AlertMemoryHigh          AlertType = "MEMORY_HIGH"
	AlertCPUHigh             AlertType = "CPU_HIGH"
	AlertBatteryLow          AlertType = "BATTERY_LOW"
	AlertNetworkLatency      AlertType = "NETWORK_LATENCY"
	AlertBottleneckDetected  AlertType = "BOTTLENECK_DETECTED"
	AlertCustom              AlertType = "CUSTOM"
)

// AllAlertTypes lists every alert type in a stable order.
func AllAlertTypes() []AlertType {
	return []AlertType{
		AlertHealthDegraded,
		AlertPerformanceDegraded,
		AlertMemoryHigh,
		AlertCPUHigh,
		AlertBatteryLow,
		AlertNetworkLatency,
		AlertBottleneckDetected,
		AlertCustom,
	}
}

// ParseAlertType validates a type name.
func ParseAlertType(s string) (AlertType, error) {
	t := AlertType(strings.ToUpper(s))
	for _, known := range AllAlertTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown alert type %q", s)
}

// AlertSeverity orders alerts: Info < Warning < Error < Critical.
type AlertSeverity int

const (
	AlertInfo AlertSeverity = iota
	AlertWarning
	AlertError
	AlertCritical
)

func (s AlertSeverity) String() string {
	switch s {
	case AlertInfo:
		return "INFO"
	case AlertWarning:
		return "WARNING"
	case AlertError:
		return "ERROR"
	case AlertCritical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// ParseAlertSeverity accepts the String() form, case-insensitive.
func ParseAlertSeverity(s string) (AlertSeverity, error) {
	switch strings.ToUpper(s) {
	case "INFO":
		return AlertInfo, nil
	case "WARNING", "WARN":
		return AlertWarning, nil
	case "ERROR":
		return AlertError, nil
	case "CRITICAL", "CRIT":
		return AlertCritical, nil
	}
	return AlertInfo, fmt.Errorf("unknown alert severity %q", s)
}

func (s AlertSeverity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AlertSeverity) UnmarshalText(b []byte) error {
	v, err := ParseAlertSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	StatusActive       AlertStatus = "ACTIVE"
	StatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	StatusResolved     AlertStatus = "RESOLVED"
	StatusAutoResolved AlertStatus = "AUTO_RESOLVED"
	StatusSuppressed   AlertStatus = "SUPPRESSED"
)

// Terminal reports whether no further transition is allowed.
func (s AlertStatus) Terminal() bool {
	return s == StatusResolved || s == StatusAutoResolved
}

// Alert is a stateful threshold-violation notification.
type Alert struct {
	ID              string            `json:"id"`
	Type            AlertType         `json:"type"`
	Severity        AlertSeverity     `json:"severity"`
	Message         string            `json:"message"`
	Context         map[string]string `json:"context,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	Status          AlertStatus       `json:"status"`
	AcknowledgedBy  string            `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  time.Time         `json:"acknowledged_at,omitempty"`
	ResolvedBy      string            `json:"resolved_by,omitempty"`
	ResolvedAt      time.Time         `json:"resolved_at,omitempty"`
	Resolution      string            `json:"resolution,omitempty"`
	OccurrenceCount int               `json:"occurrence_count"`
	LastUpdated     time.Time         `json:"last_updated"`
}

// Clone returns a deep copy safe to hand outside the engine lock.
func (a *Alert) Clone() Alert {
	c := *a
	if a.Context != nil {
		c.Context = make(map[string]string, len(a.Context))
		for k, v := range a.Context {
			c.Context[k] = v
		}
	}
	return c
}

// AlertThreshold is the per-type warning/critical configuration.
type AlertThreshold struct {
	Warning  float64 `json:"warning" yaml:"warning"`
	Critical float64 `json:"critical" yaml:"critical"`
	Enabled  bool    `json:"enabled" yaml:"enabled"`
}

// AlertEventKind labels an entry in the alert history.
type AlertEventKind string

const (
	EventCreated      AlertEventKind = "CREATED"
	EventUpdated      AlertEventKind = "UPDATED"
	EventAcknowledged AlertEventKind = "ACKNOWLEDGED"
	EventResolved     AlertEventKind = "RESOLVED"
	EventAutoResolved AlertEventKind = "AUTO_RESOLVED"
	EventSuppressed   AlertEventKind = "SUPPRESSED"
	EventRateLimited  AlertEventKind = "RATE_LIMITED"
)

// AlertEvent is one append-only history record.
type AlertEvent struct {
	Kind      AlertEventKind `json:"kind"`
	AlertID   string         `json:"alert_id"`
	Type      AlertType      `json:"type"`
	Severity  AlertSeverity  `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
	Alert     Alert          `json:"alert"`
}

// TypeCount pairs an alert type with an occurrence count.
type TypeCount struct {
	Type  AlertType `json:"type"`
	Count int       `json:"count"`
}

// AlertStatistics aggregates the alert history.
type AlertStatistics struct {
	Active            int                   `json:"active"`
	Last24h           int                   `json:"last_24h"`
	Last7d            int                   `json:"last_7d"`
	ByType            map[AlertType]int     `json:"by_type"`
	BySeverity        map[AlertSeverity]int `json:"by_severity"`
	ByType24h         map[AlertType]int     `json:"by_type_24h"`
	BySeverity24h     map[AlertSeverity]int `json:"by_severity_24h"`
	AverageResolution time.Duration         `json:"average_resolution"`
	Resolved          int                   `json:"resolved"`
	TopTypes          []TypeCount           `json:"top_types,omitempty"`
	RateLimited       int                   `json:"rate_limited"`
	Suppressed        int                   `json:"suppressed"`
}
