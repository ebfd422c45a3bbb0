package alerting

import (
	"fmt"

	"github.com/ftahirops/xdiag/model"
)

// DefaultThresholds returns the built-in warning/critical values.
func DefaultThresholds() map[model.AlertType]model.AlertThreshold {
	return map[model.AlertType]model.AlertThreshold{
		model.AlertHealthDegraded:      {Warning: 0.6, Critical: 0.3, Enabled: true},
		model.AlertPerformanceDegraded: {Warning: 0.7, Critical: 0.5, Enabled: true},
		model.AlertMemoryHigh:          {Warning: 80, Critical: 90, Enabled: true},
		model.AlertCPUHigh:             {Warning: 80, Critical: 95, Enabled: true},
		model.AlertBatteryLow:          {Warning: 20, Critical: 10, Enabled: true},
		model.AlertNetworkLatency:      {Warning: 200, Critical: 500, Enabled: true},
		model.AlertBottleneckDetected:  {Warning: 1, Critical: 3, Enabled: true},
	}
}

// lowerIsWorse reports the violation direction for a threshold-driven type.
func lowerIsWorse(t model.AlertType) bool {
	switch t {
	case model.AlertHealthDegraded, model.AlertPerformanceDegraded, model.AlertBatteryLow:
		return true
	case model.AlertMemoryHigh, model.AlertCPUHigh, model.AlertNetworkLatency,
		model.AlertBottleneckDetected, model.AlertCustom:
		return false
	}
	panic(fmt.Sprintf("alerting: no threshold direction for %q", t))
}

// classify returns the severity v warrants under th, or false when v is
// within bounds.
func classify(t model.AlertType, th model.AlertThreshold, v float64) (model.AlertSeverity, bool) {
	if lowerIsWorse(t) {
		switch {
		case v <= th.Critical:
			return model.AlertCritical, true
		case v < th.Warning:
			return model.AlertWarning, true
		}
		return model.AlertInfo, false
	}
	switch {
	case v >= th.Critical:
		return model.AlertCritical, true
	case v >= th.Warning:
		return model.AlertWarning, true
	}
	return model.AlertInfo, false
}

// recovered reports whether v is back on the safe side of the warning value.
func recovered(t model.AlertType, th model.AlertThreshold, v float64) bool {
	if lowerIsWorse(t) {
		return v >= th.Warning
	}
	return v < th.Warning
}

// ValidateThreshold checks that warning and critical are ordered for the
// type's direction.
func ValidateThreshold(t model.AlertType, th model.AlertThreshold) error {
	if t == model.AlertCustom {
		return fmt.Errorf("%s has no threshold", t)
	}
	if lowerIsWorse(t) {
		if th.Critical > th.Warning {
			return fmt.Errorf("%s: critical %.2f must not exceed warning %.2f", t, th.Critical, th.Warning)
		}
		return nil
	}
	if th.Critical < th.Warning {
		return fmt.Errorf("%s: critical %.2f must not be below warning %.2f", t, th.Critical, th.Warning)
	}
	return nil
}
