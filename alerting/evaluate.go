package alerting

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ftahirops/xdiag/model"
)

// signal is one evaluated reading.
type signal struct {
	t      model.AlertType
	metric string
	value  float64
	// trendWarning forces at least a warning regardless of value.
	trendWarning bool
}

// readSignals collects the current value of every threshold-driven type.
// Types whose source has no data yet are omitted.
func (e *Engine) readSignals(bottlenecks []model.Bottleneck, metrics MetricsSource) []signal {
	var out []signal
	if e.health != nil {
		if h := e.health.HealthScore(); !h.Timestamp.IsZero() {
			out = append(out, signal{t: model.AlertHealthDegraded, metric: "health_score", value: h.Overall})
		}
		if u := e.health.ResourceUsage(); !u.Timestamp.IsZero() {
			if u.MemoryTotalMB > 0 {
				out = append(out, signal{t: model.AlertMemoryHigh, metric: model.SignalMemory, value: u.MemoryPercent()})
			}
			out = append(out,
				signal{t: model.AlertCPUHigh, metric: model.SignalCPU, value: u.CPUPercent},
				signal{t: model.AlertBatteryLow, metric: model.SignalBattery, value: u.BatteryPercent},
				signal{t: model.AlertNetworkLatency, metric: model.SignalLatency, value: u.NetworkLatencyMs},
			)
		}
	}
	if metrics != nil {
		out = append(out, signal{
			t:            model.AlertPerformanceDegraded,
			metric:       "performance_health",
			value:        metrics.PerformanceHealth(),
			trendWarning: metrics.PerformanceTrend() == model.TrendDecreasing,
		})
	}
	if bottlenecks != nil {
		out = append(out, signal{t: model.AlertBottleneckDetected, metric: "critical_bottlenecks", value: float64(criticalCount(bottlenecks))})
	}
	return out
}

func criticalCount(bs []model.Bottleneck) int {
	n := 0
	for _, b := range bs {
		if b.Severity == model.SeverityCritical {
			n++
		}
	}
	return n
}

// Evaluate checks every signal against its threshold and triggers alerts for
// sustained violations. Suppressed and rate-limited triggers are expected
// outcomes and are not reported as errors.
func (e *Engine) Evaluate() error {
	e.mu.Lock()
	bs, metrics := e.bottlenecks, e.metrics
	e.mu.Unlock()

	var errs []error
	for _, s := range e.readSignals(bs, metrics) {
		if err := e.evaluateSignal(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) evaluateSignal(s signal) error {
	e.mu.Lock()
	th, ok := e.thresholds[s.t]
	if !ok || !th.Enabled {
		e.mu.Unlock()
		return nil
	}
	sev, violating := classify(s.t, th, s.value)
	if !violating && s.trendWarning {
		sev, violating = model.AlertWarning, true
	}
	if !e.sustain.observe(s.t, sev, violating) {
		e.mu.Unlock()
		return nil
	}
	level := "warning"
	if sev == model.AlertCritical {
		level = "critical"
	}
	ctx := map[string]string{
		"metric": s.metric,
		"level":  level,
		"value":  strconv.FormatFloat(s.value, 'f', 2, 64),
	}
	_, evs, err := e.triggerLocked(s.t, sev, message(s, sev, th), ctx)
	e.mu.Unlock()

	e.dispatch(evs)
	if err != nil && !errors.Is(err, ErrSuppressed) && !errors.Is(err, ErrRateLimited) {
		return err
	}
	return nil
}

func message(s signal, sev model.AlertSeverity, th model.AlertThreshold) string {
	limit := th.Warning
	if sev == model.AlertCritical {
		limit = th.Critical
	}
	switch s.t {
	case model.AlertHealthDegraded:
		return fmt.Sprintf("System health %.2f below %.2f", s.value, limit)
	case model.AlertPerformanceDegraded:
		if s.trendWarning && s.value >= th.Warning {
			return fmt.Sprintf("Performance health %.2f is trending down", s.value)
		}
		return fmt.Sprintf("Performance health %.2f below %.2f", s.value, limit)
	case model.AlertMemoryHigh:
		return fmt.Sprintf("Memory usage %.1f%% above %.0f%%", s.value, limit)
	case model.AlertCPUHigh:
		return fmt.Sprintf("CPU usage %.1f%% above %.0f%%", s.value, limit)
	case model.AlertBatteryLow:
		return fmt.Sprintf("Battery at %.0f%%, below %.0f%%", s.value, limit)
	case model.AlertNetworkLatency:
		return fmt.Sprintf("Network latency %.0fms above %.0fms", s.value, limit)
	case model.AlertBottleneckDetected:
		return fmt.Sprintf("%.0f critical bottlenecks detected", s.value)
	case model.AlertCustom:
		return "custom alert"
	}
	panic(fmt.Sprintf("alerting: no message for %q", s.t))
}

// ReportBottlenecks receives each detection result and evaluates the
// bottleneck threshold against it right away.
func (e *Engine) ReportBottlenecks(bs []model.Bottleneck) {
	cp := make([]model.Bottleneck, len(bs))
	copy(cp, bs)
	e.mu.Lock()
	e.bottlenecks = cp
	e.mu.Unlock()

	if err := e.evaluateSignal(signal{
		t:      model.AlertBottleneckDetected,
		metric: "critical_bottlenecks",
		value:  float64(criticalCount(cp)),
	}); err != nil {
		e.log.LogError("bottleneck alert evaluation failed", err)
	}
}

// AutoResolve closes every alert whose signal has recovered past its warning
// threshold and prunes expired suppressions. CUSTOM alerts are never
// auto-resolved. It returns the number of alerts closed.
func (e *Engine) AutoResolve() int {
	e.mu.Lock()
	bs, metrics := e.bottlenecks, e.metrics
	e.mu.Unlock()

	current := make(map[model.AlertType]signal)
	for _, s := range e.readSignals(bs, metrics) {
		current[s.t] = s
	}

	e.mu.Lock()
	var evs []model.AlertEvent
	for _, a := range e.active {
		if a.Type == model.AlertCustom {
			continue
		}
		s, ok := current[a.Type]
		if !ok {
			continue
		}
		th, ok := e.thresholds[a.Type]
		if !ok {
			continue
		}
		if !recovered(a.Type, th, s.value) || s.trendWarning {
			continue
		}
		evs = append(evs, e.closeLocked(a, model.StatusAutoResolved, "system",
			fmt.Sprintf("%s recovered to %.2f", s.metric, s.value)))
	}
	e.suppress.prune(e.now())
	e.mu.Unlock()

	e.dispatch(evs)
	return len(evs)
}
