package engine

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ftahirops/xdiag/model"
)

// Metrics exports diagnostics state on a private prometheus registry.
type Metrics struct {
	reg *prometheus.Registry

	up            prometheus.Gauge
	overall       prometheus.Gauge
	resource      prometheus.Gauge
	performance   prometheus.Gauge
	confidence    prometheus.Gauge
	component     *prometheus.GaugeVec
	bottlenecks   *prometheus.GaugeVec
	cpuPct        prometheus.Gauge
	memPct        prometheus.Gauge
	latencyMs     prometheus.Gauge
	batteryPct    prometheus.Gauge
	activeAlerts  prometheus.Gauge
	alertEvents   *prometheus.CounterVec
	optimizations *prometheus.CounterVec
	rollbacks     prometheus.Counter
	taskErrors    *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	overheadMs    prometheus.Gauge
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	m := &Metrics{
		reg: reg,
		up: f.NewGauge(prometheus.GaugeOpts{
			Name: "xdiag_up", Help: "1 while the daemon is running.",
		}),
		overall: f.NewGauge(prometheus.GaugeOpts{
			Name: "xdiag_health_overall", Help: "Weighted overall health score (0..1).",
		}),
		resource: f.NewGauge(prometheus.GaugeOpts{
			Name: "xdiag_health_resource", Help: "Resource health (0..1).",
		}),
		performance: f.NewGauge(prometheus.GaugeOpts{
			Name: "xdiag_health_performance", Help: "Performance health reported by the tuner (0..1).",
		}),
		confidence: f.NewGauge(prometheus.GaugeOpts{
			Name: "xdiag_health_confidence", Help: "Share of components that reported (0..1).",
		}),
		component: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xdiag_component_health", Help: "Per-component health score (0..1).",
		}, []string{"component"}),
		bottlenecks: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xdiag_bottlenecks", Help: "Detected bottlenecks by severity.",
		}, []string{"severity"}),
		cpuPct: f.NewGauge(prometheus.GaugeOpts{
			Name: "xdiag_cpu_percent", Help: "Host CPU usage percent.",
		}),
		memPct: f.NewGauge(prometheus.GaugeOpts{
			Name: "xdiag_memory_percent", Help: "Host memory usage percent.",
		}),
		latencyMs: f.NewGauge(prometheus.GaugeOpts{
			Name: "xdiag_network_latency_ms", Help: "Probe network latency in milliseconds.",
		}),
		batteryPct: f.NewGauge(prometheus.GaugeOpts{
			Name: "xdiag_battery_percent", Help: "Battery level percent.",
		}),
		activeAlerts: f.NewGauge(prometheus.GaugeOpts{
			Name: "xdiag_alerts_active", Help: "Alerts currently active or acknowledged.",
		}),
		alertEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xdiag_alert_events_total", Help: "Alert history events by kind.",
		}, []string{"kind"}),
		optimizations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xdiag_optimizations_total", Help: "Optimization executions by type and outcome.",
		}, []string{"type", "outcome"}),
		rollbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "xdiag_optimization_rollbacks_total", Help: "Optimizations rolled back.",
		}),
		taskErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xdiag_task_errors_total", Help: "Periodic task failures by task.",
		}, []string{"task"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xdiag_task_duration_seconds",
			Help:    "Periodic task run time.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"task"}),
		overheadMs: f.NewGauge(prometheus.GaugeOpts{
			Name: "xdiag_self_overhead_ms", Help: "Cumulative diagnostics self-instrumentation time.",
		}),
	}
	m.up.Set(1)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveHealth records a published health score.
func (m *Metrics) ObserveHealth(h model.HealthScore) {
	m.overall.Set(h.Overall)
	m.resource.Set(h.ResourceHealth)
	m.performance.Set(h.PerformanceHealth)
	m.confidence.Set(h.Confidence)
	m.component.Reset()
	for c, v := range h.Components {
		m.component.WithLabelValues(c.String()).Set(v)
	}
}

// ObserveBottlenecks records the count per severity of a detection result.
func (m *Metrics) ObserveBottlenecks(bs []model.Bottleneck) {
	counts := map[model.Severity]int{}
	for _, b := range bs {
		counts[b.Severity]++
	}
	for _, s := range []model.Severity{model.SeverityLow, model.SeverityMedium, model.SeverityHigh, model.SeverityCritical} {
		m.bottlenecks.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

// ObserveResources records a resource sample.
func (m *Metrics) ObserveResources(u model.ResourceUsage) {
	m.cpuPct.Set(u.CPUPercent)
	m.memPct.Set(u.MemoryPercent())
	m.latencyMs.Set(u.NetworkLatencyMs)
	m.batteryPct.Set(u.BatteryPercent)
}

// ObserveAlertEvent counts one alert history event.
func (m *Metrics) ObserveAlertEvent(ev model.AlertEvent) {
	m.alertEvents.WithLabelValues(string(ev.Kind)).Inc()
}

// SetActiveAlerts records the active alert count.
func (m *Metrics) SetActiveAlerts(n int) { m.activeAlerts.Set(float64(n)) }

// ObserveOptimization counts each execution in a run.
func (m *Metrics) ObserveOptimization(r model.OptimizationResult) {
	for _, ex := range r.Executions {
		outcome := "failed"
		if ex.Success {
			outcome = "improved"
		}
		m.optimizations.WithLabelValues(string(ex.Recommendation.Type), outcome).Inc()
	}
}

// ObserveRollback counts rolled back executions.
func (m *Metrics) ObserveRollback(n int) { m.rollbacks.Add(float64(n)) }

// ObserveTask records one periodic task run.
func (m *Metrics) ObserveTask(name string, seconds float64, failed bool) {
	m.taskDuration.WithLabelValues(name).Observe(seconds)
	if failed {
		m.taskErrors.WithLabelValues(name).Inc()
	}
}

// SetOverhead records cumulative self-instrumentation time.
func (m *Metrics) SetOverhead(ms float64) { m.overheadMs.Set(ms) }
