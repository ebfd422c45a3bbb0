package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ftahirops/xdiag/logging"
	"github.com/ftahirops/xdiag/model"
	"github.com/ftahirops/xdiag/probe"
	"github.com/ftahirops/xdiag/util"
)

// Options sizes the diagnostics buffers.
type Options struct {
	ScoreHistory     int           // overall scores kept for the health trend
	ComponentHistory int           // per-component entries kept
	Retention        time.Duration // per-component age cutoff
	ResourceHistory  int           // resource samples kept for trends
	RecentSamples    int           // resource samples included in a report
}

// DefaultOptions returns the standard buffer sizes.
func DefaultOptions() Options {
	return Options{
		ScoreHistory:     100,
		ComponentHistory: 2880,
		Retention:        24 * time.Hour,
		ResourceHistory:  120,
		RecentSamples:    10,
	}
}

// Diagnostics owns health scoring, resource sampling and bottleneck
// detection. All query methods return copies and never block on probes.
type Diagnostics struct {
	probe  probe.ResourceProbe
	source probe.ComponentMetricsSource
	log    logging.Sink
	opts   Options

	tickMu sync.Mutex // serializes probe reads

	mu          sync.RWMutex
	current     model.HealthScore
	components  []model.ComponentHealth
	bottlenecks []model.Bottleneck
	resources   model.ResourceUsage
	probeFailed bool

	perfBits atomic.Uint64

	scores    *util.Ring[float64]
	resHist   *util.Ring[model.ResourceUsage]
	compHist  *ComponentHistory
	healthOut *util.Broadcaster[model.HealthScore]
	bneckOut  *util.Broadcaster[[]model.Bottleneck]

	overheadNs atomic.Int64
	calls      atomic.Int64
}

// NewDiagnostics creates the service. src may be nil, in which case only the
// resource-driven components report.
func NewDiagnostics(p probe.ResourceProbe, src probe.ComponentMetricsSource, sink logging.Sink, opts Options) *Diagnostics {
	def := DefaultOptions()
	if opts.ScoreHistory <= 0 {
		opts.ScoreHistory = def.ScoreHistory
	}
	if opts.ComponentHistory <= 0 {
		opts.ComponentHistory = def.ComponentHistory
	}
	if opts.Retention <= 0 {
		opts.Retention = def.Retention
	}
	if opts.ResourceHistory <= 0 {
		opts.ResourceHistory = def.ResourceHistory
	}
	if opts.RecentSamples <= 0 {
		opts.RecentSamples = def.RecentSamples
	}
	d := &Diagnostics{
		probe:     p,
		source:    src,
		log:       logging.Safe(sink),
		opts:      opts,
		scores:    util.NewRing[float64](opts.ScoreHistory),
		resHist:   util.NewRing[model.ResourceUsage](opts.ResourceHistory),
		compHist:  NewComponentHistory(opts.ComponentHistory, opts.Retention),
		healthOut: util.NewBroadcaster[model.HealthScore](8),
		bneckOut:  util.NewBroadcaster[[]model.Bottleneck](8),
	}
	d.perfBits.Store(math.Float64bits(1))
	return d
}

// track adds the elapsed time since start to the self-instrumentation counters.
func (d *Diagnostics) track(start time.Time) {
	d.overheadNs.Add(time.Since(start).Nanoseconds())
	d.calls.Add(1)
}

// Overhead returns cumulative self-instrumentation time and the per-call
// average, both in milliseconds.
func (d *Diagnostics) Overhead() (totalMs, avgMs float64) {
	ns := d.overheadNs.Load()
	n := d.calls.Load()
	totalMs = float64(ns) / 1e6
	if n > 0 {
		avgMs = totalMs / float64(n)
	}
	return totalMs, avgMs
}

// SampleResources reads the probe once and appends the sample to the
// resource history. On a failed read the stale fields are kept and the
// error is returned for logging; the sample is still recorded.
func (d *Diagnostics) SampleResources(ctx context.Context) (model.ResourceUsage, error) {
	defer d.track(time.Now())
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	d.mu.RLock()
	prev := d.resources
	d.mu.RUnlock()

	u, err := probe.Read(ctx, d.probe, prev)
	d.resHist.Push(u)

	d.mu.Lock()
	d.resources = u
	d.probeFailed = err != nil
	d.mu.Unlock()

	if err != nil {
		d.log.LogError("resource probe read failed", err)
	}
	return u, err
}

// SetPerformanceHealth records the tuner's performance figure for the next score.
func (d *Diagnostics) SetPerformanceHealth(v float64) {
	d.perfBits.Store(math.Float64bits(util.Clamp01(v)))
}

// PerformanceHealth returns the last figure reported by the tuner (1 until then).
func (d *Diagnostics) PerformanceHealth() float64 {
	return math.Float64frombits(d.perfBits.Load())
}

// ScoreSystem samples resources and every component, computes the weighted
// health score, appends component history and publishes the result.
func (d *Diagnostics) ScoreSystem(ctx context.Context) model.HealthScore {
	u, _ := d.SampleResources(ctx)
	defer d.track(time.Now())

	d.mu.RLock()
	probeFailed := d.probeFailed
	d.mu.RUnlock()

	now := u.Timestamp
	scores := make(map[model.ComponentType]float64, model.ComponentCount())
	healths := make([]model.ComponentHealth, 0, model.ComponentCount())
	for _, c := range model.AllComponents() {
		m, ok := d.componentMetrics(ctx, c)
		if !ok {
			continue
		}
		s := ComponentScore(c, m, u)
		scores[c] = s
		h := model.ComponentHealth{Component: c, Score: s, Metrics: m, Timestamp: now}
		healths = append(healths, h)
		d.compHist.Append(h)
	}
	d.compHist.Prune(now)

	vals := make([]float64, 0, len(scores))
	for _, c := range model.AllComponents() {
		if v, ok := scores[c]; ok {
			vals = append(vals, v)
		}
	}
	resource := ResourceHealth(u)
	perf := d.PerformanceHealth()
	overall := OverallScore(vals, resource, perf)

	d.scores.Push(overall)
	hs := model.HealthScore{
		Overall:           overall,
		Components:        scores,
		ResourceHealth:    resource,
		PerformanceHealth: perf,
		Factors:           HealthFactors(scores, resource, perf),
		Trend:             util.ComputeTrend(d.scores.Values()),
		Confidence:        scoreConfidence(len(scores), probeFailed),
		Timestamp:         now,
	}

	d.mu.Lock()
	d.current = hs
	d.components = healths
	d.mu.Unlock()

	d.healthOut.Publish(cloneHealth(hs))
	return cloneHealth(hs)
}

// componentMetrics returns the raw metrics for c and whether c is available
// this tick.
func (d *Diagnostics) componentMetrics(ctx context.Context, c model.ComponentType) (map[string]float64, bool) {
	var m map[string]float64
	var err error
	if d.source != nil {
		m, err = d.source.ComponentMetrics(ctx, c)
	} else {
		err = probe.ErrNoSource
	}
	if err != nil && !errors.Is(err, probe.ErrNoSource) {
		d.log.LogEvent(logging.LevelWarn, "health", c.String(), "component metrics read failed",
			map[string]string{"error": err.Error()})
	}
	if resourceDriven(c) {
		if err != nil {
			m = nil
		}
		return m, true
	}
	return m, err == nil
}

// DetectBottlenecks runs a detection pass over the latest component scores,
// resources and resource trends and replaces the published bottleneck list.
func (d *Diagnostics) DetectBottlenecks() []model.Bottleneck {
	defer d.track(time.Now())

	d.mu.RLock()
	comps := make(map[model.ComponentType]float64, len(d.current.Components))
	for c, v := range d.current.Components {
		comps[c] = v
	}
	u := d.resources
	d.mu.RUnlock()

	trends := make(map[string]model.Trend)
	for _, t := range d.ResourceTrends() {
		trends[t.Signal] = t.Trend
	}
	out := DetectBottlenecks(BottleneckInput{
		Components: comps,
		Resources:  u,
		Trends:     trends,
		Now:        time.Now(),
	})

	d.mu.Lock()
	d.bottlenecks = out
	d.mu.Unlock()

	d.bneckOut.Publish(cloneBottlenecks(out))
	return cloneBottlenecks(out)
}

// HealthScore returns the latest published score.
func (d *Diagnostics) HealthScore() model.HealthScore {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneHealth(d.current)
}

// ComponentHealth returns the latest per-component health in declaration order.
func (d *Diagnostics) ComponentHealth() []model.ComponentHealth {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.ComponentHealth, len(d.components))
	copy(out, d.components)
	return out
}

// ComponentHistory returns the retained series for c, oldest first.
func (d *Diagnostics) ComponentHistory(c model.ComponentType) []model.ComponentHealth {
	return d.compHist.Get(c)
}

// Bottlenecks returns the last detection result.
func (d *Diagnostics) Bottlenecks() []model.Bottleneck {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneBottlenecks(d.bottlenecks)
}

// ResourceUsage returns the latest resource sample.
func (d *Diagnostics) ResourceUsage() model.ResourceUsage {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.resources
}

// RecentResources returns up to n recent samples, oldest first.
func (d *Diagnostics) RecentResources(n int) []model.ResourceUsage {
	return d.resHist.Last(n)
}

// ResourceTrends summarizes memory, CPU, latency and battery over the
// resource history.
func (d *Diagnostics) ResourceTrends() []model.ResourceTrend {
	samples := d.resHist.Values()
	if len(samples) == 0 {
		return nil
	}
	series := map[string]func(model.ResourceUsage) float64{
		model.SignalMemory:  model.ResourceUsage.MemoryPercent,
		model.SignalCPU:     func(u model.ResourceUsage) float64 { return u.CPUPercent },
		model.SignalLatency: func(u model.ResourceUsage) float64 { return u.NetworkLatencyMs },
		model.SignalBattery: func(u model.ResourceUsage) float64 { return u.BatteryPercent },
	}
	out := make([]model.ResourceTrend, 0, len(series))
	for _, sig := range []string{model.SignalMemory, model.SignalCPU, model.SignalLatency, model.SignalBattery} {
		get := series[sig]
		vals := make([]float64, len(samples))
		for i, s := range samples {
			vals[i] = get(s)
		}
		lo, hi := util.MinMax(vals)
		out = append(out, model.ResourceTrend{
			Signal:  sig,
			Current: vals[len(vals)-1],
			Average: util.Mean(vals, 0),
			Min:     lo,
			Max:     hi,
			Trend:   util.ComputeTrend(vals),
		})
	}
	return out
}

// SubscribeHealth streams every published health score.
func (d *Diagnostics) SubscribeHealth() (<-chan model.HealthScore, func()) {
	return d.healthOut.Subscribe()
}

// SubscribeBottlenecks streams every detection result.
func (d *Diagnostics) SubscribeBottlenecks() (<-chan []model.Bottleneck, func()) {
	return d.bneckOut.Subscribe()
}

// Close ends all subscriptions.
func (d *Diagnostics) Close() {
	d.healthOut.Close()
	d.bneckOut.Close()
}

func cloneHealth(h model.HealthScore) model.HealthScore {
	if h.Components != nil {
		c := make(map[model.ComponentType]float64, len(h.Components))
		for k, v := range h.Components {
			c[k] = v
		}
		h.Components = c
	}
	if h.Factors != nil {
		h.Factors = append([]string(nil), h.Factors...)
	}
	return h
}

func cloneBottlenecks(bs []model.Bottleneck) []model.Bottleneck {
	if bs == nil {
		return nil
	}
	out := make([]model.Bottleneck, len(bs))
	copy(out, bs)
	return out
}
