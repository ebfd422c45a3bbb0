// Package tuner closes the loop between diagnostics and configuration: it
// samples performance, keeps a baseline, turns health signals into
// parameter changes, measures their effect and reverts them on regression.
package tuner

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ftahirops/xdiag/logging"
	"github.com/ftahirops/xdiag/model"
	"github.com/ftahirops/xdiag/util"
)

// Config controls tuner timing and limits.
type Config struct {
	BaselineSamples   int
	BaselineInterval  time.Duration
	SettleTime        time.Duration
	MinConfidence     float64
	MaxConcurrent     int
	RollbackThreshold float64 // fraction of baseline health that triggers rollback
	RollbackWindow    time.Duration
	SnapshotCapacity  int
	HistoryCapacity   int // executions kept for rollback and status
	ResultCapacity    int
}

// DefaultConfig returns the standard tuner settings.
func DefaultConfig() Config {
	return Config{
		BaselineSamples:   12,
		BaselineInterval:  5 * time.Second,
		SettleTime:        10 * time.Second,
		MinConfidence:     0.7,
		MaxConcurrent:     3,
		RollbackThreshold: 0.85,
		RollbackWindow:    5 * time.Minute,
		SnapshotCapacity:  120,
		HistoryCapacity:   200,
		ResultCapacity:    50,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaselineSamples <= 0 {
		c.BaselineSamples = d.BaselineSamples
	}
	if c.BaselineInterval < 0 {
		c.BaselineInterval = 0
	}
	if c.SettleTime < 0 {
		c.SettleTime = 0
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = d.MinConfidence
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.RollbackThreshold <= 0 {
		c.RollbackThreshold = d.RollbackThreshold
	}
	if c.RollbackWindow <= 0 {
		c.RollbackWindow = d.RollbackWindow
	}
	if c.SnapshotCapacity <= 0 {
		c.SnapshotCapacity = d.SnapshotCapacity
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = d.HistoryCapacity
	}
	if c.ResultCapacity <= 0 {
		c.ResultCapacity = d.ResultCapacity
	}
	return c
}

// Diagnostics is the view of the diagnostics service the tuner reads from
// and reports performance health into.
type Diagnostics interface {
	ScoreSystem(ctx context.Context) model.HealthScore
	HealthScore() model.HealthScore
	ComponentHealth() []model.ComponentHealth
	ResourceUsage() model.ResourceUsage
	Bottlenecks() []model.Bottleneck
	SetPerformanceHealth(v float64)
}

// Observer receives optimization outcomes, typically for metrics.
type Observer interface {
	ObserveOptimization(r model.OptimizationResult)
	ObserveRollback(n int)
}

// errAborted is the execution error recorded when the settle wait is cancelled.
const errAborted = "aborted"

// Tuner runs the optimization loop. Selection, parameter application and
// bookkeeping happen under one mutex; settle waits run outside it.
type Tuner struct {
	cfg    Config
	diag   Diagnostics
	params *ParameterStore
	log    logging.Sink
	now    func() time.Time

	snapMu    sync.RWMutex
	snapshots *util.Ring[model.PerformanceSnapshot]
	perfBits  atomic.Uint64

	mu           sync.Mutex
	baseline     *model.PerformanceBaseline
	active       map[model.OptimizationType]model.OptimizationExecution
	history      map[string]*model.OptimizationExecution
	revoked      map[string]time.Time
	order        []string
	results      *util.Ring[model.OptimizationResult]
	observer     Observer
	total        int
	successful   int
	rolledBack   int
	lastRun      time.Time
	lastRollback time.Time
}

// New creates a tuner over diag. params may be nil for a default store.
func New(diag Diagnostics, params *ParameterStore, sink logging.Sink, cfg Config) *Tuner {
	cfg = cfg.withDefaults()
	if params == nil {
		params = NewParameterStore(nil)
	}
	t := &Tuner{
		cfg:       cfg,
		diag:      diag,
		params:    params,
		log:       logging.Safe(sink),
		now:       time.Now,
		snapshots: util.NewRing[model.PerformanceSnapshot](cfg.SnapshotCapacity),
		active:    make(map[model.OptimizationType]model.OptimizationExecution),
		history:   make(map[string]*model.OptimizationExecution),
		revoked:   make(map[string]time.Time),
		results:   util.NewRing[model.OptimizationResult](cfg.ResultCapacity),
	}
	t.perfBits.Store(math.Float64bits(1))
	return t
}

// SetObserver installs o to receive run and rollback outcomes.
func (t *Tuner) SetObserver(o Observer) {
	t.mu.Lock()
	t.observer = o
	t.mu.Unlock()
}

// SetClock replaces the time source.
func (t *Tuner) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

func (t *Tuner) clock() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now()
}

// snapshot builds a performance snapshot. With fresh set the system is
// rescored first; otherwise the last published score is used.
func (t *Tuner) snapshot(ctx context.Context, fresh bool) model.PerformanceSnapshot {
	var h model.HealthScore
	if fresh {
		h = t.diag.ScoreSystem(ctx)
	} else {
		h = t.diag.HealthScore()
	}
	u := t.diag.ResourceUsage()
	bs := t.diag.Bottlenecks()

	s := model.PerformanceSnapshot{
		Timestamp:       t.clock(),
		ResourceUsage:   u,
		HealthScore:     h.Overall,
		ComponentScores: make(map[model.ComponentType]float64, len(h.Components)),
		BottleneckCount: len(bs),
		ResponseTimeMs:  u.NetworkLatencyMs,
	}
	for c, v := range h.Components {
		s.ComponentScores[c] = v
	}
	for _, b := range bs {
		if b.Severity == model.SeverityCritical {
			s.CriticalBottlenecks++
		}
	}
	for _, ch := range t.diag.ComponentHealth() {
		if ch.Component != model.ComponentPipeline || ch.Metrics == nil {
			continue
		}
		if v, ok := ch.Metrics["response_time_ms"]; ok {
			s.ResponseTimeMs = v
		}
		s.Throughput = ch.Metrics["throughput"]
		s.ErrorRate = ch.Metrics["error_rate"]
	}
	return s
}

// Capture records a snapshot of the current state in the snapshot ring and
// reports the resulting performance health to diagnostics.
func (t *Tuner) Capture(ctx context.Context) model.PerformanceSnapshot {
	s := t.snapshot(ctx, false)
	t.record(s)
	return s
}

func (t *Tuner) record(s model.PerformanceSnapshot) {
	t.snapMu.Lock()
	t.snapshots.Push(s)
	t.snapMu.Unlock()

	t.mu.Lock()
	b := t.baseline
	t.mu.Unlock()

	ph := performanceHealth(s, b)
	t.perfBits.Store(math.Float64bits(ph))
	t.diag.SetPerformanceHealth(ph)
}

// performanceHealth averages response time, throughput and success rate
// against the baseline, each clamped to [0,1]. Without a baseline it is 1.
func performanceHealth(s model.PerformanceSnapshot, b *model.PerformanceBaseline) float64 {
	if b == nil {
		return 1
	}
	return util.Mean([]float64{
		util.Ratio(b.AverageResponseTime, s.ResponseTimeMs),
		util.Ratio(s.Throughput, b.AverageThroughput),
		util.Ratio(1-s.ErrorRate, 1-b.AverageErrorRate),
	}, 1)
}

// EstablishBaseline samples BaselineSamples fresh snapshots BaselineInterval
// apart and averages them. A cancelled context leaves any earlier baseline
// in place.
func (t *Tuner) EstablishBaseline(ctx context.Context) (model.PerformanceBaseline, error) {
	samples := make([]model.PerformanceSnapshot, 0, t.cfg.BaselineSamples)
	for i := 0; i < t.cfg.BaselineSamples; i++ {
		if i > 0 {
			if err := sleepCtx(ctx, t.cfg.BaselineInterval); err != nil {
				return model.PerformanceBaseline{}, fmt.Errorf("baseline: %w", err)
			}
		}
		s := t.snapshot(ctx, true)
		t.record(s)
		samples = append(samples, s)
	}

	var health, rt, tp, er, load []float64
	for _, s := range samples {
		health = append(health, s.HealthScore)
		rt = append(rt, s.ResponseTimeMs)
		tp = append(tp, s.Throughput)
		er = append(er, s.ErrorRate)
		load = append(load, (s.ResourceUsage.CPUPercent/100+s.ResourceUsage.MemoryFraction())/2)
	}
	b := model.PerformanceBaseline{
		AverageHealthScore:  util.Mean(health, 0),
		AverageResponseTime: util.Mean(rt, 0),
		AverageThroughput:   util.Mean(tp, 0),
		AverageErrorRate:    util.Mean(er, 0),
		ResourceUtilization: util.Mean(load, 0),
		Samples:             len(samples),
		Timestamp:           t.clock(),
	}

	t.mu.Lock()
	t.baseline = &b
	t.mu.Unlock()

	t.log.LogEvent(logging.LevelInfo, "tuner", "baseline", "performance baseline established", map[string]string{
		"health":  fmt.Sprintf("%.3f", b.AverageHealthScore),
		"samples": fmt.Sprintf("%d", b.Samples),
	})
	return b, nil
}

// Baseline returns the current baseline, if any.
func (t *Tuner) Baseline() (model.PerformanceBaseline, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.baseline == nil {
		return model.PerformanceBaseline{}, false
	}
	return *t.baseline, true
}

// Recommend analyzes the current state without applying anything.
func (t *Tuner) Recommend(ctx context.Context) []model.OptimizationRecommendation {
	s := t.snapshot(ctx, false)
	return Analyze(AnalysisInput{
		Snapshot:    s,
		Bottlenecks: t.diag.Bottlenecks(),
		Params:      t.params.Snapshot(),
	}, t.cfg.MinConfidence)
}

// RunOptimization analyzes the current state, applies up to MaxConcurrent
// recommendations whose types are not already in flight, waits for them to
// settle concurrently and records the outcome. An empty run returns a result
// with no executions.
func (t *Tuner) RunOptimization(ctx context.Context) (model.OptimizationResult, error) {
	before := t.Capture(ctx)
	recs := Analyze(AnalysisInput{
		Snapshot:    before,
		Bottlenecks: t.diag.Bottlenecks(),
		Params:      t.params.Snapshot(),
	}, t.cfg.MinConfidence)

	t.mu.Lock()
	now := t.now()
	t.lastRun = now
	picked := selectToApply(recs, t.activeTypesLocked(), t.cfg.MaxConcurrent)
	execs := make([]model.OptimizationExecution, len(picked))
	for i, r := range picked {
		execs[i] = t.applyLocked(r, r.Parameters, before, now)
	}
	t.mu.Unlock()

	result := model.OptimizationResult{ID: uuid.NewString(), Timestamp: now}
	if len(execs) == 0 {
		return result, nil
	}

	var g errgroup.Group
	for i := range execs {
		i := i
		g.Go(func() error {
			if execs[i].Error != "" {
				return nil
			}
			aborted := t.settle(ctx)
			t.finish(ctx, &execs[i], aborted)
			return nil
		})
	}
	_ = g.Wait()

	result.Executions = execs
	t.commit(&result)
	return result, ctx.Err()
}

// ApplyProfile applies every parameter of a built-in profile as one change
// set. A rejected value leaves the store untouched and returns an error.
func (t *Tuner) ApplyProfile(ctx context.Context, name string) (model.OptimizationResult, error) {
	p, err := LookupProfile(name)
	if err != nil {
		return model.OptimizationResult{}, fmt.Errorf("%s: %w", name, err)
	}
	before := t.Capture(ctx)

	t.mu.Lock()
	now := t.now()
	t.lastRun = now
	prev, err := t.params.Apply(p.mergedParameters())
	if err != nil {
		t.mu.Unlock()
		return model.OptimizationResult{}, fmt.Errorf("apply profile %s: %w", name, err)
	}
	execs := make([]model.OptimizationExecution, len(p.Recommendations))
	for i, r := range p.Recommendations {
		own := make(map[string]float64, len(r.Parameters))
		for k := range r.Parameters {
			own[k] = prev[k]
		}
		execs[i] = model.OptimizationExecution{
			Key:            t.keyLocked(r.Type, now),
			Recommendation: r,
			Before:         before,
			AppliedAt:      now,
			Previous:       own,
		}
		t.active[r.Type] = execs[i]
	}
	t.mu.Unlock()

	aborted := t.settle(ctx)
	if aborted {
		t.params.Restore(prev)
	}
	var after model.PerformanceSnapshot
	if !aborted {
		after = t.snapshot(ctx, true)
		t.record(after)
	}
	for i := range execs {
		if aborted {
			markAborted(&execs[i], t.clock())
			continue
		}
		measure(&execs[i], after)
	}

	result := model.OptimizationResult{ID: uuid.NewString(), Profile: name, Executions: execs, Timestamp: now}
	t.commit(&result)
	return result, ctx.Err()
}

// applyLocked applies changes for r and registers the execution as active.
// A rejected change produces a failed execution that is not registered.
func (t *Tuner) applyLocked(r model.OptimizationRecommendation, changes map[string]float64, before model.PerformanceSnapshot, now time.Time) model.OptimizationExecution {
	ex := model.OptimizationExecution{
		Key:            t.keyLocked(r.Type, now),
		Recommendation: r,
		Before:         before,
		AppliedAt:      now,
	}
	prev, err := t.params.Apply(changes)
	if err != nil {
		ex.Error = err.Error()
		return ex
	}
	ex.Previous = prev
	t.active[r.Type] = ex
	return ex
}

// settle waits SettleTime and reports whether ctx ended the wait early.
func (t *Tuner) settle(ctx context.Context) bool {
	return sleepCtx(ctx, t.cfg.SettleTime) != nil
}

// finish measures one settled execution, or reverts it if the wait was cut.
func (t *Tuner) finish(ctx context.Context, ex *model.OptimizationExecution, aborted bool) {
	if aborted {
		t.params.Restore(ex.Previous)
		markAborted(ex, t.clock())
		return
	}
	after := t.snapshot(ctx, true)
	t.record(after)
	measure(ex, after)
}

func markAborted(ex *model.OptimizationExecution, now time.Time) {
	ex.Error = errAborted
	ex.Success = false
	ex.RolledBack = true
	ex.RolledBackAt = now
}

// measure fills the after snapshot and the improvement: the mean of the
// health, response time and throughput percentage changes, with a drop in
// response time counting as positive.
func measure(ex *model.OptimizationExecution, after model.PerformanceSnapshot) {
	ex.After = after
	b := ex.Before
	ex.Improvement = util.Mean([]float64{
		util.PercentDelta(b.HealthScore, after.HealthScore),
		-util.PercentDelta(b.ResponseTimeMs, after.ResponseTimeMs),
		util.PercentDelta(b.Throughput, after.Throughput),
	}, 0)
	ex.Success = ex.Improvement > 0
}

// commit moves the executions of result into history and clears them from
// the active set.
func (t *Tuner) commit(result *model.OptimizationResult) {
	var imps []float64
	t.mu.Lock()
	for i := range result.Executions {
		ex := result.Executions[i]
		if cur, ok := t.active[ex.Recommendation.Type]; ok && cur.Key == ex.Key {
			delete(t.active, ex.Recommendation.Type)
		}
		if at, ok := t.revoked[ex.Key]; ok {
			delete(t.revoked, ex.Key)
			if !ex.RolledBack {
				ex.RolledBack = true
				ex.RolledBackAt = at
			}
			result.Executions[i] = ex
		}
		t.history[ex.Key] = &ex
		t.order = append(t.order, ex.Key)
		t.total++
		if ex.Success {
			t.successful++
		}
		if ex.Error == "" {
			imps = append(imps, ex.Improvement)
		}
	}
	t.trimHistoryLocked()
	result.OverallImprovement = util.Mean(imps, 0)
	t.results.Push(*result)
	obs := t.observer
	t.mu.Unlock()

	if obs != nil {
		obs.ObserveOptimization(*result)
	}
	for _, ex := range result.Executions {
		level := logging.LevelInfo
		msg := "optimization applied"
		meta := map[string]string{
			"key":         ex.Key,
			"improvement": fmt.Sprintf("%.2f", ex.Improvement),
			"success":     fmt.Sprintf("%t", ex.Success),
		}
		if ex.Error != "" {
			level = logging.LevelWarn
			msg = "optimization failed"
			meta["error"] = ex.Error
		}
		t.log.LogEvent(level, "tuner", string(ex.Recommendation.Type), msg, meta)
	}
}

func (t *Tuner) trimHistoryLocked() {
	over := len(t.order) - t.cfg.HistoryCapacity
	if over <= 0 {
		return
	}
	for _, k := range t.order[:over] {
		delete(t.history, k)
	}
	t.order = append([]string(nil), t.order[over:]...)
}

// keyLocked builds the history key TYPE-unixmilli, suffixed on collision.
func (t *Tuner) keyLocked(typ model.OptimizationType, now time.Time) string {
	base := fmt.Sprintf("%s-%d", typ, now.UnixMilli())
	key := base
	for n := 2; ; n++ {
		if _, taken := t.history[key]; !taken {
			if cur, busy := t.active[typ]; !busy || cur.Key != key {
				return key
			}
		}
		key = fmt.Sprintf("%s-%d", base, n)
	}
}

func (t *Tuner) activeTypesLocked() map[model.OptimizationType]bool {
	out := make(map[model.OptimizationType]bool, len(t.active))
	for typ := range t.active {
		out[typ] = true
	}
	return out
}

// Rollback restores the parameters of every execution applied within
// RollbackWindow, newest first, and marks them rolled back. Executions still
// settling are reverted too and committed as rolled back. It returns how many
// were reverted.
func (t *Tuner) Rollback(reason string) int {
	t.mu.Lock()
	now := t.now()
	cutoff := now.Add(-t.cfg.RollbackWindow)
	n := 0
	for _, ex := range t.settlingLocked() {
		if _, done := t.revoked[ex.Key]; done || ex.AppliedAt.Before(cutoff) {
			continue
		}
		t.params.Restore(ex.Previous)
		t.revoked[ex.Key] = now
		n++
	}
	for i := len(t.order) - 1; i >= 0; i-- {
		ex := t.history[t.order[i]]
		if ex == nil || ex.RolledBack || ex.Error != "" || ex.AppliedAt.Before(cutoff) {
			continue
		}
		t.params.Restore(ex.Previous)
		ex.RolledBack = true
		ex.RolledBackAt = now
		n++
	}
	if n == 0 {
		t.mu.Unlock()
		return 0
	}
	t.rolledBack += n
	t.lastRollback = now
	obs := t.observer
	t.mu.Unlock()

	t.log.LogEvent(logging.LevelWarn, "tuner", "rollback", "optimizations rolled back", map[string]string{
		"reason": reason,
		"count":  fmt.Sprintf("%d", n),
	})
	if obs != nil {
		obs.ObserveRollback(n)
	}
	return n
}

// settlingLocked returns the active executions, newest first.
func (t *Tuner) settlingLocked() []model.OptimizationExecution {
	out := make([]model.OptimizationExecution, 0, len(t.active))
	for _, ex := range t.active {
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppliedAt.Equal(out[j].AppliedAt) {
			return out[i].AppliedAt.After(out[j].AppliedAt)
		}
		return out[i].Key > out[j].Key
	})
	return out
}

// CheckRegression captures a snapshot and rolls back recent optimizations
// when health has fallen below RollbackThreshold of the baseline. It returns
// the number of executions reverted; without a baseline it does nothing.
func (t *Tuner) CheckRegression(ctx context.Context) int {
	s := t.Capture(ctx)
	b, ok := t.Baseline()
	if !ok {
		return 0
	}
	limit := b.AverageHealthScore * t.cfg.RollbackThreshold
	if s.HealthScore >= limit {
		return 0
	}
	return t.Rollback(fmt.Sprintf("health %.3f below %.3f", s.HealthScore, limit))
}

// PerformanceHealth is the last computed performance figure (1 before a baseline).
func (t *Tuner) PerformanceHealth() float64 {
	return math.Float64frombits(t.perfBits.Load())
}

// PerformanceTrend is the trend of snapshot health across the ring.
func (t *Tuner) PerformanceTrend() model.Trend {
	return util.ComputeTrend(t.healthSeries())
}

func (t *Tuner) healthSeries() []float64 {
	t.snapMu.RLock()
	snaps := t.snapshots.Values()
	t.snapMu.RUnlock()
	vals := make([]float64, len(snaps))
	for i, s := range snaps {
		vals[i] = s.HealthScore
	}
	return vals
}

// Snapshots returns up to n recent snapshots, oldest first.
func (t *Tuner) Snapshots(n int) []model.PerformanceSnapshot {
	t.snapMu.RLock()
	defer t.snapMu.RUnlock()
	return t.snapshots.Last(n)
}

// Status summarizes baseline, in-flight work and outcomes.
func (t *Tuner) Status() model.OptimizationStatus {
	series := t.healthSeries()
	st := model.OptimizationStatus{
		Parameters:        t.params.Snapshot(),
		PerformanceHealth: t.PerformanceHealth(),
		PerformanceTrend:  util.ComputeTrend(series),
		Stability:         util.Clamp01(1 - util.CoefficientOfVariation(series)),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.baseline != nil {
		b := *t.baseline
		st.Baseline = &b
		st.BaselineEstablished = true
	}
	for _, typ := range sortedTypes(t.active) {
		st.Active = append(st.Active, t.active[typ])
	}
	st.TotalExecuted = t.total
	st.Successful = t.successful
	st.RolledBack = t.rolledBack
	st.LastRun = t.lastRun
	st.LastRollback = t.lastRollback
	return st
}

// Executions returns the retained executions in application order.
func (t *Tuner) Executions() []model.OptimizationExecution {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.OptimizationExecution, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, *t.history[k])
	}
	return out
}

// Results returns up to limit recent results, newest first; limit <= 0 means all.
func (t *Tuner) Results(limit int) []model.OptimizationResult {
	t.mu.Lock()
	all := t.results.Values()
	t.mu.Unlock()
	out := make([]model.OptimizationResult, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Params returns a copy of the live parameters.
func (t *Tuner) Params() map[string]float64 {
	return t.params.Snapshot()
}

func sortedTypes(m map[model.OptimizationType]model.OptimizationExecution) []model.OptimizationType {
	out := make([]model.OptimizationType, 0, len(m))
	for typ := range m {
		out = append(out, typ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
