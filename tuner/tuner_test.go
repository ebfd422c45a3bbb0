package tuner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/xdiag/model"
)

// fakeDiag scores health from the live parameters so that applied changes
// have a measurable effect.
type fakeDiag struct {
	mu      sync.Mutex
	params  *ParameterStore
	score   func(p map[string]float64) float64
	current model.HealthScore
	usage   model.ResourceUsage
	comps   map[model.ComponentType]float64
	metrics map[string]float64
	bneck   []model.Bottleneck
	perf    float64
}

func newFakeDiag(params *ParameterStore, score func(map[string]float64) float64) *fakeDiag {
	d := &fakeDiag{
		params: params,
		score:  score,
		usage:  model.ResourceUsage{CPUPercent: 20, MemoryUsedMB: 300, MemoryTotalMB: 1000, NetworkLatencyMs: 30},
		perf:   1,
	}
	d.current = model.HealthScore{Overall: score(params.Snapshot()), Timestamp: time.Now()}
	return d
}

func (d *fakeDiag) ScoreSystem(context.Context) model.HealthScore {
	h := d.score(d.params.Snapshot())
	d.mu.Lock()
	defer d.mu.Unlock()
	comps := make(map[model.ComponentType]float64, len(d.comps))
	for c, v := range d.comps {
		comps[c] = v
	}
	d.current = model.HealthScore{Overall: h, Components: comps, Timestamp: time.Now()}
	return d.current
}

func (d *fakeDiag) HealthScore() model.HealthScore {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *fakeDiag) ComponentHealth() []model.ComponentHealth {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.metrics == nil {
		return nil
	}
	m := make(map[string]float64, len(d.metrics))
	for k, v := range d.metrics {
		m[k] = v
	}
	return []model.ComponentHealth{{Component: model.ComponentPipeline, Score: 1, Metrics: m}}
}

func (d *fakeDiag) ResourceUsage() model.ResourceUsage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.usage
}

func (d *fakeDiag) Bottlenecks() []model.Bottleneck {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bneck
}

func (d *fakeDiag) SetPerformanceHealth(v float64) {
	d.mu.Lock()
	d.perf = v
	d.mu.Unlock()
}

func (d *fakeDiag) set(f func(d *fakeDiag)) {
	d.mu.Lock()
	f(d)
	d.mu.Unlock()
}

// batchingHelps scores good while request batching is on and bad otherwise.
func batchingHelps(good, bad float64) func(map[string]float64) float64 {
	return func(p map[string]float64) float64 {
		if p[ParamRequestBatching] == 1 {
			return good
		}
		return bad
	}
}

func quickConfig() Config {
	return Config{BaselineSamples: 3, BaselineInterval: 0, SettleTime: 0}
}

func TestRunOptimizationMeasuresImprovement(t *testing.T) {
	params := NewParameterStore(nil)
	diag := newFakeDiag(params, batchingHelps(0.9, 0.6))
	diag.set(func(d *fakeDiag) { d.usage.NetworkLatencyMs = 150 })
	tn := New(diag, params, nil, quickConfig())

	res, err := tn.RunOptimization(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Executions, 1)
	ex := res.Executions[0]

	assert.Equal(t, model.OptimizeNetwork, ex.Recommendation.Type)
	assert.True(t, ex.Success)
	assert.Empty(t, ex.Error)
	assert.InDelta(t, 0.6, ex.Before.HealthScore, 1e-9)
	assert.InDelta(t, 0.9, ex.After.HealthScore, 1e-9)
	assert.InDelta(t, 50.0/3, ex.Improvement, 1e-9)
	assert.InDelta(t, ex.Improvement, res.OverallImprovement, 1e-9)
	assert.Contains(t, ex.Key, "NETWORK-")
	assert.NotEmpty(t, res.ID)

	assert.Equal(t, 1.0, tn.Params()[ParamRequestBatching])
	st := tn.Status()
	assert.Equal(t, 1, st.TotalExecuted)
	assert.Equal(t, 1, st.Successful)
	assert.Empty(t, st.Active)
	assert.Len(t, tn.Results(0), 1)
}

func TestRunOptimizationNothingToDo(t *testing.T) {
	params := NewParameterStore(nil)
	diag := newFakeDiag(params, batchingHelps(0.9, 0.9))
	tn := New(diag, params, nil, quickConfig())

	res, err := tn.RunOptimization(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Executions)
	assert.Empty(t, tn.Results(0))
	assert.False(t, tn.Status().LastRun.IsZero())
}

func TestConcurrencyCapAndCancellation(t *testing.T) {
	params := NewParameterStore(nil)
	diag := newFakeDiag(params, batchingHelps(0.9, 0.6))
	diag.set(func(d *fakeDiag) {
		d.usage = model.ResourceUsage{CPUPercent: 85, MemoryUsedMB: 850, MemoryTotalMB: 1000, NetworkLatencyMs: 150}
		d.current.Components = map[model.ComponentType]float64{model.ComponentCache: 0.5}
	})
	tn := New(diag, params, nil, Config{SettleTime: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		res model.OptimizationResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := tn.RunOptimization(ctx)
		done <- outcome{res, err}
	}()

	require.Eventually(t, func() bool { return len(tn.Status().Active) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, tn.Params()[ParamRequestBatching])

	// Every slot is taken, so a second run applies nothing.
	second, err := tn.RunOptimization(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.Executions)

	cancel()
	var out outcome
	select {
	case out = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	assert.ErrorIs(t, out.err, context.Canceled)
	require.Len(t, out.res.Executions, 3)
	for _, ex := range out.res.Executions {
		assert.Equal(t, "aborted", ex.Error)
		assert.False(t, ex.Success)
		assert.True(t, ex.RolledBack)
	}
	assert.Equal(t, DefaultParameters(), tn.Params())
	assert.Empty(t, tn.Status().Active)
	assert.Len(t, tn.Executions(), 3)
}

func TestRegressionRollsBack(t *testing.T) {
	params := NewParameterStore(nil)
	// Batching hurts here: health falls from 0.8 to 0.5.
	diag := newFakeDiag(params, batchingHelps(0.5, 0.8))
	tn := New(diag, params, nil, quickConfig())

	b, err := tn.EstablishBaseline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, b.Samples)
	assert.InDelta(t, 0.8, b.AverageHealthScore, 1e-9)
	assert.Zero(t, tn.CheckRegression(context.Background()))

	diag.set(func(d *fakeDiag) { d.usage.NetworkLatencyMs = 150 })
	res, err := tn.RunOptimization(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Executions, 1)
	assert.False(t, res.Executions[0].Success)
	assert.Equal(t, 1.0, tn.Params()[ParamRequestBatching])

	assert.Equal(t, 1, tn.CheckRegression(context.Background()))
	assert.Equal(t, 0.0, tn.Params()[ParamRequestBatching])

	execs := tn.Executions()
	require.Len(t, execs, 1)
	assert.True(t, execs[0].RolledBack)
	st := tn.Status()
	assert.Equal(t, 1, st.RolledBack)
	assert.True(t, st.BaselineEstablished)

	// Nothing left inside the window to revert.
	assert.Zero(t, tn.Rollback("again"))
}

func TestRollbackRestoresInReverseOrder(t *testing.T) {
	params := NewParameterStore(nil)
	diag := newFakeDiag(params, batchingHelps(0.9, 0.9))
	tn := New(diag, params, nil, quickConfig())

	diag.set(func(d *fakeDiag) {
		d.current.Components = map[model.ComponentType]float64{model.ComponentCache: 0.5}
	})
	_, err := tn.RunOptimization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 384.0, tn.Params()[ParamCacheSizeMB])

	diag.set(func(d *fakeDiag) {
		d.current.Components = nil
		d.usage.MemoryUsedMB = 850
	})
	_, err = tn.RunOptimization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 288.0, tn.Params()[ParamCacheSizeMB])
	assert.Equal(t, 75.0, tn.Params()[ParamGCTargetPercent])

	assert.Equal(t, 2, tn.Rollback("manual"))
	assert.Equal(t, DefaultParameters(), tn.Params())
}

func TestRollbackWindow(t *testing.T) {
	params := NewParameterStore(nil)
	diag := newFakeDiag(params, batchingHelps(0.9, 0.6))
	diag.set(func(d *fakeDiag) { d.usage.NetworkLatencyMs = 150 })
	tn := New(diag, params, nil, quickConfig())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tn.SetClock(func() time.Time { return now })
	_, err := tn.RunOptimization(context.Background())
	require.NoError(t, err)

	now = now.Add(6 * time.Minute)
	assert.Zero(t, tn.Rollback("too late"))
	assert.Equal(t, 1.0, tn.Params()[ParamRequestBatching])
}

func TestRollbackWithNothingInWindow(t *testing.T) {
	params := NewParameterStore(nil)
	diag := newFakeDiag(params, batchingHelps(0.9, 0.9))
	tn := New(diag, params, nil, quickConfig())

	assert.Zero(t, tn.Rollback("idle"))
	st := tn.Status()
	assert.Zero(t, st.RolledBack)
	assert.True(t, st.LastRollback.IsZero())
}

func TestRollbackRevertsSettlingExecution(t *testing.T) {
	params := NewParameterStore(nil)
	diag := newFakeDiag(params, batchingHelps(0.9, 0.6))
	diag.set(func(d *fakeDiag) { d.usage.NetworkLatencyMs = 150 })
	tn := New(diag, params, nil, Config{SettleTime: 300 * time.Millisecond})

	done := make(chan model.OptimizationResult, 1)
	go func() {
		res, _ := tn.RunOptimization(context.Background())
		done <- res
	}()

	require.Eventually(t, func() bool { return len(tn.Status().Active) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, tn.Params()[ParamRequestBatching])

	assert.Equal(t, 1, tn.Rollback("regression"))
	assert.Equal(t, 0.0, tn.Params()[ParamRequestBatching])
	assert.Zero(t, tn.Rollback("again"), "a settling execution is reverted once")

	var res model.OptimizationResult
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish")
	}
	require.Len(t, res.Executions, 1)
	assert.True(t, res.Executions[0].RolledBack)
	assert.False(t, res.Executions[0].RolledBackAt.IsZero())

	execs := tn.Executions()
	require.Len(t, execs, 1)
	assert.True(t, execs[0].RolledBack)
	assert.Equal(t, 0.0, tn.Params()[ParamRequestBatching])
	assert.Equal(t, 1, tn.Status().RolledBack)
	assert.Zero(t, tn.Rollback("after commit"))
}

func TestFailedApplyDoesNotBlockSiblings(t *testing.T) {
	params := NewParameterStore(nil)
	diag := newFakeDiag(params, batchingHelps(0.9, 0.6))
	tn := New(diag, params, nil, quickConfig())
	now := time.Now()

	tn.mu.Lock()
	bad := tn.applyLocked(model.OptimizationRecommendation{Type: model.OptimizeCache,
		Parameters: map[string]float64{ParamCacheSizeMB: 1}}, map[string]float64{ParamCacheSizeMB: 1}, model.PerformanceSnapshot{}, now)
	good := tn.applyLocked(model.OptimizationRecommendation{Type: model.OptimizeNetwork,
		Parameters: map[string]float64{ParamRequestBatching: 1}}, map[string]float64{ParamRequestBatching: 1}, model.PerformanceSnapshot{}, now)
	active := len(tn.active)
	tn.mu.Unlock()

	assert.NotEmpty(t, bad.Error)
	assert.Empty(t, good.Error)
	assert.Equal(t, 1, active)
	assert.Equal(t, 256.0, tn.Params()[ParamCacheSizeMB])
	assert.Equal(t, 1.0, tn.Params()[ParamRequestBatching])

	res := model.OptimizationResult{Executions: []model.OptimizationExecution{bad, good}}
	tn.commit(&res)
	st := tn.Status()
	assert.Equal(t, 2, st.TotalExecuted)
	assert.Empty(t, st.Active)
}

func TestApplyProfile(t *testing.T) {
	params := NewParameterStore(nil)
	diag := newFakeDiag(params, batchingHelps(0.9, 0.6))
	tn := New(diag, params, nil, quickConfig())

	_, err := tn.ApplyProfile(context.Background(), "warp")
	assert.ErrorIs(t, err, ErrUnknownProfile)

	res, err := tn.ApplyProfile(context.Background(), "efficiency")
	require.NoError(t, err)
	assert.Equal(t, "efficiency", res.Profile)
	require.Len(t, res.Executions, 4)
	for _, ex := range res.Executions {
		assert.True(t, ex.Success, ex.Recommendation.Type)
	}

	p := tn.Params()
	assert.Equal(t, 64.0, p[ParamCacheSizeMB])
	assert.Equal(t, 2.0, p[ParamWorkerThreads])
	assert.Equal(t, 9.0, p[ParamCompressionLevel])

	assert.Equal(t, 4, tn.Rollback("undo profile"))
	assert.Equal(t, DefaultParameters(), tn.Params())
}

func TestProfilesDistinctTypes(t *testing.T) {
	assert.Equal(t, []string{"balanced", "efficiency", "high_performance"}, ProfileNames())
	for _, name := range ProfileNames() {
		p, err := LookupProfile(name)
		require.NoError(t, err)
		seen := make(map[model.OptimizationType]bool)
		for _, r := range p.Recommendations {
			assert.False(t, seen[r.Type], "%s repeats %s", name, r.Type)
			seen[r.Type] = true
			for k, v := range r.Parameters {
				assert.NoError(t, validateParam(k, v))
			}
		}
	}
}

func TestPerformanceHealthAgainstBaseline(t *testing.T) {
	params := NewParameterStore(nil)
	diag := newFakeDiag(params, batchingHelps(0.9, 0.9))
	diag.set(func(d *fakeDiag) {
		d.metrics = map[string]float64{"throughput": 100, "error_rate": 0}
	})
	tn := New(diag, params, nil, quickConfig())
	assert.Equal(t, 1.0, tn.PerformanceHealth())

	_, err := tn.EstablishBaseline(context.Background())
	require.NoError(t, err)

	diag.set(func(d *fakeDiag) { d.metrics["throughput"] = 50 })
	tn.Capture(context.Background())
	assert.InDelta(t, 2.5/3, tn.PerformanceHealth(), 1e-9)
	diag.mu.Lock()
	assert.InDelta(t, 2.5/3, diag.perf, 1e-9)
	diag.mu.Unlock()
}

func TestStatusTrendAndStability(t *testing.T) {
	params := NewParameterStore(nil)
	diag := newFakeDiag(params, batchingHelps(0.9, 0.9))
	tn := New(diag, params, nil, quickConfig())
	for i := 0; i < 8; i++ {
		tn.Capture(context.Background())
	}
	st := tn.Status()
	assert.Equal(t, model.TrendStable, st.PerformanceTrend)
	assert.InDelta(t, 1.0, st.Stability, 1e-9)
	assert.False(t, st.BaselineEstablished)
	assert.Len(t, tn.Snapshots(5), 5)
}

func TestEstablishBaselineCancelled(t *testing.T) {
	params := NewParameterStore(nil)
	diag := newFakeDiag(params, batchingHelps(0.9, 0.9))
	tn := New(diag, params, nil, Config{BaselineSamples: 3, BaselineInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tn.EstablishBaseline(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, ok := tn.Baseline()
	assert.False(t, ok)
}
