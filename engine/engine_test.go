package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/xdiag/logging"
	"github.com/ftahirops/xdiag/model"
	"github.com/ftahirops/xdiag/probe"
)

func calmHost() model.ResourceUsage {
	return model.ResourceUsage{
		CPUPercent:       20,
		MemoryUsedMB:     400,
		MemoryTotalMB:    1000,
		NetworkLatencyMs: 30,
		BatteryPercent:   80,
		ThreadCount:      12,
	}
}

func newTestDiagnostics(t *testing.T) (*Diagnostics, *probe.Static) {
	t.Helper()
	p := probe.NewStatic(calmHost())
	d := NewDiagnostics(p, p, logging.Nop{}, Options{})
	t.Cleanup(d.Close)
	return d, p
}

func TestScoreSystemWeightsComponents(t *testing.T) {
	d, p := newTestDiagnostics(t)
	p.SetComponent(model.ComponentCache, map[string]float64{"hit_rate": 0.9})

	h := d.ScoreSystem(context.Background())

	// CACHE 0.9, NETWORK 1.0, SYSTEM 0.7; resource mean(0.6, 0.8, 1, 0.8).
	require.Len(t, h.Components, 3)
	assert.InDelta(t, 0.9, h.Components[model.ComponentCache], 1e-9)
	assert.InDelta(t, 1.0, h.Components[model.ComponentNetwork], 1e-9)
	assert.InDelta(t, 0.7, h.Components[model.ComponentSystem], 1e-9)
	assert.InDelta(t, 0.8, h.ResourceHealth, 1e-9)
	assert.InDelta(t, 1.0, h.PerformanceHealth, 1e-9)
	assert.InDelta(t, 0.5*(2.6/3)+0.3*0.8+0.2, h.Overall, 1e-9)
	assert.InDelta(t, 3.0/7, h.Confidence, 1e-9)
	assert.Equal(t, model.TrendStable, h.Trend)
	assert.Empty(t, h.Factors)
	assert.Equal(t, "OK", h.Level())

	assert.Equal(t, h, d.HealthScore())
	assert.Len(t, d.ComponentHealth(), 3)
}

func TestScoreSystemUsesPerformanceHealth(t *testing.T) {
	d, _ := newTestDiagnostics(t)
	d.SetPerformanceHealth(0.25)
	h := d.ScoreSystem(context.Background())
	assert.InDelta(t, 0.25, h.PerformanceHealth, 1e-9)
	assert.Contains(t, h.Factors, "CRITICAL: performance health 0.25")

	d.SetPerformanceHealth(7)
	assert.Equal(t, 1.0, d.PerformanceHealth(), "clamped")
}

func TestScoreSystemProbeFailureHalvesConfidence(t *testing.T) {
	d, p := newTestDiagnostics(t)
	ctx := context.Background()
	d.ScoreSystem(ctx)

	p.FailResources(errors.New("sysfs gone"))
	p.Update(func(u *model.ResourceUsage) { u.CPUPercent = 99 })
	h := d.ScoreSystem(ctx)

	assert.InDelta(t, 2.0/14, h.Confidence, 1e-9)
	assert.Equal(t, 20.0, d.ResourceUsage().CPUPercent, "stale reading kept")

	p.FailResources(nil)
	h = d.ScoreSystem(ctx)
	assert.InDelta(t, 2.0/7, h.Confidence, 1e-9)
	assert.Equal(t, 99.0, d.ResourceUsage().CPUPercent)
}

func TestScoreSystemSkipsFailingComponent(t *testing.T) {
	d, p := newTestDiagnostics(t)
	p.SetComponent(model.ComponentCache, map[string]float64{"hit_rate": 0.1})
	p.FailComponent(model.ComponentCache, errors.New("stats endpoint down"))

	h := d.ScoreSystem(context.Background())
	_, ok := h.Components[model.ComponentCache]
	assert.False(t, ok)
	assert.InDelta(t, 2.0/7, h.Confidence, 1e-9)
}

func TestComponentHistoryGrows(t *testing.T) {
	d, p := newTestDiagnostics(t)
	p.SetComponent(model.ComponentPipeline, map[string]float64{"queue_depth": 10, "max_queue_depth": 100})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d.ScoreSystem(ctx)
	}
	hist := d.ComponentHistory(model.ComponentPipeline)
	require.Len(t, hist, 3)
	assert.InDelta(t, 0.9, hist[2].Score, 1e-9)
	assert.False(t, hist[0].Timestamp.After(hist[2].Timestamp))
	assert.Empty(t, d.ComponentHistory(model.ComponentCache))
}

func TestResourceTrendsAndLeakDetection(t *testing.T) {
	d, p := newTestDiagnostics(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := d.SampleResources(ctx)
		require.NoError(t, err)
	}
	p.Update(func(u *model.ResourceUsage) { u.MemoryUsedMB = 600 })
	for i := 0; i < 5; i++ {
		_, err := d.SampleResources(ctx)
		require.NoError(t, err)
	}

	trends := d.ResourceTrends()
	require.Len(t, trends, 4)
	mem := trends[0]
	assert.Equal(t, model.SignalMemory, mem.Signal)
	assert.Equal(t, model.TrendIncreasing, mem.Trend)
	assert.InDelta(t, 60, mem.Current, 1e-9)
	assert.InDelta(t, 40, mem.Min, 1e-9)
	assert.InDelta(t, 50, mem.Average, 1e-9)
	assert.Equal(t, model.TrendStable, trends[1].Trend)

	assert.Len(t, d.RecentResources(3), 3)

	bs := d.DetectBottlenecks()
	require.Len(t, bs, 1)
	assert.Equal(t, model.BottleneckMemoryLeak, bs[0].Type)
	assert.Equal(t, bs, d.Bottlenecks())
}

func TestSubscriptionsReceivePublishedResults(t *testing.T) {
	d, p := newTestDiagnostics(t)
	hs, cancelH := d.SubscribeHealth()
	defer cancelH()
	bn, cancelB := d.SubscribeBottlenecks()
	defer cancelB()

	p.Update(func(u *model.ResourceUsage) { u.CPUPercent = 95 })
	h := d.ScoreSystem(context.Background())
	got := <-hs
	assert.Equal(t, h.Overall, got.Overall)

	d.DetectBottlenecks()
	bs := <-bn
	require.NotEmpty(t, bs)
	assert.Equal(t, model.BottleneckCPUSaturation, bs[0].Type)

	d.Close()
	_, open := <-hs
	assert.False(t, open)
}

func TestQueriesReturnCopies(t *testing.T) {
	d, p := newTestDiagnostics(t)
	p.SetComponent(model.ComponentCache, map[string]float64{"hit_rate": 0.05})
	d.ScoreSystem(context.Background())
	d.DetectBottlenecks()

	h := d.HealthScore()
	h.Components[model.ComponentCache] = 1
	assert.InDelta(t, 0.05, d.HealthScore().Components[model.ComponentCache], 1e-9)

	bs := d.Bottlenecks()
	require.NotEmpty(t, bs)
	bs[0].Severity = model.SeverityLow
	assert.Equal(t, model.SeverityCritical, d.Bottlenecks()[0].Severity)
}

func TestOverheadTracked(t *testing.T) {
	d, _ := newTestDiagnostics(t)
	total, avg := d.Overhead()
	assert.Zero(t, total)
	assert.Zero(t, avg)

	d.ScoreSystem(context.Background())
	total, avg = d.Overhead()
	assert.GreaterOrEqual(t, total, 0.0)
	assert.LessOrEqual(t, avg, total)
}
