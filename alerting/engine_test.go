package alerting

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/xdiag/model"
)

type fakeHealth struct {
	h model.HealthScore
	u model.ResourceUsage
}

func (f *fakeHealth) HealthScore() model.HealthScore     { return f.h }
func (f *fakeHealth) ResourceUsage() model.ResourceUsage { return f.u }

type fakePerf struct {
	health float64
	trend  model.Trend
}

func (f *fakePerf) PerformanceHealth() float64    { return f.health }
func (f *fakePerf) PerformanceTrend() model.Trend { return f.trend }

type clock struct{ t time.Time }

func newClock() *clock { return &clock{t: time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)} }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func calmUsage(t time.Time) model.ResourceUsage {
	return model.ResourceUsage{
		CPUPercent:     20,
		MemoryUsedMB:   400,
		MemoryTotalMB:  1000,
		BatteryPercent: 100,
		Timestamp:      t,
	}
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *fakeHealth, *clock) {
	t.Helper()
	clk := newClock()
	src := &fakeHealth{u: calmUsage(clk.t)}
	opts.Now = clk.now
	e := New(src, nil, nil, opts)
	t.Cleanup(e.Close)
	return e, src, clk
}

func TestTriggerMergesSimilarAlerts(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{})

	first, err := e.Trigger(model.AlertCustom, model.AlertWarning, "cache misses", map[string]string{"component": "cache", "region": "a"})
	require.NoError(t, err)
	second, err := e.Trigger(model.AlertCustom, model.AlertCritical, "cache misses again", map[string]string{"component": "cache", "region": "b"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].OccurrenceCount)
	assert.Equal(t, "b", active[0].Context["region"])
	assert.Equal(t, model.AlertCritical, active[0].Severity, "merge escalates severity")

	hist := e.History(0)
	require.Len(t, hist, 1, "merges stay out of the history")
	assert.Equal(t, model.EventCreated, hist[0].Kind)
}

func TestTriggerDissimilarContextsCreateSeparateAlerts(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{})

	_, err := e.Trigger(model.AlertCustom, model.AlertInfo, "a", map[string]string{"a": "1", "b": "1", "c": "1"})
	require.NoError(t, err)
	_, err = e.Trigger(model.AlertCustom, model.AlertInfo, "b", map[string]string{"a": "1", "x": "1", "y": "1"})
	require.NoError(t, err)

	assert.Len(t, e.Active(), 2)
}

func TestSimilar(t *testing.T) {
	cases := []struct {
		name string
		a, b map[string]string
		want bool
	}{
		{"both_empty", nil, map[string]string{}, true},
		{"same_keys", map[string]string{"a": "1"}, map[string]string{"a": "2"}, true},
		{"half_overlap", map[string]string{"a": "1", "b": "1"}, map[string]string{"a": "1", "c": "1"}, true},
		{"third_overlap", map[string]string{"a": "", "b": "", "c": ""}, map[string]string{"a": "", "d": "", "e": ""}, false},
		{"disjoint", map[string]string{"a": ""}, map[string]string{"b": ""}, false},
		{"value_ignored", map[string]string{"value": "1"}, map[string]string{"metric": "cpu"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, similar(c.a, c.b))
		})
	}
}

func TestRateLimitCapsCreations(t *testing.T) {
	e, _, clk := newTestEngine(t, Options{MaxPerHour: 50})

	created := 0
	for i := 0; i < 51; i++ {
		_, err := e.Trigger(model.AlertCustom, model.AlertInfo, "distinct", map[string]string{fmt.Sprintf("key%d", i): "v"})
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, ErrRateLimited)
	}
	assert.Equal(t, 50, created)
	assert.Len(t, e.Active(), 50)
	assert.Equal(t, 1, e.Statistics().RateLimited)
	assert.Equal(t, 0, e.RemainingThisHour())

	// At the cap even a trigger that would merge is rejected.
	_, err := e.Trigger(model.AlertCustom, model.AlertInfo, "dup", map[string]string{"key0": "w"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 2, e.Statistics().RateLimited)
	for _, a := range e.Active() {
		assert.Equal(t, 1, a.OccurrenceCount)
	}

	clk.advance(time.Hour)
	_, err = e.Trigger(model.AlertCustom, model.AlertInfo, "dup", map[string]string{"key0": "w"})
	assert.NoError(t, err)
	assert.Equal(t, 50, e.RemainingThisHour(), "merges do not consume a slot")
	_, err = e.Trigger(model.AlertCustom, model.AlertInfo, "next hour", map[string]string{"fresh": "v"})
	assert.NoError(t, err)
	assert.Equal(t, 49, e.RemainingThisHour())
	assert.Len(t, e.History(0), 51, "rejections stay out of the history")
}

func TestEvaluateCPUCritical(t *testing.T) {
	e, src, _ := newTestEngine(t, Options{})
	src.u.CPUPercent = 96

	require.NoError(t, e.Evaluate())

	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, model.AlertCPUHigh, active[0].Type)
	assert.Equal(t, model.AlertCritical, active[0].Severity)
	assert.Equal(t, "critical", active[0].Context["level"])
	assert.Equal(t, "96.00", active[0].Context["value"])
}

func TestEvaluateRepeatedViolationMerges(t *testing.T) {
	e, src, _ := newTestEngine(t, Options{})
	src.u.CPUPercent = 85

	require.NoError(t, e.Evaluate())
	src.u.CPUPercent = 86
	require.NoError(t, e.Evaluate())

	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].OccurrenceCount)
	assert.Equal(t, "86.00", active[0].Context["value"])
}

func TestAutoResolveBelowWarning(t *testing.T) {
	e, src, _ := newTestEngine(t, Options{})
	src.u.MemoryUsedMB = 950

	require.NoError(t, e.Evaluate())
	require.Len(t, e.Active(), 1)
	assert.Equal(t, model.AlertCritical, e.Active()[0].Severity)

	// Below critical but above warning is not recovery.
	src.u.MemoryUsedMB = 850
	assert.Equal(t, 0, e.AutoResolve())
	require.Len(t, e.Active(), 1)

	src.u.MemoryUsedMB = 700
	assert.Equal(t, 1, e.AutoResolve())
	assert.Empty(t, e.Active())

	last := e.History(1)
	require.Len(t, last, 1)
	assert.Equal(t, model.EventAutoResolved, last[0].Kind)
	assert.Equal(t, model.StatusAutoResolved, last[0].Alert.Status)
	assert.Equal(t, "system", last[0].Alert.ResolvedBy)
}

func TestAutoResolveSkipsCustom(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{})
	_, err := e.Trigger(model.AlertCustom, model.AlertError, "manual", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, e.AutoResolve())
	assert.Len(t, e.Active(), 1)
}

func TestLowerIsWorseSignals(t *testing.T) {
	e, src, _ := newTestEngine(t, Options{})
	src.u.BatteryPercent = 15
	src.h = model.HealthScore{Overall: 0.25, Timestamp: src.u.Timestamp}

	require.NoError(t, e.Evaluate())

	byType := map[model.AlertType]model.Alert{}
	for _, a := range e.Active() {
		byType[a.Type] = a
	}
	require.Contains(t, byType, model.AlertBatteryLow)
	assert.Equal(t, model.AlertWarning, byType[model.AlertBatteryLow].Severity)
	require.Contains(t, byType, model.AlertHealthDegraded)
	assert.Equal(t, model.AlertCritical, byType[model.AlertHealthDegraded].Severity)

	src.u.BatteryPercent = 60
	src.h.Overall = 0.9
	assert.Equal(t, 2, e.AutoResolve())
}

func TestPerformanceTrendWarns(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{})
	perf := &fakePerf{health: 0.9, trend: model.TrendDecreasing}
	e.SetMetricsSource(perf)

	require.NoError(t, e.Evaluate())
	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, model.AlertPerformanceDegraded, active[0].Type)
	assert.Equal(t, model.AlertWarning, active[0].Severity)
	assert.Contains(t, active[0].Message, "trending down")

	// Still trending down: not recovered.
	assert.Equal(t, 0, e.AutoResolve())
	perf.trend = model.TrendStable
	assert.Equal(t, 1, e.AutoResolve())
}

func TestReportBottlenecksEscalates(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{})
	crit := model.Bottleneck{Type: model.BottleneckMemoryPressure, Severity: model.SeverityCritical}

	e.ReportBottlenecks([]model.Bottleneck{crit, {Severity: model.SeverityHigh}})
	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, model.AlertBottleneckDetected, active[0].Type)
	assert.Equal(t, model.AlertWarning, active[0].Severity)

	e.ReportBottlenecks([]model.Bottleneck{crit, crit, crit})
	active = e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, model.AlertCritical, active[0].Severity)
	assert.Equal(t, 2, active[0].OccurrenceCount)

	e.ReportBottlenecks(nil)
	assert.Equal(t, 1, e.AutoResolve())
}

func TestSustainTicksDelayTrigger(t *testing.T) {
	e, src, _ := newTestEngine(t, Options{SustainTicks: 3})
	src.u.CPUPercent = 90

	require.NoError(t, e.Evaluate())
	require.NoError(t, e.Evaluate())
	assert.Empty(t, e.Active())

	require.NoError(t, e.Evaluate())
	assert.Len(t, e.Active(), 1)
}

func TestSustainResetsOnRecovery(t *testing.T) {
	e, src, _ := newTestEngine(t, Options{SustainTicks: 2})
	src.u.CPUPercent = 90
	require.NoError(t, e.Evaluate())
	src.u.CPUPercent = 10
	require.NoError(t, e.Evaluate())
	src.u.CPUPercent = 90
	require.NoError(t, e.Evaluate())
	assert.Empty(t, e.Active())
}

func TestTransitions(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{})
	a, err := e.Trigger(model.AlertCustom, model.AlertWarning, "x", nil)
	require.NoError(t, err)

	acked, err := e.Acknowledge(a.ID, "oncall")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAcknowledged, acked.Status)
	assert.Equal(t, "oncall", acked.AcknowledgedBy)

	_, err = e.Acknowledge(a.ID, "oncall")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	resolved, err := e.Resolve(a.ID, "oncall", "fixed")
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, resolved.Status)
	assert.Equal(t, "fixed", resolved.Resolution)
	assert.True(t, resolved.Status.Terminal())

	_, err = e.Resolve(a.ID, "oncall", "again")
	assert.ErrorIs(t, err, ErrAlertNotFound)
	_, err = e.Acknowledge("missing", "x")
	assert.ErrorIs(t, err, ErrAlertNotFound)
	_, err = e.Get(a.ID)
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestResolveSuppressesRecurrence(t *testing.T) {
	e, _, clk := newTestEngine(t, Options{SuppressionWindow: 5 * time.Minute})
	ctx := map[string]string{"component": "cache"}
	a, err := e.Trigger(model.AlertCustom, model.AlertError, "x", ctx)
	require.NoError(t, err)
	_, err = e.Resolve(a.ID, "ops", "done")
	require.NoError(t, err)

	_, err = e.Trigger(model.AlertCustom, model.AlertError, "x", ctx)
	assert.ErrorIs(t, err, ErrSuppressed)
	assert.Empty(t, e.Active())
	assert.Equal(t, model.EventResolved, e.History(1)[0].Kind)
	assert.Equal(t, 1, e.Statistics().Suppressed)

	clk.advance(6 * time.Minute)
	_, err = e.Trigger(model.AlertCustom, model.AlertError, "x", ctx)
	assert.NoError(t, err)
}

func TestManualSuppress(t *testing.T) {
	e, _, clk := newTestEngine(t, Options{})
	e.Suppress(model.AlertCPUHigh, map[string]string{"metric": "cpu", "level": "warning", "value": "1"}, time.Minute)

	_, err := e.Trigger(model.AlertCPUHigh, model.AlertWarning, "cpu", map[string]string{"metric": "cpu", "level": "warning", "value": "88.00"})
	assert.ErrorIs(t, err, ErrSuppressed)

	clk.advance(2 * time.Minute)
	e.AutoResolve() // prunes the expired entry
	_, err = e.Trigger(model.AlertCPUHigh, model.AlertWarning, "cpu", map[string]string{"metric": "cpu", "level": "warning", "value": "88.00"})
	assert.NoError(t, err)
}

func TestHistoryNewestFirstAndBounded(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{HistoryCapacity: 3})
	for i := 0; i < 5; i++ {
		_, err := e.Trigger(model.AlertCustom, model.AlertInfo, fmt.Sprint(i), map[string]string{fmt.Sprint("k", i): ""})
		require.NoError(t, err)
	}
	all := e.History(0)
	require.Len(t, all, 3)
	assert.Equal(t, "4", all[0].Alert.Message)
	assert.Equal(t, "2", all[2].Alert.Message)

	assert.Len(t, e.History(2), 2)
}

func TestStatistics(t *testing.T) {
	e, _, clk := newTestEngine(t, Options{})
	a, _ := e.Trigger(model.AlertCPUHigh, model.AlertCritical, "cpu", map[string]string{"metric": "cpu"})
	_, _ = e.Trigger(model.AlertMemoryHigh, model.AlertWarning, "mem", map[string]string{"metric": "memory"})
	_, _ = e.Trigger(model.AlertCustom, model.AlertInfo, "c1", map[string]string{"a": ""})
	_, _ = e.Trigger(model.AlertCustom, model.AlertInfo, "c2", map[string]string{"b": ""})

	clk.advance(90 * time.Second)
	_, err := e.Resolve(a.ID, "ops", "ok")
	require.NoError(t, err)

	st := e.Statistics()
	assert.Equal(t, 3, st.Active)
	assert.Equal(t, 4, st.Last24h)
	assert.Equal(t, 4, st.Last7d)
	assert.Equal(t, 2, st.ByType[model.AlertCustom])
	assert.Equal(t, 2, st.BySeverity[model.AlertInfo])
	assert.Equal(t, 2, st.ByType24h[model.AlertCustom])
	assert.Equal(t, 1, st.BySeverity24h[model.AlertCritical])
	assert.Equal(t, 1, st.Resolved)
	assert.Equal(t, 90*time.Second, st.AverageResolution)
	require.NotEmpty(t, st.TopTypes)
	assert.Equal(t, model.AlertCustom, st.TopTypes[0].Type)

	assert.Equal(t, st, e.Statistics(), "no activity between calls")

	clk.advance(25 * time.Hour)
	st = e.Statistics()
	assert.Zero(t, st.Last24h)
	assert.Empty(t, st.ByType24h)
	assert.Empty(t, st.BySeverity24h)
	assert.Equal(t, 4, st.Last7d)
	assert.Equal(t, 2, st.ByType[model.AlertCustom])
}

func TestStatisticsSurviveSustainedViolation(t *testing.T) {
	e, src, clk := newTestEngine(t, Options{})
	src.u.CPUPercent = 85
	start := clk.t

	// Well past the history capacity of 1000 at one evaluation per 5s.
	for i := 0; i < 1200; i++ {
		src.u.Timestamp = clk.t
		require.NoError(t, e.Evaluate())
		clk.advance(5 * time.Second)
	}
	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, 1200, active[0].OccurrenceCount)
	assert.Len(t, e.History(0), 1)

	src.u.CPUPercent = 20
	src.u.Timestamp = clk.t
	require.Equal(t, 1, e.AutoResolve())

	st := e.Statistics()
	assert.Equal(t, 1, st.Last24h)
	assert.Equal(t, 1, st.Last7d)
	assert.Equal(t, 1, st.ByType[model.AlertCPUHigh])
	assert.Equal(t, 1, st.BySeverity[model.AlertWarning])
	assert.Equal(t, 1, st.Resolved)
	assert.Equal(t, clk.t.Sub(start), st.AverageResolution)
}

func TestSetThreshold(t *testing.T) {
	e, src, _ := newTestEngine(t, Options{})

	err := e.SetThreshold(model.AlertCPUHigh, model.AlertThreshold{Warning: 90, Critical: 80, Enabled: true})
	assert.Error(t, err)
	err = e.SetThreshold(model.AlertBatteryLow, model.AlertThreshold{Warning: 10, Critical: 20, Enabled: true})
	assert.Error(t, err)

	require.NoError(t, e.SetThreshold(model.AlertCPUHigh, model.AlertThreshold{Warning: 10, Critical: 95, Enabled: true}))
	assert.Equal(t, 10.0, e.Thresholds()[model.AlertCPUHigh].Warning)
	require.NoError(t, e.Evaluate())
	require.Len(t, e.Active(), 1)

	require.NoError(t, e.SetThreshold(model.AlertMemoryHigh, model.AlertThreshold{Warning: 10, Critical: 20}))
	src.u.MemoryUsedMB = 900
	require.NoError(t, e.Evaluate())
	assert.Len(t, e.Active(), 1, "disabled threshold never fires")
}

func TestSubscribeReceivesEvents(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{})
	ch, cancel := e.Subscribe()
	defer cancel()

	a, err := e.Trigger(model.AlertCustom, model.AlertWarning, "x", nil)
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, model.EventCreated, ev.Kind)
		assert.Equal(t, a.ID, ev.AlertID)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	// Merges are published even though the history keeps only lifecycle events.
	_, err = e.Trigger(model.AlertCustom, model.AlertWarning, "again", nil)
	require.NoError(t, err)
	select {
	case ev := <-ch:
		assert.Equal(t, model.EventUpdated, ev.Kind)
		assert.Equal(t, a.ID, ev.AlertID)
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
}
