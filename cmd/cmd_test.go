package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/xdiag/engine"
	"github.com/ftahirops/xdiag/logging"
	"github.com/ftahirops/xdiag/model"
	"github.com/ftahirops/xdiag/probe"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func calmUsage() model.ResourceUsage {
	return model.ResourceUsage{
		CPUPercent:       20,
		MemoryUsedMB:     400,
		MemoryTotalMB:    1000,
		NetworkLatencyMs: 30,
		BatteryPercent:   80,
		ThreadCount:      12,
	}
}

func TestSampleReport(t *testing.T) {
	p := probe.NewStatic(calmUsage())
	p.SetComponent(model.ComponentCache, map[string]float64{"hit_rate": 0.95})
	d := engine.NewDiagnostics(p, p, logging.Nop{}, engine.DefaultOptions())
	defer d.Close()

	r, err := sampleReport(context.Background(), d, 3, time.Millisecond)
	require.NoError(t, err)
	assert.False(t, r.Health.Timestamp.IsZero())
	assert.Equal(t, 20.0, r.Resources.CPUPercent)
	assert.Len(t, r.RecentResources, 3)
	assert.Empty(t, r.Bottlenecks)
	assert.Equal(t, []string{"System healthy, no action needed"}, r.Recommendations)
}

func TestSampleReportCancelled(t *testing.T) {
	p := probe.NewStatic(calmUsage())
	d := engine.NewDiagnostics(p, p, logging.Nop{}, engine.DefaultOptions())
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sampleReport(ctx, d, 2, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderMarkdown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := model.DiagnosticReport{
		GeneratedAt: now,
		Health: model.HealthScore{
			Overall:    0.45,
			Components: map[model.ComponentType]float64{model.ComponentCache: 0.42},
			Factors:    []string{"WARNING: CACHE health 0.42"},
			Trend:      model.TrendDecreasing,
			Confidence: 0.5,
			Timestamp:  now,
		},
		Bottlenecks: []model.Bottleneck{{
			Type:      model.BottleneckMemoryPressure,
			Severity:  model.SeverityCritical,
			Component: model.ComponentSystem,
			Impact:    model.Impact{Magnitude: 0.92, UserImpact: "Slow responses"},
		}},
		Resources:       model.ResourceUsage{MemoryUsedMB: 920, MemoryTotalMB: 1000},
		ResourceTrends:  []model.ResourceTrend{{Signal: model.SignalMemory, Current: 92, Average: 80, Min: 70, Max: 92, Trend: model.TrendIncreasing}},
		Recommendations: []string{"Increase cache capacity"},
	}

	md := renderMarkdown(r)
	for _, want := range []string{
		"# xdiag Diagnostic Report",
		"**Generated:** 2026-03-01T12:00:00Z",
		"- **Status:** WARNING",
		"- **Trend:** DEGRADING",
		"- **Confidence:** 50%",
		"- WARNING: CACHE health 0.42",
		"| CACHE | 0.42 |",
		"| MEMORY_PRESSURE | CRITICAL | SYSTEM | 0.92 | Slow responses |",
		"- **Memory:** 92% used (920 MB / 1000 MB)",
		"| memory | 92.0 | 80.0 | 70.0 | 92.0 | INCREASING |",
		"## Recommendations\n\n- Increase cache capacity",
	} {
		assert.Contains(t, md, want)
	}
}

func TestRenderMarkdownUnscored(t *testing.T) {
	md := renderMarkdown(model.DiagnosticReport{})
	assert.Contains(t, md, "- **Status:** UNKNOWN")
	assert.Contains(t, md, "None detected")
	assert.NotContains(t, md, "**Overall:**")
	assert.NotContains(t, md, "## Recommendations")
}

func TestWriteReportJSON(t *testing.T) {
	var buf bytes.Buffer
	r := model.DiagnosticReport{Health: model.HealthScore{Overall: 0.8, Trend: model.TrendStable}}
	require.NoError(t, writeReport(&buf, r, true))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	health := got["health"].(map[string]interface{})
	assert.Equal(t, 0.8, health["overall"])
	assert.Equal(t, "STABLE", health["trend"])
}

func TestReportRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/report", r.URL.Path)
		_ = json.NewEncoder(w).Encode(model.DiagnosticReport{
			Health:          model.HealthScore{Overall: 0.9, Timestamp: time.Now()},
			Recommendations: []string{"System healthy, no action needed"},
		})
	}))
	defer srv.Close()

	out, err := execute(t, "report", "--remote", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "- **Status:** OK")
	assert.Contains(t, out, "System healthy, no action needed")
}

func TestAPIClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"tuner disabled"}`))
	}))
	defer srv.Close()

	err := newAPIClient(srv.URL, time.Second).post("/api/v1/optimizations/run", nil, nil)
	var apiErr apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "HTTP 503: tuner disabled", err.Error())
}

func TestAPIClientAddsScheme(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:9180", newAPIClient("127.0.0.1:9180/", time.Second).base)
	assert.Equal(t, "https://diag.example", newAPIClient("https://diag.example", time.Second).base)
}

func TestProfilesList(t *testing.T) {
	out, err := execute(t, "profiles", "list")
	require.NoError(t, err)
	for _, want := range []string{"balanced", "efficiency", "high_performance", "cache_size_mb"} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "balanced"), strings.Index(out, "high_performance"))
}

func TestProfilesApplyUnknown(t *testing.T) {
	_, err := execute(t, "profiles", "apply", "turbo", "--remote", "127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown optimization profile")
}

func TestProfilesApplyRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/optimizations/profiles/balanced", r.URL.Path)
		_ = json.NewEncoder(w).Encode(model.OptimizationResult{
			Profile: "balanced",
			Executions: []model.OptimizationExecution{{
				Success:        true,
				Recommendation: model.OptimizationRecommendation{Type: model.OptimizeCache, Description: "Default cache"},
			}},
			OverallImprovement: 2,
		})
	}))
	defer srv.Close()

	out, err := execute(t, "profiles", "apply", "balanced", "--remote", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "balanced: 1 change(s), overall improvement +2.0%")
	assert.Contains(t, out, "Default cache")
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xdiag", "config.yaml")

	out, err := execute(t, "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)

	out, err = execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = execute(t, "--config", path, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "--config", path, "config", "init", "--force")
	require.NoError(t, err)

	out, err = execute(t, "--config", path, "--log-level", "debug", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "log_level: debug")
	assert.Contains(t, out, "max_per_hour: 50")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "xdiag v"+Version)
}

func TestDaemonSourceWithoutTuner(t *testing.T) {
	src := daemonSource{d: &engine.Daemon{}}
	_, on := src.TunerStatus()
	assert.False(t, on)
	assert.Nil(t, src.Results(5))

	_, err := src.Optimize(context.Background())
	assert.ErrorIs(t, err, errTunerDisabled)
	_, err = src.Rollback()
	assert.ErrorIs(t, err, errTunerDisabled)
}
