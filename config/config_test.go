package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/xdiag/model"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Intervals.Health.D())
	assert.Equal(t, 5*time.Second, cfg.Intervals.AlertEvaluate.D())
	assert.Equal(t, 5*time.Minute, cfg.Intervals.Bottlenecks.D())
	assert.Equal(t, 0.85, cfg.Tuner.RollbackThreshold)
}

func TestPathUsesXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	assert.Equal(t, filepath.Join(dir, "xdiag", "config.yaml"), Path())

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "xdiag"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "xdiag", "config.json"), []byte("{}"), 0600))
	assert.Equal(t, filepath.Join(dir, "xdiag", "config.json"), Path())
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
log_level: debug
intervals:
  alert_evaluate: 2s
alerting:
  max_per_hour: 10
  thresholds:
    cpu_high:
      warning: 70
      critical: 90
      enabled: true
  channels:
    - name: ops
      kind: webhook
      target: https://hooks.example.com/xdiag
      min_severity: error
tuner:
  settle_time: 3s
  profile: efficiency
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.Intervals.AlertEvaluate.D())
	assert.Equal(t, 30*time.Second, cfg.Intervals.Health.D())
	assert.Equal(t, 3*time.Second, cfg.Tuner.SettleTime.D())

	opts := cfg.AlertOptions()
	assert.Equal(t, 10, opts.MaxPerHour)
	assert.Equal(t, model.AlertThreshold{Warning: 70, Critical: 90, Enabled: true}, opts.Thresholds[model.AlertCPUHigh])

	chs, err := cfg.Channels()
	require.NoError(t, err)
	require.Len(t, chs, 1)
	assert.Equal(t, model.AlertError, chs[0].MinSeverity)
	assert.Equal(t, 3*time.Second, cfg.TunerOptions().SettleTime)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad_order":    "alerting:\n  thresholds:\n    memory_high: {warning: 95, critical: 80, enabled: true}\n",
		"bad_type":     "alerting:\n  thresholds:\n    disk_full: {warning: 1, critical: 2, enabled: true}\n",
		"bad_severity": "alerting:\n  channels:\n    - {name: x, kind: log, min_severity: loud}\n",
		"bad_interval": "intervals:\n  health: 0s\n",
		"bad_profile":  "tuner:\n  profile: turbo\n",
		"bad_duration": "intervals:\n  health: soon\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0600))
			cfg, err := Load(path)
			assert.Error(t, err)
			assert.Equal(t, Default(), cfg)
		})
	}
}

func TestSaveRoundTripJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.LogLevel = "warn"
	cfg.Intervals.Optimization = Duration(45 * time.Second)

	for _, name := range []string{"config.yaml", "config.json"} {
		path := filepath.Join(dir, "sub", name)
		require.NoError(t, Save(path, cfg))
		got, err := Load(path)
		require.NoError(t, err, name)
		assert.Equal(t, "warn", got.LogLevel, name)
		assert.Equal(t, 45*time.Second, got.Intervals.Optimization.D(), name)
	}
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, nil, func(c Config) { got <- c }) }()

	// Give the watcher time to register before the edit.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0600))

	select {
	case c := <-got:
		assert.Equal(t, "debug", c.LogLevel)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
	cancel()
	assert.NoError(t, <-done)
}
