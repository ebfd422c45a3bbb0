package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ftahirops/xdiag/alerting"
	"github.com/ftahirops/xdiag/model"
	"github.com/ftahirops/xdiag/tuner"
)

// Duration is a time.Duration that reads and writes as "30s" in both YAML
// and JSON.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds user-configurable defaults and integrations.
type Config struct {
	LogLevel  string         `yaml:"log_level" json:"log_level"`
	LogJSON   bool           `yaml:"log_json" json:"log_json"`
	DataDir   string         `yaml:"data_dir" json:"data_dir"`
	Intervals IntervalConfig `yaml:"intervals" json:"intervals"`
	Probe     ProbeConfig    `yaml:"probe" json:"probe"`
	Alerting  AlertingConfig `yaml:"alerting" json:"alerting"`
	Tuner     TunerConfig    `yaml:"tuner" json:"tuner"`
	HTTP      HTTPConfig     `yaml:"http" json:"http"`
	History   HistoryConfig  `yaml:"history" json:"history"`
}

// IntervalConfig sets the cadence of each periodic task.
type IntervalConfig struct {
	Health           Duration `yaml:"health" json:"health"`
	Resources        Duration `yaml:"resources" json:"resources"`
	Bottlenecks      Duration `yaml:"bottlenecks" json:"bottlenecks"`
	AlertEvaluate    Duration `yaml:"alert_evaluate" json:"alert_evaluate"`
	AutoResolve      Duration `yaml:"auto_resolve" json:"auto_resolve"`
	Optimization     Duration `yaml:"optimization" json:"optimization"`
	BaselineDelay    Duration `yaml:"baseline_delay" json:"baseline_delay"`
	WatchdogCooldown Duration `yaml:"watchdog_cooldown" json:"watchdog_cooldown"`
}

// ProbeConfig selects and tunes the resource probe.
type ProbeConfig struct {
	LatencyTarget string `yaml:"latency_target" json:"latency_target"`
	DiskPath      string `yaml:"disk_path" json:"disk_path"`
	// Record, when set, appends every sample to this JSONL file.
	Record string `yaml:"record,omitempty" json:"record,omitempty"`
	// Replay, when set, reads samples from this JSONL file instead of the host.
	Replay string `yaml:"replay,omitempty" json:"replay,omitempty"`
}

// AlertingConfig configures the alert engine and notifications.
type AlertingConfig struct {
	MaxPerHour        int                        `yaml:"max_per_hour" json:"max_per_hour"`
	HistoryCapacity   int                        `yaml:"history_capacity" json:"history_capacity"`
	SuppressionWindow Duration                   `yaml:"suppression_window" json:"suppression_window"`
	SustainTicks      int                        `yaml:"sustain_ticks" json:"sustain_ticks"`
	Journal           bool                       `yaml:"journal" json:"journal"`
	Thresholds        map[string]ThresholdConfig `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
	Channels          []ChannelConfig            `yaml:"channels,omitempty" json:"channels,omitempty"`
}

// ThresholdConfig overrides one alert type's bands.
type ThresholdConfig struct {
	Warning  float64 `yaml:"warning" json:"warning"`
	Critical float64 `yaml:"critical" json:"critical"`
	Enabled  bool    `yaml:"enabled" json:"enabled"`
}

// ChannelConfig is one notification destination.
type ChannelConfig struct {
	Name        string  `yaml:"name" json:"name"`
	Kind        string  `yaml:"kind" json:"kind"`
	Target      string  `yaml:"target,omitempty" json:"target,omitempty"`
	MinSeverity string  `yaml:"min_severity,omitempty" json:"min_severity,omitempty"`
	PerMinute   float64 `yaml:"per_minute,omitempty" json:"per_minute,omitempty"`
	Burst       int     `yaml:"burst,omitempty" json:"burst,omitempty"`
}

// TunerConfig mirrors tuner.Config in file form.
type TunerConfig struct {
	Enabled           bool               `yaml:"enabled" json:"enabled"`
	BaselineSamples   int                `yaml:"baseline_samples" json:"baseline_samples"`
	BaselineInterval  Duration           `yaml:"baseline_interval" json:"baseline_interval"`
	SettleTime        Duration           `yaml:"settle_time" json:"settle_time"`
	MinConfidence     float64            `yaml:"min_confidence" json:"min_confidence"`
	MaxConcurrent     int                `yaml:"max_concurrent" json:"max_concurrent"`
	RollbackThreshold float64            `yaml:"rollback_threshold" json:"rollback_threshold"`
	RollbackWindow    Duration           `yaml:"rollback_window" json:"rollback_window"`
	Profile           string             `yaml:"profile,omitempty" json:"profile,omitempty"`
	Parameters        map[string]float64 `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// HTTPConfig is the daemon's API and metrics listener.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// HistoryConfig sizes the in-memory buffers.
type HistoryConfig struct {
	Scores          int      `yaml:"scores" json:"scores"`
	ComponentPoints int      `yaml:"component_points" json:"component_points"`
	Retention       Duration `yaml:"retention" json:"retention"`
	Resources       int      `yaml:"resources" json:"resources"`
}

// Default returns a config with sensible defaults.
func Default() Config {
	tc := tuner.DefaultConfig()
	return Config{
		LogLevel: "info",
		DataDir:  defaultDataDir(),
		Intervals: IntervalConfig{
			Health:           Duration(30 * time.Second),
			Resources:        Duration(30 * time.Second),
			Bottlenecks:      Duration(5 * time.Minute),
			AlertEvaluate:    Duration(5 * time.Second),
			AutoResolve:      Duration(30 * time.Second),
			Optimization:     Duration(30 * time.Second),
			BaselineDelay:    Duration(time.Minute),
			WatchdogCooldown: Duration(60 * time.Second),
		},
		Probe: ProbeConfig{
			LatencyTarget: "1.1.1.1:443",
			DiskPath:      "/",
		},
		Alerting: AlertingConfig{
			MaxPerHour:        50,
			HistoryCapacity:   1000,
			SuppressionWindow: Duration(5 * time.Minute),
			SustainTicks:      1,
			Channels:          []ChannelConfig{{Name: "log", Kind: alerting.ChannelLog, MinSeverity: "WARNING"}},
		},
		Tuner: TunerConfig{
			Enabled:           true,
			BaselineSamples:   tc.BaselineSamples,
			BaselineInterval:  Duration(tc.BaselineInterval),
			SettleTime:        Duration(tc.SettleTime),
			MinConfidence:     tc.MinConfidence,
			MaxConcurrent:     tc.MaxConcurrent,
			RollbackThreshold: tc.RollbackThreshold,
			RollbackWindow:    Duration(tc.RollbackWindow),
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9180",
		},
		History: HistoryConfig{
			Scores:          100,
			ComponentPoints: 2880,
			Retention:       Duration(24 * time.Hour),
			Resources:       120,
		},
	}
}

func baseDir(env, fallback string) string {
	dir := os.Getenv(env)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, fallback)
	}
	return filepath.Join(dir, "xdiag")
}

func defaultDataDir() string {
	return baseDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// Path returns ~/.config/xdiag/config.yaml (or under XDG_CONFIG_HOME). An
// existing config.json next to it is used instead when no YAML file exists.
// Returns empty string if home directory cannot be determined.
func Path() string {
	dir := baseDir("XDG_CONFIG_HOME", ".config")
	if dir == "" {
		return ""
	}
	p := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(p); err != nil {
		if j := filepath.Join(dir, "config.json"); fileExists(j) {
			return j
		}
	}
	return p
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Load reads path over the defaults. A missing file yields the defaults
// without error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := decode(path, data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Default(), fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func decode(path string, data []byte, cfg *Config) error {
	if isJSON(path) {
		return json.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// Save writes cfg to path, as JSON for a .json path and YAML otherwise.
func Save(path string, cfg Config) error {
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	var data []byte
	var err error
	if isJSON(path) {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks intervals, thresholds, channels and tuner bounds.
func (c Config) Validate() error {
	var errs []error
	iv := map[string]Duration{
		"health":         c.Intervals.Health,
		"resources":      c.Intervals.Resources,
		"bottlenecks":    c.Intervals.Bottlenecks,
		"alert_evaluate": c.Intervals.AlertEvaluate,
		"auto_resolve":   c.Intervals.AutoResolve,
		"optimization":   c.Intervals.Optimization,
	}
	for name, d := range iv {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("intervals.%s must be positive", name))
		}
	}
	if _, err := c.AlertThresholds(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Channels(); err != nil {
		errs = append(errs, err)
	}
	if c.Tuner.MinConfidence < 0 || c.Tuner.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("tuner.min_confidence %.2f outside [0,1]", c.Tuner.MinConfidence))
	}
	if c.Tuner.RollbackThreshold < 0 || c.Tuner.RollbackThreshold > 1 {
		errs = append(errs, fmt.Errorf("tuner.rollback_threshold %.2f outside [0,1]", c.Tuner.RollbackThreshold))
	}
	if c.Tuner.Profile != "" {
		if _, err := tuner.LookupProfile(c.Tuner.Profile); err != nil {
			errs = append(errs, fmt.Errorf("tuner.profile %q: %w", c.Tuner.Profile, err))
		}
	}
	return errors.Join(errs...)
}

// AlertThresholds converts the threshold overrides, validating each.
func (c Config) AlertThresholds() (map[model.AlertType]model.AlertThreshold, error) {
	out := make(map[model.AlertType]model.AlertThreshold, len(c.Alerting.Thresholds))
	for name, tc := range c.Alerting.Thresholds {
		t, err := model.ParseAlertType(name)
		if err != nil {
			return nil, fmt.Errorf("alerting.thresholds: %w", err)
		}
		th := model.AlertThreshold{Warning: tc.Warning, Critical: tc.Critical, Enabled: tc.Enabled}
		if err := alerting.ValidateThreshold(t, th); err != nil {
			return nil, fmt.Errorf("alerting.thresholds.%s: %w", name, err)
		}
		out[t] = th
	}
	return out, nil
}

// Channels converts the channel list for alerting.NewNotifier.
func (c Config) Channels() ([]alerting.Channel, error) {
	out := make([]alerting.Channel, 0, len(c.Alerting.Channels))
	for i, ch := range c.Alerting.Channels {
		sev := model.AlertInfo
		if ch.MinSeverity != "" {
			s, err := model.ParseAlertSeverity(ch.MinSeverity)
			if err != nil {
				return nil, fmt.Errorf("alerting.channels[%d]: %w", i, err)
			}
			sev = s
		}
		out = append(out, alerting.Channel{
			Name:        ch.Name,
			Kind:        ch.Kind,
			Target:      ch.Target,
			MinSeverity: sev,
			PerMinute:   ch.PerMinute,
			Burst:       ch.Burst,
		})
	}
	return out, nil
}

// AlertOptions builds the alerting engine options.
func (c Config) AlertOptions() alerting.Options {
	th, _ := c.AlertThresholds()
	return alerting.Options{
		MaxPerHour:        c.Alerting.MaxPerHour,
		HistoryCapacity:   c.Alerting.HistoryCapacity,
		SuppressionWindow: c.Alerting.SuppressionWindow.D(),
		SustainTicks:      c.Alerting.SustainTicks,
		Thresholds:        th,
	}
}

// TunerOptions builds the tuner configuration.
func (c Config) TunerOptions() tuner.Config {
	return tuner.Config{
		BaselineSamples:   c.Tuner.BaselineSamples,
		BaselineInterval:  c.Tuner.BaselineInterval.D(),
		SettleTime:        c.Tuner.SettleTime.D(),
		MinConfidence:     c.Tuner.MinConfidence,
		MaxConcurrent:     c.Tuner.MaxConcurrent,
		RollbackThreshold: c.Tuner.RollbackThreshold,
		RollbackWindow:    c.Tuner.RollbackWindow.D(),
	}
}
