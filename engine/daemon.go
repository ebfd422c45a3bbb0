package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ftahirops/xdiag/alerting"
	"github.com/ftahirops/xdiag/config"
	"github.com/ftahirops/xdiag/logging"
	"github.com/ftahirops/xdiag/model"
	"github.com/ftahirops/xdiag/probe"
	"github.com/ftahirops/xdiag/tuner"
)

// DaemonConfig holds daemon-specific configuration.
type DaemonConfig struct {
	Config     config.Config
	ConfigPath string // watched for threshold changes when set
	Log        logging.Sink
}

// Daemon is the fully wired diagnostics service.
type Daemon struct {
	cfg      config.Config
	path     string
	log      logging.Sink
	Diag     *Diagnostics
	Alerts   *alerting.Engine
	Tuner    *tuner.Tuner
	Metrics  *Metrics
	sched    *Scheduler
	watchdog *WatchdogTrigger
	closers  []io.Closer
}

// compactSummary is a minimal per-tick record for the rolling log.
type compactSummary struct {
	Timestamp   time.Time `json:"ts"`
	Health      string    `json:"health"`
	Score       float64   `json:"score"`
	Trend       string    `json:"trend"`
	Bottlenecks int       `json:"bottlenecks"`
	Alerts      int       `json:"alerts"`
	CPUBusy     float64   `json:"cpu_busy"`
	MemUsedPct  float64   `json:"mem_pct"`
	LatencyMs   float64   `json:"latency_ms"`
}

// closerFunc adapts a func to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// NewDaemon builds the probe, diagnostics, tuner and alerting engine from cfg
// and registers the periodic tasks.
func NewDaemon(dc DaemonConfig) (*Daemon, error) {
	cfg := dc.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	d := &Daemon{
		cfg:      cfg,
		path:     dc.ConfigPath,
		log:      logging.Safe(dc.Log),
		Metrics:  NewMetrics(),
		watchdog: NewWatchdogTrigger(cfg.Intervals.WatchdogCooldown.D()),
	}
	d.sched = NewScheduler(d.log, d.Metrics)

	rp, src, err := d.buildProbe()
	if err != nil {
		d.Close()
		return nil, err
	}

	d.Diag = NewDiagnostics(rp, src, d.log, Options{
		ScoreHistory:     cfg.History.Scores,
		ComponentHistory: cfg.History.ComponentPoints,
		Retention:        cfg.History.Retention.D(),
		ResourceHistory:  cfg.History.Resources,
	})

	var perf alerting.MetricsSource
	if cfg.Tuner.Enabled {
		d.Tuner = tuner.New(d.Diag, tuner.NewParameterStore(cfg.Tuner.Parameters), d.log, cfg.TunerOptions())
		d.Tuner.SetObserver(d.Metrics)
		perf = d.Tuner
	}
	d.Alerts = alerting.New(d.Diag, perf, d.log, cfg.AlertOptions())

	chs, err := cfg.Channels()
	if err != nil {
		d.Close()
		return nil, err
	}
	n, err := alerting.NewNotifier(chs, d.log)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("alert channels: %w", err)
	}
	d.Alerts.SetNotifier(n)

	if cfg.Alerting.Journal {
		j, err := alerting.NewJournal(filepath.Join(cfg.DataDir, "alerts.jsonl"))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("alert journal: %w", err)
		}
		d.Alerts.SetJournal(j)
	}

	d.registerTasks()
	return d, nil
}

// buildProbe returns a replay player, a recording host probe or a plain host
// probe depending on the probe config.
func (d *Daemon) buildProbe() (probe.ResourceProbe, probe.ComponentMetricsSource, error) {
	pc := d.cfg.Probe
	if pc.Replay != "" {
		f, err := os.Open(pc.Replay)
		if err != nil {
			return nil, nil, fmt.Errorf("open replay: %w", err)
		}
		defer f.Close()
		p, err := probe.NewPlayer(f)
		if err != nil {
			return nil, nil, fmt.Errorf("load replay %s: %w", pc.Replay, err)
		}
		return p, p, nil
	}

	host, err := probe.NewHost(probe.HostConfig{LatencyTarget: pc.LatencyTarget, DiskPath: pc.DiskPath})
	if err != nil {
		return nil, nil, fmt.Errorf("host probe: %w", err)
	}
	host.Register(model.ComponentPipeline, d.sched.PipelineMetrics)
	if pc.Record == "" {
		return host, host, nil
	}

	if err := os.MkdirAll(filepath.Dir(pc.Record), 0700); err != nil {
		return nil, nil, fmt.Errorf("create record dir: %w", err)
	}
	f, err := os.OpenFile(pc.Record, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("open record file: %w", err)
	}
	rec := probe.NewRecorder(host, host, f)
	d.closers = append(d.closers, closerFunc(func() error {
		rec.Close()
		return f.Close()
	}))
	return rec, rec, nil
}

func (d *Daemon) registerTasks() {
	iv := d.cfg.Intervals
	d.sched.Add(Task{Name: "resources", Interval: iv.Resources.D(), Run: d.sampleResources})
	d.sched.Add(Task{Name: "health", Interval: iv.Health.D(), Run: d.scoreHealth})
	d.sched.Add(Task{Name: "bottlenecks", Delay: iv.Health.D(), Interval: iv.Bottlenecks.D(), Run: d.detectBottlenecks})
	d.sched.Add(Task{Name: "alert-evaluate", Delay: iv.AlertEvaluate.D(), Interval: iv.AlertEvaluate.D(),
		Run: func(context.Context) error { return d.Alerts.Evaluate() }})
	d.sched.Add(Task{Name: "auto-resolve", Delay: iv.AutoResolve.D(), Interval: iv.AutoResolve.D(),
		Run: func(context.Context) error { d.Alerts.AutoResolve(); return nil }})
	if d.Tuner == nil {
		return
	}
	d.sched.Add(Task{Name: "baseline", Delay: iv.BaselineDelay.D(), Once: true, Run: d.establishBaseline})
	d.sched.Add(Task{Name: "optimization", Delay: iv.Optimization.D(), Interval: iv.Optimization.D(), Run: d.optimize})
}

func (d *Daemon) sampleResources(ctx context.Context) error {
	u, _ := d.Diag.SampleResources(ctx)
	d.Metrics.ObserveResources(u)
	return nil
}

func (d *Daemon) scoreHealth(ctx context.Context) error {
	prev := d.Diag.HealthScore()
	h := d.Diag.ScoreSystem(ctx)
	d.Metrics.ObserveHealth(h)
	total, _ := d.Diag.Overhead()
	d.Metrics.SetOverhead(total)

	if h.Level() == "CRITICAL" && prev.Level() != "CRITICAL" {
		path := filepath.Join(d.cfg.DataDir, "incidents",
			fmt.Sprintf("incident-%s.json", h.Timestamp.Format("2006-01-02T15-04-05")))
		if err := saveIncidentReport(path, d.Diag.GenerateReport()); err != nil {
			d.log.LogError("save incident report", err)
		} else {
			d.log.LogEvent(logging.LevelWarn, "daemon", "health", "health critical, report saved",
				map[string]string{"path": path})
		}
	}

	u := d.Diag.ResourceUsage()
	writeSummaryLine(filepath.Join(d.cfg.DataDir, "current.jsonl"), compactSummary{
		Timestamp:   h.Timestamp,
		Health:      h.Level(),
		Score:       h.Overall,
		Trend:       h.Trend.HealthLabel(),
		Bottlenecks: len(d.Diag.Bottlenecks()),
		Alerts:      len(d.Alerts.Active()),
		CPUBusy:     u.CPUPercent,
		MemUsedPct:  u.MemoryPercent(),
		LatencyMs:   u.NetworkLatencyMs,
	})
	return nil
}

func (d *Daemon) detectBottlenecks(ctx context.Context) error {
	bs := d.Diag.DetectBottlenecks()
	d.Metrics.ObserveBottlenecks(bs)
	d.Alerts.ReportBottlenecks(bs)

	if d.Tuner == nil {
		return nil
	}
	b, fire := d.watchdog.Check(bs)
	if !fire {
		return nil
	}
	d.log.LogEvent(logging.LevelWarn, "daemon", string(b.Type), "critical bottleneck, optimizing now", nil)
	_, err := d.Tuner.RunOptimization(ctx)
	return err
}

func (d *Daemon) establishBaseline(ctx context.Context) error {
	if _, err := d.Tuner.EstablishBaseline(ctx); err != nil {
		return err
	}
	if p := d.cfg.Tuner.Profile; p != "" {
		if _, err := d.Tuner.ApplyProfile(ctx, p); err != nil {
			return fmt.Errorf("startup profile: %w", err)
		}
	}
	return nil
}

func (d *Daemon) optimize(ctx context.Context) error {
	if d.Tuner.CheckRegression(ctx) > 0 {
		return nil
	}
	if _, ok := d.Tuner.Baseline(); !ok {
		return nil
	}
	_, err := d.Tuner.RunOptimization(ctx)
	return err
}

// forwardAlertEvents feeds alert events into the metrics until ctx ends.
func (d *Daemon) forwardAlertEvents(ctx context.Context) {
	events, cancel := d.Alerts.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.Metrics.ObserveAlertEvent(ev)
			d.Metrics.SetActiveAlerts(len(d.Alerts.Active()))
		}
	}
}

// applyConfig pushes reloaded thresholds into the alert engine.
func (d *Daemon) applyConfig(cfg config.Config) {
	th, err := cfg.AlertThresholds()
	if err != nil {
		d.log.LogError("reload thresholds", err)
		return
	}
	for t, v := range th {
		if err := d.Alerts.SetThreshold(t, v); err != nil {
			d.log.LogError("reload threshold "+string(t), err)
		}
	}
}

// Run starts the scheduler, alert forwarding, the HTTP listener and the
// config watcher, and blocks until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	if err := os.MkdirAll(d.cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	pidPath := filepath.Join(d.cfg.DataDir, "daemon.pid")
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d.Metrics.up.Set(1)
	defer d.Metrics.up.Set(0)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.sched.Run(ctx) })
	g.Go(func() error {
		d.forwardAlertEvents(ctx)
		return nil
	})
	if d.path != "" {
		g.Go(func() error {
			if err := config.Watch(ctx, d.path, d.log, d.applyConfig); err != nil {
				d.log.LogError("config watcher stopped", err)
			}
			return nil
		})
	}
	if d.cfg.HTTP.Enabled {
		srv := &http.Server{
			Addr:              d.cfg.HTTP.Addr,
			Handler:           NewAPI(d.Diag, d.Alerts, d.Tuner, d.Metrics, d.log).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	d.log.LogInfo("xdiag daemon started", map[string]string{
		"pid":     fmt.Sprintf("%d", os.Getpid()),
		"datadir": d.cfg.DataDir,
		"http":    d.cfg.HTTP.Addr,
	})
	err := g.Wait()
	d.log.LogInfo("xdiag daemon stopped", nil)
	return err
}

// Close releases the probe and stops alert delivery.
func (d *Daemon) Close() {
	if d.Alerts != nil {
		d.Alerts.Close()
	}
	if d.Diag != nil {
		d.Diag.Close()
	}
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			d.log.LogError("close", err)
		}
	}
	d.closers = nil
}

// RunDaemon runs xdiag as a background service until SIGINT or SIGTERM.
func RunDaemon(dc DaemonConfig) error {
	d, err := NewDaemon(dc)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return d.Run(ctx)
}

// saveIncidentReport writes a full report to a JSON file on health transitions.
func saveIncidentReport(path string, r model.DiagnosticReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal incident report: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// writeSummaryLine appends a compact JSON line to the summary file.
// Rotates at 10MB.
func writeSummaryLine(path string, s compactSummary) {
	if info, err := os.Stat(path); err == nil && info.Size() > 10*1024*1024 {
		_ = os.Rename(path, path+".old")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_ = json.NewEncoder(f).Encode(s)
}
