package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ftahirops/xdiag/engine"
	"github.com/ftahirops/xdiag/logging"
	"github.com/ftahirops/xdiag/model"
	"github.com/ftahirops/xdiag/ui"
)

var errTunerDisabled = errors.New("tuner disabled")

// daemonSource adapts an in-process daemon to the dashboard.
type daemonSource struct {
	d *engine.Daemon
}

func (s daemonSource) Report() model.DiagnosticReport { return s.d.Diag.GenerateReport() }
func (s daemonSource) ActiveAlerts() []model.Alert    { return s.d.Alerts.Active() }

func (s daemonSource) Acknowledge(id string) error {
	_, err := s.d.Alerts.Acknowledge(id, "dashboard")
	return err
}

func (s daemonSource) TunerStatus() (model.OptimizationStatus, bool) {
	if s.d.Tuner == nil {
		return model.OptimizationStatus{}, false
	}
	return s.d.Tuner.Status(), true
}

func (s daemonSource) Results(limit int) []model.OptimizationResult {
	if s.d.Tuner == nil {
		return nil
	}
	return s.d.Tuner.Results(limit)
}

func (s daemonSource) Optimize(ctx context.Context) (model.OptimizationResult, error) {
	if s.d.Tuner == nil {
		return model.OptimizationResult{}, errTunerDisabled
	}
	return s.d.Tuner.RunOptimization(ctx)
}

func (s daemonSource) Rollback() (int, error) {
	if s.d.Tuner == nil {
		return 0, errTunerDisabled
	}
	return s.d.Tuner.Rollback("dashboard request"), nil
}

func newDashCmd(gf *globalFlags) *cobra.Command {
	var (
		refresh time.Duration
		replay  string
	)
	c := &cobra.Command{
		Use:   "dash",
		Short: "Interactive dashboard",
		Long: `Run the diagnostics engine in-process and show health, bottlenecks,
alerts and tuner state in a fullscreen terminal dashboard. Logs go to
dash.log in the data directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gf.load()
			if err != nil {
				return err
			}
			if replay != "" {
				cfg.Probe.Replay = replay
			}
			// Never clash with a running daemon's listener or pid file.
			cfg.HTTP.Enabled = false
			logPath := filepath.Join(cfg.DataDir, "dash.log")
			cfg.DataDir = filepath.Join(cfg.DataDir, "dash")
			if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}

			zl, err := logging.NewFileLogger(cfg.LogLevel, logPath)
			if err != nil {
				return err
			}
			defer syncer(zl)()
			sink := logging.NewZapSink(zl)

			d, err := engine.NewDaemon(engine.DaemonConfig{Config: cfg, ConfigPath: gf.path(), Log: sink})
			if err != nil {
				return err
			}
			defer d.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			done := make(chan error, 1)
			go func() { done <- d.Run(ctx) }()

			sink.LogInfo("dashboard started", map[string]string{"refresh": refresh.String()})
			_, runErr := tea.NewProgram(ui.NewModel(daemonSource{d: d}, refresh), tea.WithAltScreen()).Run()
			cancel()
			if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
				sink.LogError("engine stopped", err)
			}
			return runErr
		},
	}
	c.Flags().DurationVar(&refresh, "refresh", 2*time.Second, "dashboard refresh interval")
	c.Flags().StringVar(&replay, "replay", "", "drive the engine from a recorded JSONL file")
	return c
}
