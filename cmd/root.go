// Package cmd wires the xdiag command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ftahirops/xdiag/config"
	"github.com/ftahirops/xdiag/logging"
)

// Version is set at build time via ldflags.
var Version = "0.1.0"

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	jsonLogs   bool
}

// Run builds the command tree and executes it against os.Args.
func Run() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	gf := &globalFlags{}
	root := &cobra.Command{
		Use:   "xdiag",
		Short: "Adaptive diagnostics and self-tuning engine",
		Long: `xdiag scores system health, detects bottlenecks, raises alerts and tunes
runtime parameters against a measured baseline.

Run "xdiag daemon" for the background service with its HTTP API, "xdiag dash"
for the interactive dashboard, or "xdiag report" for a one-shot report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&gf.configPath, "config", "", "config file (default: "+config.Path()+")")
	root.PersistentFlags().StringVar(&gf.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&gf.jsonLogs, "json-logs", false, "emit JSON logs")

	root.AddCommand(
		newDaemonCmd(gf),
		newDashCmd(gf),
		newReportCmd(gf),
		newProfilesCmd(gf),
		newConfigCmd(gf),
		newVersionCmd(),
	)
	return root
}

// path resolves the config file, falling back to the per-user default.
func (gf *globalFlags) path() string {
	if gf.configPath != "" {
		return gf.configPath
	}
	return config.Path()
}

// load reads the config file and applies flag overrides.
func (gf *globalFlags) load() (config.Config, error) {
	cfg, err := config.Load(gf.path())
	if err != nil {
		return cfg, err
	}
	if gf.logLevel != "" {
		cfg.LogLevel = gf.logLevel
	}
	if gf.jsonLogs {
		cfg.LogJSON = true
	}
	return cfg, nil
}

// newSink builds the zap-backed sink for cfg. The returned func flushes it.
func newSink(cfg config.Config) (logging.Sink, func(), error) {
	l, err := logging.NewLogger(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return nil, nil, err
	}
	return logging.NewZapSink(l), syncer(l), nil
}

func syncer(l *zap.Logger) func() {
	return func() { _ = l.Sync() }
}

func warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}
