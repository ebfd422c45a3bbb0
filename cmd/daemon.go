package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ftahirops/xdiag/engine"
)

func newDaemonCmd(gf *globalFlags) *cobra.Command {
	var (
		httpAddr string
		noHTTP   bool
		dataDir  string
		record   string
		replay   string
	)
	c := &cobra.Command{
		Use:   "daemon",
		Short: "Run the diagnostics service",
		Long: `Run health scoring, bottleneck detection, alerting and tuning on their
configured intervals until interrupted. The HTTP API and Prometheus metrics are
served on the configured address unless --no-http is given.`,
		Example: `  xdiag daemon
  xdiag daemon --http 0.0.0.0:9180 --data-dir /var/lib/xdiag
  xdiag daemon --record /tmp/samples.jsonl
  xdiag daemon --replay /tmp/samples.jsonl --no-http`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gf.load()
			if err != nil {
				return err
			}
			if httpAddr != "" {
				cfg.HTTP.Addr = httpAddr
			}
			if noHTTP {
				cfg.HTTP.Enabled = false
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if record != "" {
				cfg.Probe.Record = record
			}
			if replay != "" {
				cfg.Probe.Replay = replay
			}
			if cfg.Probe.Record != "" && cfg.Probe.Replay != "" {
				warnf("--record is ignored while replaying")
			}

			sink, flush, err := newSink(cfg)
			if err != nil {
				return err
			}
			defer flush()
			return engine.RunDaemon(engine.DaemonConfig{
				Config:     cfg,
				ConfigPath: gf.path(),
				Log:        sink,
			})
		},
	}
	f := c.Flags()
	f.StringVar(&httpAddr, "http", "", "HTTP listen address (overrides config)")
	f.BoolVar(&noHTTP, "no-http", false, "disable the HTTP API and metrics")
	f.StringVar(&dataDir, "data-dir", "", "directory for pid, summaries and incident reports")
	f.StringVar(&record, "record", "", "append every probe sample to this JSONL file")
	f.StringVar(&replay, "replay", "", "read probe samples from a recorded JSONL file")
	return c
}
