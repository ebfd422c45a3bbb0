package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftahirops/xdiag/engine"
	"github.com/ftahirops/xdiag/logging"
	"github.com/ftahirops/xdiag/model"
	"github.com/ftahirops/xdiag/probe"
)

func newReportCmd(gf *globalFlags) *cobra.Command {
	var (
		samples  int
		interval time.Duration
		remote   string
		asJSON   bool
	)
	c := &cobra.Command{
		Use:   "report",
		Short: "Print a diagnostic report",
		Long: `Sample this host and print a diagnostic report as Markdown or JSON.
With --remote the report is fetched from a running daemon instead.`,
		Example: `  xdiag report
  xdiag report --samples 10 --interval 500ms --json | jq .health
  xdiag report --remote 127.0.0.1:9180 > /tmp/incident.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				r   model.DiagnosticReport
				err error
			)
			if remote != "" {
				err = newAPIClient(remote, 10*time.Second).get("/api/v1/report", &r)
			} else {
				if samples < 1 {
					return fmt.Errorf("--samples must be at least 1")
				}
				cfg, lerr := gf.load()
				if lerr != nil {
					return lerr
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				r, err = localReport(ctx, probe.HostConfig{
					LatencyTarget: cfg.Probe.LatencyTarget,
					DiskPath:      cfg.Probe.DiskPath,
				}, samples, interval)
			}
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), r, asJSON)
		},
	}
	f := c.Flags()
	f.IntVar(&samples, "samples", 3, "resource samples to take before scoring")
	f.DurationVar(&interval, "interval", time.Second, "delay between samples")
	f.StringVar(&remote, "remote", "", "fetch the report from a daemon at this address")
	f.BoolVar(&asJSON, "json", false, "print JSON instead of Markdown")
	return c
}

// localReport scores the host samples times and returns the resulting report.
func localReport(ctx context.Context, hc probe.HostConfig, samples int, interval time.Duration) (model.DiagnosticReport, error) {
	host, err := probe.NewHost(hc)
	if err != nil {
		return model.DiagnosticReport{}, fmt.Errorf("host probe: %w", err)
	}
	d := engine.NewDiagnostics(host, host, logging.Nop{}, engine.DefaultOptions())
	defer d.Close()
	return sampleReport(ctx, d, samples, interval)
}

func sampleReport(ctx context.Context, d *engine.Diagnostics, samples int, interval time.Duration) (model.DiagnosticReport, error) {
	for i := 0; i < samples; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return model.DiagnosticReport{}, ctx.Err()
			case <-time.After(interval):
			}
		}
		d.ScoreSystem(ctx)
	}
	d.DetectBottlenecks()
	return d.GenerateReport(), nil
}

func writeReport(w io.Writer, r model.DiagnosticReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	_, err := io.WriteString(w, renderMarkdown(r))
	return err
}

// renderMarkdown generates a ticket-friendly Markdown report.
func renderMarkdown(r model.DiagnosticReport) string {
	var sb strings.Builder
	h := r.Health

	sb.WriteString("# xdiag Diagnostic Report\n\n")
	sb.WriteString(fmt.Sprintf("**Generated:** %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	sb.WriteString("## Health\n\n")
	sb.WriteString(fmt.Sprintf("- **Status:** %s\n", h.Level()))
	if !h.Timestamp.IsZero() {
		sb.WriteString(fmt.Sprintf("- **Overall:** %.2f\n", h.Overall))
		sb.WriteString(fmt.Sprintf("- **Trend:** %s\n", h.Trend.HealthLabel()))
		sb.WriteString(fmt.Sprintf("- **Confidence:** %.0f%%\n", h.Confidence*100))
		sb.WriteString(fmt.Sprintf("- **Resource health:** %.2f\n", h.ResourceHealth))
		sb.WriteString(fmt.Sprintf("- **Performance health:** %.2f\n", h.PerformanceHealth))
	}

	if len(h.Factors) > 0 {
		sb.WriteString("\n## Contributing Factors\n\n")
		for _, f := range h.Factors {
			sb.WriteString(fmt.Sprintf("- %s\n", f))
		}
	}

	if len(h.Components) > 0 {
		sb.WriteString("\n## Components\n\n")
		sb.WriteString("| Component | Score |\n")
		sb.WriteString("|-----------|-------|\n")
		for _, c := range model.AllComponents() {
			if v, ok := h.Components[c]; ok {
				sb.WriteString(fmt.Sprintf("| %s | %.2f |\n", c, v))
			}
		}
	}

	sb.WriteString("\n## Bottlenecks\n\n")
	if len(r.Bottlenecks) == 0 {
		sb.WriteString("None detected\n")
	} else {
		sb.WriteString("| Type | Severity | Component | Magnitude | Impact |\n")
		sb.WriteString("|------|----------|-----------|-----------|--------|\n")
		for _, b := range r.Bottlenecks {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.2f | %s |\n",
				b.Type, b.Severity, b.Component, b.Impact.Magnitude, b.Impact.UserImpact))
		}
	}

	u := r.Resources
	sb.WriteString("\n## Resources\n\n")
	sb.WriteString(fmt.Sprintf("- **CPU:** %.1f%%\n", u.CPUPercent))
	sb.WriteString(fmt.Sprintf("- **Memory:** %.0f%% used (%.0f MB / %.0f MB)\n", u.MemoryPercent(), u.MemoryUsedMB, u.MemoryTotalMB))
	sb.WriteString(fmt.Sprintf("- **Network latency:** %.0f ms\n", u.NetworkLatencyMs))
	sb.WriteString(fmt.Sprintf("- **Battery:** %.0f%%\n", u.BatteryPercent))
	sb.WriteString(fmt.Sprintf("- **Threads:** %d\n", u.ThreadCount))
	sb.WriteString(fmt.Sprintf("- **Disk:** %.1f%%\n", u.DiskPercent))

	if len(r.ResourceTrends) > 0 {
		sb.WriteString("\n| Signal | Current | Average | Min | Max | Trend |\n")
		sb.WriteString("|--------|---------|---------|-----|-----|-------|\n")
		for _, t := range r.ResourceTrends {
			sb.WriteString(fmt.Sprintf("| %s | %.1f | %.1f | %.1f | %.1f | %s |\n",
				t.Signal, t.Current, t.Average, t.Min, t.Max, t.Trend))
		}
	}

	if len(r.Recommendations) > 0 {
		sb.WriteString("\n## Recommendations\n\n")
		for _, rec := range r.Recommendations {
			sb.WriteString(fmt.Sprintf("- %s\n", rec))
		}
	}

	sb.WriteString(fmt.Sprintf("\n---\n*Generated by xdiag %s, diagnostics overhead %.1fms*\n", Version, r.OverheadMs))
	return sb.String()
}
