package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/ftahirops/xdiag/model"
)

// renderOverview is the landing page: overall verdict, component scores,
// resources and the recommendation list.
func renderOverview(r model.DiagnosticReport, history []float64, activeAlerts, width int) string {
	innerW := pageInnerW(width)
	h := r.Health
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(" xdiag"))
	sb.WriteString(dimStyle.Render("  " + r.GeneratedAt.Format("15:04:05")))
	sb.WriteString("\n")

	verdict := []string{
		fmt.Sprintf("%s  %s  %s",
			styledPad(levelBadge(h.Level()), 10),
			scoreBar(h.Overall, colBar),
			scoreStyle(h.Overall).Render(fmt.Sprintf("%.2f", h.Overall))),
		fmt.Sprintf("%s %s   %s %s   %s %d",
			dimStyle.Render("trend"), trendStyle(h.Trend).Render(h.Trend.HealthLabel()),
			dimStyle.Render("confidence"), valueStyle.Render(fmt.Sprintf("%.0f%%", h.Confidence*100)),
			dimStyle.Render("alerts"), activeAlerts),
	}
	if len(history) > 1 {
		verdict = append(verdict, sparkline(history, innerW-12, 0, 1))
	}
	for _, f := range h.Factors {
		style := warnStyle
		if strings.HasPrefix(f, "CRITICAL") {
			style = critStyle
		}
		verdict = append(verdict, style.Render(f))
	}
	sb.WriteString(boxSection("HEALTH", verdict, innerW))

	sb.WriteString(boxSection("COMPONENTS", componentLines(h), innerW))
	sb.WriteString(boxSection("RESOURCES", resourceLines(r), innerW))

	recs := r.Recommendations
	if len(recs) == 0 {
		recs = []string{dimStyle.Render("No recommendations yet")}
	}
	lines := make([]string, len(recs))
	for i, rec := range recs {
		lines[i] = fmt.Sprintf("%s %s", dimStyle.Render(fmt.Sprintf("%2d.", i+1)), truncate(rec, innerW-4))
	}
	sb.WriteString(boxSection("RECOMMENDATIONS", lines, innerW))

	sb.WriteString(dimStyle.Render(fmt.Sprintf(" self overhead %.1fms total, %.2fms/call", r.OverheadMs, r.AvgOverheadMs)))
	sb.WriteString("\n")
	return sb.String()
}

func componentLines(h model.HealthScore) []string {
	var out []string
	for _, c := range model.AllComponents() {
		v, ok := h.Components[c]
		name := styledPad(valueStyle.Render(c.String()), colName)
		if !ok {
			out = append(out, name+" "+dimStyle.Render("not reporting"))
			continue
		}
		out = append(out, fmt.Sprintf("%s %s %s", name, scoreBar(v, colBar), scoreStyle(v).Render(fmt.Sprintf("%.2f", v))))
	}
	out = append(out,
		fmt.Sprintf("%s %s %s", styledPad(dimStyle.Render("resource"), colName), scoreBar(h.ResourceHealth, colBar),
			fmt.Sprintf("%.2f", h.ResourceHealth)),
		fmt.Sprintf("%s %s %s", styledPad(dimStyle.Render("performance"), colName), scoreBar(h.PerformanceHealth, colBar),
			fmt.Sprintf("%.2f", h.PerformanceHealth)),
	)
	return out
}

func resourceLines(r model.DiagnosticReport) []string {
	u := r.Resources
	trends := make(map[string]model.Trend, len(r.ResourceTrends))
	for _, t := range r.ResourceTrends {
		trends[t.Signal] = t.Trend
	}
	row := func(label string, pct float64, val string, sig string) string {
		t := trends[sig]
		return fmt.Sprintf("%s %s %s %s", styledPad(dimStyle.Render(label), colName),
			usageBar(pct, colBar), styledPad(valueStyle.Render(val), 18), dimStyle.Render(t.String()))
	}
	lines := []string{
		row("cpu", u.CPUPercent, fmt.Sprintf("%.1f%%", u.CPUPercent), model.SignalCPU),
		row("memory", u.MemoryPercent(), fmt.Sprintf("%.0f/%.0f MB", u.MemoryUsedMB, u.MemoryTotalMB), model.SignalMemory),
		row("latency", u.NetworkLatencyMs/5, fmt.Sprintf("%.0f ms", u.NetworkLatencyMs), model.SignalLatency),
		row("battery", 100-u.BatteryPercent, fmt.Sprintf("%.0f%%", u.BatteryPercent), model.SignalBattery),
	}
	lines = append(lines, kvLines([]kv{
		{"threads", fmt.Sprintf("%d", u.ThreadCount)},
		{"disk", fmt.Sprintf("%.1f%%", u.DiskPercent)},
		{"sampled", sampledAgo(u.Timestamp, r.GeneratedAt)},
	})...)
	return lines
}

func sampledAgo(ts, now time.Time) string {
	if ts.IsZero() {
		return "never"
	}
	d := now.Sub(ts).Round(time.Second)
	if d < time.Second {
		return "just now"
	}
	return d.String() + " ago"
}
