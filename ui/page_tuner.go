package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ftahirops/xdiag/model"
)

func renderTunerPage(st model.OptimizationStatus, results []model.OptimizationResult, tunerOn bool, width int) string {
	innerW := pageInnerW(width)
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(" TUNER"))
	sb.WriteString("\n")

	if !tunerOn {
		sb.WriteString(boxSection("DISABLED", []string{dimStyle.Render("Performance tuning is turned off in the config")}, innerW))
		return sb.String()
	}

	baseline := warnStyle.Render("collecting")
	if st.BaselineEstablished && st.Baseline != nil {
		baseline = okStyle.Render(fmt.Sprintf("health %.2f  response %.0fms  %d samples",
			st.Baseline.AverageHealthScore, st.Baseline.AverageResponseTime, st.Baseline.Samples))
	}
	summary := []string{
		styledPad(dimStyle.Render("baseline:"), colKey) + " " + baseline,
		fmt.Sprintf("%s %s %s", styledPad(dimStyle.Render("perf health:"), colKey),
			scoreBar(st.PerformanceHealth, colBar), fmt.Sprintf("%.2f", st.PerformanceHealth)),
		fmt.Sprintf("%s %s %s", styledPad(dimStyle.Render("stability:"), colKey),
			scoreBar(st.Stability, colBar), fmt.Sprintf("%.2f", st.Stability)),
	}
	summary = append(summary, kvLines([]kv{
		{"trend", st.PerformanceTrend.HealthLabel()},
		{"executed", fmt.Sprintf("%d (%d successful, %d rolled back)", st.TotalExecuted, st.Successful, st.RolledBack)},
		{"last run", timeOrNever(st.LastRun.IsZero(), st.LastRun.Format("15:04:05"))},
		{"last rollback", timeOrNever(st.LastRollback.IsZero(), st.LastRollback.Format("15:04:05"))},
	})...)
	sb.WriteString(boxSection("STATUS", summary, innerW))

	if len(st.Parameters) > 0 {
		names := make([]string, 0, len(st.Parameters))
		for k := range st.Parameters {
			names = append(names, k)
		}
		sort.Strings(names)
		params := make([]kv, len(names))
		for i, k := range names {
			params[i] = kv{k, fmt.Sprintf("%g", st.Parameters[k])}
		}
		sb.WriteString(boxSection("PARAMETERS", kvLines(params), innerW))
	}

	var lines []string
	for _, r := range results {
		label := r.Profile
		if label == "" {
			label = "auto"
		}
		lines = append(lines, fmt.Sprintf("%s  %-10s %2d change(s)  %s",
			dimStyle.Render(r.Timestamp.Format("15:04:05")), label, len(r.Executions),
			improvementStyle(r.OverallImprovement).Render(fmt.Sprintf("%+.1f%%", r.OverallImprovement))))
		for _, e := range r.Executions {
			lines = append(lines, "    "+executionLine(e, innerW-4))
		}
	}
	if len(lines) == 0 {
		lines = []string{dimStyle.Render("No optimizations yet")}
	}
	sb.WriteString(boxSection("RECENT RESULTS", lines, innerW))
	return sb.String()
}

func executionLine(e model.OptimizationExecution, w int) string {
	state := okStyle.Render("applied")
	switch {
	case e.RolledBack:
		state = warnStyle.Render("rolled back")
	case !e.Success:
		state = critStyle.Render("failed")
	}
	text := fmt.Sprintf("%-16s %s", e.Recommendation.Type, e.Recommendation.Description)
	if e.Error != "" {
		text += " (" + e.Error + ")"
	}
	return styledPad(state, 12) + " " + truncate(text, w-13)
}

func improvementStyle(v float64) lipgloss.Style {
	switch {
	case v < 0:
		return critStyle
	case v == 0:
		return dimStyle
	}
	return okStyle
}

func timeOrNever(zero bool, s string) string {
	if zero {
		return "never"
	}
	return s
}
