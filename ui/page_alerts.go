package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ftahirops/xdiag/model"
)

func renderAlertsPage(alerts []model.Alert, selected, width int) string {
	innerW := pageInnerW(width)
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(" ALERTS"))
	sb.WriteString(dimStyle.Render(fmt.Sprintf("  %d active", len(alerts))))
	sb.WriteString("\n")

	if len(alerts) == 0 {
		sb.WriteString(boxSection("NONE", []string{okStyle.Render("No active alerts")}, innerW))
		return sb.String()
	}

	header := fmt.Sprintf("%-8s %-9s %-20s %-13s %5s  %s", "ID", "SEVERITY", "TYPE", "STATUS", "COUNT", "MESSAGE")
	lines := []string{dimStyle.Render(truncate(header, innerW))}
	for i, a := range alerts {
		row := truncate(fmt.Sprintf("%-8s %-9s %-20s %-13s %5d  %s", shortID(a.ID), a.Severity,
			truncate(string(a.Type), 20), a.Status, a.OccurrenceCount, a.Message), innerW)
		if i == selected {
			row = selectedStyle.Render(row)
		} else {
			row = alertStyle(a.Severity).Render(row)
		}
		lines = append(lines, row)
	}
	sb.WriteString(boxSection("ACTIVE", lines, innerW))

	if selected >= 0 && selected < len(alerts) {
		a := alerts[selected]
		details := []kv{
			{"id", a.ID},
			{"created", a.Timestamp.Format("2006-01-02 15:04:05")},
			{"updated", a.LastUpdated.Format("15:04:05")},
		}
		if a.AcknowledgedBy != "" {
			details = append(details, kv{"acked by", a.AcknowledgedBy})
		}
		keys := make([]string, 0, len(a.Context))
		for k := range a.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			details = append(details, kv{k, truncate(a.Context[k], innerW-colKey-2)})
		}
		sb.WriteString(boxSection(truncate(a.Message, innerW), kvLines(details), innerW))
	}
	sb.WriteString(helpStyle.Render(" j/k select  a acknowledge"))
	sb.WriteString("\n")
	return sb.String()
}
