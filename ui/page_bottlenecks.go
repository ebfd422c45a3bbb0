package ui

import (
	"fmt"
	"strings"

	"github.com/ftahirops/xdiag/model"
)

func renderBottlenecksPage(r model.DiagnosticReport, width int) string {
	innerW := pageInnerW(width)
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(" BOTTLENECKS"))
	sb.WriteString(dimStyle.Render(fmt.Sprintf("  %d detected", len(r.Bottlenecks))))
	sb.WriteString("\n")

	if len(r.Bottlenecks) == 0 {
		sb.WriteString(boxSection("NONE", []string{okStyle.Render("No bottlenecks in the last detection pass")}, innerW))
		return sb.String()
	}

	for _, b := range r.Bottlenecks {
		title := fmt.Sprintf("%s  %s", severityStyle(b.Severity).Render(b.Severity.String()), string(b.Type))
		affected := make([]string, len(b.Impact.AffectedComponents))
		for i, c := range b.Impact.AffectedComponents {
			affected[i] = c.String()
		}
		lines := kvLines([]kv{
			{"component", b.Component.String()},
			{"magnitude", fmt.Sprintf("%.2f", b.Impact.Magnitude)},
			{"affects", truncate(strings.Join(affected, ", "), innerW-colKey-2)},
			{"impact", truncate(b.Impact.UserImpact, innerW-colKey-2)},
		})
		for _, rec := range b.Recommendations {
			lines = append(lines, dimStyle.Render("  > ")+truncate(rec, innerW-4))
		}
		sb.WriteString(boxSection(title, lines, innerW))
	}
	return sb.String()
}
