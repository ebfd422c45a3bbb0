package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column widths shared by every page.
const (
	colName = 16 // component or signal name
	colKey  = 16 // detail key
	colBar  = 20 // score bars
)

type kv struct {
	Key string
	Val string
}

// styledPad pads a styled string to the given visual width using spaces.
// Unlike fmt.Sprintf("%-Xs"), this accounts for ANSI escape codes.
func styledPad(styled string, width int) string {
	visW := lipgloss.Width(styled)
	if visW >= width {
		return styled
	}
	return styled + strings.Repeat(" ", width-visW)
}

// ─── BOX DRAWING HELPERS ─────────────────────────────────────────────────────

// boxTop renders the top border of a rounded box.
func boxTop(innerW int) string {
	return " " + dimStyle.Render("╭"+strings.Repeat("─", innerW+2)+"╮")
}

func boxBot(innerW int) string {
	return " " + dimStyle.Render("╰"+strings.Repeat("─", innerW+2)+"╯")
}

func boxMid(innerW int) string {
	return " " + dimStyle.Render("├"+strings.Repeat("─", innerW+2)+"┤")
}

// boxRow renders one content line inside a box, padded to innerW.
func boxRow(content string, innerW int) string {
	pad := innerW - lipgloss.Width(content)
	if pad < 0 {
		pad = 0
	}
	return " " + dimStyle.Render("│") + " " + content + strings.Repeat(" ", pad) + " " + dimStyle.Render("│")
}

// boxSection renders a titled section inside a bordered box.
func boxSection(title string, lines []string, innerW int) string {
	var sb strings.Builder
	sb.WriteString(boxTop(innerW) + "\n")
	sb.WriteString(boxRow(headerStyle.Render(title), innerW) + "\n")
	sb.WriteString(boxMid(innerW) + "\n")
	for _, line := range lines {
		sb.WriteString(boxRow(line, innerW) + "\n")
	}
	sb.WriteString(boxBot(innerW) + "\n")
	return sb.String()
}

// kvLines renders key-value pairs as aligned box content.
func kvLines(details []kv) []string {
	out := make([]string, 0, len(details))
	for _, d := range details {
		key := truncate(d.Key, colKey-2)
		out = append(out, styledPad(dimStyle.Render(key+":"), colKey)+" "+valueStyle.Render(d.Val))
	}
	return out
}

// scoreBar renders a 0..1 health score as a bar that is green when full.
func scoreBar(v float64, width int) string {
	if width < 1 {
		width = 10
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	filled := int(v * float64(width))
	b := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return scoreStyle(v).Render(b)
}

// usageBar renders a 0..100 usage percentage; fuller is worse.
func usageBar(pct float64, width int) string {
	return scoreBar(1-pct/100, width)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// sparkline renders a single-line chart of a higher-is-better series.
func sparkline(data []float64, width int, minVal, maxVal float64) string {
	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	if maxVal <= minVal {
		maxVal = minVal + 1
	}
	resampled := data
	if len(data) > width && width > 0 {
		resampled = make([]float64, width)
		for i := 0; i < width; i++ {
			resampled[i] = data[i*len(data)/width]
		}
	}

	var sb strings.Builder
	for _, v := range resampled {
		ratio := (v - minVal) / (maxVal - minVal)
		if ratio < 0 {
			ratio = 0
		}
		if ratio > 1 {
			ratio = 1
		}
		idx := int(ratio * float64(len(blocks)-1))
		sb.WriteString(scoreStyle(ratio).Render(string(blocks[idx])))
	}
	if len(resampled) > 0 {
		sb.WriteString(dimStyle.Render(fmt.Sprintf(" now=%.2f", resampled[len(resampled)-1])))
	}
	return sb.String()
}

// pageInnerW computes box inner width from terminal width.
func pageInnerW(termWidth int) int {
	w := termWidth - 6
	if w < 60 {
		w = 60
	}
	return w
}

// levelBadge renders a HealthScore.Level() value.
func levelBadge(level string) string {
	switch level {
	case "OK":
		return okStyle.Render("OK")
	case "WARNING":
		return warnStyle.Render("WARNING")
	case "CRITICAL":
		return critStyle.Render("CRITICAL")
	}
	return orangeStyle.Render(level)
}
