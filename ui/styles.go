package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ftahirops/xdiag/model"
)

var (
	// Colors
	colorRed     = lipgloss.Color("#FF5555")
	colorYellow  = lipgloss.Color("#F1FA8C")
	colorGreen   = lipgloss.Color("#50FA7B")
	colorCyan    = lipgloss.Color("#8BE9FD")
	colorMagenta = lipgloss.Color("#FF79C6")
	colorOrange  = lipgloss.Color("#FFB86C")
	colorWhite   = lipgloss.Color("#F8F8F2")
	colorGray    = lipgloss.Color("#6272A4")
	colorPanel   = lipgloss.Color("#44475A")

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	valueStyle    = lipgloss.NewStyle().Foreground(colorWhite)
	warnStyle     = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle     = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	okStyle       = lipgloss.NewStyle().Foreground(colorGreen)
	headerStyle   = lipgloss.NewStyle().Foreground(colorMagenta).Bold(true)
	selectedStyle = lipgloss.NewStyle().Background(colorPanel).Foreground(colorWhite)
	helpStyle     = lipgloss.NewStyle().Foreground(colorGray)
	dimStyle      = lipgloss.NewStyle().Foreground(colorGray)
	orangeStyle   = lipgloss.NewStyle().Foreground(colorOrange)
)

// scoreStyle colors a higher-is-better 0..1 score.
func scoreStyle(v float64) lipgloss.Style {
	switch {
	case v < 0.3:
		return critStyle
	case v < 0.6:
		return warnStyle
	default:
		return okStyle
	}
}

func severityStyle(s model.Severity) lipgloss.Style {
	switch s {
	case model.SeverityCritical:
		return critStyle
	case model.SeverityHigh:
		return orangeStyle
	case model.SeverityMedium:
		return warnStyle
	}
	return dimStyle
}

func alertStyle(s model.AlertSeverity) lipgloss.Style {
	switch s {
	case model.AlertCritical:
		return critStyle
	case model.AlertError:
		return orangeStyle
	case model.AlertWarning:
		return warnStyle
	}
	return dimStyle
}

func trendStyle(t model.Trend) lipgloss.Style {
	switch t {
	case model.TrendIncreasing:
		return okStyle
	case model.TrendDecreasing:
		return critStyle
	}
	return dimStyle
}
