// Package ui is the terminal dashboard: health, bottlenecks, alerts and
// tuner state of a running diagnostics engine.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ftahirops/xdiag/model"
	"github.com/ftahirops/xdiag/util"
)

// Source is what the dashboard reads and drives.
type Source interface {
	Report() model.DiagnosticReport
	ActiveAlerts() []model.Alert
	Acknowledge(id string) error
	// TunerStatus returns false when the tuner is disabled.
	TunerStatus() (model.OptimizationStatus, bool)
	Results(limit int) []model.OptimizationResult
	Optimize(ctx context.Context) (model.OptimizationResult, error)
	Rollback() (int, error)
}

// Page identifies the current screen.
type Page int

const (
	PageOverview Page = iota
	PageBottlenecks
	PageAlerts
	PageTuner
	pageCount
)

var pageNames = []string{"Overview", "Bottlenecks", "Alerts", "Tuner"}

const (
	historyLen    = 120
	actionTimeout = 2 * time.Minute
	msgTTL        = 10 * time.Second
)

type tickMsg time.Time

// frame is everything one refresh reads from the source.
type frame struct {
	report  model.DiagnosticReport
	alerts  []model.Alert
	status  model.OptimizationStatus
	results []model.OptimizationResult
	tunerOn bool
}

type frameMsg frame

// actionMsg reports the outcome of a key-triggered action.
type actionMsg struct {
	text string
	err  error
}

// Model is the bubbletea model.
type Model struct {
	src      Source
	interval time.Duration
	width    int
	height   int

	cur     *frame
	history *util.Ring[float64]

	page     Page
	selected int
	scroll   int
	showHelp bool
	paused   bool
	busy     bool // an optimization or rollback is running

	msg     string
	msgTime time.Time
	now     func() time.Time
}

// NewModel creates the dashboard over src, refreshing every interval.
func NewModel(src Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return Model{
		src:      src,
		interval: interval,
		history:  util.NewRing[float64](historyLen),
		now:      time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), collect(m.src))
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func collect(src Source) tea.Cmd {
	return func() tea.Msg {
		f := frame{report: src.Report(), alerts: src.ActiveAlerts()}
		f.status, f.tunerOn = src.TunerStatus()
		if f.tunerOn {
			f.results = src.Results(10)
		}
		return frameMsg(f)
	}
}

func optimize(src Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		res, err := src.Optimize(ctx)
		if err != nil {
			return actionMsg{err: err}
		}
		if len(res.Executions) == 0 {
			return actionMsg{text: "Nothing to optimize"}
		}
		return actionMsg{text: fmt.Sprintf("Applied %d optimization(s), improvement %+.1f%%",
			len(res.Executions), res.OverallImprovement)}
	}
}

func rollback(src Source) tea.Cmd {
	return func() tea.Msg {
		n, err := src.Rollback()
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{text: fmt.Sprintf("Rolled back %d optimization(s)", n)}
	}
}

func acknowledge(src Source, id string) tea.Cmd {
	return func() tea.Msg {
		if err := src.Acknowledge(id); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{text: "Acknowledged " + shortID(id)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tickMsg:
		if m.paused {
			return m, tick(m.interval)
		}
		return m, tea.Batch(tick(m.interval), collect(m.src))

	case frameMsg:
		f := frame(msg)
		m.cur = &f
		if !f.report.Health.Timestamp.IsZero() {
			m.history.Push(f.report.Health.Overall)
		}
		if m.selected >= len(f.alerts) {
			m.selected = max(0, len(f.alerts)-1)
		}

	case actionMsg:
		m.busy = false
		if msg.err != nil {
			m.setMsg("Error: " + msg.err.Error())
		} else {
			m.setMsg(msg.text)
		}
		return m, collect(m.src)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) setMsg(s string) {
	m.msg = s
	m.msgTime = m.now()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "?":
		m.showHelp = true
	case "p":
		m.paused = !m.paused
		if !m.paused {
			return m, collect(m.src)
		}
	case "r":
		return m, collect(m.src)
	case "o":
		if m.busy {
			return m, nil
		}
		if m.cur != nil && !m.cur.tunerOn {
			m.setMsg("Tuner disabled")
			return m, nil
		}
		m.busy = true
		m.setMsg("Optimizing...")
		return m, optimize(m.src)
	case "b":
		if m.busy {
			return m, nil
		}
		if m.cur != nil && !m.cur.tunerOn {
			m.setMsg("Tuner disabled")
			return m, nil
		}
		m.busy = true
		return m, rollback(m.src)
	case "a":
		if m.page == PageAlerts && m.cur != nil && m.selected < len(m.cur.alerts) {
			return m, acknowledge(m.src, m.cur.alerts[m.selected].ID)
		}
	case "0", "esc":
		m.setPage(PageOverview)
	case "1":
		m.setPage(PageBottlenecks)
	case "2":
		m.setPage(PageAlerts)
	case "3":
		m.setPage(PageTuner)
	case "tab":
		m.setPage((m.page + 1) % pageCount)
	case "shift+tab":
		m.setPage((m.page - 1 + pageCount) % pageCount)
	case "j", "down":
		if m.page == PageAlerts {
			if m.cur != nil && m.selected < len(m.cur.alerts)-1 {
				m.selected++
			}
		} else {
			m.scroll++
		}
	case "k", "up":
		if m.page == PageAlerts {
			if m.selected > 0 {
				m.selected--
			}
		} else if m.scroll > 0 {
			m.scroll--
		}
	case "g":
		m.scroll = 0
	}
	return m, nil
}

func (m *Model) setPage(p Page) {
	m.page = p
	m.scroll = 0
}

func (m Model) View() string {
	if m.showHelp {
		return m.renderHelp()
	}
	if m.width == 0 {
		return "Loading..."
	}
	if m.cur == nil {
		return "Collecting first sample..."
	}

	var content string
	switch m.page {
	case PageOverview:
		content = renderOverview(m.cur.report, m.history.Values(), len(m.cur.alerts), m.width)
	case PageBottlenecks:
		content = renderBottlenecksPage(m.cur.report, m.width)
	case PageAlerts:
		content = renderAlertsPage(m.cur.alerts, m.selected, m.width)
	case PageTuner:
		content = renderTunerPage(m.cur.status, m.cur.results, m.cur.tunerOn, m.width)
	}

	lines := strings.Split(content, "\n")
	scroll := m.scroll
	if scroll >= len(lines) {
		scroll = len(lines) - 1
	}
	if scroll > 0 {
		lines = lines[scroll:]
	}
	if maxLines := m.height - 2; maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return strings.Join(lines, "\n") + "\n" + m.renderStatusBar()
}

func (m Model) renderStatusBar() string {
	var tabs []string
	for i, name := range pageNames {
		label := fmt.Sprintf("%d:%s", i, name)
		if Page(i) == m.page {
			tabs = append(tabs, headerStyle.Render("["+label+"]"))
		} else {
			tabs = append(tabs, dimStyle.Render(" "+label+" "))
		}
	}
	bar := strings.Join(tabs, "")
	if m.paused {
		bar += " " + warnStyle.Render("PAUSED")
	}
	if m.msg != "" && m.now().Sub(m.msgTime) < msgTTL {
		bar += "  " + orangeStyle.Render(m.msg)
	}
	return bar + "  " + helpStyle.Render("? help  q quit")
}

func (m Model) renderHelp() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("xdiag - adaptive diagnostics dashboard"))
	sb.WriteString("\n\n")
	sb.WriteString(headerStyle.Render("Navigation"))
	sb.WriteString("\n")
	sb.WriteString("  0 / Esc   Overview (health, resources, recommendations)\n")
	sb.WriteString("  1         Bottlenecks\n")
	sb.WriteString("  2         Active alerts\n")
	sb.WriteString("  3         Tuner status and recent results\n")
	sb.WriteString("  Tab       Next page\n")
	sb.WriteString("  j/k       Scroll, or select an alert\n")
	sb.WriteString("\n")
	sb.WriteString(headerStyle.Render("Actions"))
	sb.WriteString("\n")
	sb.WriteString("  p         Pause / resume refresh\n")
	sb.WriteString("  r         Refresh now\n")
	sb.WriteString("  o         Run an optimization pass\n")
	sb.WriteString("  b         Roll back recent optimizations\n")
	sb.WriteString("  a         Acknowledge the selected alert (Alerts page)\n")
	sb.WriteString("  ?         Toggle this help\n")
	sb.WriteString("  q/Ctrl+C  Quit\n")
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("Press any key to close"))
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
