package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/TheoDgb/URLCustomDiscsAPI/journal"
	"github.com/TheoDgb/URLCustomDiscsAPI/quota"
)

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	table    table.Model
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	m := StatsModel{viewType: viewType, data: data}
	if sum, ok := data.(*journal.Summary); ok {
		m.table = operationsTable(sum)
	}
	return m
}

func operationsTable(sum *journal.Summary) table.Model {
	outcomes := outcomeColumns(sum)
	cols := []table.Column{
		{Title: "Operation", Width: 20},
		{Title: "Total", Width: 7},
		{Title: "Avg ms", Width: 8},
	}
	for _, o := range outcomes {
		cols = append(cols, table.Column{Title: o, Width: max(len(o), 5)})
	}

	rows := make([]table.Row, 0, len(sum.Operations))
	for _, op := range sum.Operations {
		row := table.Row{op.Operation, fmt.Sprint(op.Total), fmt.Sprint(op.AvgMillis)}
		for _, o := range outcomes {
			row = append(row, fmt.Sprint(op.Outcomes[o]))
		}
		rows = append(rows, row)
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(min(len(rows)+3, 15)),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(accent).Bold(true)
	styles.Selected = styles.Selected.Foreground(info)
	t.SetStyles(styles)
	return t
}

// outcomeColumns lists the outcomes present in sum, "ok" first.
func outcomeColumns(sum *journal.Summary) []string {
	set := map[string]struct{}{}
	for _, op := range sum.Operations {
		for o := range op.Outcomes {
			set[o] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for o := range set {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i] == "ok") != (out[j] == "ok") {
			return out[i] == "ok"
		}
		return out[i] < out[j]
	})
	return out
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewOutcomes:
		content = m.renderOutcomes()
	case ViewQuota:
		content = m.renderQuota()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := hintStyle.Render("↑/↓ to scroll, q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderOutcomes() string {
	data, ok := m.data.(*journal.Summary)
	if !ok {
		return "Invalid data type for " + ViewOutcomes
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Request Outcomes"))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Total", fmt.Sprint(data.Total), info),
		renderStatBox("Succeeded", fmt.Sprint(data.Total-data.Failures), good),
		renderStatBox("Failed", fmt.Sprint(data.Failures), bad),
	))
	b.WriteString("\n")
	b.WriteString(outcomeLine(data))
	b.WriteString("\n\n")
	if len(data.Operations) == 0 {
		b.WriteString(labelStyle.Render("(no records)"))
		return b.String()
	}
	b.WriteString(panelStyle.Padding(0, 1).Render(m.table.View()))
	return b.String()
}

// outcomeLine totals each outcome across operations.
func outcomeLine(sum *journal.Summary) string {
	totals := map[string]int64{}
	for _, op := range sum.Operations {
		for o, n := range op.Outcomes {
			totals[o] += n
		}
	}
	parts := make([]string, 0, len(totals))
	for _, o := range outcomeColumns(sum) {
		parts = append(parts, OutcomeStyle(o).Render(fmt.Sprintf("%s %d", o, totals[o])))
	}
	return strings.Join(parts, "  ")
}

func (m StatsModel) renderQuota() string {
	data, ok := m.data.(*quota.Usage)
	if !ok {
		return "Invalid data type for " + ViewQuota
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Storage Quota"))
	b.WriteString("\n\n")

	pct := 0.0
	if data.CapBytes > 0 {
		pct = float64(data.UsedBytes) / float64(data.CapBytes) * 100
	}
	usedColor := good
	switch {
	case pct >= 90:
		usedColor = bad
	case pct >= 75:
		usedColor = caution
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Used", HumanBytes(data.UsedBytes), usedColor),
		renderStatBox("Free", HumanBytes(data.FreeBytes), good),
		renderStatBox("Cap", HumanBytes(data.CapBytes), info),
	))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s",
		labelStyle.Render("Utilization:"),
		lipgloss.NewStyle().Foreground(usedColor).Render(fmt.Sprintf("%.1f%%", pct))))
	return b.String()
}

func renderStatBox(label, value string, color lipgloss.Color) string {
	boxStyle := gaugeStyle.BorderForeground(color)
	valueStr := gaugeValueStyle.Foreground(color).Render(value)
	labelStr := gaugeLabelStyle.Render(label)
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

// HumanBytes formats n with a binary unit.
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	p := tea.NewProgram(NewStatsModel(viewType, data), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without the interactive program.
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
