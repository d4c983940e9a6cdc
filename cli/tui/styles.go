// Package tui provides the read-only Bubble Tea dashboards behind
// "stats --tui" and "quota --tui". They render the same payloads as the
// plain output formats.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent  = lipgloss.Color("#E879F9")
	good    = lipgloss.Color("#22C55E")
	caution = lipgloss.Color("#EAB308")
	bad     = lipgloss.Color("#DC2626")
	dim     = lipgloss.Color("#9CA3AF")
	info    = lipgloss.Color("#38BDF8")
	plain   = lipgloss.Color("#F9FAFB")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(dim).Width(14)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(dim).Padding(1, 2)
	hintStyle  = lipgloss.NewStyle().Foreground(dim).MarginTop(1)

	// Quota boxes; the border colour is set per box.
	gaugeStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2).Width(18).Align(lipgloss.Center)
	gaugeLabelStyle = lipgloss.NewStyle().Foreground(dim).Align(lipgloss.Center)
	gaugeValueStyle = lipgloss.NewStyle().Bold(true).Foreground(plain).Align(lipgloss.Center)
)

// OutcomeStyle colours a request outcome: ok is green, throttling is
// yellow, everything else red.
func OutcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "ok":
		return lipgloss.NewStyle().Foreground(good)
	case "rate_limited", "busy":
		return lipgloss.NewStyle().Foreground(caution)
	case "":
		return lipgloss.NewStyle().Foreground(plain)
	default:
		return lipgloss.NewStyle().Foreground(bad)
	}
}
