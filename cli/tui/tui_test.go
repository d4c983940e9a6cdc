package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/TheoDgb/URLCustomDiscsAPI/journal"
	"github.com/TheoDgb/URLCustomDiscsAPI/quota"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{ViewOutcomes, true},
		{ViewQuota, true},
		{"stats_live", false},
		{"sweep", false},
		{"version", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			if got := IsTUISupported(tt.viewType); got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	if err := Run("sweep", nil); err == nil {
		t.Error("expected error for unsupported view type")
	}
}

func sampleSummary() *journal.Summary {
	return &journal.Summary{
		Total:    5,
		Failures: 2,
		Operations: []journal.OperationSummary{
			{Operation: "create_disc", Total: 3, Outcomes: map[string]int64{"ok": 2, "tool_failed": 1}, AvgMillis: 4200},
			{Operation: "register", Total: 2, Outcomes: map[string]int64{"ok": 1, "busy": 1}, AvgMillis: 300},
		},
	}
}

func TestRenderStatsStatic_Outcomes(t *testing.T) {
	out := RenderStatsStatic(ViewOutcomes, sampleSummary())
	for _, want := range []string{"Request Outcomes", "create_disc", "register", "tool_failed", "4200"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStatsStatic_Quota(t *testing.T) {
	out := RenderStatsStatic(ViewQuota, &quota.Usage{UsedBytes: 3 << 30, CapBytes: 9 << 30, FreeBytes: 6 << 30})
	for _, want := range []string{"Storage Quota", "3.0 GiB", "6.0 GiB", "33.3%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStatsStatic_WrongData(t *testing.T) {
	out := RenderStatsStatic(ViewQuota, sampleSummary())
	if !strings.Contains(out, "Invalid data type") {
		t.Errorf("expected invalid data message, got:\n%s", out)
	}
}

func TestOutcomeColumns_OKFirst(t *testing.T) {
	got := outcomeColumns(sampleSummary())
	want := []string{"ok", "busy", "tool_failed"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("outcomeColumns = %v, want %v", got, want)
	}
}

func TestStatsModel_Quit(t *testing.T) {
	m := NewStatsModel(ViewOutcomes, sampleSummary())
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if next.(StatsModel).View() != "" {
		t.Error("view should be empty after quitting")
	}
}

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{80 * 1000 * 1000, "76.3 MiB"},
		{9 << 30, "9.0 GiB"},
	}
	for _, tt := range tests {
		if got := HumanBytes(tt.n); got != tt.want {
			t.Errorf("HumanBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
