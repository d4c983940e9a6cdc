package tui

import "fmt"

// View types with a TUI.
const (
	ViewOutcomes = "stats_outcomes"
	ViewQuota    = "stats_quota"
)

// Run starts the TUI for viewType.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	return RunStatsTUI(viewType, data)
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	for _, v := range SupportedTUIViews() {
		if v == viewType {
			return true
		}
	}
	return false
}

// SupportedTUIViews returns the view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewOutcomes, ViewQuota}
}
