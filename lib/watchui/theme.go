// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette for the watch view and the run
// summary. All colors use lipgloss ANSI 256-color codes for broad
// terminal compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Outcome colors.
	Success lipgloss.Color
	Failure lipgloss.Color
	Skipped lipgloss.Color
	Running lipgloss.Color
	Warning lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText:       lipgloss.Color("252"),
	FaintText:        lipgloss.Color("243"),
	Success:          lipgloss.Color("35"),
	Failure:          lipgloss.Color("160"),
	Skipped:          lipgloss.Color("243"),
	Running:          lipgloss.Color("75"),
	Warning:          lipgloss.Color("178"),
	HeaderForeground: lipgloss.Color("117"),
	BorderColor:      lipgloss.Color("238"),
}

// OutcomeColor returns the color for a job outcome or run conclusion
// string. Unknown values render faint.
func (theme Theme) OutcomeColor(outcome string) lipgloss.Color {
	switch outcome {
	case "success", "ok":
		return theme.Success
	case "failed", "failure":
		return theme.Failure
	case "skipped":
		return theme.Skipped
	case "running":
		return theme.Running
	default:
		return theme.FaintText
	}
}
