// Package cli renders recur's terminal output: lipgloss styles, table/json/yaml
// encoders and the interactive candidate review prompt.
package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/recurrent/internal/model"
)

var (
	// PrimaryColor is the theme color.
	PrimaryColor = lipgloss.Color("#5B8DEF")
	// SuccessColor marks completed operations and inflows.
	SuccessColor = lipgloss.Color("#4ECDC4")
	// WarningColor marks paused series and cautions.
	WarningColor = lipgloss.Color("#FFE66D")
	// ErrorColor marks failures and outflows.
	ErrorColor = lipgloss.Color("#FF6B6B")
	// InfoColor marks informational messages.
	InfoColor = lipgloss.Color("#95E1D3")
	// SubtleColor marks secondary text.
	SubtleColor = lipgloss.Color("#666666")

	// TitleStyle is used for section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			MarginBottom(1)

	// Text styles matching the colors above.
	SuccessStyle = lipgloss.NewStyle().Foreground(SuccessColor)
	WarningStyle = lipgloss.NewStyle().Foreground(WarningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ErrorColor)
	InfoStyle    = lipgloss.NewStyle().Foreground(InfoColor)
	SubtleStyle  = lipgloss.NewStyle().Foreground(SubtleColor)
	BoldStyle    = lipgloss.NewStyle().Bold(true)

	// BoxStyle frames detail views.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(1, 2)

	// TableHeaderStyle underlines table headers.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(lipgloss.Color("#333"))

	// PromptStyle is used for interactive prompts.
	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)
)

// Icons.
const (
	SuccessIcon  = "✓"
	ErrorIcon    = "✗"
	WarningIcon  = "⚠️"
	InfoIcon     = "ℹ️"
	CalendarIcon = "📅"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(SuccessIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return ErrorStyle.Render(ErrorIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return WarningStyle.Render(WarningIcon + " " + message)
}

// FormatInfo formats an info message with icon.
func FormatInfo(message string) string {
	return InfoStyle.Render(InfoIcon + " " + message)
}

// FormatTitle formats a section title.
func FormatTitle(title string) string {
	return TitleStyle.Render(CalendarIcon + " " + title)
}

// FormatPrompt formats a prompt message.
func FormatPrompt(prompt string) string {
	return PromptStyle.Render(prompt + " → ")
}

// FormatAmount renders a signed amount with its currency, colored by direction.
func FormatAmount(amount decimal.Decimal, currency string) string {
	text := strings.TrimSpace(amount.StringFixed(model.MinorUnitExponent) + " " + currency)
	switch {
	case amount.IsNegative():
		return ErrorStyle.Render(text)
	case amount.IsPositive():
		return SuccessStyle.Render(text)
	default:
		return SubtleStyle.Render(text)
	}
}

// FormatStatus colors a lifecycle status.
func FormatStatus(status model.RecurringStatus) string {
	switch status {
	case model.StatusActive:
		return SuccessStyle.Render(string(status))
	case model.StatusPaused:
		return WarningStyle.Render(string(status))
	default:
		return SubtleStyle.Render(string(status))
	}
}

// RenderBox renders content in a titled box.
func RenderBox(title, content string) string {
	boxTitle := TitleStyle.
		UnsetMargins().
		Render(title)

	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, boxTitle, content))
}
