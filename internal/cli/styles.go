// Package cli renders ring's terminal output with lipgloss.
package cli

import "github.com/charmbracelet/lipgloss"

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	BellIcon    = "⏰"
	MutedIcon   = "🔕"
)

var (
	amber = lipgloss.Color("#FFB347")
	teal  = lipgloss.Color("#4ECDC4")
	gray  = lipgloss.Color("#666666")

	successStyle = lipgloss.NewStyle().Foreground(teal)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFE66D"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#95E1D3"))
	subtleStyle  = lipgloss.NewStyle().Foreground(gray)
	accentStyle  = lipgloss.NewStyle().Bold(true).Foreground(amber)
)

// FormatSuccess prefixes message with a check mark.
func FormatSuccess(message string) string {
	return successStyle.Render(SuccessIcon + " " + message)
}

// FormatError prefixes message with a cross.
func FormatError(message string) string {
	return errorStyle.Render(ErrorIcon + " " + message)
}

// FormatWarning prefixes message with a warning sign.
func FormatWarning(message string) string {
	return warningStyle.Render(WarningIcon + " " + message)
}

// FormatInfo prefixes message with an info sign.
func FormatInfo(message string) string {
	return infoStyle.Render(InfoIcon + " " + message)
}

// FormatTitle renders a bold heading led by the bell.
func FormatTitle(title string) string {
	return accentStyle.Render(BellIcon + " " + title)
}

// FormatPrompt renders a question awaiting input.
func FormatPrompt(prompt string) string {
	return accentStyle.Render(prompt + " → ")
}

// RenderBox frames content under a heading.
func RenderBox(title, content string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(gray).
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, accentStyle.Render(title), content))
}
