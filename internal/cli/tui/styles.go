package tui

import "github.com/charmbracelet/lipgloss"

// Styles contains all lipgloss styles for the watch TUI.
type Styles struct {
	Title   lipgloss.Style
	Timer   lipgloss.Style
	BatchID lipgloss.Style

	EventType lipgloss.Style
	Backend   lipgloss.Style
	Timestamp lipgloss.Style

	Footer    lipgloss.Style
	FooterKey lipgloss.Style
	Error     lipgloss.Style
}

// DefaultStyles returns the default watch TUI styles.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Timer:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		BatchID: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),

		EventType: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		Backend:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Timestamp: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),

		Footer:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")).MarginTop(1),
		FooterKey: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
}
