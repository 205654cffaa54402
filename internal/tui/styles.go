package tui

import "github.com/charmbracelet/lipgloss"

// Shared lipgloss styles for the TUI.
var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))

	IdleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	RunningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	CompletedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	FailedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	LogTimestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	LogInfoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	LogSuccessStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	LogWarningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	LogErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	HelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)
