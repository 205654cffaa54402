package output

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

// Palette
const (
	colorAccent  = lipgloss.Color("39")
	colorSuccess = lipgloss.Color("42")
	colorWarning = lipgloss.Color("214")
	colorError   = lipgloss.Color("196")
	colorMuted   = lipgloss.Color("244")
)

// Styles holds the lipgloss styles shared by commands.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Info    lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	NodeID  lipgloss.Style

	StatusIdle      lipgloss.Style
	StatusRunning   lipgloss.Style
	StatusCompleted lipgloss.Style
	StatusFailed    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1: r.NewStyle().Bold(true).Foreground(colorAccent).Underline(true),
		Header2: r.NewStyle().Bold(true).Foreground(colorAccent),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(colorMuted),
		Info:    r.NewStyle().Foreground(colorAccent),
		Success: r.NewStyle().Foreground(colorSuccess),
		Warning: r.NewStyle().Foreground(colorWarning),
		Error:   r.NewStyle().Foreground(colorError).Bold(true),
		NodeID:  r.NewStyle().Foreground(colorAccent),

		StatusIdle:      r.NewStyle().Foreground(colorMuted),
		StatusRunning:   r.NewStyle().Foreground(colorWarning).Bold(true),
		StatusCompleted: r.NewStyle().Foreground(colorSuccess),
		StatusFailed:    r.NewStyle().Foreground(colorError).Bold(true),
	}
}

// Status returns the style for a node status.
func (s *Styles) Status(status core.NodeStatus) lipgloss.Style {
	switch status {
	case core.StatusRunning:
		return s.StatusRunning
	case core.StatusCompleted:
		return s.StatusCompleted
	case core.StatusError:
		return s.StatusFailed
	default:
		return s.StatusIdle
	}
}

// Severity returns the style for a log severity.
func (s *Styles) Severity(sev core.Severity) lipgloss.Style {
	switch sev {
	case core.SeveritySuccess:
		return s.Success
	case core.SeverityWarning:
		return s.Warning
	case core.SeverityError:
		return s.Error
	default:
		return s.Info
	}
}

type glyphKind int

const (
	glyphSuccess glyphKind = iota
	glyphWarning
	glyphError
)

func (r *Renderer) glyph(k glyphKind) string {
	if r.isTTY {
		return [...]string{"✓", "!", "✗"}[k]
	}
	return [...]string{"[ok]", "[warn]", "[error]"}[k]
}

// StatusGlyph is the one-character marker for a node status.
func StatusGlyph(status core.NodeStatus) string {
	switch status {
	case core.StatusRunning:
		return "●"
	case core.StatusCompleted:
		return "✓"
	case core.StatusError:
		return "✗"
	default:
		return "○"
	}
}
