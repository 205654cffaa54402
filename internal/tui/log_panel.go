package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

// LogPanelModel is a scrollable view of execution logs.
type LogPanelModel struct {
	entries  []core.ExecutionLog
	max      int
	viewport viewport.Model
	width    int
	height   int
}

// NewLogPanelModel creates a log panel keeping at most maxEntries lines.
// If maxEntries is <= 0, it defaults to 500.
func NewLogPanelModel(maxEntries int) LogPanelModel {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	return LogPanelModel{
		entries:  make([]core.ExecutionLog, 0, maxEntries),
		max:      maxEntries,
		viewport: viewport.New(80, 10),
	}
}

// Append adds entries, evicting the oldest beyond capacity.
func (m *LogPanelModel) Append(logs ...core.ExecutionLog) {
	if len(logs) == 0 {
		return
	}
	m.entries = append(m.entries, logs...)
	if over := len(m.entries) - m.max; over > 0 {
		m.entries = m.entries[over:]
	}
	m.syncViewport()
}

// Clear drops every entry.
func (m *LogPanelModel) Clear() {
	m.entries = m.entries[:0]
	m.syncViewport()
}

// Len returns the number of entries in the log.
func (m LogPanelModel) Len() int {
	return len(m.entries)
}

// SetSize sets the available dimensions and updates the viewport.
func (m *LogPanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	// border (2) plus title (1)
	m.viewport.Width = max(w-2, 1)
	m.viewport.Height = max(h-3, 1)
	m.syncViewport()
}

// View renders the log panel.
func (m LogPanelModel) View() string {
	content := "No logs yet"
	if len(m.entries) > 0 {
		content = m.viewport.View()
	}

	return BorderStyle.
		Width(max(m.width-2, 1)).
		Height(max(m.height-2, 1)).
		Render(TitleStyle.Render("EXECUTION LOG") + "\n" + content)
}

func (m *LogPanelModel) syncViewport() {
	lines := make([]string, len(m.entries))
	for i, entry := range m.entries {
		lines[i] = formatEntry(entry)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func formatEntry(entry core.ExecutionLog) string {
	ts := LogTimestampStyle.Render(entry.Timestamp.Format("15:04:05"))
	return ts + " " + lipgloss.NewStyle().Bold(true).Render(entry.NodeName) + " " +
		severityStyle(entry.Severity).Render(entry.Message)
}

func severityStyle(sev core.Severity) lipgloss.Style {
	switch sev {
	case core.SeveritySuccess:
		return LogSuccessStyle
	case core.SeverityWarning:
		return LogWarningStyle
	case core.SeverityError:
		return LogErrorStyle
	default:
		return LogInfoStyle
	}
}
