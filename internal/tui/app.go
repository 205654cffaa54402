// Package tui is the terminal front end of `leappipe run --tui`: a node
// status panel and a scrolling log, both fed by a controller's updates.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/leapstack-labs/leappipe/internal/engine"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

// UpdateMsg carries a controller observation into the Bubble Tea loop.
type UpdateMsg struct {
	Update engine.Update
}

// ExecuteResultMsg reports the outcome of starting a run.
type ExecuteResultMsg struct {
	Err error
}

// Model is the top-level Bubble Tea model.
type Model struct {
	controller *engine.Controller
	graph      core.Graph
	nodes      map[string]core.PipelineNode

	statuses []core.NodeStatusEntry
	state    core.ExecutionState
	phase    engine.Phase
	log      LogPanelModel
	err      error

	width  int
	height int
}

// NewModel creates a model that runs g on c.
func NewModel(c *engine.Controller, g core.Graph) Model {
	return Model{
		controller: c,
		graph:      g,
		nodes:      g.NodeIndex(),
		log:        NewLogPanelModel(0),
	}
}

// Init starts the first run.
func (m Model) Init() tea.Cmd {
	return m.executeCmd()
}

func (m Model) executeCmd() tea.Cmd {
	c, g := m.controller, m.graph
	return func() tea.Msg {
		return ExecuteResultMsg{Err: c.Execute(context.Background(), g)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case UpdateMsg:
		return m.applyUpdate(msg.Update), nil

	case ExecuteResultMsg:
		// validation and structural failures are also in the log
		if !errors.Is(msg.Err, engine.ErrAlreadyRunning) {
			m.err = msg.Err
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) applyUpdate(u engine.Update) Model {
	if u.Reset {
		m.log.Clear()
		m.err = nil
	}
	m.log.Append(u.Logs...)
	m.statuses = u.Statuses
	m.state = u.State
	m.phase = u.Phase
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "s":
		m.controller.Stop()
	case "r":
		m.controller.Reset()
	case "e":
		if m.phase == engine.PhaseIdle {
			return m, m.executeCmd()
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.width < 40 || m.height < 10 {
		return fmt.Sprintf("Terminal too small (%dx%d). Minimum: 40x10.", m.width, m.height)
	}

	statusWidth := max(m.width*35/100, 20)
	bodyHeight := m.height - 1

	m.log.SetSize(m.width-statusWidth, bodyHeight)
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.statusView(statusWidth, bodyHeight), m.log.View())

	return body + "\n" + m.footerView()
}

func (m Model) statusView(width, height int) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("NODES"))
	b.WriteString("\n")

	if len(m.statuses) == 0 {
		b.WriteString(IdleStyle.Render("No run yet"))
	}
	for _, entry := range m.statuses {
		node := m.nodes[entry.NodeID]
		line := fmt.Sprintf("%s %s", StatusIcon(entry.Status), node.DisplayLabel())
		b.WriteString(statusStyle(entry.Status).Render(line))
		b.WriteString("\n")
	}

	return BorderStyle.
		Width(max(width-2, 1)).
		Height(max(height-2, 1)).
		Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) footerView() string {
	total := len(m.graph.Nodes)
	done := len(m.state.CompletedNodes)

	var status string
	switch {
	case m.phase == engine.PhaseRunning && m.state.CurrentNode != "":
		status = RunningStyle.Render(fmt.Sprintf("running %s", m.state.CurrentNode))
	case m.phase == engine.PhaseStopping:
		status = RunningStyle.Render("stopping")
	case m.err != nil:
		status = FailedStyle.Render("not started")
	default:
		status = IdleStyle.Render(m.phase.String())
	}

	progress := fmt.Sprintf("%d/%d", done, total)
	help := HelpStyle.Render("s stop  r reset  e execute  q quit")
	return fmt.Sprintf("%s  %s  %s", status, progress, help)
}

// StatusIcon returns a bracket-style status marker.
func StatusIcon(s core.NodeStatus) string {
	switch s {
	case core.StatusRunning:
		return "[~]"
	case core.StatusCompleted:
		return "[*]"
	case core.StatusError:
		return "[!]"
	default:
		return "[ ]"
	}
}

func statusStyle(s core.NodeStatus) lipgloss.Style {
	switch s {
	case core.StatusRunning:
		return RunningStyle
	case core.StatusCompleted:
		return CompletedStyle
	case core.StatusError:
		return FailedStyle
	default:
		return IdleStyle
	}
}

// Run shows the TUI until the user quits or ctx ends. The first run starts
// immediately.
func Run(ctx context.Context, c *engine.Controller, g core.Graph, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewModel(c, g), opts...)

	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		_ = engine.Watch(watchCtx, c, func(u engine.Update) {
			p.Send(UpdateMsg{Update: u})
		})
	}()

	_, err := p.Run()
	stopWatch()
	<-watchDone

	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
