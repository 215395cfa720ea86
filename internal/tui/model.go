package tui

import (
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/planner/internal/config"
	"github.com/aristath/planner/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneSchedule PaneID = iota
	PaneStatus
	paneCount
)

// RecomputeFunc recomputes the viewed project. Results arrive as bus events.
type RecomputeFunc func() error

type recomputeStartedMsg struct{}

type recomputeDoneMsg struct{ err error }

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	schedulePane SchedulePaneModel
	statusPane   StatusPaneModel
	settingsPane SettingsPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	projectID    string
	recompute    RecomputeFunc
	width        int
	height       int
	quitting     bool
	showSettings bool
}

// New creates a TUI for one project. It subscribes to schedule events, which
// carry whole runs, and ignores those of other projects. recompute runs once on start and on r.
func New(bus *events.EventBus, projectID string, recompute RecomputeFunc, cfg *config.PlannerConfig, globalPath, projectPath string) Model {
	return Model{
		schedulePane: NewSchedulePaneModel(),
		statusPane:   NewStatusPaneModel(projectID),
		settingsPane: NewSettingsPaneModel(cfg, globalPath, projectPath),
		focusedPane:  PaneSchedule,
		eventSub:     bus.Subscribe(events.TopicSchedule, 16),
		projectID:    projectID,
		recompute:    recompute,
	}
}

// Init starts listening for events and kicks off the first recompute.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.eventSub), m.recomputeCmd())
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

func (m Model) recomputeCmd() tea.Cmd {
	if m.recompute == nil {
		return nil
	}
	run := m.recompute
	return tea.Sequence(
		func() tea.Msg { return recomputeStartedMsg{} },
		func() tea.Msg { return recomputeDoneMsg{err: run()} },
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.showSettings {
			return m.updateSettings(msg)
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			return m, m.settingsPane.Init()

		case KeyRecompute:
			if !m.statusPane.recomputing {
				return m, m.recomputeCmd()
			}

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneSchedule
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneStatus
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneSchedule {
				var cmd tea.Cmd
				m.schedulePane, cmd = m.schedulePane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case recomputeStartedMsg, recomputeDoneMsg:
		m.statusPane, _ = m.statusPane.Update(msg)

	case events.Event:
		if m.projectID == "" || msg.Project() == m.projectID {
			if msg.Topic() == events.TopicSchedule {
				m.schedulePane, _ = m.schedulePane.Update(msg)
				m.statusPane, _ = m.statusPane.Update(msg)
			}
		}
		cmds = append(cmds, waitForEvent(m.eventSub))

	default:
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m Model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.settingsPane, cmd = m.settingsPane.Update(msg)
	if !m.settingsPane.IsVisible() {
		m.showSettings = false
	}
	return m, cmd
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.showSettings {
		return m.settingsPane.View()
	}

	panes := lipgloss.JoinHorizontal(lipgloss.Top, m.schedulePane.View(), m.statusPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, panes, HelpView())
}

// computeLayout gives the schedule 65% of the width; the status pane takes the rest.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 65) / 100
	availableHeight := m.height - 1 // help bar

	m.schedulePane.SetSize(leftWidth, availableHeight)
	m.statusPane.SetSize(m.width-leftWidth, availableHeight)
	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.schedulePane.SetFocused(m.focusedPane == PaneSchedule)
	m.statusPane.SetFocused(m.focusedPane == PaneStatus)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
