package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/planner/internal/events"
)

// StatusPaneModel summarizes the latest recompute run.
type StatusPaneModel struct {
	projectID   string
	last        events.ScheduleComputedEvent
	hasRun      bool
	lastErr     error
	recomputing bool
	width       int
	height      int
	focused     bool
}

// NewStatusPaneModel creates a status pane for projectID.
func NewStatusPaneModel(projectID string) StatusPaneModel {
	return StatusPaneModel{projectID: projectID}
}

// Update handles messages for the status pane.
func (m StatusPaneModel) Update(msg tea.Msg) (StatusPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.ScheduleComputedEvent:
		m.last = msg
		m.hasRun = true
		m.lastErr = nil

	case events.ScheduleFailedEvent:
		m.lastErr = msg.Err

	case recomputeStartedMsg:
		m.recomputing = true

	case recomputeDoneMsg:
		m.recomputing = false
		if msg.err != nil {
			m.lastErr = msg.err
		}
	}

	return m, nil
}

// View renders the status pane.
func (m StatusPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Project " + m.projectID)
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	switch {
	case m.recomputing:
		b.WriteString(StyleFallback.Render("Recomputing..."))
		b.WriteString("\n")
	case !m.hasRun && m.lastErr == nil:
		b.WriteString(StyleMuted.Render("No run yet"))
		b.WriteString("\n")
	}

	if m.hasRun {
		mode := StyleScheduled.Render("validated")
		if !m.last.Strict {
			mode = StyleFallback.Render("best-effort")
		}
		b.WriteString(fmt.Sprintf("Mode:      %s\n", mode))
		b.WriteString(fmt.Sprintf("Scheduled: %s\n", StyleScheduled.Render(fmt.Sprintf("%d", m.last.Scheduled))))
		b.WriteString(fmt.Sprintf("Skipped:   %s\n", StyleSkipped.Render(fmt.Sprintf("%d", m.last.Skipped))))
		b.WriteString(fmt.Sprintf("Written:   %d\n", m.last.Updated))
		b.WriteString(fmt.Sprintf("Took:      %s\n", m.last.Elapsed.Round(time.Millisecond)))
		b.WriteString(StyleMuted.Render(fmt.Sprintf("Run %s at %s", shortRunID(m.last.RunID), m.last.Timestamp.Format("15:04:05"))))
		b.WriteString("\n\n")

		if total := m.last.Scheduled + m.last.Skipped; total > 0 {
			barWidth := min(m.width-4, 40)
			okWidth := (m.last.Scheduled * barWidth) / total
			bar := StyleScheduled.Render(strings.Repeat("=", max(0, okWidth)))
			bar += StyleSkipped.Render(strings.Repeat("!", max(0, barWidth-okWidth)))
			b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, m.last.Scheduled, total))
		}
	}

	if m.lastErr != nil {
		b.WriteString("\n")
		b.WriteString(StyleSkipped.Render("Error: " + m.lastErr.Error()))
		b.WriteString("\n")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// SetSize updates the pane dimensions.
func (m *StatusPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *StatusPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
