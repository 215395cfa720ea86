package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/planner/internal/calendar"
	"github.com/aristath/planner/internal/events"
)

type scheduleRow struct {
	taskID   string
	name     string
	start    time.Time
	end      time.Time
	duration int
	effort   float64
	skipped  bool
	reason   string
}

// SchedulePaneModel lists the tasks of the latest run in a scrollable viewport.
// Each computed run replaces all rows at once.
type SchedulePaneModel struct {
	rows     map[string]scheduleRow
	viewport viewport.Model
	width    int
	height   int
	focused  bool
}

// NewSchedulePaneModel creates an empty schedule pane.
func NewSchedulePaneModel() SchedulePaneModel {
	vp := viewport.New(0, 0)
	vp.SetContent("Waiting for schedule...")
	return SchedulePaneModel{
		rows:     make(map[string]scheduleRow),
		viewport: vp,
	}
}

// Update handles messages for the schedule pane.
func (m SchedulePaneModel) Update(msg tea.Msg) (SchedulePaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case events.ScheduleComputedEvent:
		m.rows = make(map[string]scheduleRow, len(msg.Tasks)+len(msg.SkippedTasks))
		for _, task := range msg.Tasks {
			m.rows[task.TaskID] = scheduleRow{
				taskID:   task.TaskID,
				name:     task.Name,
				start:    task.Start,
				end:      task.End,
				duration: task.DurationDays,
				effort:   task.EffortHours,
			}
		}
		for _, skipped := range msg.SkippedTasks {
			m.rows[skipped.TaskID] = scheduleRow{taskID: skipped.TaskID, skipped: true, reason: skipped.Reason}
		}
		m.refresh()
	}

	return m, nil
}

// sortedRows orders scheduled rows by start date then id, skipped rows last.
func (m SchedulePaneModel) sortedRows() []scheduleRow {
	rows := make([]scheduleRow, 0, len(m.rows))
	for _, row := range m.rows {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.skipped != b.skipped {
			return !a.skipped
		}
		if !a.start.Equal(b.start) {
			return a.start.Before(b.start)
		}
		return a.taskID < b.taskID
	})
	return rows
}

func (m *SchedulePaneModel) refresh() {
	var b strings.Builder
	b.WriteString(StyleHeader.Render(fmt.Sprintf("%-14s %-24s %-10s %-10s %5s %7s", "TASK", "NAME", "START", "END", "DAYS", "HOURS")))
	b.WriteString("\n")

	for _, row := range m.sortedRows() {
		if row.skipped {
			b.WriteString(StyleSkipped.Render(fmt.Sprintf("%-14s skipped: %s", truncate(row.taskID, 14), row.reason)))
			b.WriteString("\n")
			continue
		}
		line := fmt.Sprintf("%-14s %-24s %-10s %-10s %5d %7.1f",
			truncate(row.taskID, 14), truncate(row.name, 24),
			row.start.Format(calendar.DateLayout), row.end.Format(calendar.DateLayout), row.duration, row.effort)
		b.WriteString(StyleScheduled.Render(line))
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

// View renders the schedule pane.
func (m SchedulePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	title := StyleTitle.Render("Schedule")
	content := lipgloss.JoinVertical(lipgloss.Left, title, m.viewport.View())

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// SetSize updates the pane and viewport dimensions.
func (m *SchedulePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(10, w-4)
	m.viewport.Height = max(3, h-4)
}

// SetFocused updates the focus state.
func (m *SchedulePaneModel) SetFocused(focused bool) {
	m.focused = focused
}

// Len returns the number of rows of the current run.
func (m SchedulePaneModel) Len() int {
	return len(m.rows)
}
