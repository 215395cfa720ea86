package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/robfig/cron/v3"

	"github.com/aristath/planner/internal/config"
)

// SettingsPaneModel manages the settings form overlay. Saving writes the
// config file; a running config watcher then reloads calendars.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.PlannerConfig
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings
	saveTarget      string
	defaultCalendar string
	strict          bool
	debounceMS      string
	sweepCron       string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.PlannerConfig, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.buildForm()
	return m
}

func (m *SettingsPaneModel) loadFields() {
	m.saveTarget = "project"
	m.defaultCalendar = m.config.DefaultCalendar
	m.strict = m.config.Recompute.Strict
	m.debounceMS = strconv.Itoa(m.config.Recompute.DebounceMS)
	m.sweepCron = m.config.Recompute.SweepCron
}

func (m *SettingsPaneModel) buildForm() {
	m.loadFields()

	calendarOptions := make([]huh.Option[string], 0, len(m.config.Calendars))
	for _, id := range sortedKeys(m.config.Calendars) {
		label := id
		if name := m.config.Calendars[id].Name; name != "" {
			label = fmt.Sprintf("%s (%s)", id, name)
		}
		calendarOptions = append(calendarOptions, huh.NewOption(label, id))
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.planner/config.json)", "global"),
					huh.NewOption("Project (.planner/config.json)", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("defaultCalendar").
				Title("Default Calendar").
				Options(calendarOptions...).
				Value(&m.defaultCalendar),

			huh.NewConfirm().
				Key("strict").
				Title("Strict validation").
				Description("Fail a recompute instead of falling back to best-effort").
				Value(&m.strict),
		).Title("Scheduling"),

		huh.NewGroup(
			huh.NewInput().
				Key("debounceMS").
				Title("Debounce (ms)").
				Value(&m.debounceMS).
				Validate(validateDebounce),

			huh.NewInput().
				Key("sweepCron").
				Title("Sweep schedule").
				Placeholder("@hourly").
				Value(&m.sweepCron).
				Validate(validateCron),
		).Title("Recompute"),
	)
}

func validateDebounce(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}
	return nil
}

func validateCron(s string) error {
	if s == "" {
		return nil
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(s); err != nil {
		return fmt.Errorf("invalid cron spec: %w", err)
	}
	return nil
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == KeyEsc {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.applyFormToConfig()

		targetPath := m.projectPath
		if m.saveTarget == "global" {
			targetPath = m.globalPath
		}

		m.err = config.Save(m.config, targetPath)
		m.saved = m.err == nil
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// applyFormToConfig copies validated form values back to the config.
func (m *SettingsPaneModel) applyFormToConfig() {
	m.config.DefaultCalendar = m.defaultCalendar
	m.config.Recompute.Strict = m.strict
	if n, err := strconv.Atoi(m.debounceMS); err == nil {
		m.config.Recompute.DebounceMS = n
	}
	m.config.Recompute.SweepCron = m.sweepCron
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	content := m.form.View()
	if m.err != nil {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("Error saving: %v", m.err))
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane. Showing rebuilds the form
// from the current config.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil
	if v {
		m.buildForm()
		if m.width > 0 {
			m.form.WithWidth(m.width - 8).WithHeight(m.height - 8)
		}
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last form submission was written.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}
