package config

import (
	"path/filepath"

	"github.com/aristath/planner/internal/calendar"
)

// DefaultConfig returns the default configuration with the standard calendar.
func DefaultConfig() *PlannerConfig {
	return &PlannerConfig{
		Database:        filepath.Join(".planner", "planner.db"),
		DefaultCalendar: calendar.DefaultID,
		Calendars: map[string]CalendarConfig{
			calendar.DefaultID: {
				Name:            "Standard (Mon-Fri)",
				WorkingWeekdays: []int{1, 2, 3, 4, 5},
				HoursPerDay:     8,
			},
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Recompute: RecomputeConfig{
			DebounceMS:   500,
			Concurrency:  4,
			MaxPerSecond: 5,
		},
	}
}
