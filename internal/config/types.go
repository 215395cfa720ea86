package config

// CalendarConfig defines a working calendar.
type CalendarConfig struct {
	Name            string   `json:"name,omitempty" yaml:"name,omitempty"`
	WorkingWeekdays []int    `json:"working_weekdays" yaml:"working_weekdays"`     // ISO weekdays, 1=Monday .. 7=Sunday
	HoursPerDay     float64  `json:"hours_per_day" yaml:"hours_per_day"`           // Used for effort <-> duration conversion
	Holidays        []string `json:"holidays,omitempty" yaml:"holidays,omitempty"` // YYYY-MM-DD
}

// LogConfig controls the zerolog logger.
type LogConfig struct {
	Level   string `json:"level,omitempty" yaml:"level,omitempty"` // trace, debug, info, warn, error
	Console bool   `json:"console" yaml:"console"`                 // Human-readable output instead of JSON
}

// RecomputeConfig tunes the background recompute coordinator.
type RecomputeConfig struct {
	DebounceMS   int     `json:"debounce_ms,omitempty" yaml:"debounce_ms,omitempty"`       // Edits within this window coalesce
	Concurrency  int     `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`       // Projects recomputed in parallel
	MaxPerSecond float64 `json:"max_per_second,omitempty" yaml:"max_per_second,omitempty"` // Global recompute rate cap
	SweepCron    string  `json:"sweep_cron,omitempty" yaml:"sweep_cron,omitempty"`         // Periodic full recompute; empty disables
	Strict       bool    `json:"strict" yaml:"strict"`                                     // Fail instead of falling back to best-effort
}

// PlannerConfig is the top-level configuration.
type PlannerConfig struct {
	Database        string                    `json:"database,omitempty" yaml:"database,omitempty"`
	DefaultCalendar string                    `json:"default_calendar,omitempty" yaml:"default_calendar,omitempty"`
	Calendars       map[string]CalendarConfig `json:"calendars" yaml:"calendars"`
	Log             LogConfig                 `json:"log" yaml:"log"`
	Recompute       RecomputeConfig           `json:"recompute" yaml:"recompute"`
}
