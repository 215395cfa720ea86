package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aristath/planner/internal/calendar"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON or YAML returns an error.
func Load(globalPath, projectPath string) (*PlannerConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// DefaultPaths returns the conventional config locations.
// Global: ~/.planner/config.json
// Project: .planner/config.json (relative to cwd)
func DefaultPaths() (globalPath, projectPath string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".planner", "config.json"), filepath.Join(".planner", "config.json"), nil
}

// LoadDefault loads configuration from conventional paths.
func LoadDefault() (*PlannerConfig, error) {
	globalPath, projectPath, err := DefaultPaths()
	if err != nil {
		return nil, err
	}
	return Load(globalPath, projectPath)
}

// mergeConfigFile decodes a config file on top of base. Keys present in the
// file win; a calendar entry replaces the whole calendar of the same id.
// Missing files are silently skipped.
func mergeConfigFile(base *PlannerConfig, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	data, err = coerceToJSONBytes(path, data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// coerceToJSONBytes converts YAML config to JSON so both formats share the
// same decoding and merge rules.
func coerceToJSONBytes(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if v == nil {
		return []byte("{}"), nil
	}

	j, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// normalizeYAML ensures all map keys are strings so the result can be JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = normalizeYAML(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}

// Registry builds the calendar registry described by the configuration.
func (c *PlannerConfig) Registry() (*calendar.Registry, error) {
	ids := make([]string, 0, len(c.Calendars))
	for id := range c.Calendars {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	cals := make([]*calendar.Calendar, 0, len(ids))
	for _, id := range ids {
		cc := c.Calendars[id]
		holidays := make([]time.Time, 0, len(cc.Holidays))
		for _, h := range cc.Holidays {
			d, err := calendar.ParseDate(h)
			if err != nil {
				return nil, fmt.Errorf("calendar %q: bad holiday %q: %w", id, h, err)
			}
			holidays = append(holidays, d)
		}
		cal, err := calendar.New(id, cc.WorkingWeekdays, cc.HoursPerDay, holidays)
		if err != nil {
			return nil, err
		}
		cal.Name = cc.Name
		cals = append(cals, cal)
	}

	defaultID := c.DefaultCalendar
	if defaultID == "" {
		defaultID = calendar.DefaultID
	}
	return calendar.NewRegistry(defaultID, cals...)
}

// Debounce returns the recompute debounce window.
func (r RecomputeConfig) Debounce() time.Duration {
	return time.Duration(r.DebounceMS) * time.Millisecond
}
