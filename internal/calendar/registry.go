package calendar

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownCalendar is returned when a calendar id cannot be resolved.
var ErrUnknownCalendar = errors.New("unknown calendar")

// DefaultID is the id of the calendar used when none is configured.
const DefaultID = "standard"

// Registry maps calendar ids to calendars. It is read-only once built.
type Registry struct {
	defaultID string
	calendars map[string]*Calendar
}

// NewRegistry creates a registry. The default calendar must be among cals.
func NewRegistry(defaultID string, cals ...*Calendar) (*Registry, error) {
	r := &Registry{
		defaultID: defaultID,
		calendars: make(map[string]*Calendar, len(cals)),
	}
	for _, c := range cals {
		if _, exists := r.calendars[c.ID]; exists {
			return nil, fmt.Errorf("calendar %q registered twice", c.ID)
		}
		r.calendars[c.ID] = c
	}
	if _, ok := r.calendars[defaultID]; !ok {
		return nil, fmt.Errorf("default calendar %q: %w", defaultID, ErrUnknownCalendar)
	}
	return r, nil
}

// DefaultRegistry returns a registry holding only the standard calendar.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(DefaultID, Standard(DefaultID))
	return r
}

// Resolve returns the calendar for id, or the default calendar when id is empty.
func (r *Registry) Resolve(id string) (*Calendar, error) {
	if id == "" {
		id = r.defaultID
	}
	c, ok := r.calendars[id]
	if !ok {
		return nil, fmt.Errorf("calendar %q: %w", id, ErrUnknownCalendar)
	}
	return c, nil
}

// Default returns the default calendar.
func (r *Registry) Default() *Calendar {
	return r.calendars[r.defaultID]
}

// DefaultID returns the id of the default calendar.
func (r *Registry) DefaultID() string {
	return r.defaultID
}

// IDs returns all registered calendar ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.calendars))
	for id := range r.calendars {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
