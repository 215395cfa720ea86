package calendar

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrNoWorkingDays is returned when a calendar has no working weekdays, which
// would make working-day arithmetic loop forever.
var ErrNoWorkingDays = errors.New("calendar has no working weekdays")

// DateLayout is the layout used for holidays and stored dates.
const DateLayout = "2006-01-02"

// Calendar defines which days count as working days.
type Calendar struct {
	ID          string
	Name        string
	HoursPerDay float64

	weekdays [8]bool // indexed by ISO weekday, 1=Monday .. 7=Sunday
	holidays map[time.Time]struct{}
}

// New creates a calendar. Weekdays use ISO numbering (1=Monday .. 7=Sunday).
func New(id string, weekdays []int, hoursPerDay float64, holidays []time.Time) (*Calendar, error) {
	c := &Calendar{
		ID:          id,
		HoursPerDay: hoursPerDay,
		holidays:    make(map[time.Time]struct{}, len(holidays)),
	}
	for _, wd := range weekdays {
		if wd < 1 || wd > 7 {
			return nil, fmt.Errorf("calendar %q: weekday %d out of range 1-7", id, wd)
		}
		c.weekdays[wd] = true
	}
	for _, h := range holidays {
		c.holidays[Normalize(h)] = struct{}{}
	}
	return c, nil
}

// Standard returns a Monday-Friday, 8 hours/day calendar with no holidays.
func Standard(id string) *Calendar {
	c, _ := New(id, []int{1, 2, 3, 4, 5}, 8, nil)
	return c
}

// Date returns the civil date y-m-d at UTC midnight.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Normalize strips the clock and location from t, keeping its calendar date.
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Normalize(t), nil
}

// ISOWeekday maps a time.Weekday onto 1=Monday .. 7=Sunday.
func ISOWeekday(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}

// Weekdays returns the working weekdays in ascending ISO order.
func (c *Calendar) Weekdays() []int {
	var out []int
	for wd := 1; wd <= 7; wd++ {
		if c.weekdays[wd] {
			out = append(out, wd)
		}
	}
	return out
}

// Holidays returns the holiday dates in ascending order.
func (c *Calendar) Holidays() []time.Time {
	out := make([]time.Time, 0, len(c.holidays))
	for h := range c.holidays {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Validate reports configuration problems that would break date arithmetic.
func (c *Calendar) Validate() error {
	if len(c.Weekdays()) == 0 {
		return fmt.Errorf("calendar %q: %w", c.ID, ErrNoWorkingDays)
	}
	if c.HoursPerDay <= 0 {
		return fmt.Errorf("calendar %q: hours per day must be positive, got %v", c.ID, c.HoursPerDay)
	}
	return nil
}

// IsWorkingDay reports whether date falls on a working weekday that is not a holiday.
func (c *Calendar) IsWorkingDay(date time.Time) bool {
	date = Normalize(date)
	if !c.weekdays[ISOWeekday(date.Weekday())] {
		return false
	}
	_, holiday := c.holidays[date]
	return !holiday
}

// AddWorkingDays steps one day at a time in the direction of n and returns the
// date on which the |n|-th working day is reached. n == 0 returns date unchanged.
func (c *Calendar) AddWorkingDays(date time.Time, n int) (time.Time, error) {
	date = Normalize(date)
	if n == 0 {
		return date, nil
	}
	if err := c.Validate(); err != nil {
		return time.Time{}, err
	}

	step := 1
	if n < 0 {
		step = -1
		n = -n
	}
	for counted := 0; counted < n; {
		date = date.AddDate(0, 0, step)
		if c.IsWorkingDay(date) {
			counted++
		}
	}
	return date, nil
}

// NextWorkingDay returns date itself when it is a working day, otherwise the
// first working day after it.
func (c *Calendar) NextWorkingDay(date time.Time) (time.Time, error) {
	date = Normalize(date)
	if c.IsWorkingDay(date) {
		return date, nil
	}
	return c.AddWorkingDays(date, 1)
}

// CountWorkingDaysBetween counts working days in [start, end). Returns 0 when
// start is not before end.
func (c *Calendar) CountWorkingDaysBetween(start, end time.Time) int {
	start, end = Normalize(start), Normalize(end)
	count := 0
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		if c.IsWorkingDay(d) {
			count++
		}
	}
	return count
}

// HoursToDays converts effort hours to whole working days, rounding up.
func (c *Calendar) HoursToDays(hours float64) int {
	if c.HoursPerDay <= 0 {
		return 0
	}
	return int(math.Ceil(hours / c.HoursPerDay))
}

// DaysToHours converts working days to effort hours.
func (c *Calendar) DaysToHours(days int) float64 {
	return float64(days) * c.HoursPerDay
}
