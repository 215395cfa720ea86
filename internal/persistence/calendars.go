package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/planner/internal/calendar"
)

// SaveCalendar saves or replaces a calendar and its holidays.
func (s *SQLiteStore) SaveCalendar(ctx context.Context, cal *calendar.Calendar) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	weekdays := make([]string, 0, 7)
	for _, wd := range cal.Weekdays() {
		weekdays = append(weekdays, strconv.Itoa(wd))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO calendars (id, name, working_weekdays, hours_per_day)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			working_weekdays = excluded.working_weekdays,
			hours_per_day = excluded.hours_per_day
	`, cal.ID, cal.Name, strings.Join(weekdays, ","), cal.HoursPerDay)
	if err != nil {
		return fmt.Errorf("failed to upsert calendar: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM calendar_holidays WHERE calendar_id = ?`, cal.ID); err != nil {
		return fmt.Errorf("failed to delete old holidays: %w", err)
	}
	for _, h := range cal.Holidays() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO calendar_holidays (calendar_id, day) VALUES (?, ?)
		`, cal.ID, formatDate(h))
		if err != nil {
			return fmt.Errorf("failed to insert holiday %s: %w", formatDate(h), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListCalendars returns all stored calendars ordered by ID.
func (s *SQLiteStore) ListCalendars(ctx context.Context) ([]*calendar.Calendar, error) {
	holidays, err := s.loadHolidays(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, working_weekdays, hours_per_day FROM calendars ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendars: %w", err)
	}
	defer rows.Close()

	var cals []*calendar.Calendar
	for rows.Next() {
		var id, name, weekdayList string
		var hours float64
		if err := rows.Scan(&id, &name, &weekdayList, &hours); err != nil {
			return nil, fmt.Errorf("failed to scan calendar: %w", err)
		}

		var weekdays []int
		for _, field := range strings.Split(weekdayList, ",") {
			if field == "" {
				continue
			}
			wd, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("calendar %s: bad weekday %q: %w", id, field, err)
			}
			weekdays = append(weekdays, wd)
		}

		cal, err := calendar.New(id, weekdays, hours, holidays[id])
		if err != nil {
			return nil, err
		}
		cal.Name = name
		cals = append(cals, cal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calendars: %w", err)
	}
	return cals, nil
}

func (s *SQLiteStore) loadHolidays(ctx context.Context) (map[string][]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT calendar_id, day FROM calendar_holidays ORDER BY day`)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	holidays := make(map[string][]time.Time)
	for rows.Next() {
		var calID, day string
		if err := rows.Scan(&calID, &day); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		d, err := parseDate(day)
		if err != nil {
			return nil, fmt.Errorf("calendar %s: bad holiday %q: %w", calID, day, err)
		}
		holidays[calID] = append(holidays[calID], d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holidays: %w", err)
	}
	return holidays, nil
}
