package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	Topic() string
	EventType() string
	Project() string
}

// Topic constants
const (
	TopicSchedule = "schedule"
	TopicTask     = "task"
)

// Event type constants
const (
	EventTypeScheduleComputed = "schedule.computed"
	EventTypeScheduleFailed   = "schedule.failed"
	EventTypeTaskScheduled    = "task.scheduled"
	EventTypeTaskSkipped      = "task.skipped"
)

// ScheduledTask is one computed row of a run.
type ScheduledTask struct {
	TaskID       string
	Name         string
	Start        time.Time
	End          time.Time
	DurationDays int
	EffortHours  float64
}

// UnscheduledTask is a task a best-effort run could not schedule.
type UnscheduledTask struct {
	TaskID string
	Reason string
}

// ScheduleComputedEvent is published after a recompute run has written its
// results back. It carries every row of the run so a consumer can replace
// its view in one step. Strict is false when the run fell back to
// best-effort.
type ScheduleComputedEvent struct {
	RunID        string
	ProjectID    string
	Strict       bool
	Scheduled    int
	Skipped      int
	Updated      int
	Tasks        []ScheduledTask
	SkippedTasks []UnscheduledTask
	Elapsed      time.Duration
	Timestamp    time.Time
}

func (e ScheduleComputedEvent) Topic() string     { return TopicSchedule }
func (e ScheduleComputedEvent) EventType() string { return EventTypeScheduleComputed }
func (e ScheduleComputedEvent) Project() string   { return e.ProjectID }

// ScheduleFailedEvent is published when a recompute run produces nothing.
type ScheduleFailedEvent struct {
	RunID     string
	ProjectID string
	Err       error
	Timestamp time.Time
}

func (e ScheduleFailedEvent) Topic() string     { return TopicSchedule }
func (e ScheduleFailedEvent) EventType() string { return EventTypeScheduleFailed }
func (e ScheduleFailedEvent) Project() string   { return e.ProjectID }

// TaskScheduledEvent carries the dates computed for one automatic task.
type TaskScheduledEvent struct {
	RunID        string
	ProjectID    string
	TaskID       string
	Name         string
	Start        time.Time
	End          time.Time
	DurationDays int
	EffortHours  float64
}

func (e TaskScheduledEvent) Topic() string     { return TopicTask }
func (e TaskScheduledEvent) EventType() string { return EventTypeTaskScheduled }
func (e TaskScheduledEvent) Project() string   { return e.ProjectID }

// TaskSkippedEvent names a task left unscheduled by a best-effort run.
type TaskSkippedEvent struct {
	RunID     string
	ProjectID string
	TaskID    string
	Reason    string
}

func (e TaskSkippedEvent) Topic() string     { return TopicTask }
func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) Project() string   { return e.ProjectID }
