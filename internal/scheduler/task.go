package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// DependencyType is the precedence relation linking a predecessor to a successor.
type DependencyType int

const (
	FinishToStart  DependencyType = iota // FS: successor starts after predecessor finishes
	StartToStart                         // SS: successor starts with predecessor
	FinishToFinish                       // FF: constrained by predecessor finish
	StartToFinish                        // SF: constrained by predecessor start
)

var dependencyTypeNames = [...]string{
	FinishToStart:  "FS",
	StartToStart:   "SS",
	FinishToFinish: "FF",
	StartToFinish:  "SF",
}

func (t DependencyType) String() string {
	if t < 0 || int(t) >= len(dependencyTypeNames) {
		return fmt.Sprintf("DependencyType(%d)", int(t))
	}
	return dependencyTypeNames[t]
}

// ParseDependencyType parses FS, SS, FF or SF (case-insensitive).
func ParseDependencyType(s string) (DependencyType, error) {
	for i, name := range dependencyTypeNames {
		if strings.EqualFold(s, name) {
			return DependencyType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown dependency type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t DependencyType) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(dependencyTypeNames) {
		return nil, fmt.Errorf("invalid dependency type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DependencyType) UnmarshalText(text []byte) error {
	parsed, err := ParseDependencyType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// SchedulingMode determines whether the engine owns a task's dates.
type SchedulingMode int

const (
	Automatic SchedulingMode = iota // Dates computed by the engine
	Manual                          // Dates fixed by the user, never modified
)

func (m SchedulingMode) String() string {
	switch m {
	case Automatic:
		return "automatic"
	case Manual:
		return "manual"
	}
	return fmt.Sprintf("SchedulingMode(%d)", int(m))
}

// ParseSchedulingMode parses "automatic" or "manual".
func ParseSchedulingMode(s string) (SchedulingMode, error) {
	switch strings.ToLower(s) {
	case "automatic", "auto":
		return Automatic, nil
	case "manual":
		return Manual, nil
	}
	return 0, fmt.Errorf("unknown scheduling mode %q", s)
}

// TaskState tracks how far date computation has progressed for a task.
type TaskState int

const (
	Unscheduled        TaskState = iota // Nothing computed yet
	StartComputed                       // Start date derived from predecessors
	EndComputed                         // End date derived from duration
	DurationReconciled                  // Duration and effort consistent with dates
)

func (s TaskState) String() string {
	switch s {
	case Unscheduled:
		return "unscheduled"
	case StartComputed:
		return "start-computed"
	case EndComputed:
		return "end-computed"
	case DurationReconciled:
		return "duration-reconciled"
	}
	return fmt.Sprintf("TaskState(%d)", int(s))
}

// Dependency is an edge from a predecessor to the task that owns it.
type Dependency struct {
	PredecessorID string
	Type          DependencyType
	LagDays       int // Signed lag in working days; negative is a lead
}

// Task is a schedulable unit of work.
type Task struct {
	ID           string
	ProjectID    string
	Name         string
	Dependencies []Dependency // Ordered predecessor edges
	Mode         SchedulingMode
	CalendarID   string // Empty means the default calendar
	Start        time.Time
	End          time.Time // Inclusive last working day
	DurationDays int       // Working days; 0 means unset
	EffortHours  float64   // 0 means unset
}

// Project groups tasks that are scheduled together.
type Project struct {
	ID        string
	Name      string
	StartDate time.Time
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.Dependencies != nil {
		cp.Dependencies = append([]Dependency(nil), task.Dependencies...)
	}
	return &cp
}
