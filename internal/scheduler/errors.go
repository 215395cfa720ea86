package scheduler

import (
	"fmt"
	"strings"
)

// ConfigurationError reports bad input the engine cannot schedule around: an
// unknown calendar or predecessor, or a calendar without working days.
type ConfigurationError struct {
	TaskID string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.TaskID != "" {
		msg = fmt.Sprintf("configuration error for task %q", e.TaskID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// CyclicDependencyError carries every cycle found, each as an ordered list of task ids.
type CyclicDependencyError struct {
	Cycles [][]string
}

func (e *CyclicDependencyError) Error() string {
	paths := make([]string, 0, len(e.Cycles))
	for _, cycle := range e.Cycles {
		if len(cycle) == 0 {
			continue
		}
		paths = append(paths, strings.Join(append(append([]string(nil), cycle...), cycle[0]), " -> "))
	}
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(paths, "; "))
}

// SelfDependencyError is returned when a task would depend on itself.
type SelfDependencyError struct {
	TaskID string
}

func (e *SelfDependencyError) Error() string {
	return fmt.Sprintf("task %q cannot depend on itself", e.TaskID)
}

// SkippedTask is an Automatic task the best-effort pass could not schedule.
type SkippedTask struct {
	TaskID string
	Err    error
}
