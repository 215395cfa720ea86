package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aristath/planner/internal/calendar"
	"github.com/aristath/planner/internal/scheduler"
)

// projectFile is the on-disk import format.
type projectFile struct {
	Project struct {
		ID    string `json:"id" yaml:"id"`
		Name  string `json:"name" yaml:"name"`
		Start string `json:"start" yaml:"start"`
	} `json:"project" yaml:"project"`
	Tasks []fileTask `json:"tasks" yaml:"tasks"`
}

type fileTask struct {
	ID           string           `json:"id" yaml:"id"`
	Name         string           `json:"name,omitempty" yaml:"name,omitempty"`
	Mode         string           `json:"mode,omitempty" yaml:"mode,omitempty"`
	Calendar     string           `json:"calendar,omitempty" yaml:"calendar,omitempty"`
	Start        string           `json:"start,omitempty" yaml:"start,omitempty"`
	End          string           `json:"end,omitempty" yaml:"end,omitempty"`
	DurationDays int              `json:"duration_days,omitempty" yaml:"duration_days,omitempty"`
	EffortHours  float64          `json:"effort_hours,omitempty" yaml:"effort_hours,omitempty"`
	DependsOn    []fileDependency `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

type fileDependency struct {
	Predecessor string `json:"predecessor" yaml:"predecessor"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"` // FS when empty
	LagDays     int    `json:"lag_days,omitempty" yaml:"lag_days,omitempty"`
}

// readProjectFile decodes a .yaml/.yml or .json project file.
func readProjectFile(path string) (*scheduler.Project, []*scheduler.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var pf projectFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &pf)
	default:
		err = json.Unmarshal(data, &pf)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return pf.convert()
}

func (pf *projectFile) convert() (*scheduler.Project, []*scheduler.Task, error) {
	if pf.Project.ID == "" {
		return nil, nil, fmt.Errorf("project id is required")
	}
	start, err := optionalDate(pf.Project.Start)
	if err != nil {
		return nil, nil, fmt.Errorf("project start: %w", err)
	}
	project := &scheduler.Project{ID: pf.Project.ID, Name: pf.Project.Name, StartDate: start}

	tasks := make([]*scheduler.Task, 0, len(pf.Tasks))
	for _, ft := range pf.Tasks {
		task, err := ft.convert(project.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("task %q: %w", ft.ID, err)
		}
		tasks = append(tasks, task)
	}
	return project, tasks, nil
}

func (ft fileTask) convert(projectID string) (*scheduler.Task, error) {
	task := &scheduler.Task{
		ID:           ft.ID,
		ProjectID:    projectID,
		Name:         ft.Name,
		CalendarID:   ft.Calendar,
		DurationDays: ft.DurationDays,
		EffortHours:  ft.EffortHours,
	}

	var err error
	if ft.Mode != "" {
		if task.Mode, err = scheduler.ParseSchedulingMode(ft.Mode); err != nil {
			return nil, err
		}
	}
	if task.Start, err = optionalDate(ft.Start); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	if task.End, err = optionalDate(ft.End); err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}

	for _, fd := range ft.DependsOn {
		dep := scheduler.Dependency{PredecessorID: fd.Predecessor, LagDays: fd.LagDays}
		if fd.Type != "" {
			if dep.Type, err = scheduler.ParseDependencyType(fd.Type); err != nil {
				return nil, err
			}
		}
		task.Dependencies = append(task.Dependencies, dep)
	}
	return task, nil
}

func optionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return calendar.ParseDate(s)
}
