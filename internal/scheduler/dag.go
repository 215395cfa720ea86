package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gammazero/toposort"
)

// DAG indexes a snapshot of tasks by id together with the reverse edges.
// It is built per call and never shared, so it carries no lock.
type DAG struct {
	tasks      map[string]*Task    // All tasks indexed by ID
	ids        []string            // Insertion order, used for deterministic traversal
	dependents map[string][]string // Maps taskID -> list of tasks that depend on it
}

// NewDAG creates an empty DAG.
func NewDAG() *DAG {
	return &DAG{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// BuildDAG creates a DAG from tasks, failing on duplicate or empty ids.
func BuildDAG(tasks []*Task) (*DAG, error) {
	d := NewDAG()
	for _, task := range tasks {
		if err := d.AddTask(task); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// AddTask adds a task to the DAG. Returns error if task ID already exists.
func (d *DAG) AddTask(task *Task) error {
	if task == nil || task.ID == "" {
		return &ConfigurationError{Reason: "task without id"}
	}
	if _, exists := d.tasks[task.ID]; exists {
		return &ConfigurationError{TaskID: task.ID, Reason: "duplicate task id"}
	}

	d.tasks[task.ID] = task
	d.ids = append(d.ids, task.ID)

	// Build dependents map for efficient downstream lookup
	for _, dep := range task.Dependencies {
		d.dependents[dep.PredecessorID] = append(d.dependents[dep.PredecessorID], task.ID)
	}

	return nil
}

// Get returns task by ID.
func (d *DAG) Get(taskID string) (*Task, bool) {
	task, exists := d.tasks[taskID]
	return task, exists
}

// IDs returns task ids in insertion order.
func (d *DAG) IDs() []string {
	return append([]string(nil), d.ids...)
}

// CheckReferences verifies that every predecessor id names a task in the DAG.
func (d *DAG) CheckReferences() error {
	for _, id := range d.ids {
		for _, dep := range d.tasks[id].Dependencies {
			if _, exists := d.tasks[dep.PredecessorID]; !exists {
				return &ConfigurationError{
					TaskID: id,
					Reason: fmt.Sprintf("depends on non-existent task %q", dep.PredecessorID),
				}
			}
		}
	}
	return nil
}

// DetectCycles runs a depth-first search over predecessor -> successor edges,
// tracking the recursion stack, and returns each cycle found as an ordered
// list of task ids. Unknown predecessors are ignored here.
func (d *DAG) DetectCycles() [][]string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(d.ids))
	var stack []string
	var cycles [][]string

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		stack = append(stack, id)

		for _, next := range d.dependents[id] {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				// Back edge: the cycle is the stack suffix starting at next.
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == next {
						cycles = append(cycles, append([]string(nil), stack[i:]...))
						break
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range d.ids {
		if color[id] == white {
			visit(id)
		}
	}
	return cycles
}

// Validate checks references and cycles, then runs topological sort using
// gammazero/toposort. Returns ordered task IDs.
func (d *DAG) Validate() ([]string, error) {
	if err := d.CheckReferences(); err != nil {
		return nil, err
	}
	if cycles := d.DetectCycles(); len(cycles) > 0 {
		return nil, &CyclicDependencyError{Cycles: cycles}
	}

	// Build edges for topological sort
	var edges []toposort.Edge
	for _, taskID := range d.ids {
		task := d.tasks[taskID]
		if len(task.Dependencies) == 0 {
			// Task with no dependencies - add edge from nil to ensure it's included
			edges = append(edges, toposort.Edge{nil, taskID})
			continue
		}
		for _, dep := range task.Dependencies {
			// Edge (pred, task) means pred must come before task
			edges = append(edges, toposort.Edge{dep.PredecessorID, taskID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("topological sort: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	// Verify all tasks are in the sorted result
	if len(order) != len(d.tasks) {
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		var missing []string
		for _, taskID := range d.ids {
			if !found[taskID] {
				missing = append(missing, taskID)
			}
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// DetectCycles builds a DAG view over tasks and returns the cycles found.
// Duplicate ids keep their first occurrence.
func DetectCycles(tasks []*Task) [][]string {
	d := NewDAG()
	for _, task := range tasks {
		_ = d.AddTask(task)
	}
	return d.DetectCycles()
}

// ValidateNewEdge reports whether making toID depend on fromID keeps the
// graph acyclic. It returns nil on success, *SelfDependencyError for
// fromID == toID, *ConfigurationError for unknown ids and
// *CyclicDependencyError carrying the cycles the edge would create.
func ValidateNewEdge(tasks []*Task, fromID, toID string) error {
	if fromID == toID {
		return &SelfDependencyError{TaskID: fromID}
	}

	augmented := make([]*Task, 0, len(tasks))
	var foundFrom, foundTo bool
	for _, task := range tasks {
		switch task.ID {
		case fromID:
			foundFrom = true
		case toID:
			foundTo = true
			task = cloneTask(task)
			task.Dependencies = append(task.Dependencies, Dependency{PredecessorID: fromID, Type: FinishToStart})
		}
		augmented = append(augmented, task)
	}
	if !foundFrom {
		return &ConfigurationError{TaskID: toID, Reason: fmt.Sprintf("unknown predecessor %q", fromID)}
	}
	if !foundTo {
		return &ConfigurationError{TaskID: toID, Reason: "unknown task"}
	}

	if cycles := DetectCycles(augmented); len(cycles) > 0 {
		return &CyclicDependencyError{Cycles: cycles}
	}
	return nil
}
