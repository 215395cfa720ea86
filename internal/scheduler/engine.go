package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/planner/internal/calendar"
)

// Engine computes task dates against its own calendar registry. An Engine
// holds no per-run state and may be shared by concurrent callers.
type Engine struct {
	calendars *calendar.Registry
	log       zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine creates an engine. A nil registry falls back to the standard calendar.
func NewEngine(calendars *calendar.Registry, opts ...Option) *Engine {
	if calendars == nil {
		calendars = calendar.DefaultRegistry()
	}
	e := &Engine{
		calendars: calendars,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calendars returns the engine's calendar registry.
func (e *Engine) Calendars() *calendar.Registry {
	return e.calendars
}

// Schedule is the result of one scheduling pass. Tasks holds copies of the
// input tasks, in input order, with computed dates on Automatic tasks.
// Later occurrences of a repeated id are left out of Tasks and listed in
// Duplicates; the first occurrence is scheduled as usual.
type Schedule struct {
	ProjectStart time.Time
	Order        []string // Evaluation order; predecessors always come first
	Tasks        []*Task
	States       map[string]TaskState // Automatic tasks only
	Skipped      []SkippedTask
	Duplicates   []SkippedTask

	byID map[string]*Task
}

// Task returns the computed copy of a task.
func (s *Schedule) Task(id string) (*Task, bool) {
	task, ok := s.byID[id]
	return task, ok
}

// SkipReason returns why a task was skipped, or nil if it was not.
func (s *Schedule) SkipReason(id string) error {
	for _, skipped := range s.Skipped {
		if skipped.TaskID == id {
			return skipped.Err
		}
	}
	return nil
}

// Computed returns the Automatic tasks that reached DurationReconciled.
func (s *Schedule) Computed() []*Task {
	var out []*Task
	for _, task := range s.Tasks {
		if task.Mode == Automatic && s.States[task.ID] == DurationReconciled {
			out = append(out, task)
		}
	}
	return out
}

// Apply writes computed dates onto the matching caller-owned tasks. Manual
// and skipped tasks are left alone, as is every task after the first with a
// given id. Callers sharing tasks between goroutines
// must serialize Apply themselves.
func (s *Schedule) Apply(tasks []*Task) {
	seen := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		if task == nil || seen[task.ID] {
			continue
		}
		seen[task.ID] = true
		if task.Mode != Automatic {
			continue
		}
		computed, ok := s.byID[task.ID]
		if !ok || s.States[task.ID] != DurationReconciled {
			continue
		}
		task.Start = computed.Start
		task.End = computed.End
		task.DurationDays = computed.DurationDays
		task.EffortHours = computed.EffortHours
	}
}

// ScheduleProject computes dates for every Automatic task without validating
// the graph first. Tasks that cannot be scheduled (cycles, unknown calendars
// or predecessors, broken calendars) and everything downstream of them are
// reported in Schedule.Skipped; all other tasks are still scheduled. Repeated
// ids keep their first occurrence. The input tasks are not modified.
func (e *Engine) ScheduleProject(tasks []*Task, projectStart time.Time) *Schedule {
	r := e.newRun(tasks, projectStart)

	for _, id := range r.ids {
		_ = r.resolve(id)
	}

	return r.finish()
}

// ValidateAndScheduleProject rejects invalid input before computing any
// date: duplicate ids, unknown predecessors or calendars, calendars without
// working days and dependency cycles. On success every Automatic task is
// scheduled in topological order.
func (e *Engine) ValidateAndScheduleProject(tasks []*Task, projectStart time.Time) (*Schedule, error) {
	if projectStart.IsZero() {
		return nil, &ConfigurationError{Reason: "project start date not set"}
	}

	dag, err := BuildDAG(tasks)
	if err != nil {
		return nil, err
	}
	order, err := dag.Validate()
	if err != nil {
		return nil, err
	}
	for _, id := range dag.IDs() {
		task, _ := dag.Get(id)
		if task.Mode != Automatic {
			continue
		}
		if _, err := e.calendarFor(task); err != nil {
			return nil, err
		}
	}

	r := e.newRun(tasks, projectStart)
	for _, id := range order {
		if err := r.resolve(id); err != nil {
			return nil, err
		}
	}
	return r.finish(), nil
}

func (e *Engine) calendarFor(task *Task) (*calendar.Calendar, error) {
	cal, err := e.calendars.Resolve(task.CalendarID)
	if err != nil {
		return nil, &ConfigurationError{TaskID: task.ID, Reason: "resolving calendar", Err: err}
	}
	if err := cal.Validate(); err != nil {
		return nil, &ConfigurationError{TaskID: task.ID, Reason: "invalid calendar", Err: err}
	}
	return cal, nil
}

// run holds the mutable state of one scheduling pass.
type run struct {
	engine       *Engine
	projectStart time.Time

	ids        []string
	byID       map[string]*Task
	tasks      []*Task
	duplicates []string

	states     map[string]TaskState
	inProgress map[string]bool
	stack      []string
	done       map[string]bool
	failed     map[string]error
	order      []string
}

func (e *Engine) newRun(tasks []*Task, projectStart time.Time) *run {
	r := &run{
		engine:       e,
		projectStart: projectStart,
		byID:         make(map[string]*Task, len(tasks)),
		states:       make(map[string]TaskState),
		inProgress:   make(map[string]bool),
		done:         make(map[string]bool),
		failed:       make(map[string]error),
	}
	if !projectStart.IsZero() {
		r.projectStart = calendar.Normalize(projectStart)
	}

	for _, task := range tasks {
		if task == nil {
			continue
		}
		if _, exists := r.byID[task.ID]; exists {
			r.duplicates = append(r.duplicates, task.ID)
			continue
		}
		cp := cloneTask(task)
		r.tasks = append(r.tasks, cp)
		r.byID[cp.ID] = cp
		r.ids = append(r.ids, cp.ID)
		if cp.Mode == Automatic {
			r.states[cp.ID] = Unscheduled
		}
	}
	return r
}

func (r *run) fail(id string, err error) {
	if _, already := r.failed[id]; !already {
		r.failed[id] = err
	}
}

// resolve makes sure the task's dates are final, computing its predecessors
// first. A task revisited while still in progress closes a cycle.
func (r *run) resolve(id string) error {
	if err, failed := r.failed[id]; failed {
		return err
	}
	if r.done[id] {
		return nil
	}

	task := r.byID[id]
	if task.Mode == Manual {
		r.done[id] = true
		r.order = append(r.order, id)
		return nil
	}

	if r.inProgress[id] {
		for i := len(r.stack) - 1; i >= 0; i-- {
			if r.stack[i] == id {
				return &CyclicDependencyError{Cycles: [][]string{reversed(r.stack[i:])}}
			}
		}
		return &CyclicDependencyError{Cycles: [][]string{{id}}}
	}

	r.inProgress[id] = true
	r.stack = append(r.stack, id)
	err := r.computeTaskDates(task)
	r.stack = r.stack[:len(r.stack)-1]
	delete(r.inProgress, id)

	if err != nil {
		r.fail(id, err)
		return r.failed[id]
	}
	r.done[id] = true
	r.order = append(r.order, id)
	return nil
}

// computeTaskDates walks the task through StartComputed, EndComputed and
// DurationReconciled, then writes the results onto the run's copy.
func (r *run) computeTaskDates(task *Task) error {
	cal, err := r.engine.calendarFor(task)
	if err != nil {
		return err
	}

	start, err := r.computeStart(task, cal)
	if err != nil {
		return err
	}
	r.states[task.ID] = StartComputed

	duration := task.DurationDays
	if duration <= 0 && task.EffortHours > 0 {
		duration = cal.HoursToDays(task.EffortHours)
	}
	if duration <= 0 {
		duration = 1
	}
	end, err := cal.AddWorkingDays(start, duration-1)
	if err != nil {
		return &ConfigurationError{TaskID: task.ID, Reason: "computing end date", Err: err}
	}
	r.states[task.ID] = EndComputed

	// End is inclusive, so count through the day after it.
	task.DurationDays = cal.CountWorkingDaysBetween(start, end.AddDate(0, 0, 1))
	if task.EffortHours <= 0 {
		task.EffortHours = cal.DaysToHours(task.DurationDays)
	}
	task.Start = start
	task.End = end
	r.states[task.ID] = DurationReconciled
	return nil
}

func (r *run) computeStart(task *Task, cal *calendar.Calendar) (time.Time, error) {
	var latest time.Time
	constrained := false

	for _, dep := range task.Dependencies {
		if dep.PredecessorID == task.ID {
			return time.Time{}, &SelfDependencyError{TaskID: task.ID}
		}
		pred, ok := r.byID[dep.PredecessorID]
		if !ok {
			return time.Time{}, &ConfigurationError{
				TaskID: task.ID,
				Reason: fmt.Sprintf("depends on non-existent task %q", dep.PredecessorID),
			}
		}
		if err := r.resolve(pred.ID); err != nil {
			return time.Time{}, r.predecessorError(task.ID, pred.ID, err)
		}

		candidate, ok, err := candidateStart(pred, dep, cal)
		if err != nil {
			return time.Time{}, &ConfigurationError{TaskID: task.ID, Reason: "applying dependency", Err: err}
		}
		if !ok {
			continue
		}
		if !constrained || candidate.After(latest) {
			latest = candidate
			constrained = true
		}
	}

	if !constrained {
		if r.projectStart.IsZero() {
			return time.Time{}, &ConfigurationError{TaskID: task.ID, Reason: "project start date not set"}
		}
		latest = r.projectStart
	}

	start, err := cal.NextWorkingDay(latest)
	if err != nil {
		return time.Time{}, &ConfigurationError{TaskID: task.ID, Reason: "snapping start date", Err: err}
	}
	return start, nil
}

// predecessorError keeps a cycle error as-is for tasks on the cycle and wraps
// it for tasks that are merely downstream of it.
func (r *run) predecessorError(taskID, predID string, err error) error {
	var cyclic *CyclicDependencyError
	if errors.As(err, &cyclic) {
		for _, cycle := range cyclic.Cycles {
			for _, id := range cycle {
				if id == taskID {
					return cyclic
				}
			}
		}
	}
	return fmt.Errorf("predecessor %q of task %q cannot be scheduled: %w", predID, taskID, err)
}

// candidateStart derives the start constraint one dependency places on its
// successor. The second result is false when the predecessor has no dates
// (an unscheduled Manual task) and therefore imposes no constraint.
func candidateStart(pred *Task, dep Dependency, cal *calendar.Calendar) (time.Time, bool, error) {
	var candidate time.Time
	switch dep.Type {
	case FinishToStart:
		if pred.End.IsZero() {
			return time.Time{}, false, nil
		}
		next, err := cal.AddWorkingDays(pred.End, 1)
		if err != nil {
			return time.Time{}, false, err
		}
		candidate = next
	case StartToStart:
		candidate = pred.Start
	case FinishToFinish:
		// Constrains the successor's start, not its finish.
		candidate = pred.End
	case StartToFinish:
		// Constrains the successor's start, not its finish.
		candidate = pred.Start
	default:
		return time.Time{}, false, fmt.Errorf("unknown dependency type %v", dep.Type)
	}
	if candidate.IsZero() {
		return time.Time{}, false, nil
	}

	if dep.LagDays != 0 {
		lagged, err := cal.AddWorkingDays(candidate, dep.LagDays)
		if err != nil {
			return time.Time{}, false, err
		}
		candidate = lagged
	}
	return candidate, true, nil
}

func (r *run) finish() *Schedule {
	s := &Schedule{
		ProjectStart: r.projectStart,
		Order:        r.order,
		Tasks:        r.tasks,
		States:       r.states,
		byID:         r.byID,
	}

	for _, id := range r.ids {
		if err, failed := r.failed[id]; failed {
			s.Skipped = append(s.Skipped, SkippedTask{TaskID: id, Err: err})
			r.engine.log.Warn().Str("task", id).Err(err).Msg("task skipped")
		}
	}
	for _, id := range r.duplicates {
		err := &ConfigurationError{TaskID: id, Reason: "duplicate task id"}
		s.Duplicates = append(s.Duplicates, SkippedTask{TaskID: id, Err: err})
		r.engine.log.Warn().Str("task", id).Msg("duplicate task id ignored")
	}

	r.engine.log.Debug().
		Int("tasks", len(r.tasks)).
		Int("scheduled", len(s.Computed())).
		Int("skipped", len(s.Skipped)).
		Time("project_start", r.projectStart).
		Msg("schedule computed")
	return s
}

// reversed turns a resolve stack segment, where successors are pushed before
// their predecessors, into predecessor -> successor order.
func reversed(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}
