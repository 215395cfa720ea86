package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/aristath/planner/internal/calendar"
	"github.com/aristath/planner/internal/scheduler"
)

// testStore creates an in-memory store for testing and registers cleanup.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func seedProject(t *testing.T, store *SQLiteStore, id string) *scheduler.Project {
	t.Helper()
	project := &scheduler.Project{ID: id, Name: "Project " + id, StartDate: calendar.Date(2025, time.January, 6)}
	if err := store.SaveProject(context.Background(), project); err != nil {
		t.Fatalf("failed to save project: %v", err)
	}
	return project
}

func TestSaveAndGetProject(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	want := seedProject(t, store, "p1")
	got, err := store.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("failed to get project: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("project mismatch: got %+v, want %+v", got, want)
	}

	if _, err := store.GetProject(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	seedProject(t, store, "p0")
	projects, err := store.ListProjects(ctx)
	if err != nil {
		t.Fatalf("failed to list projects: %v", err)
	}
	if len(projects) != 2 || projects[0].ID != "p0" || projects[1].ID != "p1" {
		t.Errorf("unexpected project list: %+v", projects)
	}

	if err := store.SaveProject(ctx, &scheduler.Project{ID: "nostart"}); err == nil {
		t.Error("expected error saving project without start date")
	}
}

func TestSaveAndGetTask(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	seedProject(t, store, "p1")

	// Save dependencies first (to satisfy foreign key constraints)
	for _, id := range []string{"dep-1", "dep-2"} {
		if err := store.SaveTask(ctx, &scheduler.Task{ID: id, ProjectID: "p1", Name: id}); err != nil {
			t.Fatalf("failed to save %s: %v", id, err)
		}
	}

	task := &scheduler.Task{
		ID:        "task-1",
		ProjectID: "p1",
		Name:      "Test Task",
		Dependencies: []scheduler.Dependency{
			{PredecessorID: "dep-2", Type: scheduler.StartToStart, LagDays: 2},
			{PredecessorID: "dep-1", Type: scheduler.FinishToStart, LagDays: -1},
		},
		Mode:         scheduler.Manual,
		CalendarID:   "six-day",
		Start:        calendar.Date(2025, time.January, 7),
		End:          calendar.Date(2025, time.January, 9),
		DurationDays: 3,
		EffortHours:  18.5,
	}
	if err := store.SaveTask(ctx, task); err != nil {
		t.Fatalf("failed to save task: %v", err)
	}

	retrieved, err := store.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if !reflect.DeepEqual(retrieved, task) {
		t.Errorf("task mismatch:\n got %+v\nwant %+v", retrieved, task)
	}

	if _, err := store.GetTask(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveTaskIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	seedProject(t, store, "p1")

	task := &scheduler.Task{ID: "task-idempotent", ProjectID: "p1", Name: "Idempotent Task", DurationDays: 1}
	if err := store.SaveTask(ctx, task); err != nil {
		t.Fatalf("failed to save task: %v", err)
	}

	task.DurationDays = 4
	task.Name = "Renamed"
	if err := store.SaveTask(ctx, task); err != nil {
		t.Fatalf("failed to save task second time: %v", err)
	}

	retrieved, err := store.GetTask(ctx, "task-idempotent")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if retrieved.DurationDays != 4 || retrieved.Name != "Renamed" {
		t.Errorf("update not applied: %+v", retrieved)
	}
}

func TestSaveTaskMissingPredecessor(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	seedProject(t, store, "p1")

	task := &scheduler.Task{
		ID:           "orphan",
		ProjectID:    "p1",
		Dependencies: []scheduler.Dependency{{PredecessorID: "ghost"}},
	}
	err := store.SaveTask(ctx, task)
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("expected foreign key error mentioning ghost, got %v", err)
	}

	// The transaction rolled back, so the task itself is absent too.
	if _, err := store.GetTask(ctx, "orphan"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected rolled back task, got %v", err)
	}
}

func TestSaveTaskRepeatedPredecessor(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	seedProject(t, store, "p1")

	if err := store.SaveTask(ctx, &scheduler.Task{ID: "a", ProjectID: "p1"}); err != nil {
		t.Fatalf("failed to save a: %v", err)
	}
	task := &scheduler.Task{
		ID:        "b",
		ProjectID: "p1",
		Dependencies: []scheduler.Dependency{
			{PredecessorID: "a", Type: scheduler.StartToStart, LagDays: 1},
			{PredecessorID: "a", Type: scheduler.FinishToFinish},
		},
	}
	if err := store.SaveTask(ctx, task); err != nil {
		t.Fatalf("failed to save task with two edges from one predecessor: %v", err)
	}

	got, err := store.GetTask(ctx, "b")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if !reflect.DeepEqual(got.Dependencies, task.Dependencies) {
		t.Errorf("dependencies = %+v, want %+v", got.Dependencies, task.Dependencies)
	}
}

func TestListTasks(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	seedProject(t, store, "p1")
	seedProject(t, store, "p2")

	tasks := []*scheduler.Task{
		{ID: "a", ProjectID: "p1"},
		{ID: "b", ProjectID: "p1", Dependencies: []scheduler.Dependency{{PredecessorID: "a"}}},
		{ID: "c", ProjectID: "p1", Dependencies: []scheduler.Dependency{
			{PredecessorID: "b", Type: scheduler.FinishToFinish},
			{PredecessorID: "a", Type: scheduler.StartToFinish, LagDays: 3},
		}},
		{ID: "other", ProjectID: "p2"},
	}
	for _, task := range tasks {
		if err := store.SaveTask(ctx, task); err != nil {
			t.Fatalf("failed to save %s: %v", task.ID, err)
		}
	}

	listed, err := store.ListTasks(ctx, "p1")
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("listed %d tasks, want 3", len(listed))
	}
	for i, id := range []string{"a", "b", "c"} {
		if listed[i].ID != id {
			t.Errorf("listed[%d] = %s, want %s", i, listed[i].ID, id)
		}
	}
	if !reflect.DeepEqual(listed[2].Dependencies, tasks[2].Dependencies) {
		t.Errorf("dependencies of c = %+v, want %+v", listed[2].Dependencies, tasks[2].Dependencies)
	}
}

func TestDeleteTaskCascadesDependencies(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	seedProject(t, store, "p1")

	store.SaveTask(ctx, &scheduler.Task{ID: "a", ProjectID: "p1"})
	store.SaveTask(ctx, &scheduler.Task{ID: "b", ProjectID: "p1", Dependencies: []scheduler.Dependency{{PredecessorID: "a"}}})

	if err := store.DeleteTask(ctx, "a"); err != nil {
		t.Fatalf("failed to delete task: %v", err)
	}
	b, err := store.GetTask(ctx, "b")
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if len(b.Dependencies) != 0 {
		t.Errorf("expected dependency on deleted task to be removed, got %+v", b.Dependencies)
	}
	if err := store.DeleteTask(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCalendars(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	holidays := []time.Time{calendar.Date(2025, time.December, 25), calendar.Date(2025, time.January, 1)}
	cal, err := calendar.New("uk", []int{1, 2, 3, 4, 5}, 7.5, holidays)
	if err != nil {
		t.Fatalf("calendar.New failed: %v", err)
	}
	cal.Name = "UK office"
	if err := store.SaveCalendar(ctx, cal); err != nil {
		t.Fatalf("failed to save calendar: %v", err)
	}
	if err := store.SaveCalendar(ctx, calendar.Standard("standard")); err != nil {
		t.Fatalf("failed to save calendar: %v", err)
	}

	cals, err := store.ListCalendars(ctx)
	if err != nil {
		t.Fatalf("failed to list calendars: %v", err)
	}
	if len(cals) != 2 || cals[0].ID != "standard" || cals[1].ID != "uk" {
		t.Fatalf("unexpected calendars: %+v", cals)
	}
	uk := cals[1]
	if uk.Name != "UK office" || uk.HoursPerDay != 7.5 {
		t.Errorf("calendar fields mismatch: %+v", uk)
	}
	if !reflect.DeepEqual(uk.Weekdays(), []int{1, 2, 3, 4, 5}) {
		t.Errorf("weekdays = %v", uk.Weekdays())
	}
	if uk.IsWorkingDay(calendar.Date(2025, time.December, 25)) {
		t.Error("holiday was not persisted")
	}
	if len(uk.Holidays()) != 2 {
		t.Errorf("holidays = %v, want 2", uk.Holidays())
	}
}

func TestApplySchedule(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	project := seedProject(t, store, "p1")

	manual := &scheduler.Task{
		ID: "m", ProjectID: "p1", Mode: scheduler.Manual,
		Start: calendar.Date(2025, time.February, 3), End: calendar.Date(2025, time.February, 4), DurationDays: 2,
	}
	for _, task := range []*scheduler.Task{
		{ID: "a", ProjectID: "p1", DurationDays: 2},
		manual,
		{ID: "b", ProjectID: "p1", Dependencies: []scheduler.Dependency{{PredecessorID: "a"}}},
	} {
		if err := store.SaveTask(ctx, task); err != nil {
			t.Fatalf("failed to save %s: %v", task.ID, err)
		}
	}

	tasks, err := store.ListTasks(ctx, "p1")
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	schedule := scheduler.NewEngine(nil).ScheduleProject(tasks, project.StartDate)

	n, err := store.ApplySchedule(ctx, "p1", schedule)
	if err != nil {
		t.Fatalf("ApplySchedule failed: %v", err)
	}
	if n != 2 {
		t.Errorf("updated %d rows, want 2", n)
	}

	b, _ := store.GetTask(ctx, "b")
	if !b.Start.Equal(calendar.Date(2025, time.January, 8)) || b.DurationDays != 1 || b.EffortHours != 8 {
		t.Errorf("b not written back: %+v", b)
	}
	m, _ := store.GetTask(ctx, "m")
	if !reflect.DeepEqual(m, manual) {
		t.Errorf("manual task changed: got %+v, want %+v", m, manual)
	}
}

func TestNewSQLiteStoreCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "planner.db")
	store, err := NewSQLiteStore(context.Background(), path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	seedProject(t, store, "p1")
	if _, err := store.GetProject(context.Background(), "p1"); err != nil {
		t.Errorf("GetProject on file store failed: %v", err)
	}
}
