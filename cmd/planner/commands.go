package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/aristath/planner/internal/calendar"
	"github.com/aristath/planner/internal/events"
	"github.com/aristath/planner/internal/recompute"
	"github.com/aristath/planner/internal/scheduler"
	"github.com/aristath/planner/internal/tui"
)

func cmdImport(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("import", stderr)
	file := fs.String("file", "", "project file (.yaml, .yml or .json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	project, tasks, err := readProjectFile(*file)
	if err != nil {
		return err
	}

	e, err := setup(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.store.SaveProject(ctx, project); err != nil {
		return err
	}
	// Rows first so every predecessor exists, then the edges.
	for _, task := range tasks {
		bare := *task
		bare.Dependencies = nil
		if err := e.store.SaveTask(ctx, &bare); err != nil {
			return err
		}
	}
	for _, task := range tasks {
		if len(task.Dependencies) == 0 {
			continue
		}
		if err := e.store.SaveTask(ctx, task); err != nil {
			return err
		}
	}
	e.log.Info().Str("project", project.ID).Int("tasks", len(tasks)).Msg("project imported")

	c := recompute.New(e.store, e.engine, nil, e.log, recompute.OptionsFromConfig(e.cfg.Recompute))
	defer c.Close()
	res, err := c.Recompute(ctx, project.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "imported %d tasks into %s\n", len(tasks), project.ID)
	printSchedule(stdout, res.Schedule)
	return nil
}

func cmdSchedule(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("schedule", stderr)
	projectID := fs.String("project", "", "project id")
	bestEffort := fs.Bool("best-effort", false, "override recompute.strict from config; non-strict runs already fall back to best-effort")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *projectID == "" {
		return errors.New("-project is required")
	}

	e, err := setup(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	opts := recompute.OptionsFromConfig(e.cfg.Recompute)
	if *bestEffort {
		opts.Strict = false
	}
	c := recompute.New(e.store, e.engine, nil, e.log, opts)
	defer c.Close()

	res, err := c.Recompute(ctx, *projectID)
	if err != nil {
		return err
	}
	if !res.Strict {
		fmt.Fprintln(stdout, "validation failed; best-effort schedule written")
	}
	printSchedule(stdout, res.Schedule)
	return nil
}

// printSchedule writes one row per task in evaluation order, then the skipped tasks.
func printSchedule(w io.Writer, s *scheduler.Schedule) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tNAME\tMODE\tSTART\tEND\tDAYS\tHOURS")

	skipped := make(map[string]bool, len(s.Skipped))
	for _, sk := range s.Skipped {
		skipped[sk.TaskID] = true
	}
	for _, id := range s.Order {
		task, ok := s.Task(id)
		if !ok || skipped[id] {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%.1f\n",
			task.ID, task.Name, task.Mode, formatDate(task.Start), formatDate(task.End), task.DurationDays, task.EffortHours)
	}
	tw.Flush()

	for _, sk := range s.Skipped {
		fmt.Fprintf(w, "skipped %s: %v\n", sk.TaskID, sk.Err)
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(calendar.DateLayout)
}

func cmdValidateEdge(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("validate-edge", stderr)
	projectID := fs.String("project", "", "project id")
	from := fs.String("from", "", "predecessor task id")
	to := fs.String("to", "", "successor task id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *projectID == "" || *from == "" || *to == "" {
		return errors.New("-project, -from and -to are required")
	}

	e, err := setup(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	tasks, err := e.store.ListTasks(ctx, *projectID)
	if err != nil {
		return err
	}

	if err := scheduler.ValidateNewEdge(tasks, *from, *to); err != nil {
		var cycle *scheduler.CyclicDependencyError
		var self *scheduler.SelfDependencyError
		if errors.As(err, &cycle) || errors.As(err, &self) {
			fmt.Fprintf(stdout, "REJECTED %s -> %s: %v\n", *from, *to, err)
			return errRejected
		}
		return err
	}
	fmt.Fprintf(stdout, "OK %s -> %s\n", *from, *to)
	return nil
}

func cmdCalendars(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("calendars", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := setup(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	for _, id := range e.calendars.IDs() {
		cal, _ := e.calendars.Resolve(id)
		if err := e.store.SaveCalendar(ctx, cal); err != nil {
			return err
		}
	}
	stored, err := e.store.ListCalendars(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tWEEKDAYS\tHOURS\tHOLIDAYS\tDEFAULT")
	for _, cal := range stored {
		var weekdays []string
		for _, wd := range cal.Weekdays() {
			weekdays = append(weekdays, time.Weekday(wd % 7).String()[:3])
		}
		isDefault := ""
		if cal.ID == e.calendars.DefaultID() {
			isDefault = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%d\t%s\n",
			cal.ID, cal.Name, strings.Join(weekdays, ","), cal.HoursPerDay, len(cal.Holidays()), isDefault)
	}
	return tw.Flush()
}

func cmdWatch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("watch", stderr)
	sweep := fs.String("sweep", "", "cron spec for periodic full recompute (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := setup(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	c := recompute.New(e.store, e.engine, nil, e.log, recompute.OptionsFromConfig(e.cfg.Recompute))
	defer c.Close()

	if _, err := c.RecomputeAll(ctx); err != nil {
		e.log.Warn().Err(err).Msg("initial recompute finished with errors")
	}

	spec := e.cfg.Recompute.SweepCron
	if *sweep != "" {
		spec = *sweep
	}
	if spec != "" {
		if err := c.StartSweep(spec); err != nil {
			return err
		}
	}

	if err := c.WatchConfig(ctx, e.globalPath, e.projectPath); err != nil {
		e.log.Warn().Err(err).Msg("config watch unavailable")
		<-ctx.Done()
	}
	e.log.Info().Msg("shutdown complete")
	return nil
}

func cmdView(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("view", stderr)
	projectID := fs.String("project", "", "project id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *projectID == "" {
		return errors.New("-project is required")
	}

	e, err := setup(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	// The TUI owns the terminal; keep logs out of it.
	e.log = zerolog.Nop()
	e.engine = scheduler.NewEngine(e.calendars, scheduler.WithLogger(e.log))

	bus := events.NewEventBus()
	defer bus.Close()

	c := recompute.New(e.store, e.engine, bus, e.log, recompute.OptionsFromConfig(e.cfg.Recompute))
	defer c.Close()

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go c.WatchConfig(watchCtx, e.globalPath, e.projectPath)

	recomputeProject := func() error {
		_, err := c.Recompute(ctx, *projectID)
		return err
	}
	model := tui.New(bus, *projectID, recomputeProject, e.cfg, e.globalPath, e.projectPath)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
