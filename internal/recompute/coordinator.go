// Package recompute keeps stored schedules current. A Coordinator reruns the
// scheduling engine for a project whenever its tasks change, writes the
// computed dates back to the store and announces the outcome on the event bus.
package recompute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/aristath/planner/internal/config"
	"github.com/aristath/planner/internal/events"
	"github.com/aristath/planner/internal/persistence"
	"github.com/aristath/planner/internal/scheduler"
)

// ErrClosed is returned by operations on a closed Coordinator.
var ErrClosed = errors.New("recompute: coordinator closed")

// Options tunes a Coordinator.
type Options struct {
	Debounce     time.Duration // Triggers within this window coalesce into one run
	Concurrency  int           // Projects recomputed in parallel by RecomputeAll
	MaxPerSecond float64       // Global run rate; <= 0 means unlimited
	Strict       bool          // Report validation failures instead of falling back to best-effort
	Retry        RetryConfig
	BreakerOpen  time.Duration // How long the store breaker stays open
}

// OptionsFromConfig converts the recompute config section.
func OptionsFromConfig(cfg config.RecomputeConfig) Options {
	return Options{
		Debounce:     cfg.Debounce(),
		Concurrency:  cfg.Concurrency,
		MaxPerSecond: cfg.MaxPerSecond,
		Strict:       cfg.Strict,
		Retry:        DefaultRetryConfig(),
		BreakerOpen:  30 * time.Second,
	}
}

// Result describes one finished recompute run.
type Result struct {
	RunID     string
	ProjectID string
	Strict    bool // The validated pass succeeded; false means best-effort fallback
	Schedule  *scheduler.Schedule
	Updated   int
	Elapsed   time.Duration
}

// Coordinator runs recomputes against a store.
type Coordinator struct {
	store   persistence.Store
	engine  atomic.Pointer[scheduler.Engine]
	bus     *events.EventBus
	log     zerolog.Logger
	opts    Options
	locks   *ProjectLocks
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	timers   map[string]*time.Timer
	sweep    *cron.Cron
	closed   bool
	inflight sync.WaitGroup
}

// New creates a Coordinator. bus may be nil.
func New(store persistence.Store, engine *scheduler.Engine, bus *events.EventBus, log zerolog.Logger, opts Options) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Retry == (RetryConfig{}) {
		opts.Retry = DefaultRetryConfig()
	}
	if opts.BreakerOpen <= 0 {
		opts.BreakerOpen = 30 * time.Second
	}

	limit := rate.Inf
	if opts.MaxPerSecond > 0 {
		limit = rate.Limit(opts.MaxPerSecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	log = log.With().Str("component", "recompute").Logger()
	c := &Coordinator{
		store:   store,
		bus:     bus,
		log:     log,
		opts:    opts,
		locks:   NewProjectLocks(),
		limiter: rate.NewLimiter(limit, opts.Concurrency),
		breaker: newStoreBreaker(log, opts.BreakerOpen),
		ctx:     ctx,
		cancel:  cancel,
		timers:  make(map[string]*time.Timer),
	}
	if engine == nil {
		engine = scheduler.NewEngine(nil, scheduler.WithLogger(log))
	}
	c.engine.Store(engine)
	return c
}

// Engine returns the engine used by new runs.
func (c *Coordinator) Engine() *scheduler.Engine {
	return c.engine.Load()
}

// SetEngine swaps the engine used by subsequent runs. Runs already in
// progress finish with the engine they started with.
func (c *Coordinator) SetEngine(engine *scheduler.Engine) {
	if engine != nil {
		c.engine.Store(engine)
	}
}

// Recompute schedules one project and writes the result back.
//
// The validated pass runs first. If it fails and the coordinator is not
// strict, the best-effort pass is written instead and the validation error
// is logged. In strict mode the validation error is returned and nothing is
// written.
func (c *Coordinator) Recompute(ctx context.Context, projectID string) (*Result, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	c.locks.Lock(projectID)
	defer c.locks.Unlock(projectID)

	started := time.Now()
	runID := uuid.NewString()
	log := c.log.With().Str("project", projectID).Str("run", runID).Logger()

	res, err := c.run(ctx, log, runID, projectID)
	if err != nil {
		log.Error().Err(err).Msg("recompute failed")
		c.publish(events.ScheduleFailedEvent{RunID: runID, ProjectID: projectID, Err: err, Timestamp: time.Now()})
		return nil, err
	}
	res.Elapsed = time.Since(started)

	log.Info().
		Bool("strict", res.Strict).
		Int("scheduled", len(res.Schedule.Computed())).
		Int("skipped", len(res.Schedule.Skipped)).
		Int("updated", res.Updated).
		Dur("elapsed", res.Elapsed).
		Msg("schedule recomputed")
	c.announce(res)
	return res, nil
}

func (c *Coordinator) run(ctx context.Context, log zerolog.Logger, runID, projectID string) (*Result, error) {
	project, err := c.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tasks, err := c.store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}

	engine := c.engine.Load()
	res := &Result{RunID: runID, ProjectID: projectID, Strict: true}

	res.Schedule, err = engine.ValidateAndScheduleProject(tasks, project.StartDate)
	if err != nil {
		if c.opts.Strict {
			return nil, fmt.Errorf("project %s: %w", projectID, err)
		}
		log.Warn().Err(err).Msg("validation failed, falling back to best-effort")
		res.Schedule = engine.ScheduleProject(tasks, project.StartDate)
		res.Strict = false
	}

	res.Updated, err = applyWithRetry(ctx, c.store, projectID, res.Schedule, c.breaker, c.opts.Retry)
	if err != nil {
		return nil, fmt.Errorf("project %s: writing schedule: %w", projectID, err)
	}
	return res, nil
}

func (c *Coordinator) announce(res *Result) {
	if c.bus == nil {
		return
	}
	computed := res.Schedule.Computed()
	rows := make([]events.ScheduledTask, 0, len(computed))
	for _, task := range computed {
		row := events.ScheduledTask{
			TaskID:       task.ID,
			Name:         task.Name,
			Start:        task.Start,
			End:          task.End,
			DurationDays: task.DurationDays,
			EffortHours:  task.EffortHours,
		}
		rows = append(rows, row)
		c.bus.Publish(events.TaskScheduledEvent{
			RunID:        res.RunID,
			ProjectID:    res.ProjectID,
			TaskID:       row.TaskID,
			Name:         row.Name,
			Start:        row.Start,
			End:          row.End,
			DurationDays: row.DurationDays,
			EffortHours:  row.EffortHours,
		})
	}
	skipped := make([]events.UnscheduledTask, 0, len(res.Schedule.Skipped))
	for _, s := range res.Schedule.Skipped {
		skipped = append(skipped, events.UnscheduledTask{TaskID: s.TaskID, Reason: s.Err.Error()})
		c.bus.Publish(events.TaskSkippedEvent{
			RunID:     res.RunID,
			ProjectID: res.ProjectID,
			TaskID:    s.TaskID,
			Reason:    s.Err.Error(),
		})
	}
	c.bus.Publish(events.ScheduleComputedEvent{
		RunID:        res.RunID,
		ProjectID:    res.ProjectID,
		Strict:       res.Strict,
		Scheduled:    len(rows),
		Skipped:      len(skipped),
		Updated:      res.Updated,
		Tasks:        rows,
		SkippedTasks: skipped,
		Elapsed:      res.Elapsed,
		Timestamp:    time.Now(),
	})
}

func (c *Coordinator) publish(ev events.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

// Trigger schedules a recompute of projectID after the debounce window.
// Further triggers inside the window restart it, so a burst of edits
// produces a single run.
func (c *Coordinator) Trigger(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if t, ok := c.timers[projectID]; ok && t.Stop() {
		c.inflight.Done()
	}

	c.inflight.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(c.opts.Debounce, func() {
		defer c.inflight.Done()

		c.mu.Lock()
		if c.timers[projectID] == timer {
			delete(c.timers, projectID)
		}
		c.mu.Unlock()

		if _, err := c.Recompute(c.ctx, projectID); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrClosed) {
			c.log.Debug().Err(err).Str("project", projectID).Msg("triggered recompute failed")
		}
	})
	c.timers[projectID] = timer
}

// RecomputeAll recomputes every stored project, at most Concurrency at a
// time. A failing project does not stop the others; their errors are joined.
func (c *Coordinator) RecomputeAll(ctx context.Context) ([]*Result, error) {
	projects, err := c.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(projects))
	errs := make([]error, len(projects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, project := range projects {
		g.Go(func() error {
			res, err := c.Recompute(gctx, project.ID)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				errs[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*Result, 0, len(results))
	for _, res := range results {
		if res != nil {
			out = append(out, res)
		}
	}
	return out, errors.Join(errs...)
}

// StartSweep runs RecomputeAll on a cron schedule. Both five-field and
// six-field (with seconds) specs are accepted, plus descriptors like @hourly.
func (c *Coordinator) StartSweep(spec string) error {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sweep := cron.New(cron.WithParser(parser))

	_, err := sweep.AddFunc(spec, func() {
		if _, err := c.RecomputeAll(c.ctx); err != nil {
			c.log.Warn().Err(err).Msg("sweep finished with errors")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.sweep != nil {
		c.sweep.Stop()
	}
	c.sweep = sweep
	sweep.Start()
	c.log.Info().Str("spec", spec).Msg("sweep started")
	return nil
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close cancels pending triggers and the sweep, then waits for runs that
// already started. The store is not closed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, t := range c.timers {
		if t.Stop() {
			c.inflight.Done()
		}
		delete(c.timers, id)
	}
	sweep := c.sweep
	c.mu.Unlock()

	c.cancel()
	if sweep != nil {
		<-sweep.Stop().Done()
	}
	c.inflight.Wait()
}
