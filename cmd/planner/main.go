package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/aristath/planner/internal/calendar"
	"github.com/aristath/planner/internal/config"
	"github.com/aristath/planner/internal/logging"
	"github.com/aristath/planner/internal/persistence"
	"github.com/aristath/planner/internal/scheduler"
)

const usage = `usage: planner <command> [flags]

commands:
  import         load a project file (YAML or JSON) into the store
  schedule       recompute a project and print its schedule
  validate-edge  check whether adding a dependency would create a cycle
  calendars      list the configured calendars
  watch          recompute on a schedule and on config changes
  view           interactive schedule viewer

Run 'planner <command> -h' for command flags.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type command func(ctx context.Context, args []string, stdout, stderr io.Writer) error

var commands = map[string]command{
	"import":        cmdImport,
	"schedule":      cmdSchedule,
	"validate-edge": cmdValidateEdge,
	"calendars":     cmdCalendars,
	"watch":         cmdWatch,
	"view":          cmdView,
}

// errRejected signals a negative answer that was already printed.
var errRejected = errors.New("rejected")

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	err := cmd(ctx, args[1:], stdout, stderr)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errRejected):
		return 1
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath string
	dbPath     string
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := &commonFlags{}
	fs.StringVar(&common.configPath, "config", "", "project config file (default .planner/config.json)")
	fs.StringVar(&common.dbPath, "db", "", "database path (overrides config)")
	return fs, common
}

// env is the loaded configuration and everything built from it.
type env struct {
	cfg         *config.PlannerConfig
	globalPath  string
	projectPath string
	log         zerolog.Logger
	calendars   *calendar.Registry
	engine      *scheduler.Engine
	store       *persistence.SQLiteStore
}

func setup(ctx context.Context, common *commonFlags, stderr io.Writer) (*env, error) {
	globalPath, projectPath, err := config.DefaultPaths()
	if err != nil {
		return nil, err
	}
	if common.configPath != "" {
		projectPath = common.configPath
	}

	cfg, err := config.Load(globalPath, projectPath)
	if err != nil {
		return nil, err
	}
	if common.dbPath != "" {
		cfg.Database = common.dbPath
	}

	log := logging.NewWithWriter(cfg.Log, stderr)
	reg, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("calendars: %w", err)
	}

	store, err := persistence.NewSQLiteStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("db", cfg.Database).Strs("calendars", reg.IDs()).Msg("environment ready")
	return &env{
		cfg:         cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
		log:         log,
		calendars:   reg,
		engine:      scheduler.NewEngine(reg, scheduler.WithLogger(log)),
		store:       store,
	}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}
