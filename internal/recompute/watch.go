package recompute

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aristath/planner/internal/config"
	"github.com/aristath/planner/internal/scheduler"
)

// WatchConfig reloads calendars whenever one of the config files changes,
// swaps in a fresh engine and recomputes every project. It blocks until ctx
// is cancelled. Paths whose directory does not exist are ignored; at least
// one must be watchable. A config that fails to load or produces an invalid
// calendar set is logged and the current engine is kept.
func (c *Coordinator) WatchConfig(ctx context.Context, globalPath, projectPath string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	watched := map[string]bool{}
	for _, path := range []string{globalPath, projectPath} {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		dir := filepath.Dir(abs)
		if _, err := os.Stat(dir); err != nil {
			c.log.Debug().Str("dir", dir).Msg("config directory missing, not watching")
			continue
		}
		if err := w.Add(dir); err != nil {
			c.log.Warn().Err(err).Str("dir", dir).Msg("config watch add failed")
			continue
		}
		watched[abs] = true
	}
	if len(watched) == 0 {
		return errors.New("no config directory could be watched")
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(c.opts.Debounce, func() {
			if err := c.reloadConfig(ctx, globalPath, projectPath); err != nil {
				c.log.Warn().Err(err).Msg("config reload failed, keeping current calendars")
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	c.log.Info().Int("files", len(watched)).Msg("watching config")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("config watcher closed")
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !watched[abs] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				c.log.Debug().Str("path", abs).Str("op", ev.Op.String()).Msg("config change detected")
				reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("config watcher closed")
			}
			c.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (c *Coordinator) reloadConfig(ctx context.Context, globalPath, projectPath string) error {
	cfg, err := config.Load(globalPath, projectPath)
	if err != nil {
		return err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}

	c.SetEngine(scheduler.NewEngine(reg, scheduler.WithLogger(c.log)))
	c.log.Info().Strs("calendars", reg.IDs()).Str("default", reg.DefaultID()).Msg("calendars reloaded")

	if _, err := c.RecomputeAll(ctx); err != nil && ctx.Err() == nil {
		c.log.Warn().Err(err).Msg("recompute after reload finished with errors")
	}
	return nil
}
