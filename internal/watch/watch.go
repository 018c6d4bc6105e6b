// Package watch triggers census runs when tile snapshots land in a
// directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"tilecensus.ai/internal/census"
)

const DefaultDebounce = 500 * time.Millisecond

var (
	ErrPathNotExist     = errors.New("watch path does not exist")
	ErrPathNotDirectory = errors.New("watch path is not a directory")
	ErrInvalidPattern   = errors.New("invalid pattern")
)

type Config struct {
	Dir      string
	Include  string
	Exclude  []string
	Debounce time.Duration
}

// Trigger starts one census run. *census.Runner satisfies it.
type Trigger interface {
	Run(ctx context.Context) (*census.Report, error)
}

type Watcher struct {
	cfg      Config
	trigger  Trigger
	log      *log.Logger
	include  glob.Glob
	excludes []glob.Glob

	wg sync.WaitGroup
}

func New(cfg Config, trigger Trigger, logger *log.Logger) (*Watcher, error) {
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPathNotExist, cfg.Dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrPathNotDirectory, cfg.Dir)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Include == "" {
		cfg.Include = "*"
	}

	inc, err := glob.Compile(cfg.Include)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, cfg.Include, err)
	}
	excludes := make([]glob.Glob, 0, len(cfg.Exclude))
	for _, p := range cfg.Exclude {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err)
		}
		excludes = append(excludes, g)
	}
	return &Watcher{
		cfg:      cfg,
		trigger:  trigger,
		log:      logger,
		include:  inc,
		excludes: excludes,
	}, nil
}

// Matches reports whether a file name should trigger a run.
func (w *Watcher) Matches(name string) bool {
	base := filepath.Base(name)
	for _, g := range w.excludes {
		if g.Match(base) {
			return false
		}
	}
	return w.include.Match(base)
}

// Run watches until ctx is done. Events are debounced; a trigger that lands
// while a run is still in flight is dropped.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.cfg.Dir); err != nil {
		return err
	}
	w.logf("watching %s (include=%s)", w.cfg.Dir, w.cfg.Include)

	timer := time.NewTimer(w.cfg.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	defer w.wg.Wait()

	var last string
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !w.Matches(ev.Name) {
				continue
			}
			last = ev.Name
			timer.Reset(w.cfg.Debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logf("watch error: %v", err)
		case <-timer.C:
			w.fire(ctx, last)
		}
	}
}

func (w *Watcher) fire(ctx context.Context, path string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		rep, err := w.trigger.Run(ctx)
		switch {
		case errors.Is(err, census.ErrBusy):
			w.logf("skipped %s: busy", filepath.Base(path))
		case err != nil:
			w.logf("census after %s failed: %v", filepath.Base(path), err)
		default:
			w.logf("census after %s: id=%s tiles=%d path=%s", filepath.Base(path), rep.ID, rep.Tiles, rep.Path)
		}
	}()
}

func (w *Watcher) logf(format string, args ...any) {
	if w.log != nil {
		w.log.Printf(format, args...)
	}
}
