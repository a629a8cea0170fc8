package bundle

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/cascade/internal/apperr"
)

// BuildCallback runs after every watcher-driven build attempt. Exactly
// one of res/err is non-nil.
type BuildCallback func(res *Result, err error)

// Watch runs an initial build, then rebuilds whenever a file from the
// last attempt's touched set (or the URL manifest) changes, until ctx
// is cancelled.
//
// Builds execute inline in the watch loop, so two builds never run
// concurrently against the shared cache. Events landing during a build
// queue up and are coalesced by the debounce timer into exactly one
// follow-up build. After every attempt, successful or not, the watch
// set is reconciled to the attempt's touched files.
func Watch(ctx context.Context, o *Orchestrator, cache map[string]*Record, manifest string, debounce time.Duration, logger *slog.Logger, cb BuildCallback) error {
	if debounce <= 0 {
		debounce = 150 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// interest is the file set whose events trigger rebuilds; watches
	// are placed on parent directories since editors often replace
	// files by rename.
	interest := make(map[string]struct{})
	watchedDirs := make(map[string]struct{})

	reconcile := func(touched []string) {
		if manifest != "" {
			touched = append(touched, manifest)
		}

		next := make(map[string]struct{}, len(touched))
		nextDirs := make(map[string]struct{}, len(touched))
		for _, p := range touched {
			next[p] = struct{}{}
			nextDirs[filepath.Dir(p)] = struct{}{}
		}

		for dir := range nextDirs {
			if _, ok := watchedDirs[dir]; !ok {
				if addErr := w.Add(dir); addErr != nil {
					logger.Warn("watcher: add failed", slog.String("dir", dir), slog.String("error", addErr.Error()))
					continue
				}
			}
		}
		for dir := range watchedDirs {
			if _, ok := nextDirs[dir]; !ok {
				_ = w.Remove(dir)
			}
		}
		interest = next
		watchedDirs = nextDirs
	}

	runBuild := func() {
		res, buildErr := o.Build(ctx, cache)
		if buildErr != nil {
			logger.Warn("watcher: build failed", slog.String("error", buildErr.Error()))
			// Keep watching whatever the failed build managed to touch.
			// reconcile adds the manifest itself, so a build that failed
			// before loading a single file (unreadable manifest) stays
			// recoverable. When the new set would be empty, keep the old
			// one instead of watching nothing.
			touched := apperr.TouchedFiles(buildErr)
			if len(touched) > 0 || manifest != "" {
				reconcile(touched)
			}
			cb(nil, buildErr)
			return
		}
		reconcile(res.Touched)
		cb(res, nil)
	}

	runBuild()
	logger.Info("watcher: started", slog.String("root", o.Root()), slog.Int("files", len(interest)))

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			runBuild()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if _, relevant := interest[ev.Name]; !relevant {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if !errors.Is(watchErr, context.Canceled) {
				logger.Error("watcher: error", slog.String("error", watchErr.Error()))
			}
		}
	}
}
