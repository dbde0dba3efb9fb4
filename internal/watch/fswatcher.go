package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// FSWatcher watches directory trees and reports changed paths.
type FSWatcher struct {
	watcher  *fsnotify.Watcher
	roots    []string
	excludes []string
	logger   *slog.Logger
	onChange func(path string)
}

// NewFSWatcher watches roots recursively. Changes below any of excludes are
// ignored so that writing the output does not trigger another build.
func NewFSWatcher(roots, excludes []string, onChange func(path string)) (*FSWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.FileSystemError("failed to create file watcher").WithCause(err).Build()
	}
	fw := &FSWatcher{watcher: w, logger: slog.Default(), onChange: onChange}
	for _, e := range excludes {
		abs, err := filepath.Abs(e)
		if err != nil {
			continue
		}
		fw.excludes = append(fw.excludes, abs)
	}
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			_ = w.Close()
			return nil, ferrors.FileSystemError("failed to resolve watch root").
				WithCause(err).
				WithContext("path", r).
				Build()
		}
		fw.roots = append(fw.roots, abs)
	}
	return fw, nil
}

// WithLogger sets the logger.
func (fw *FSWatcher) WithLogger(logger *slog.Logger) *FSWatcher {
	if logger != nil {
		fw.logger = logger
	}
	return fw
}

// Start registers all directories below the roots.
func (fw *FSWatcher) Start() error {
	for _, r := range fw.roots {
		if err := fw.addTree(r); err != nil {
			return err
		}
	}
	fw.logger.Info("Watching sources", logfields.Count(len(fw.watcher.WatchList())))
	return nil
}

func (fw *FSWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return ferrors.FileSystemError("failed to walk watch root").
				WithCause(err).
				WithContext("path", p).
				Build()
		}
		if !d.IsDir() {
			return nil
		}
		if fw.excluded(p) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(p); err != nil {
			return ferrors.FileSystemError("failed to watch directory").
				WithCause(err).
				WithContext("path", p).
				Build()
		}
		return nil
	})
}

func (fw *FSWatcher) excluded(p string) bool {
	for _, e := range fw.excludes {
		if p == e || strings.HasPrefix(p, e+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Run forwards file events until ctx is done or the watcher is closed.
func (fw *FSWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handle(ev)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("File watcher error", logfields.Error(err))
		}
	}
}

func (fw *FSWatcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod || fw.excluded(ev.Name) {
		return
	}
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := fw.addTree(ev.Name); err != nil {
				fw.logger.Warn("Failed to watch new directory", logfields.Path(ev.Name), logfields.Error(err))
			}
		}
	}
	fw.logger.Debug("Source change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	fw.onChange(ev.Name)
}

// Close stops watching.
func (fw *FSWatcher) Close() error {
	return fw.watcher.Close()
}
