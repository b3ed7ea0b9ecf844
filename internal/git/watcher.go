package git

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/milkstrawai/branch-db/internal/logger"
)

// GitDir returns the absolute git directory of the repository, or "" outside
// a repository.
func (g *Gateway) GitDir(ctx context.Context) string {
	out, err := g.runner.Run(ctx, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// HeadWatcher watches the git directory for HEAD changes (branch switches).
//
// git replaces HEAD by renaming HEAD.lock over it, so the directory is
// watched rather than the file itself.
type HeadWatcher struct {
	gitDir   string
	watcher  *fsnotify.Watcher
	callback func()
}

// NewHeadWatcher creates a watcher that invokes callback whenever HEAD is
// rewritten.
func NewHeadWatcher(gitDir string, callback func()) (*HeadWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(gitDir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &HeadWatcher{
		gitDir:   gitDir,
		watcher:  watcher,
		callback: callback,
	}, nil
}

// Start processes events until ctx is cancelled or the watcher is stopped.
// Callbacks run on the calling goroutine, one at a time.
func (w *HeadWatcher) Start(ctx context.Context) {
	logger.Debug("Started watching git HEAD", "git_dir", w.gitDir)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Git HEAD watcher error", "error", err)

		case <-ctx.Done():
			logger.Debug("Git HEAD watcher stopping")
			return
		}
	}
}

func (w *HeadWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != "HEAD" {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	logger.Debug("Git HEAD changed", "path", event.Name, "op", event.Op.String())
	if w.callback != nil {
		w.callback()
	}
}

// Stop releases the watcher. Safe to call multiple times.
func (w *HeadWatcher) Stop() error {
	return w.watcher.Close()
}
