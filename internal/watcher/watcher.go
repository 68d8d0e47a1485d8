// Package watcher invalidates a project's cache entry when its indexable
// files change on disk. Events are debounced so a burst of writes (editor
// saves, git checkouts) triggers one invalidation, not dozens.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	pherrors "github.com/phasergun/phasergun/internal/errors"
	"github.com/phasergun/phasergun/internal/fingerprint"
)

// DefaultDebounceWindow coalesces event bursts.
const DefaultDebounceWindow = 200 * time.Millisecond

// Options configures the watcher.
type Options struct {
	// DebounceWindow is the quiet period before onChange fires.
	DebounceWindow time.Duration
}

// WithDefaults applies defaults for zero values.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow == 0 {
		o.DebounceWindow = DefaultDebounceWindow
	}
	return o
}

// Watcher watches one project's Procedures and Context trees.
type Watcher struct {
	projectRoot string
	onChange    func()
	opts        Options

	fsw      *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a watcher for projectRoot. onChange runs after each debounced
// burst of relevant file events.
func New(projectRoot string, opts Options, onChange func()) (*Watcher, error) {
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, pherrors.New(pherrors.ErrCodeInvalidPath, "resolve project root", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, pherrors.IOError("create file watcher", err)
	}

	return &Watcher{
		projectRoot: absRoot,
		onChange:    onChange,
		opts:        opts.WithDefaults(),
		fsw:         fsw,
		stopCh:      make(chan struct{}),
	}, nil
}

// Start watches until ctx is cancelled or Stop is called. It blocks; run it
// in its own goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	for _, subtree := range []string{fingerprint.ProceduresDir, fingerprint.ContextDir} {
		root := filepath.Join(w.projectRoot, subtree)
		if err := w.addRecursive(root); err != nil {
			return err
		}
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event.Name) {
				continue
			}
			// New directories must be added to keep the watch recursive.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						slog.Warn("watch new directory failed",
							slog.String("path", event.Name),
							slog.String("error", err.Error()))
					}
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.opts.DebounceWindow)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.opts.DebounceWindow)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			slog.Debug("project change detected", slog.String("project", w.projectRoot))
			w.onChange()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// Stop ends watching. Safe to call multiple times.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.fsw.Close()
	})
	return err
}

// addRecursive registers root and all its subdirectories, skipping the
// Context/Prompt child.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return pherrors.New(pherrors.ErrCodeWalkFailed, fmt.Sprintf("walk %s", path), err)
		}
		if !d.IsDir() {
			return nil
		}
		if w.isPromptDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return pherrors.IOError(fmt.Sprintf("watch %s", path), err)
		}
		return nil
	})
}

// relevant reports whether an event path affects indexable content.
func (w *Watcher) relevant(path string) bool {
	rel, err := filepath.Rel(w.projectRoot, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, fingerprint.ContextDir+"/"+fingerprint.PromptDir+"/") {
		return false
	}
	return strings.HasPrefix(rel, fingerprint.ProceduresDir+"/") ||
		strings.HasPrefix(rel, fingerprint.ContextDir+"/")
}

// isPromptDir reports whether path is the project's Context/Prompt folder.
func (w *Watcher) isPromptDir(path string) bool {
	rel, err := filepath.Rel(w.projectRoot, path)
	if err != nil {
		return false
	}
	return filepath.ToSlash(rel) == fingerprint.ContextDir+"/"+fingerprint.PromptDir
}
