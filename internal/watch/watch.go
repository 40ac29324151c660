// Package watch reports debounced batches of workspace file changes.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a batch of changes is reported.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors every directory under a workspace root.
type Watcher struct {
	root     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// New starts watching root and its subdirectories. Hidden, vendor and
// node_modules directories are not watched.
func New(root string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &Watcher{root: root, debounce: debounce, watcher: fw}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func skipDir(name string) bool {
	switch name {
	case "vendor", "node_modules", "testdata":
		return true
	}
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// Relevant reports whether a change to path can affect validation.
func Relevant(path string) bool {
	base := filepath.Base(path)
	switch base {
	case "go.mod", "go.sum", "go.work", "go.work.sum", ".env", ".buildcheck.yaml", ".dockerignore":
		return true
	}
	if strings.HasPrefix(base, "Dockerfile") || strings.HasSuffix(base, ".Dockerfile") {
		return true
	}
	switch filepath.Ext(base) {
	case ".go":
		return true
	case ".yml", ".yaml":
		return strings.Contains(base, "compose")
	}
	return false
}

// Run calls fn with the sorted set of changed paths each time the
// workspace has been quiet for the debounce period. It returns when ctx is
// done. fn runs on the watch goroutine, so changes made while it runs are
// collected into the next batch.
func (w *Watcher) Run(ctx context.Context, fn func(ctx context.Context, changed []string)) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !skipDir(info.Name()) {
					if err := w.addTree(event.Name); err != nil {
						slog.Warn("failed to watch new directory", "dir", event.Name, "err", err)
					}
					continue
				}
			}
			if event.Op == fsnotify.Chmod || !Relevant(event.Name) {
				continue
			}
			slog.Debug("fsnotify event", "op", event.Op, "file", event.Name)
			pending[event.Name] = true
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("fsnotify error", "err", err)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			slices.Sort(changed)
			clear(pending)
			fn(ctx, changed)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
