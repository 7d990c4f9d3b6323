// Package watcher keeps the document index in step with watched paths.
// Filesystem events are collected, debounced and applied in batches:
// changed files are re-indexed and deleted files are removed.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/logger"
)

// DefaultDebounce is how long the watcher waits for a burst of events to
// settle before applying them.
const DefaultDebounce = 500 * time.Millisecond

// ErrClosed is returned when the watcher has been closed.
var ErrClosed = errors.New("watcher closed")

// Indexer is the subset of the document service the watcher drives.
type Indexer interface {
	IndexPaths(ctx context.Context, paths []string, recursive bool) (*domain.IndexReport, error)
	RemovePaths(ctx context.Context, paths []string) (int, error)
}

// ChangeType classifies a filesystem change.
type ChangeType int

// Change types.
const (
	ChangeUpdated ChangeType = iota + 1
	ChangeDeleted
	ChangeDirCreated
)

// Change is one debounced path change.
type Change struct {
	Path string
	Type ChangeType
}

// Batch reports the outcome of applying one debounced set of changes.
type Batch struct {
	Changes []Change
	Report  *domain.IndexReport
	Removed int
	Err     error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the settle delay.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithRecursive watches subdirectories, including ones created later.
func WithRecursive(recursive bool) Option {
	return func(w *Watcher) { w.recursive = recursive }
}

// Watcher applies filesystem changes under a set of roots to an Indexer.
type Watcher struct {
	docs      Indexer
	roots     []string
	recursive bool
	debounce  time.Duration

	mu     sync.Mutex
	fsw    *fsnotify.Watcher
	closed bool
}

// New creates a watcher over roots. Each root must exist; file roots are
// watched through their parent directory.
func New(docs Indexer, roots []string, opts ...Option) (*Watcher, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("no paths to watch: %w", domain.ErrInvalidInput)
	}

	w := &Watcher{docs: docs, debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(w)
	}

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("root path error: %w", err)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("root path error: %w", err)
		}
		w.roots = append(w.roots, abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.fsw = fsw

	for _, root := range w.roots {
		if err := w.addRoot(root); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// addRoot registers root, and its subdirectories when recursive.
func (w *Watcher) addRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return w.fsw.Add(filepath.Dir(root))
	}
	if !w.recursive {
		return w.fsw.Add(root)
	}
	return w.addTree(root)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("Watcher: skipping %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		logger.Debug("Watching %s", path)
		return nil
	})
}

// Run processes events until ctx is cancelled or the watcher is closed.
// onBatch, when set, is called after each applied batch.
func (w *Watcher) Run(ctx context.Context, onBatch func(Batch)) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	events, errs := w.fsw.Events, w.fsw.Errors
	w.mu.Unlock()

	pending := make(map[string]ChangeType)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			change, ok := w.handleEvent(ev)
			if !ok {
				continue
			}
			if change.Type == ChangeDirCreated {
				if err := w.addTree(change.Path); err != nil {
					logger.Warn("Watcher: %v", err)
				}
			}
			pending[change.Path] = change.Type
			timer.Reset(w.debounce)

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)

		case <-timer.C:
			batch := w.apply(ctx, drain(pending))
			if onBatch != nil {
				onBatch(batch)
			}
		}
	}
}

// handleEvent maps an fsnotify event to a change. Hidden paths, chmod-only
// events and paths outside the roots are ignored.
func (w *Watcher) handleEvent(ev fsnotify.Event) (Change, bool) {
	path := filepath.Clean(ev.Name)
	if isHidden(filepath.Base(path)) || !w.covers(path) {
		return Change{}, false
	}

	switch {
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		return Change{Path: path, Type: ChangeDeleted}, true

	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			// Gone again before we looked.
			return Change{Path: path, Type: ChangeDeleted}, true
		}
		if info.IsDir() {
			if w.recursive && ev.Op.Has(fsnotify.Create) {
				return Change{Path: path, Type: ChangeDirCreated}, true
			}
			return Change{}, false
		}
		return Change{Path: path, Type: ChangeUpdated}, true
	}
	return Change{}, false
}

// covers reports whether path falls under a watched root. A file root
// covers only itself even though its parent directory is watched.
func (w *Watcher) covers(path string) bool {
	for _, root := range w.roots {
		if path == root {
			return true
		}
		info, err := os.Stat(root)
		if err == nil && !info.IsDir() {
			continue
		}
		if strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// apply re-indexes updated paths and removes deleted ones.
func (w *Watcher) apply(ctx context.Context, changes []Change) Batch {
	batch := Batch{Changes: changes}

	var updated, dirs, deleted []string
	for _, c := range changes {
		switch c.Type {
		case ChangeUpdated:
			updated = append(updated, c.Path)
		case ChangeDirCreated:
			dirs = append(dirs, c.Path)
		case ChangeDeleted:
			deleted = append(deleted, c.Path)
		}
	}

	var errs []error
	if len(deleted) > 0 {
		n, err := w.docs.RemovePaths(ctx, deleted)
		batch.Removed = n
		if err != nil {
			errs = append(errs, fmt.Errorf("remove: %w", err))
		}
	}

	report := &domain.IndexReport{}
	if len(updated) > 0 {
		r, err := w.docs.IndexPaths(ctx, updated, false)
		merge(report, r)
		if err != nil {
			errs = append(errs, fmt.Errorf("index: %w", err))
		}
	}
	if len(dirs) > 0 {
		r, err := w.docs.IndexPaths(ctx, dirs, true)
		merge(report, r)
		if err != nil {
			errs = append(errs, fmt.Errorf("index: %w", err))
		}
	}
	if len(updated)+len(dirs) > 0 {
		batch.Report = report
	}
	batch.Err = errors.Join(errs...)

	logger.Info("Watcher: %d changes, %d indexed, %d removed", len(changes), report.Indexed, batch.Removed)
	return batch
}

// Close stops watching. Run returns once its event channel closes.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fsw.Close()
}

// drain empties pending into a path-sorted change list.
func drain(pending map[string]ChangeType) []Change {
	changes := make([]Change, 0, len(pending))
	for path, typ := range pending {
		changes = append(changes, Change{Path: path, Type: typ})
		delete(pending, path)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

func merge(dst, src *domain.IndexReport) {
	if src == nil {
		return
	}
	dst.Indexed += src.Indexed
	dst.Skipped += src.Skipped
	dst.Failed += src.Failed
	dst.Chunks += src.Chunks
	dst.Unembedded += src.Unembedded
	for path, reason := range src.Errors {
		if dst.Errors == nil {
			dst.Errors = make(map[string]string)
		}
		dst.Errors[path] = reason
	}
	for path, reason := range src.SkipReasons {
		if dst.SkipReasons == nil {
			dst.SkipReasons = make(map[string]string)
		}
		dst.SkipReasons[path] = reason
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
