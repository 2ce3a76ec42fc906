package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bru02/zhm/pkg/protocol"
)

// Options selects which files are watched and how changes are coalesced.
type Options struct {
	// Dir is the root of the watched tree.
	Dir string

	// Suffix is the file name suffix a file needs to be tracked (".sql").
	Suffix string

	// IgnorePrefix excludes files whose base name starts with it ("_").
	// Empty disables the check.
	IgnorePrefix string

	// Debounce is how long a path must stay quiet before it is read.
	Debounce time.Duration
}

// Handler receives the current state of a changed file.
type Handler func(protocol.FileRecord)

// Watcher turns file system activity under a directory into FileRecords.
// Repeated events for the same path within the debounce window collapse into
// one read.
type Watcher struct {
	opts Options
	root string
	fn   Handler
	fsw  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

// New creates a Watcher and registers the whole tree under opts.Dir with
// fsnotify. fn is called from timer goroutines and must be safe for
// concurrent use.
func New(opts Options, fn Handler) (*Watcher, error) {
	root, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %q: %w", opts.Dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{
		opts:    opts,
		root:    root,
		fn:      fn,
		fsw:     fsw,
		pending: make(map[string]*time.Timer),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the absolute path of the watched directory.
func (w *Watcher) Root() string { return w.root }

// Matches reports whether path names a tracked file.
func (w *Watcher) Matches(path string) bool {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, w.opts.Suffix) {
		return false
	}
	if w.opts.IgnorePrefix != "" && strings.HasPrefix(base, w.opts.IgnorePrefix) {
		return false
	}
	return true
}

// Prime queues every tracked file already present under the root and
// returns how many were queued.
func (w *Watcher) Prime() (int, error) {
	n := 0
	err := w.walk(w.root, func(path string, d fs.DirEntry) error {
		if !d.IsDir() && w.Matches(path) {
			w.Queue(path)
			n++
		}
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("watch: prime: %w", err)
	}
	return n, nil
}

// Queue schedules path to be read once it has been quiet for the debounce
// window. A second call before then restarts the window.
func (w *Watcher) Queue(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		if w.pending[path] != t {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		w.mu.Unlock()
		w.emit(path)
	})
	w.pending[path] = t
}

// Run dispatches fsnotify events until ctx is cancelled or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) error {
	slog.Info("watch: watching for changes", "dir", w.root, "suffix", w.opts.Suffix)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch: watcher error", "err", err)
		}
	}
}

// Close stops the fsnotify watcher and drops every pending read.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

func (w *Watcher) handle(event fsnotify.Event) {
	// Editors often save via rename, which shows up as Create.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if hidden(event.Name) {
				return
			}
			// Files may land in a new directory before its watch exists.
			if err := w.addTree(event.Name); err != nil {
				slog.Warn("watch: add directory failed", "dir", event.Name, "err", err)
			}
			_ = w.walk(event.Name, func(path string, d fs.DirEntry) error {
				if !d.IsDir() && w.Matches(path) {
					w.Queue(path)
				}
				return nil
			})
			return
		}
	}

	if w.Matches(event.Name) {
		slog.Debug("watch: change detected", "path", event.Name, "op", event.Op.String())
		w.Queue(event.Name)
	}
}

func (w *Watcher) emit(path string) {
	rec, err := ReadFile(w.root, path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		slog.Warn("watch: read failed", "path", path, "err", err)
		return
	}
	w.fn(rec)
}

func (w *Watcher) addTree(dir string) error {
	return w.walk(dir, func(path string, d fs.DirEntry) error {
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
}

// walk visits dir recursively, skipping hidden directories below the root.
func (w *Watcher) walk(dir string, visit func(string, fs.DirEntry) error) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() && path != w.root && hidden(path) {
			return filepath.SkipDir
		}
		return visit(path, d)
	})
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// ReadFile reads path into a FileRecord named by its slash-separated path
// relative to root and stamped with its modification time.
func ReadFile(root, path string) (protocol.FileRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return protocol.FileRecord{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return protocol.FileRecord{}, err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return protocol.FileRecord{}, fmt.Errorf("watch: %s outside %s: %w", path, root, err)
	}
	return protocol.FileRecord{
		Name:      filepath.ToSlash(rel),
		Content:   string(data),
		UpdatedAt: info.ModTime().UnixMilli(),
	}, nil
}
