// Package watch reports created, modified and deleted input documents under a
// directory tree so they can be re-extracted.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultInclude matches every input format depfacts can read.
var DefaultInclude = []string{"**/*.{txt,text,pdf,docx,xlsx,conllu}"}

// Config configures the watcher.
type Config struct {
	// Root is the directory to watch, recursively.
	Root string

	// Include holds doublestar patterns, relative to Root, a file must match.
	// Defaults to DefaultInclude.
	Include []string

	// Exclude holds doublestar patterns that veto an Include match.
	Exclude []string

	// DebounceDelay is how long changes are collected before being reported.
	DebounceDelay time.Duration

	Logger *slog.Logger
}

// Op is the kind of change reported for a file.
type Op string

const (
	OpCreate Op = "create"
	OpModify Op = "modify"
	OpDelete Op = "delete"
)

// Event is a debounced change to one matching file.
type Event struct {
	// Path is the absolute file path.
	Path string
	Op   Op
	// Hash is the sha256 of the file content; empty for deletes.
	Hash  string
	Error error
}

// Watcher watches Root and emits one Event per changed file per debounce
// window. Files whose content hash is unchanged are not reported.
type Watcher struct {
	cfg     Config
	root    string
	fsw     *fsnotify.Watcher
	logger  *slog.Logger
	include []string
	exclude []string

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	hashMu sync.RWMutex
	hashes map[string]string

	events    chan Event
	done      chan struct{}
	once      sync.Once
	closeOnce sync.Once
}

// New validates the patterns and creates a watcher. Nothing is watched until
// Start.
func New(cfg Config) (*Watcher, error) {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root is not a directory: %s", root)
	}

	include := cfg.Include
	if len(include) == 0 {
		include = DefaultInclude
	}
	for _, p := range append(append([]string{}, include...), cfg.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}

	if cfg.DebounceDelay == 0 {
		cfg.DebounceDelay = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		cfg:     cfg,
		root:    root,
		fsw:     fsw,
		logger:  logger,
		include: include,
		exclude: cfg.Exclude,
		pending: make(map[string]fsnotify.Op),
		hashes:  make(map[string]string),
		events:  make(chan Event, 100),
		done:    make(chan struct{}),
	}, nil
}

// Root returns the absolute watch root.
func (w *Watcher) Root() string {
	return w.root
}

// Events returns the channel of debounced events. It is closed by Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start adds watches for every directory under Root and begins processing.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchesRecursive(w.root); err != nil {
		return err
	}
	w.once.Do(func() { go w.processEvents(ctx) })

	w.logger.Info("watch: started", "root", w.root, "include", w.include,
		"debounce", w.cfg.DebounceDelay)
	return nil
}

// Stop closes the fsnotify watcher, waits for processing to end and closes
// the events channel.
func (w *Watcher) Stop() error {
	err := w.fsw.Close()
	w.once.Do(func() { close(w.done) })
	<-w.done
	w.closeOnce.Do(func() { close(w.events) })
	return err
}

// Match reports whether path (absolute, or relative to Root) is selected by
// the include and exclude patterns.
func (w *Watcher) Match(path string) bool {
	rel := path
	if filepath.IsAbs(path) {
		r, err := filepath.Rel(w.root, path)
		if err != nil || strings.HasPrefix(r, "..") {
			return false
		}
		rel = r
	}
	rel = filepath.ToSlash(rel)

	for _, p := range w.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	for _, p := range w.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Scan returns the matching files currently under Root, sorted, and records
// their hashes so an unchanged file is not reported after Start.
func (w *Watcher) Scan() ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	fsys := os.DirFS(w.root)

	for _, p := range w.include {
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", p, err)
		}
		for _, m := range matches {
			if skipDir(m) {
				continue
			}
			abs := filepath.Join(w.root, filepath.FromSlash(m))
			if seen[abs] || !w.Match(abs) {
				continue
			}
			seen[abs] = true
			files = append(files, abs)
		}
	}
	sort.Strings(files)

	for _, f := range files {
		hash, err := fileHash(f)
		if err != nil {
			w.logger.Warn("watch: hashing file failed", "path", f, "error", err)
			continue
		}
		w.SetHash(f, hash)
	}
	return files, nil
}

// SetHash records the content hash for a file.
func (w *Watcher) SetHash(path, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[path] = hash
}

// Hash returns the recorded content hash for a file.
func (w *Watcher) Hash(path string) (string, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	h, ok := w.hashes[path]
	return h, ok
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("watch: failed to watch directory", "path", path, "error", err)
		} else {
			w.logger.Debug("watch: watching directory", "path", path)
		}
		return nil
	})
}

// skipDir reports whether a path has a hidden or vendored component.
func skipDir(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "vendor" || part == "node_modules" || (strings.HasPrefix(part, ".") && part != "." && part != "..") {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.cfg.DebounceDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch: fsnotify error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(ev fsnotify.Event) {
	path := ev.Name

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
	}
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if !w.Match(path) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] |= ev.Op
	w.pendingMu.Unlock()

	w.logger.Debug("watch: change detected", "path", path, "op", ev.Op.String())
}

func (w *Watcher) handleNewDirectory(path string) {
	if skipDir(filepath.Base(path)) {
		return
	}
	if err := w.addWatchesRecursive(path); err != nil {
		w.logger.Warn("watch: failed to watch new directory", "path", path, "error", err)
		return
	}

	// Files written before the watch was added produce no events.
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !w.Match(p) {
			return nil
		}
		w.pendingMu.Lock()
		w.pending[p] |= fsnotify.Create
		w.pendingMu.Unlock()
		return nil
	})
}

func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	paths := make([]string, 0, len(toProcess))
	for p := range toProcess {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		ev, ok := w.resolve(path, toProcess[path])
		if !ok {
			continue
		}
		if !w.sendEvent(ev) {
			// Retry on the next flush; the recorded hash stays as it was.
			w.pendingMu.Lock()
			w.pending[path] |= toProcess[path]
			w.pendingMu.Unlock()
			continue
		}
		w.commit(ev)
	}
}

// commit records the hash state an event reported as delivered.
func (w *Watcher) commit(ev Event) {
	switch {
	case ev.Error != nil:
	case ev.Op == OpDelete:
		w.hashMu.Lock()
		delete(w.hashes, ev.Path)
		w.hashMu.Unlock()
	default:
		w.SetHash(ev.Path, ev.Hash)
	}
}

// resolve turns the accumulated operations for a path into an event, or
// reports false when nothing observable changed. Hashes are updated by
// commit once the event is delivered.
func (w *Watcher) resolve(path string, op fsnotify.Op) (Event, bool) {
	_, hadHash := w.Hash(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if !hadHash && !op.Has(fsnotify.Remove) && !op.Has(fsnotify.Rename) {
			return Event{}, false
		}
		return Event{Path: path, Op: OpDelete}, true
	}

	hash, err := fileHash(path)
	if err != nil {
		return Event{Path: path, Op: OpModify, Error: err}, true
	}

	old, _ := w.Hash(path)
	if hadHash && old == hash {
		return Event{}, false
	}

	if !hadHash {
		return Event{Path: path, Op: OpCreate, Hash: hash}, true
	}
	return Event{Path: path, Op: OpModify, Hash: hash}, true
}

func (w *Watcher) sendEvent(ev Event) bool {
	select {
	case w.events <- ev:
		w.logger.Debug("watch: event", "path", ev.Path, "op", ev.Op)
		return true
	default:
		w.logger.Warn("watch: event channel full, deferring event", "path", ev.Path, "op", ev.Op)
		return false
	}
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
