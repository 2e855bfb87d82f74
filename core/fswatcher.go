package core

import (
	"fmt"
	"log"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeKind says what happened to a site source.
type ChangeKind int

const (
	ChangeWrite  ChangeKind = iota // file created or modified
	ChangeRemove                   // file or directory removed
	ChangeMkdir                    // directory created
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeWrite:
		return "write"
	case ChangeRemove:
		return "remove"
	case ChangeMkdir:
		return "mkdir"
	default:
		return "unknown"
	}
}

// Change is one coalesced filesystem change. Path is slash-separated and
// relative to the site directory.
type Change struct {
	Path  string
	Kind  ChangeKind
	IsDir bool
	At    time.Time
}

// settleWindow is how long the watcher waits after the last raw event
// before it reports a batch. Editors fire several events per save (write,
// truncate, the atomic-rename dance), and operations like git checkout
// touch many files at once; everything inside the window lands in one
// batch so the site refreshes once instead of once per event.
const settleWindow = 150 * time.Millisecond

// SiteWatcher turns raw fsnotify traffic on the site directory into
// batches of Changes. It decides what a change IS by looking at the disk
// when the window closes, not by trusting the raw event op: a path that
// exists is a write (or a new directory), a path that is gone is a
// removal. That makes rename storms and create-then-delete races resolve
// to whatever is actually true on disk.
type SiteWatcher struct {
	mu      sync.RWMutex
	fsn     *fsnotify.Watcher
	root    string
	watched map[string]bool // absolute directory paths under watch
	pruned  []string        // site-relative subtrees never watched
	running bool
	changes chan []Change
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSiteWatcher creates a watcher. It does nothing until Start is called.
func NewSiteWatcher() (*SiteWatcher, error) {
	fsn, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &SiteWatcher{
		fsn:     fsn,
		watched: make(map[string]bool),
		changes: make(chan []Change, 8),
		done:    make(chan struct{}),
	}, nil
}

// Prune excludes a site-relative subtree from watching and reporting.
// The serve command prunes the build output directory when it lives
// inside the site, otherwise every `inkwell build` would storm the
// watcher with its own output. Call before Start.
func (w *SiteWatcher) Prune(rel string) {
	rel = strings.Trim(filepath.ToSlash(filepath.Clean(rel)), "/")
	if rel == "" || rel == "." {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruned = append(w.pruned, rel)
}

// Changes returns the channel batches are delivered on. The channel is
// closed by Stop.
func (w *SiteWatcher) Changes() <-chan []Change {
	return w.changes
}

// ignoredName reports whether a file or directory name is editor or VCS
// noise that should never reach the site: dotfiles, emacs autosaves,
// tilde backups, and the usual swap and lock suffixes.
func ignoredName(name string) bool {
	if name == "" {
		return true
	}
	if name[0] == '.' || name[0] == '#' {
		return true
	}
	if strings.HasSuffix(name, "~") {
		return true
	}
	switch filepath.Ext(name) {
	case ".bak", ".tmp", ".swp", ".swx", ".lock":
		return true
	}
	return false
}

// skip reports whether a site-relative path is outside the watcher's
// interest, either because a path segment is editor noise or because the
// subtree was pruned.
func (w *SiteWatcher) skip(rel string) bool {
	if rel == "" || rel == "." {
		return true
	}
	for _, seg := range strings.Split(rel, "/") {
		if ignoredName(seg) {
			return true
		}
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, p := range w.pruned {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

// rel converts an absolute path reported by fsnotify into the
// slash-separated site-relative form the rest of the system uses.
func (w *SiteWatcher) rel(abs string) (string, error) {
	w.mu.RLock()
	root := w.root
	w.mu.RUnlock()
	if root == "" {
		return "", fmt.Errorf("watcher has no root")
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// watchTree puts absDir and every directory below it under watch,
// skipping ignored and pruned subtrees.
func (w *SiteWatcher) watchTree(absDir string) error {
	return filepath.Walk(absDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Printf("watcher: cannot walk %s: %v", path, err)
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if rel, relErr := w.rel(path); relErr == nil && rel != "." && w.skip(rel) {
			return filepath.SkipDir
		}
		if err := w.fsn.Add(path); err != nil {
			log.Printf("watcher: cannot watch %s: %v", path, err)
			return nil
		}
		w.mu.Lock()
		w.watched[path] = true
		w.mu.Unlock()
		return nil
	})
}

// unwatchTree drops absPath and everything below it from the watch set.
// It reports whether absPath was a watched directory, which is how the
// watcher tells a removed directory from a removed file after the fact.
func (w *SiteWatcher) unwatchTree(absPath string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	wasDir := w.watched[absPath]
	prefix := absPath + string(filepath.Separator)
	for dir := range w.watched {
		if dir == absPath || strings.HasPrefix(dir, prefix) {
			// fsnotify drops watches on deleted paths by itself, this
			// just keeps the bookkeeping straight
			w.fsn.Remove(dir)
			delete(w.watched, dir)
		}
	}
	return wasDir
}

// Start begins watching root and reporting change batches.
func (w *SiteWatcher) Start(root string) error {
	if root == "" {
		return fmt.Errorf("watch root cannot be empty")
	}
	if info, err := os.Stat(root); err != nil {
		return fmt.Errorf("failed to access watch root %s: %w", root, err)
	} else if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", root)
	}

	select {
	case <-w.done:
		return fmt.Errorf("watcher cannot be restarted")
	default:
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrWatcherRunning
	}
	w.running = true
	w.root = root
	w.mu.Unlock()

	if err := w.watchTree(root); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	w.wg.Add(1)
	go w.run()

	log.Printf("Watching %s", root)
	return nil
}

// Stop shuts the watcher down and closes the change channel.
func (w *SiteWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return ErrWatcherNotRunning
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	err := w.fsn.Close()
	w.wg.Wait()
	close(w.changes)

	log.Printf("Watcher stopped")
	return err
}

// IsRunning reports whether the watcher is active.
func (w *SiteWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// WatchedDirs returns the currently watched directories, sorted.
func (w *SiteWatcher) WatchedDirs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Sorted(maps.Keys(w.watched))
}

// run collects raw events into a pending set and flushes it as one batch
// once the filesystem has been quiet for a settle window.
func (w *SiteWatcher) run() {
	defer w.wg.Done()

	pending := make(map[string]struct{})
	var timer *time.Timer
	var flush <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsn.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue // chmod-only events are noise
			}
			rel, err := w.rel(ev.Name)
			if err != nil || w.skip(rel) {
				continue
			}
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(settleWindow)
				flush = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(settleWindow)
			}

		case <-flush:
			timer = nil
			flush = nil
			batch := w.classify(pending)
			pending = make(map[string]struct{})
			if len(batch) > 0 {
				w.emit(batch)
			}

		case err, ok := <-w.fsn.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error: %v", err)
		}
	}
}

// classify inspects the disk for every pending path and produces the
// batch in deterministic order. Paths that came and went inside the
// window resolve to a removal of something nobody ever saw, which the
// reloader treats as a no-op.
func (w *SiteWatcher) classify(pending map[string]struct{}) []Change {
	w.mu.RLock()
	root := w.root
	w.mu.RUnlock()

	now := time.Now()
	var batch []Change
	for _, rel := range slices.Sorted(maps.Keys(pending)) {
		abs := filepath.Join(root, rel)
		info, err := os.Lstat(abs)
		switch {
		case err == nil && info.Mode()&os.ModeSymlink != 0:
			// symlinks are not site sources

		case err == nil && info.IsDir():
			w.mu.RLock()
			known := w.watched[abs]
			w.mu.RUnlock()
			if known {
				continue // events on a known directory carry no change of their own
			}
			if err := w.watchTree(abs); err != nil {
				log.Printf("watcher: cannot watch new directory %s: %v", abs, err)
			}
			batch = append(batch, Change{Path: rel, Kind: ChangeMkdir, IsDir: true, At: now})

		case err == nil:
			batch = append(batch, Change{Path: rel, Kind: ChangeWrite, At: now})

		default:
			wasDir := w.unwatchTree(abs)
			batch = append(batch, Change{Path: rel, Kind: ChangeRemove, IsDir: wasDir, At: now})
		}
	}
	return batch
}

func (w *SiteWatcher) emit(batch []Change) {
	select {
	case w.changes <- batch:
	case <-w.done:
	default:
		log.Printf("watcher: change channel full, dropping batch of %d", len(batch))
	}
}
