package core

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

// Test helper to create a site directory with a few content files
func createSiteDir(t *testing.T) string {
	t.Helper()

	tempDir := t.TempDir()

	testFiles := []string{
		"content/about.md",
		"content/posts/first.md",
		"layout/header.html",
		"assets/style.css",
	}

	for _, file := range testFiles {
		fullPath := filepath.Join(tempDir, file)
		dir := filepath.Dir(fullPath)

		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}

		if err := os.WriteFile(fullPath, []byte("test content"), 0644); err != nil {
			t.Fatalf("Failed to create file %s: %v", fullPath, err)
		}
	}

	return tempDir
}

// startedWatcher starts a watcher on dir and registers cleanup.
func startedWatcher(t *testing.T, dir string) *SiteWatcher {
	t.Helper()

	w, err := NewSiteWatcher()
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	if err := w.Start(dir); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	t.Cleanup(func() {
		if w.IsRunning() {
			w.Stop()
		}
	})
	return w
}

// batchTimeout is generous compared to the settle window so slow CI
// filesystems do not flake these tests.
const batchTimeout = 3 * time.Second

func TestChangeKindString(t *testing.T) {
	tests := []struct {
		kind     ChangeKind
		expected string
	}{
		{ChangeWrite, "write"},
		{ChangeRemove, "remove"},
		{ChangeMkdir, "mkdir"},
		{ChangeKind(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.expected {
			t.Errorf("ChangeKind(%d).String() = %q, expected %q", tt.kind, got, tt.expected)
		}
	}
}

func TestIgnoredName(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		expected bool
	}{
		{"markdown post", "first.md", false},
		{"layout file", "header.html", false},
		{"stylesheet", "style.css", false},
		{"no extension", "Makefile", false},
		{"hidden file", ".hidden", true},
		{"hidden dir", ".git", true},
		{"backup file", "about.md.bak", true},
		{"temp file", "about.md.tmp", true},
		{"vim swap file", ".posts.md.swp", true},
		{"vim swapx file", "first.md.swx", true},
		{"lock file", "first.md.lock", true},
		{"emacs autosave", "#first.md#", true},
		{"tilde backup", "first.md~", true},
		{"empty name", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ignoredName(tt.file); got != tt.expected {
				t.Errorf("ignoredName(%q) = %v, expected %v", tt.file, got, tt.expected)
			}
		})
	}
}

func TestNewSiteWatcher(t *testing.T) {
	w, err := NewSiteWatcher()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if w == nil {
		t.Fatal("Expected watcher but got nil")
	}

	if w.IsRunning() {
		t.Error("Watcher should not be running initially")
	}
	if w.Changes() == nil {
		t.Error("Change channel should be initialized")
	}
	if dirs := w.WatchedDirs(); len(dirs) != 0 {
		t.Errorf("Expected no watched directories before Start, have %v", dirs)
	}

	// Stopping a watcher that never started is an error
	if err := w.Stop(); err == nil {
		t.Error("Expected error stopping a watcher that was never started")
	}
}

func TestSiteWatcherStartStop(t *testing.T) {
	tempDir := createSiteDir(t)

	w, err := NewSiteWatcher()
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}

	if err := w.Start(tempDir); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	if !w.IsRunning() {
		t.Error("Watcher should be running after Start")
	}

	// The whole tree is under watch, not just the root
	dirs := w.WatchedDirs()
	for _, want := range []string{
		tempDir,
		filepath.Join(tempDir, "content"),
		filepath.Join(tempDir, "content", "posts"),
		filepath.Join(tempDir, "layout"),
		filepath.Join(tempDir, "assets"),
	} {
		if !slices.Contains(dirs, want) {
			t.Errorf("Expected %s to be watched, have %v", want, dirs)
		}
	}

	if err := w.Start(tempDir); !errors.Is(err, ErrWatcherRunning) {
		t.Errorf("Expected ErrWatcherRunning starting an already running watcher, got %v", err)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Failed to stop watcher: %v", err)
	}
	if w.IsRunning() {
		t.Error("Watcher should not be running after Stop")
	}

	// The change channel closes on Stop
	select {
	case _, ok := <-w.Changes():
		if ok {
			t.Error("Expected closed change channel after Stop")
		}
	case <-time.After(time.Second):
		t.Error("Change channel not closed after Stop")
	}

	if err := w.Stop(); !errors.Is(err, ErrWatcherNotRunning) {
		t.Errorf("Expected ErrWatcherNotRunning stopping an already stopped watcher, got %v", err)
	}
	if err := w.Start(tempDir); err == nil {
		t.Error("Expected error restarting a stopped watcher")
	}
}

func TestSiteWatcherInvalidStartPaths(t *testing.T) {
	w, err := NewSiteWatcher()
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}

	if err := w.Start(""); err == nil {
		t.Error("Expected error for empty watch root")
	}
	if err := w.Start("/nonexistent/site/dir"); err == nil {
		t.Error("Expected error for nonexistent watch root")
	}

	file := filepath.Join(t.TempDir(), "file.md")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if err := w.Start(file); err == nil {
		t.Error("Expected error when watch root is a file")
	}

	if w.IsRunning() {
		t.Error("Watcher should not be running after failed starts")
	}
}

func TestSiteWatcherCoalescesWrites(t *testing.T) {
	tempDir := createSiteDir(t)
	w := startedWatcher(t, tempDir)
	cc := CollectChanges(w.Changes())
	defer cc.Stop()

	// An editor save is several raw events in quick succession
	path := filepath.Join(tempDir, "content", "posts", "new.md")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("draft body"), 0644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	batches := cc.WaitForBatches(1, batchTimeout)
	if len(batches) != 1 {
		t.Fatalf("Expected 1 coalesced batch, have %d: %v", len(batches), batches)
	}

	changes := cc.ChangesForPath("content/posts/new.md")
	if len(changes) != 1 {
		t.Fatalf("Expected exactly one change for the path, have %v", changes)
	}
	if changes[0].Kind != ChangeWrite {
		t.Errorf("Expected ChangeWrite, have %v", changes[0].Kind)
	}
	if changes[0].IsDir {
		t.Error("A file write must not be flagged as a directory")
	}
}

func TestSiteWatcherReportsRemove(t *testing.T) {
	tempDir := createSiteDir(t)
	w := startedWatcher(t, tempDir)
	cc := CollectChanges(w.Changes())
	defer cc.Stop()

	if err := os.Remove(filepath.Join(tempDir, "content", "about.md")); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}

	cc.WaitForBatches(1, batchTimeout)
	changes := cc.ChangesForPath("content/about.md")
	if len(changes) != 1 {
		t.Fatalf("Expected one change for the removed file, have %v", cc.Changes())
	}
	if changes[0].Kind != ChangeRemove {
		t.Errorf("Expected ChangeRemove, have %v", changes[0].Kind)
	}
	if changes[0].IsDir {
		t.Error("A removed file must not be flagged as a directory")
	}
}

func TestSiteWatcherReportsDirectoryRemove(t *testing.T) {
	tempDir := createSiteDir(t)
	w := startedWatcher(t, tempDir)
	cc := CollectChanges(w.Changes())
	defer cc.Stop()

	if err := os.RemoveAll(filepath.Join(tempDir, "content", "posts")); err != nil {
		t.Fatalf("Failed to remove directory: %v", err)
	}

	cc.WaitForBatches(1, batchTimeout)
	changes := cc.ChangesForPath("content/posts")
	if len(changes) != 1 {
		t.Fatalf("Expected one change for the removed directory, have %v", cc.Changes())
	}
	if changes[0].Kind != ChangeRemove {
		t.Errorf("Expected ChangeRemove, have %v", changes[0].Kind)
	}
	if !changes[0].IsDir {
		t.Error("A removed watched directory must be flagged as a directory")
	}

	// The subtree left the watch set
	for _, dir := range w.WatchedDirs() {
		if dir == filepath.Join(tempDir, "content", "posts") {
			t.Error("Removed directory still in watch set")
		}
	}
}

func TestSiteWatcherMkdirExtendsWatch(t *testing.T) {
	tempDir := createSiteDir(t)
	w := startedWatcher(t, tempDir)
	cc := CollectChanges(w.Changes())
	defer cc.Stop()

	// MkdirAll races the watcher: the nested directory exists before the
	// parent is watched. Classification walks the new subtree, so the
	// whole thing still comes under watch.
	nested := filepath.Join(tempDir, "content", "notes", "2026")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("Failed to create directories: %v", err)
	}

	cc.WaitForBatches(1, batchTimeout)
	mkdirs := cc.ChangesOfKind(ChangeMkdir)
	if len(mkdirs) == 0 {
		t.Fatalf("Expected a mkdir change, have %v", cc.Changes())
	}
	if mkdirs[0].Path != "content/notes" {
		t.Errorf("Expected mkdir for content/notes, have %s", mkdirs[0].Path)
	}
	if !mkdirs[0].IsDir {
		t.Error("A mkdir change must be flagged as a directory")
	}

	dirs := w.WatchedDirs()
	if !slices.Contains(dirs, nested) {
		t.Errorf("Expected nested directory %s to be watched, have %v", nested, dirs)
	}

	// Writes inside the new subtree are observed
	post := filepath.Join(nested, "note.md")
	if err := os.WriteFile(post, []byte("note"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	cc.WaitForBatches(2, batchTimeout)
	writes := cc.ChangesForPath("content/notes/2026/note.md")
	if len(writes) != 1 || writes[0].Kind != ChangeWrite {
		t.Errorf("Expected a write inside the new subtree, have %v", cc.Changes())
	}
}

func TestSiteWatcherIgnoresEditorNoise(t *testing.T) {
	tempDir := createSiteDir(t)
	w := startedWatcher(t, tempDir)
	cc := CollectChanges(w.Changes())
	defer cc.Stop()

	noise := []string{
		".hidden.md",
		"first.md~",
		"#first.md#",
		"first.md.swp",
		"first.md.tmp",
	}
	for _, name := range noise {
		path := filepath.Join(tempDir, "content", name)
		if err := os.WriteFile(path, []byte("noise"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	// A real write after the noise proves the watcher is alive and that
	// the noise really was dropped rather than still pending.
	time.Sleep(2 * settleWindow)
	realPath := filepath.Join(tempDir, "content", "real.md")
	if err := os.WriteFile(realPath, []byte("content"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	cc.WaitForBatches(1, batchTimeout)
	changes := cc.Changes()
	if len(changes) != 1 {
		t.Fatalf("Expected only the real write to be reported, have %v", changes)
	}
	if changes[0].Path != "content/real.md" {
		t.Errorf("Expected change for content/real.md, have %s", changes[0].Path)
	}
}

func TestSiteWatcherPrune(t *testing.T) {
	tempDir := createSiteDir(t)
	outDir := filepath.Join(tempDir, "public")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		t.Fatalf("Failed to create output directory: %v", err)
	}

	w, err := NewSiteWatcher()
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	w.Prune("public")
	if err := w.Start(tempDir); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer w.Stop()

	if slices.Contains(w.WatchedDirs(), outDir) {
		t.Error("Pruned directory must not be watched")
	}

	cc := CollectChanges(w.Changes())
	defer cc.Stop()

	// A build writing into the pruned tree stays invisible
	if err := os.WriteFile(filepath.Join(outDir, "index.html"), []byte("<html>"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	time.Sleep(2 * settleWindow)

	if err := os.WriteFile(filepath.Join(tempDir, "content", "real.md"), []byte("content"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	cc.WaitForBatches(1, batchTimeout)
	for _, c := range cc.Changes() {
		if c.Path == "public/index.html" {
			t.Error("Pruned subtree leaked a change")
		}
	}
	if len(cc.ChangesForPath("content/real.md")) != 1 {
		t.Errorf("Expected the content write to be reported, have %v", cc.Changes())
	}
}

func TestSiteWatcherCreateThenDeleteResolvesToRemove(t *testing.T) {
	tempDir := createSiteDir(t)
	w := startedWatcher(t, tempDir)
	cc := CollectChanges(w.Changes())
	defer cc.Stop()

	// Both events land inside one settle window; the disk, not the event
	// order, decides what the batch says.
	path := filepath.Join(tempDir, "content", "fleeting.md")
	if err := os.WriteFile(path, []byte("here and gone"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}

	cc.WaitForBatches(1, batchTimeout)
	changes := cc.ChangesForPath("content/fleeting.md")
	if len(changes) != 1 {
		t.Fatalf("Expected one resolved change, have %v", cc.Changes())
	}
	if changes[0].Kind != ChangeRemove {
		t.Errorf("Expected create-then-delete to resolve to ChangeRemove, have %v", changes[0].Kind)
	}
}

func TestSiteWatcherBatchesAreSorted(t *testing.T) {
	tempDir := createSiteDir(t)
	w := startedWatcher(t, tempDir)
	cc := CollectChanges(w.Changes())
	defer cc.Stop()

	// Touch several files inside one window, in non-sorted order
	names := []string{"zeta.md", "alpha.md", "mid.md"}
	for _, name := range names {
		path := filepath.Join(tempDir, "content", name)
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	batches := cc.WaitForBatches(1, batchTimeout)
	if len(batches) != 1 {
		t.Fatalf("Expected one batch, have %d", len(batches))
	}
	paths := make([]string, len(batches[0]))
	for i, c := range batches[0] {
		paths[i] = c.Path
	}
	if !slices.IsSorted(paths) {
		t.Errorf("Expected sorted batch, have %v", paths)
	}
	if len(paths) != 3 {
		t.Errorf("Expected 3 changes in the batch, have %v", paths)
	}
}

func TestSiteWatcherConcurrentAccess(t *testing.T) {
	tempDir := createSiteDir(t)
	w := startedWatcher(t, tempDir)
	cc := CollectChanges(w.Changes())
	defer cc.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				w.IsRunning()
				w.WatchedDirs()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 10; j++ {
			path := filepath.Join(tempDir, "content", "posts", "first.md")
			os.WriteFile(path, []byte("tick"), 0644)
			time.Sleep(5 * time.Millisecond)
		}
	}()

	wg.Wait()
	cc.WaitForBatches(1, batchTimeout)
	if len(cc.ChangesForPath("content/posts/first.md")) == 0 {
		t.Error("Expected at least one change for the hammered file")
	}
}
