package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestFileBuilder builds File objects for tests, in memory or on disk.
type TestFileBuilder struct {
	path     string
	content  string
	routes   []string
	mimeType string
	title    string
	redirect string
	date     time.Time
}

// NewTestFileBuilder creates a new test file builder
func NewTestFileBuilder(path string) *TestFileBuilder {
	return &TestFileBuilder{
		path:   path,
		routes: make([]string, 0),
	}
}

// WithContent sets the file content
func (tfb *TestFileBuilder) WithContent(content string) *TestFileBuilder {
	tfb.content = content
	return tfb
}

// WithRoute adds a route to the file
func (tfb *TestFileBuilder) WithRoute(route string) *TestFileBuilder {
	tfb.routes = append(tfb.routes, route)
	return tfb
}

// WithRoutes sets multiple routes for the file
func (tfb *TestFileBuilder) WithRoutes(routes []string) *TestFileBuilder {
	tfb.routes = routes
	return tfb
}

// WithMimeType sets the MIME type
func (tfb *TestFileBuilder) WithMimeType(mimeType string) *TestFileBuilder {
	tfb.mimeType = mimeType
	return tfb
}

// WithTitle sets the page title
func (tfb *TestFileBuilder) WithTitle(title string) *TestFileBuilder {
	tfb.title = title
	return tfb
}

// WithRedirect marks the file as a redirect stub
func (tfb *TestFileBuilder) WithRedirect(url string) *TestFileBuilder {
	tfb.redirect = url
	return tfb
}

// WithDate sets the publication date
func (tfb *TestFileBuilder) WithDate(date time.Time) *TestFileBuilder {
	tfb.date = date
	return tfb
}

// Build creates the File object
func (tfb *TestFileBuilder) Build() *File {
	return &File{
		Name:         filepath.Base(tfb.path),
		Path:         tfb.path,
		Content:      []byte(tfb.content),
		Routes:       tfb.routes,
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
		Metadata: FileMetadata{
			Title:       tfb.title,
			Date:        tfb.date,
			MimeType:    tfb.mimeType,
			RedirectUrl: tfb.redirect,
		},
	}
}

// CreatePhysically creates the file on disk in the given base directory
func (tfb *TestFileBuilder) CreatePhysically(t *testing.T, baseDir string) string {
	t.Helper()

	fullPath := filepath.Join(baseDir, tfb.path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", tfb.path, err)
	}
	if err := os.WriteFile(fullPath, []byte(tfb.content), 0644); err != nil {
		t.Fatalf("Failed to create file %s: %v", fullPath, err)
	}
	return fullPath
}

// PostSource composes a markdown document with yaml front matter, the way
// an author would write a post. The date goes in unquoted, which is how
// the example content writes timestamps.
func PostSource(title, date string, tags []string, draft bool, body string) string {
	var sb strings.Builder
	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "title: %q\n", title)
	if date != "" {
		fmt.Fprintf(&sb, "date: %s\n", date)
	}
	if len(tags) > 0 {
		fmt.Fprintf(&sb, "tags: [%s]\n", strings.Join(tags, ", "))
	}
	if draft {
		sb.WriteString("draft: true\n")
	}
	sb.WriteString("---\n\n")
	sb.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		sb.WriteString("\n")
	}
	return sb.String()
}

// TestConfig returns a config with defaults suitable for tests.
func TestConfig(siteDirectory string) Config {
	config := NewDefaultConfig()
	config.SiteDirectory = siteDirectory
	return config
}

// ChangeCollector drains a watcher's batch channel during tests.
type ChangeCollector struct {
	mu      sync.Mutex
	batches [][]Change
	done    chan struct{}
}

// CollectChanges starts draining ch in the background. Collection ends
// when the channel closes or Stop is called.
func CollectChanges(ch <-chan []Change) *ChangeCollector {
	cc := &ChangeCollector{done: make(chan struct{})}
	go func() {
		for {
			select {
			case batch, ok := <-ch:
				if !ok {
					return
				}
				cc.mu.Lock()
				cc.batches = append(cc.batches, batch)
				cc.mu.Unlock()
			case <-cc.done:
				return
			}
		}
	}()
	return cc
}

// Stop ends collection and returns everything gathered so far.
func (cc *ChangeCollector) Stop() [][]Change {
	select {
	case <-cc.done:
	default:
		close(cc.done)
	}
	return cc.Batches()
}

// Batches returns a copy of the batches collected so far.
func (cc *ChangeCollector) Batches() [][]Change {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	out := make([][]Change, len(cc.batches))
	copy(out, cc.batches)
	return out
}

// WaitForBatches polls until at least n batches arrived or the timeout
// expires, and returns whatever is there by then.
func (cc *ChangeCollector) WaitForBatches(n int, timeout time.Duration) [][]Change {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if batches := cc.Batches(); len(batches) >= n {
			return batches
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cc.Batches()
}

// Changes flattens all collected batches in arrival order.
func (cc *ChangeCollector) Changes() []Change {
	var out []Change
	for _, batch := range cc.Batches() {
		out = append(out, batch...)
	}
	return out
}

// ChangesOfKind returns all collected changes of one kind.
func (cc *ChangeCollector) ChangesOfKind(kind ChangeKind) []Change {
	var out []Change
	for _, c := range cc.Changes() {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// ChangesForPath returns all collected changes for one path.
func (cc *ChangeCollector) ChangesForPath(path string) []Change {
	var out []Change
	for _, c := range cc.Changes() {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// TestEnvironment provides a complete test environment setup
type TestEnvironment struct {
	T           *testing.T
	TempDir     string
	Config      Config
	Context     *Context
	FileManager *FileManager
	Watcher     *SiteWatcher
	Router      *RouterManager
	Reloader    *SiteReloader
}

// NewTestEnvironment wires a file manager, watcher and router around a
// fresh site directory with the usual layout.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	tempDir := t.TempDir()

	standardDirs := []string{
		"content",
		"content/posts",
		"assets",
		"config",
		"layout",
	}

	for _, dir := range standardDirs {
		fullPath := filepath.Join(tempDir, dir)
		if err := os.MkdirAll(fullPath, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	fm := NewFileManager(tempDir)
	watcher, err := NewSiteWatcher()
	if err != nil {
		t.Fatalf("Failed to create SiteWatcher: %v", err)
	}

	rm := NewRouterManager()

	config := TestConfig(tempDir)
	fm.GetPluginManager().SetConfig(&config)

	ctx := &Context{
		Config:        config,
		FileManager:   fm,
		PluginManager: fm.GetPluginManager(),
		Watcher:       watcher,
	}

	if err := rm.InitializeRouter(ctx); err != nil {
		t.Fatalf("Failed to initialize router: %v", err)
	}

	return &TestEnvironment{
		T:           t,
		TempDir:     tempDir,
		Config:      config,
		Context:     ctx,
		FileManager: fm,
		Watcher:     watcher,
		Router:      rm,
	}
}

// Start starts the reloader and the watcher underneath it.
func (te *TestEnvironment) Start() *TestEnvironment {
	te.T.Helper()

	reloader, err := NewSiteReloader(te.Watcher, te.FileManager, te.Router)
	if err != nil {
		te.T.Fatalf("Failed to create SiteReloader: %v", err)
	}
	if err := reloader.Start(); err != nil {
		te.T.Fatalf("Failed to start SiteReloader: %v", err)
	}
	te.Reloader = reloader

	if err := te.Watcher.Start(te.TempDir); err != nil {
		te.T.Fatalf("Failed to start SiteWatcher: %v", err)
	}

	return te
}

// Stop stops all components
func (te *TestEnvironment) Stop() {
	if te.Watcher != nil && te.Watcher.IsRunning() {
		te.Watcher.Stop()
	}
	if te.Reloader != nil {
		te.Reloader.Stop()
	}
}

// WaitForProcessing waits out the watcher's settle window so pending
// changes reach the reloader, then runs the plugin pipeline over
// anything still marked stale.
func (te *TestEnvironment) WaitForProcessing(duration time.Duration) {
	time.Sleep(duration)
	te.FileManager.ProcessUpdatedFiles()
}

// AssertFileExists asserts that a file exists in the FileManager
func (te *TestEnvironment) AssertFileExists(filePath string) *File {
	te.T.Helper()

	file := te.FileManager.GetFile(filePath)
	if file == nil {
		te.T.Errorf("Expected file %s to exist in FileManager", filePath)
	}
	return file
}

// AssertFileNotExists asserts that a file does not exist in the FileManager
func (te *TestEnvironment) AssertFileNotExists(filePath string) {
	te.T.Helper()

	if file := te.FileManager.GetFile(filePath); file != nil {
		te.T.Errorf("Expected file %s not to exist in FileManager", filePath)
	}
}

// AssertRouteExists asserts that a route exists in the RouterManager
func (te *TestEnvironment) AssertRouteExists(routePath string) {
	te.T.Helper()

	if !te.Router.RouteExists(routePath) {
		te.T.Errorf("Expected route %s to exist, have %v", routePath, te.Router.SortedRoutes())
	}
}

// AssertRouteNotExists asserts that a route does not exist in the RouterManager
func (te *TestEnvironment) AssertRouteNotExists(routePath string) {
	te.T.Helper()

	if te.Router.RouteExists(routePath) {
		te.T.Errorf("Expected route %s not to exist", routePath)
	}
}
