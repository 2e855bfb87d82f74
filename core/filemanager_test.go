package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNewFileManager(t *testing.T) {
	siteDir := "/test/site"
	fm := NewFileManager(siteDir)

	if fm == nil {
		t.Fatal("NewFileManager returned nil")
	}

	if fm.SiteDirectory != siteDir {
		t.Errorf("Expected SiteDirectory %s, got %s", siteDir, fm.SiteDirectory)
	}

	if fm.Files == nil {
		t.Error("Files map is nil")
	}

	root := fm.GetRoot()
	if root == nil {
		t.Error("Root directory is nil")
	}

	if root.Name != "" {
		t.Errorf("Expected root name to be empty, got %s", root.Name)
	}

	if root.Parent != nil {
		t.Error("Root should have no parent")
	}
}

func TestFileNeedsUpdate(t *testing.T) {
	file := &File{
		Name:         "about.md",
		Path:         "content/about.md",
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	// File with nil content needs update
	if !file.NeedsUpdate() {
		t.Error("File with nil content should need update")
	}

	// File with content doesn't need update
	file.Content = []byte("content")
	if file.NeedsUpdate() {
		t.Error("File with content should not need update")
	}
}

func TestFileReadFile(t *testing.T) {
	// Create temporary directory and file
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "about.md")
	testContent := []byte("# About")

	err := os.WriteFile(testFile, testContent, 0644)
	if err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	file := &File{
		Name: "about.md",
		Path: "about.md",
	}

	content := file.ReadFile(tempDir)
	if content == nil {
		t.Error("ReadFile returned nil for existing file")
	}

	if string(content) != string(testContent) {
		t.Errorf("Expected content %s, got %s", testContent, content)
	}

	// Test non-existent file
	file.Path = "nonexistent.md"
	content = file.ReadFile(tempDir)
	if content != nil {
		t.Error("ReadFile should return nil for non-existent file")
	}
}

func TestFileIsPost(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"content/posts/alembic.md", true},
		{"content/posts/2026/deep.md", true},
		{"content/about.md", false},
		{"content/posts.md", false},
		{"layout/header.html", false},
	}

	for _, tt := range tests {
		file := &File{Path: tt.path}
		if got := file.IsPost(); got != tt.want {
			t.Errorf("IsPost(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFileAddDependency(t *testing.T) {
	page := &File{
		Name:         "about.md",
		Path:         "content/about.md",
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	header := &File{
		Name:         "header.html",
		Path:         "layout/header.html",
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	page.AddDependency(header)

	// Check that the page depends on the header
	if dep, exists := page.Dependencies[header.Path]; !exists || dep != header {
		t.Error("Dependency not added correctly")
	}

	// Check that the header has the page as dependent
	if dep, exists := header.Dependents[page.Path]; !exists || dep != page {
		t.Error("Dependent not added correctly")
	}
}

func TestFileMarkForUpdate(t *testing.T) {
	// Create a dependency chain: header <- post <- listing
	header := &File{
		Name:         "header.html",
		Path:         "layout/header.html",
		Content:      []byte("<html>"),
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	post := &File{
		Name:         "first.md",
		Path:         "content/posts/first.md",
		Content:      []byte("# First"),
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	listing := &File{
		Name:         "index.html",
		Path:         "generated/index.html",
		Generated:    true,
		Content:      []byte("<h1>Posts</h1>"),
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	post.AddDependency(header)
	listing.AddDependency(post)

	// A layout change invalidates the post and its listing
	header.MarkForUpdate()

	if header.Content != nil {
		t.Error("header should be marked for update")
	}
	if post.Content != nil {
		t.Error("post should be marked for update (dependent)")
	}
	// Generated files have no source to re-read; their content stays
	// until the next refresh replaces it
	if listing.Content == nil {
		t.Error("generated listing content should survive until regenerated")
	}
}

func TestFileMarkForUpdateCircularDependency(t *testing.T) {
	// Create circular dependency: file1 -> file2 -> file1
	file1 := &File{
		Name:         "a.md",
		Path:         "content/a.md",
		Content:      []byte("content1"),
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	file2 := &File{
		Name:         "b.md",
		Path:         "content/b.md",
		Content:      []byte("content2"),
		Dependencies: make(map[string]*File),
		Dependents:   make(map[string]*File),
	}

	file1.AddDependency(file2)
	file2.AddDependency(file1)

	// This should not cause infinite recursion
	file1.MarkForUpdate()

	if file1.Content != nil {
		t.Error("file1 should be marked for update")
	}
	if file2.Content != nil {
		t.Error("file2 should be marked for update")
	}
}

func TestFileManagerAddFile(t *testing.T) {
	fm := NewFileManager("/test")

	// Add file to root
	file := fm.AddFile("robots.txt")
	if file == nil {
		t.Fatal("AddFile returned nil")
	}

	if file.Name != "robots.txt" {
		t.Errorf("Expected name robots.txt, got %s", file.Name)
	}

	if file.Path != "robots.txt" {
		t.Errorf("Expected path robots.txt, got %s", file.Path)
	}

	// Check file is in Files map
	retrievedFile := fm.GetFile("robots.txt")
	if retrievedFile != file {
		t.Error("File not properly stored in Files map")
	}

	// Check file is in parent directory
	root := fm.GetRoot()
	if root.Files["robots.txt"] != file {
		t.Error("File not properly stored in parent directory")
	}
}

func TestFileManagerAddFileInSubdirectory(t *testing.T) {
	fm := NewFileManager("/test")

	// Create directory structure first
	fm.createDirectory("content")

	// Add file to subdirectory
	file := fm.AddFile("content/about.md")
	if file == nil {
		t.Fatal("AddFile returned nil")
	}

	if file.Name != "about.md" {
		t.Errorf("Expected name about.md, got %s", file.Name)
	}

	if file.Path != "content/about.md" {
		t.Errorf("Expected path content/about.md, got %s", file.Path)
	}

	// Check file is in correct directory
	subdir := fm.GetDirectory("content")
	if subdir == nil {
		t.Fatal("Subdirectory not found")
	}

	if subdir.Files["about.md"] != file {
		t.Error("File not properly stored in subdirectory")
	}
}

func TestFileManagerAddGeneratedFile(t *testing.T) {
	fm := NewFileManager("/test")

	meta := FileMetadata{MimeType: "text/html", Title: "Posts"}
	file := fm.AddGeneratedFile("generated/posts.html", []string{"/posts"}, []byte("<h1>Posts</h1>"), meta)
	if file == nil {
		t.Fatal("AddGeneratedFile returned nil")
	}

	if !file.Generated {
		t.Error("Expected file to be marked generated")
	}
	if file.Parent == nil || file.Parent.Name != "generated" {
		t.Error("Expected parent directory to be created")
	}
	if fm.GetFile("generated/posts.html") != file {
		t.Error("Generated file not stored in Files map")
	}

	// Regenerating the page must mutate the same object: route handlers
	// resolve files lazily by path, but listeners hold the pointer
	updated := fm.AddGeneratedFile("generated/posts.html", []string{"/posts"}, []byte("<h1>Updated</h1>"), meta)
	if updated != file {
		t.Error("Expected regeneration to reuse the same file object")
	}
	if string(file.Content) != "<h1>Updated</h1>" {
		t.Errorf("Expected content to be replaced, got %s", file.Content)
	}
}

func TestFileManagerGetFilesByPrefix(t *testing.T) {
	fm := NewFileManager("/test")

	fm.createDirectory("content/posts")
	fm.createDirectory("layout")
	fm.AddFile("content/about.md")
	fm.AddFile("content/posts/first.md")
	fm.AddFile("content/posts/second.md")
	fm.AddFile("layout/header.html")

	posts := fm.GetFilesByPrefix("content/posts")
	if len(posts) != 2 {
		t.Fatalf("Expected 2 posts, got %d", len(posts))
	}
	if _, ok := posts["content/posts/first.md"]; !ok {
		t.Error("first.md missing from prefix query")
	}

	content := fm.GetFilesByPrefix("content")
	if len(content) != 3 {
		t.Errorf("Expected 3 content files, got %d", len(content))
	}

	// A prefix is a path segment, not a string prefix
	if files := fm.GetFilesByPrefix("content/post"); len(files) != 0 {
		t.Errorf("Expected no files for partial segment, got %d", len(files))
	}
}

func TestFileManagerSetDirectoryMetadata(t *testing.T) {
	fm := NewFileManager("/test")
	fm.createDirectory("content/posts")

	ok := fm.SetDirectoryMetadata("content/posts", DirectoryMetadata{
		Title:       "Posts",
		Description: "All articles",
	})
	if !ok {
		t.Fatal("SetDirectoryMetadata failed for existing directory")
	}

	dir := fm.GetDirectory("content/posts")
	if dir.Metadata.Title != "Posts" {
		t.Errorf("Expected directory title Posts, got %s", dir.Metadata.Title)
	}

	if fm.SetDirectoryMetadata("content/nope", DirectoryMetadata{}) {
		t.Error("Expected SetDirectoryMetadata to fail for missing directory")
	}
}

func TestFileManagerGetFile(t *testing.T) {
	fm := NewFileManager("/test")

	// Test non-existent file
	file := fm.GetFile("nonexistent.md")
	if file != nil {
		t.Error("GetFile should return nil for non-existent file")
	}

	// Add and retrieve file
	addedFile := fm.AddFile("about.md")
	retrievedFile := fm.GetFile("about.md")

	if retrievedFile != addedFile {
		t.Error("GetFile returned different file instance")
	}
}

func TestFileManagerGetDirectory(t *testing.T) {
	fm := NewFileManager("/test")

	// Test root directory
	root := fm.GetDirectory("")
	if root != fm.GetRoot() {
		t.Error("GetDirectory(\"\") should return root")
	}

	root = fm.GetDirectory(".")
	if root != fm.GetRoot() {
		t.Error("GetDirectory(\".\") should return root")
	}

	// Test non-existent directory
	dir := fm.GetDirectory("nonexistent")
	if dir != nil {
		t.Error("GetDirectory should return nil for non-existent directory")
	}

	// Create and retrieve directory
	created := fm.createDirectory("content")
	retrieved := fm.GetDirectory("content")

	if retrieved != created {
		t.Error("GetDirectory returned different directory instance")
	}
}

func TestFileManagerCreateDirectory(t *testing.T) {
	fm := NewFileManager("/test")

	// Test creating nested directories
	dir := fm.createDirectory("content/posts/2026")
	if dir == nil {
		t.Fatal("createDirectory returned nil")
	}

	if dir.Name != "2026" {
		t.Errorf("Expected name 2026, got %s", dir.Name)
	}

	if dir.Path != "content/posts/2026" {
		t.Errorf("Expected path content/posts/2026, got %s", dir.Path)
	}

	// Check parent relationships
	if dir.Parent.Name != "posts" {
		t.Error("Incorrect parent relationship")
	}

	// Check all levels exist
	level1 := fm.GetDirectory("content")
	level2 := fm.GetDirectory("content/posts")
	level3 := fm.GetDirectory("content/posts/2026")

	if level1 == nil || level2 == nil || level3 == nil {
		t.Error("Not all directory levels were created")
	}

	if level3 != dir {
		t.Error("Final directory doesn't match returned directory")
	}
}

func TestFileManagerWalkDirectory(t *testing.T) {
	// Create temporary directory structure
	tempDir := t.TempDir()

	// Create subdirectory and files
	subDir := filepath.Join(tempDir, "posts")
	err := os.Mkdir(subDir, 0755)
	if err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}

	// Create files
	err = os.WriteFile(filepath.Join(tempDir, "about.md"), []byte("# About"), 0644)
	if err != nil {
		t.Fatalf("Failed to create root file: %v", err)
	}

	err = os.WriteFile(filepath.Join(subDir, "first.md"), []byte("# First"), 0644)
	if err != nil {
		t.Fatalf("Failed to create sub file: %v", err)
	}

	// Create hidden file (should be ignored)
	err = os.WriteFile(filepath.Join(tempDir, ".hidden"), []byte("hidden"), 0644)
	if err != nil {
		t.Fatalf("Failed to create hidden file: %v", err)
	}

	fm := NewFileManager(tempDir)
	err = fm.WalkDirectory(".")
	if err != nil {
		t.Fatalf("WalkDirectory failed: %v", err)
	}

	// Check that files were added
	rootFile := fm.GetFile("about.md")
	if rootFile == nil {
		t.Error("about.md not found")
	}

	subFile := fm.GetFile("posts/first.md")
	if subFile == nil {
		t.Error("posts/first.md not found")
	}

	// Check that hidden file was ignored
	hiddenFile := fm.GetFile(".hidden")
	if hiddenFile != nil {
		t.Error("Hidden file should be ignored")
	}

	// Check directory structure
	subdir := fm.GetDirectory("posts")
	if subdir == nil {
		t.Error("posts directory not found")
	}

	if subdir.Files["first.md"] != subFile {
		t.Error("first.md not properly linked to subdirectory")
	}
}

func TestFileManagerRemoveFile(t *testing.T) {
	fm := NewFileManager("/test")

	fm.createDirectory("content")
	fm.createDirectory("layout")
	page := fm.AddFile("content/about.md")
	header := fm.AddFile("layout/header.html")
	page.AddDependency(header)

	fm.RemoveFile("content/about.md")

	if fm.GetFile("content/about.md") != nil {
		t.Error("Removed file still retrievable")
	}
	if _, ok := header.Dependents["content/about.md"]; ok {
		t.Error("Removed file still listed as dependent of the header")
	}

	// Removing a missing file is a no-op
	fm.RemoveFile("content/missing.md")
}

func TestFileManagerConcurrency(t *testing.T) {
	fm := NewFileManager("/test")

	const numGoroutines = 10
	const numFiles = 5

	var wg sync.WaitGroup

	// Test concurrent file additions
	for i := range numGoroutines {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := range numFiles {
				fileName := fmt.Sprintf("file_%d_%d.md", id, j)
				file := fm.AddFile(fileName)
				if file == nil {
					t.Errorf("Failed to add file %s", fileName)
				}
			}
		}(i)
	}

	wg.Wait()

	// Verify all files were added
	allFiles := fm.GetAllFiles()
	expectedCount := numGoroutines * numFiles
	if len(allFiles) != expectedCount {
		t.Errorf("Expected %d files, got %d", expectedCount, len(allFiles))
	}

	// Test concurrent processing
	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fm.ProcessAllFiles()
		}()
	}

	wg.Wait()
}

func TestFileManagerRaceCondition(t *testing.T) {
	fm := NewFileManager("/test")

	// Add initial files
	for i := range 100 {
		fm.AddFile(fmt.Sprintf("file_%d.md", i))
	}

	var wg sync.WaitGroup
	done := make(chan bool)

	// Start concurrent readers
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = fm.GetAllFiles()
					files := fm.GetAllFiles()
					for _, file := range files {
						_ = file.NeedsUpdate()
					}
					time.Sleep(time.Microsecond)
				}
			}
		}()
	}

	// Start concurrent writers
	for i := range 3 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				select {
				case <-done:
					return
				default:
					fileName := fmt.Sprintf("new_file_%d_%d.md", id, j)
					fm.AddFile(fileName)
					time.Sleep(time.Microsecond)
				}
			}
		}(i)
	}

	// Start file processors
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					fm.ProcessUpdatedFiles()
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}

	// Let it run for a short time
	time.Sleep(100 * time.Millisecond)
	close(done)
	wg.Wait()

	// If we get here without panicking, the race condition test passed
}

func TestGetAllFiles(t *testing.T) {
	fm := NewFileManager("/test")

	// Initially should be empty
	files := fm.GetAllFiles()
	if len(files) != 0 {
		t.Errorf("Expected 0 files initially, got %d", len(files))
	}

	// Add some files
	fm.AddFile("file1.md")
	fm.AddFile("file2.md")

	files = fm.GetAllFiles()
	if len(files) != 2 {
		t.Errorf("Expected 2 files, got %d", len(files))
	}

	// Check that we get copies, not references to internal state
	delete(files, "file1.md")

	filesAgain := fm.GetAllFiles()
	if len(filesAgain) != 2 {
		t.Error("GetAllFiles should return a copy, not a reference")
	}
}

// Benchmark tests
func BenchmarkFileManagerAddFile(b *testing.B) {
	fm := NewFileManager("/test")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fileName := fmt.Sprintf("file_%d.md", i)
		fm.AddFile(fileName)
	}
}

func BenchmarkFileManagerGetFile(b *testing.B) {
	fm := NewFileManager("/test")

	// Pre-populate with files
	for i := range 1000 {
		fileName := fmt.Sprintf("file_%d.md", i)
		fm.AddFile(fileName)
	}

	b.ResetTimer()
	for i := range b.N {
		fileName := fmt.Sprintf("file_%d.md", i%1000)
		fm.GetFile(fileName)
	}
}

func BenchmarkFileManagerProcessAllFiles(b *testing.B) {
	fm := NewFileManager("/test")

	// Pre-populate with files
	for i := range 100 {
		fileName := fmt.Sprintf("file_%d.md", i)
		fm.AddFile(fileName)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fm.ProcessAllFiles()
	}
}
