package core

import (
	"log"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// GeneratedPrefix is the virtual directory that holds synthetic files
// such as listing pages, feeds and the sitemap. Nothing under it exists
// on disk.
const GeneratedPrefix = "generated"

// File is one tracked site file. Content holds the processed bytes the
// router serves; nil means the file is stale and the next plugin run
// rebuilds it.
type File struct {
	Name    string
	Path    string   // relative to Config.SiteDirectory
	Routes  []string // URL paths this file is served under
	Content []byte
	Parent  *Directory

	// Generated files are produced by the site itself (listings, feeds)
	// and have no source on disk. Plugins never touch them.
	Generated bool

	// Dependencies are the files this one is built from, Dependents the
	// inverse. Invalidating a file cascades along Dependents.
	Dependencies map[string]*File
	Dependents   map[string]*File

	Metadata FileMetadata
}

// Directory is one node of the site tree. The root has an empty Path
// and a nil Parent.
type Directory struct {
	Name    string
	Path    string
	Parent  *Directory
	Subdirs map[string]*Directory
	Files   map[string]*File

	// Section metadata, read from the index page of the directory
	Metadata DirectoryMetadata
}

// FileManager tracks every site file both in a directory tree and in a
// flat path index, and owns the plugin chain that turns sources into
// servable content.
type FileManager struct {
	mu            sync.RWMutex // guards the tree and the index
	root          *Directory
	Files         map[string]*File // index by path relative to SiteDirectory
	SiteDirectory string
	pluginManager *PluginManager

	// generatedBy remembers which synthetic files each source produced
	// on its last plugin run; retired collects the ones dropped since
	// the last drain, so the reloader can unmount their routes.
	generatedBy map[string][]string
	retired     []string
}

// NewFileManager returns an empty manager rooted at siteDirectory.
func NewFileManager(siteDirectory string) *FileManager {
	root := &Directory{
		Subdirs: make(map[string]*Directory),
		Files:   make(map[string]*File),
	}

	return &FileManager{
		root:          root,
		Files:         make(map[string]*File),
		pluginManager: NewPluginManager(),
		SiteDirectory: siteDirectory,
		generatedBy:   make(map[string][]string),
	}
}

// NeedsUpdate reports whether the next plugin run must rebuild the file.
func (f *File) NeedsUpdate() bool {
	return f.Content == nil && !f.Generated
}

// ReadFile loads the raw bytes from disk. Generated files return their
// in-memory content instead.
func (f *File) ReadFile(siteDirectory string) []byte {
	if f.Generated {
		return f.Content
	}
	path := filepath.Join(siteDirectory, f.Path)
	body, err := os.ReadFile(path)
	if err != nil {
		log.Printf("failed to read file %s: %v", path, err)
		return nil
	}
	return body
}

// IsPost reports whether the file lives in the posts section.
func (f *File) IsPost() bool {
	return strings.HasPrefix(f.Path, filepath.Join("content", "posts")+string(filepath.Separator))
}

// AddDependency records that f is built from other, so invalidating
// other also invalidates f.
func (f *File) AddDependency(other *File) {
	f.Dependencies[other.Path] = other
	other.Dependents[f.Path] = f
}

// MarkForUpdate invalidates the file's processed content and cascades
// to every file that depends on it
func (f *File) MarkForUpdate() {
	f.invalidate(make(map[string]bool))
}

// invalidate drops the content of f and its dependents. The seen set
// breaks dependency cycles.
func (f *File) invalidate(seen map[string]bool) {
	if seen[f.Path] {
		return
	}
	seen[f.Path] = true

	// Generated files are replaced wholesale, their content never
	// goes stale.
	if !f.Generated {
		f.Content = nil
	}

	for _, dep := range f.Dependents {
		dep.invalidate(seen)
	}
}

// GetPluginManager returns the plugin chain files are processed with.
func (fm *FileManager) GetPluginManager() *PluginManager {
	return fm.pluginManager
}

// updateFilesMetric publishes the tracked file count (assumes lock is held)
func (fm *FileManager) updateFilesMetric() {
	SetFilesCount(len(fm.Files))
}

// ProcessAllFiles pushes every source file through the plugin chain,
// including the ones that are up to date (thread-safe)
func (fm *FileManager) ProcessAllFiles() {
	fm.mu.RLock()
	files := make([]*File, 0, len(fm.Files))
	for _, file := range fm.Files {
		if !file.Generated {
			files = append(files, file)
		}
	}
	fm.mu.RUnlock()

	fm.runPlugins(files)
}

// ProcessUpdatedFiles pushes the files whose content was invalidated,
// e.g. by an edit on disk, through the plugin chain (thread-safe)
func (fm *FileManager) ProcessUpdatedFiles() {
	fm.mu.RLock()
	var stale []*File
	for _, file := range fm.Files {
		if file.NeedsUpdate() {
			stale = append(stale, file)
		}
	}
	fm.mu.RUnlock()

	fm.runPlugins(stale)
}

// runPlugins processes each file outside the locks, since plugin code
// may be slow, and swaps the processed copy back into the index.
func (fm *FileManager) runPlugins(files []*File) {
	for _, file := range files {
		processed := fm.pluginManager.Process(*file, fm)

		fm.mu.Lock()
		fm.Files[processed.Path] = processed
		fm.mu.Unlock()
	}
}

// GetRoot returns the root directory (thread-safe)
func (fm *FileManager) GetRoot() *Directory {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return fm.root
}

// lookupDir descends the tree one path segment at a time and returns
// the directory at path, or nil if any segment is missing (assumes
// lock is held). "" and "." name the root.
func (fm *FileManager) lookupDir(path string) *Directory {
	dir := fm.root
	if path == "" || path == "." {
		return dir
	}

	for _, part := range strings.Split(filepath.Clean(path), string(filepath.Separator)) {
		if part == "" || part == "." {
			continue
		}
		dir = dir.Subdirs[part]
		if dir == nil {
			return nil
		}
	}
	return dir
}

// createDirectory ensures the directory and all its parents exist in
// the tree (assumes lock is held). The root's empty Path makes the
// Join below produce clean relative paths for every level.
func (fm *FileManager) createDirectory(path string) *Directory {
	current := fm.root
	if path == "" || path == "." {
		return current
	}

	for _, part := range strings.Split(filepath.Clean(path), string(filepath.Separator)) {
		if part == "" || part == "." {
			continue
		}

		subdir := current.Subdirs[part]
		if subdir == nil {
			subdir = &Directory{
				Name:    part,
				Path:    filepath.Join(current.Path, part),
				Parent:  current,
				Subdirs: make(map[string]*Directory),
				Files:   make(map[string]*File),
			}
			current.Subdirs[part] = subdir
		}
		current = subdir
	}

	return current
}

// WalkDirectory recursively walks a directory and populates the FileManager
func (fm *FileManager) WalkDirectory(rootPath string) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	absRootPath := filepath.Join(fm.SiteDirectory, rootPath)
	err := filepath.Walk(absRootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Same skip rules as the watcher: dotfiles, editor scratch
		// files, and symlinks stay out of the manager.
		if ignoredName(info.Name()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		// Convert absolute path to relative path from siteDirectory,
		// e.g. "/content/posts/my-post.md")
		relPath, err := filepath.Rel(fm.SiteDirectory, path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			fm.createDirectory(relPath)
			return nil
		}

		// Walks are idempotent: a file that is already tracked keeps
		// its content and dependency state.
		if _, exists := fm.Files[relPath]; exists {
			return nil
		}

		fileName := filepath.Base(relPath)
		parentDir := fm.createDirectory(filepath.Dir(relPath))
		file := &File{
			Name:         fileName,
			Path:         relPath,
			Parent:       parentDir,
			Content:      nil,
			Dependencies: make(map[string]*File),
			Dependents:   make(map[string]*File),
		}

		fm.Files[relPath] = file
		parentDir.Files[fileName] = file

		return nil
	})

	fm.updateFilesMetric()
	return err
}

// RemoveDirectory drops the subtree at rootPath and every file in it
// (thread-safe)
func (fm *FileManager) RemoveDirectory(rootPath string) {
	rootPath = filepath.Clean(rootPath)

	fm.mu.Lock()

	// Collect files first. The prefix match is separator-aware so that
	// removing "content/posts" leaves "content/posts-drafts" alone.
	var removed []string
	for path := range fm.Files {
		if strings.HasPrefix(path, rootPath+string(filepath.Separator)) {
			removed = append(removed, path)
		}
	}

	for _, path := range removed {
		fm.removeFileUnsafe(path)
		fm.dropGeneratedUnsafe(path)
	}

	// Unhook the subtree itself
	if dir := fm.lookupDir(rootPath); dir != nil {
		if parent := dir.Parent; parent != nil {
			delete(parent.Subdirs, dir.Name)
		}
	}

	fm.updateFilesMetric()
	fm.mu.Unlock()

	for _, path := range removed {
		fm.pluginManager.NotifyFileRemoved(path)
	}
}

// AddFile adds or updates a file in the manager, creating missing
// parent directories on the way (thread-safe)
func (fm *FileManager) AddFile(path string) *File {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	cleanPath := filepath.Clean(path)
	fileName := filepath.Base(cleanPath)
	parentDir := fm.createDirectory(filepath.Dir(cleanPath))

	file, exists := fm.Files[cleanPath]
	if !exists {
		file = &File{
			Name:         fileName,
			Path:         cleanPath,
			Parent:       parentDir,
			Dependencies: make(map[string]*File),
			Dependents:   make(map[string]*File),
		}
		fm.Files[cleanPath] = file
		parentDir.Files[fileName] = file
		fm.updateFilesMetric()
	}

	file.MarkForUpdate()
	return file
}

// AddGeneratedFile adds or replaces a synthetic file that has no source
// on disk, e.g. a listing page, a feed or the sitemap (thread-safe).
// The content is final: plugins skip generated files, and the router
// serves them like any other file.
func (fm *FileManager) AddGeneratedFile(path string, routes []string, content []byte, metadata FileMetadata) *File {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	cleanPath := filepath.Clean(path)
	fileName := filepath.Base(cleanPath)
	dirPath := filepath.Dir(cleanPath)

	parentDir := fm.root
	if dirPath != "." && dirPath != "" {
		parentDir = fm.createDirectory(dirPath)
	}

	file, exists := fm.Files[cleanPath]
	if !exists {
		file = &File{
			Name:         fileName,
			Path:         cleanPath,
			Parent:       parentDir,
			Dependencies: make(map[string]*File),
			Dependents:   make(map[string]*File),
		}
		fm.Files[cleanPath] = file
		parentDir.Files[fileName] = file
		fm.updateFilesMetric()
	}

	file.Generated = true
	file.Routes = routes
	file.Content = content
	file.Metadata = metadata
	return file
}

// RemoveFile drops a single file from the tree and the index, together
// with everything the file generated, and tells plugins that keep their
// own state about it (thread-safe)
func (fm *FileManager) RemoveFile(path string) {
	cleanPath := filepath.Clean(path)

	fm.mu.Lock()
	removed := fm.removeFileUnsafe(cleanPath)
	if removed {
		fm.dropGeneratedUnsafe(cleanPath)
	}
	fm.updateFilesMetric()
	fm.mu.Unlock()

	if removed {
		fm.pluginManager.NotifyFileRemoved(cleanPath)
	}
}

// removeFileUnsafe drops one path from the tree and the index and
// reports whether it was tracked (assumes lock is held).
func (fm *FileManager) removeFileUnsafe(cleanPath string) bool {
	file, exists := fm.Files[cleanPath]
	if !exists {
		return false
	}

	delete(fm.Files, cleanPath)
	if file.Parent != nil {
		delete(file.Parent.Files, file.Name)
	}

	// Dependents re-render without the file, then forget it.
	file.MarkForUpdate()
	for _, f := range fm.Files {
		delete(f.Dependencies, cleanPath)
		delete(f.Dependents, cleanPath)
	}

	return true
}

// dropGeneratedUnsafe retires every synthetic file the source produced,
// e.g. its alias redirect stubs (assumes lock is held).
func (fm *FileManager) dropGeneratedUnsafe(source string) {
	for _, gen := range fm.generatedBy[source] {
		if fm.removeFileUnsafe(gen) {
			fm.retired = append(fm.retired, gen)
		}
	}
	delete(fm.generatedBy, source)
}

// SyncGenerated records which synthetic files a source produced on its
// latest plugin run and retires the ones from earlier runs that did not
// come back, e.g. the redirect stub of an alias removed from the front
// matter (thread-safe).
func (fm *FileManager) SyncGenerated(source string, produced []string) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	keep := make(map[string]bool, len(produced))
	cleaned := make([]string, 0, len(produced))
	for _, p := range produced {
		p = filepath.Clean(p)
		keep[p] = true
		cleaned = append(cleaned, p)
	}

	for _, old := range fm.generatedBy[source] {
		if keep[old] {
			continue
		}
		if fm.removeFileUnsafe(old) {
			fm.retired = append(fm.retired, old)
		}
	}

	if len(cleaned) == 0 {
		delete(fm.generatedBy, source)
	} else {
		fm.generatedBy[source] = cleaned
	}
	fm.updateFilesMetric()
}

// GeneratedFor returns the synthetic files the source produced on its
// last plugin run (thread-safe).
func (fm *FileManager) GeneratedFor(source string) []*File {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	var files []*File
	for _, path := range fm.generatedBy[filepath.Clean(source)] {
		if file := fm.Files[path]; file != nil {
			files = append(files, file)
		}
	}
	return files
}

// DrainRetiredGenerated returns the synthetic files retired since the
// last call, so the caller can unmount their routes (thread-safe).
func (fm *FileManager) DrainRetiredGenerated() []string {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	retired := fm.retired
	fm.retired = nil
	return retired
}

// GetFile returns a file by its full path (thread-safe)
func (fm *FileManager) GetFile(path string) *File {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	cleanPath := filepath.Clean(path)
	return fm.Files[cleanPath]
}

// GetDirectory returns a directory by its full path, or nil if it is
// not tracked (thread-safe)
func (fm *FileManager) GetDirectory(path string) *Directory {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return fm.lookupDir(path)
}

// SetDirectoryMetadata attaches section metadata, usually read from an
// index page's front matter, to the directory it describes (thread-safe)
func (fm *FileManager) SetDirectoryMetadata(path string, metadata DirectoryMetadata) bool {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	dir := fm.lookupDir(path)
	if dir == nil {
		return false
	}
	dir.Metadata = metadata
	return true
}

// GetAllFiles returns a snapshot of the path index (thread-safe)
func (fm *FileManager) GetAllFiles() map[string]*File {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	m := make(map[string]*File, len(fm.Files))
	maps.Copy(m, fm.Files)
	return m
}

// GetFilesByPrefix returns all files whose path starts with the given
// prefix, e.g. "content/posts" (thread-safe)
func (fm *FileManager) GetFilesByPrefix(prefix string) map[string]*File {
	m := make(map[string]*File)

	fm.mu.RLock()
	defer fm.mu.RUnlock()

	clean := filepath.Clean(prefix)
	for path, file := range fm.Files {
		if path == clean || strings.HasPrefix(path, clean+string(filepath.Separator)) {
			m[path] = file
		}
	}
	return m
}
