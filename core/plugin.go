package core

import (
	"fmt"
	"sort"
	"sync"
)

// PluginContext provides context information to plugins
type PluginContext struct {
	File          *File
	FileManager   *FileManager
	Config        *Config
	SiteDirectory string // Path to the site root
}

// GeneratedFile is an additional file a plugin wants published alongside
// the one it processed, e.g. a redirect stub for a page alias.
type GeneratedFile struct {
	Path     string
	Routes   []string
	Content  []byte
	Metadata FileMetadata
}

// PluginResult represents the result of plugin execution
type PluginResult struct {
	Success      bool
	Error        error
	Modified     bool            // Whether the file was modified
	NewContent   []byte          // New content if file was modified
	Generated    []GeneratedFile // Additional files created
	MimeType     string          // mime type of the file
	Routes       []string        // Routes this file should be associated with
	Dependencies []*File         // Dependencies this file has
}

// FileRemovalNotifier is implemented by plugins that keep state of
// their own outside the file manager, e.g. a search index, and need to
// hear about deleted sources.
type FileRemovalNotifier interface {
	FileRemoved(path string)
}

// Plugin interface that all plugins must implement
type Plugin interface {
	// Name returns the plugin name
	Name() string

	// CanProcess determines if this plugin can process the given file
	CanProcess(file *File) bool

	// Process processes the file and returns the result
	Process(ctx *PluginContext) *PluginResult

	// Priority returns the execution priority (lower numbers = higher priority)
	Priority() int
}

// PluginManager manages all registered plugins
type PluginManager struct {
	mu      sync.RWMutex
	plugins []Plugin
	config  *Config
}

// NewPluginManager creates a new plugin manager
func NewPluginManager() *PluginManager {
	return &PluginManager{
		plugins: make([]Plugin, 0),
	}
}

// SetConfig hands the site configuration to plugin invocations.
func (pm *PluginManager) SetConfig(config *Config) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.config = config
}

// RegisterPlugin registers a new plugin
func (pm *PluginManager) RegisterPlugin(plugin Plugin) {
	if plugin == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.plugins = append(pm.plugins, plugin)

	// Sort plugins by priority (lower numbers first)
	sort.Slice(pm.plugins, func(i, j int) bool {
		return pm.plugins[i].Priority() < pm.plugins[j].Priority()
	})

	SetPluginsCount(len(pm.plugins))
}

// GetPluginsForFile returns all plugins that can process the given file
func (pm *PluginManager) GetPluginsForFile(file *File) []Plugin {
	if file == nil {
		return nil
	}

	pm.mu.RLock()
	defer pm.mu.RUnlock()

	var matchingPlugins []Plugin
	for _, plugin := range pm.plugins {
		if plugin.CanProcess(file) {
			matchingPlugins = append(matchingPlugins, plugin)
		}
	}

	return matchingPlugins
}

// ListPlugins returns information about all registered plugins
func (pm *PluginManager) ListPlugins() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if len(pm.plugins) == 0 {
		return nil
	}

	list := make([]string, 0, len(pm.plugins))
	for _, plugin := range pm.plugins {
		list = append(list, fmt.Sprintf("%s (priority: %d)", plugin.Name(), plugin.Priority()))
	}

	return list
}

// NotifyFileRemoved tells interested plugins that a source file is gone,
// so state they keep about it (like index entries) can follow.
func (pm *PluginManager) NotifyFileRemoved(path string) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, plugin := range pm.plugins {
		if notifier, ok := plugin.(FileRemovalNotifier); ok {
			notifier.FileRemoved(path)
		}
	}
}

// Processes a file with all applicable plugins. Returns a copy of the modified file.
func (pm *PluginManager) Process(copy File, fm *FileManager) *File {
	plugins := pm.GetPluginsForFile(&copy)

	pm.mu.RLock()
	config := pm.config
	pm.mu.RUnlock()

	ctx := &PluginContext{
		File:          &copy,
		FileManager:   fm,
		Config:        config,
		SiteDirectory: fm.SiteDirectory,
	}

	var produced []string

	for _, plugin := range plugins {
		timer := NewPluginExecutionTimer()
		result := plugin.Process(ctx)
		timer.ObserveDuration()

		if result == nil {
			continue
		}
		if result.Error != nil {
			RecordPluginError()
			Warn("plugin %s: %v", plugin.Name(), NewPluginError(plugin.Name(), copy.Path, result.Error))
		}

		// If plugin modified the file content, update it
		if result.Modified && result.NewContent != nil {
			copy.Content = result.NewContent
		}

		// Publish additional files the plugin produced, e.g. alias
		// redirect stubs pointing at a post's canonical permalink
		for _, gen := range result.Generated {
			fm.AddGeneratedFile(gen.Path, gen.Routes, gen.Content, gen.Metadata)
			produced = append(produced, gen.Path)
		}

		// Store dependencies
		for _, dep := range result.Dependencies {
			copy.AddDependency(dep)
		}

		// Merge metadata
		if result.MimeType != "" {
			copy.Metadata.MimeType = result.MimeType
		}

		// Collect routes. An empty but non-nil slice is meaningful: the
		// plugin withdrew the page, e.g. a post that turned draft while
		// serving, and its previous routes must not survive the rerun.
		if result.Routes != nil {
			copy.Routes = result.Routes
		}
	}

	// Synthetic files from earlier runs that this run no longer
	// produced, e.g. the stub of an alias edited away, get retired
	fm.SyncGenerated(copy.Path, produced)

	return &copy
}
