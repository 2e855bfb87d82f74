package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers branch on with errors.Is.
var (
	// Front matter parsing
	ErrNoFrontMatter      = errors.New("no front matter block")
	ErrInvalidFrontMatter = errors.New("invalid front matter")
	ErrUnknownFormat      = errors.New("unknown front matter format")

	// Watcher lifecycle
	ErrWatcherRunning    = errors.New("watcher is already running")
	ErrWatcherNotRunning = errors.New("watcher is not running")

	// Router
	ErrRouteExists   = errors.New("route already exists")
	ErrRouteNotFound = errors.New("route not found")

	// Static builds
	ErrOutputDirMissing = errors.New("output directory not set")
)

// FrontMatterError wraps front matter parse and validation failures
// with the content file they came from.
type FrontMatterError struct {
	Path string
	Err  error
}

func (e *FrontMatterError) Error() string {
	return fmt.Sprintf("front matter %s: %v", e.Path, e.Err)
}

func (e *FrontMatterError) Unwrap() error {
	return e.Err
}

func NewFrontMatterError(path string, err error) *FrontMatterError {
	return &FrontMatterError{
		Path: path,
		Err:  err,
	}
}

// PluginError carries which plugin failed on which file.
type PluginError struct {
	Plugin string
	File   string
	Err    error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s processing file %s: %v", e.Plugin, e.File, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

func NewPluginError(plugin, file string, err error) *PluginError {
	return &PluginError{
		Plugin: plugin,
		File:   file,
		Err:    err,
	}
}

// ValidationError reports a front matter field that failed validation.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s (value: %v): %s", e.Field, e.Value, e.Message)
}

func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}
