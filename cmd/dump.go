package cmd

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"inkwell/core"
	"inkwell/site"
)

// Dump writes the processed state of every file, generated pages
// included, plus the whole context to the output directory. Used for
// testing: the result can be compared against a golden tree, and any
// deviation is a bug.
func Dump(ctx *core.Context) {
	ctxcopy := *ctx
	outDir := ctxcopy.Config.OutDirectory
	if err := os.MkdirAll(outDir, 0755); err != nil {
		log.Fatalf("Failed to create directory %s: %v", outDir, err)
	}

	// The derived pages are part of the state worth comparing
	blog := site.New(ctx)
	if _, _, err := blog.Refresh(); err != nil {
		log.Printf("Warning: failed to generate site pages: %v", err)
	}

	for path, file := range ctxcopy.FileManager.GetAllFiles() {
		dir := filepath.Join(outDir, filepath.Dir(path))
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to mkdir %s: %v", dir, err)
		}

		// One sidecar per file with everything the plugins derived
		sidecar := struct {
			Path     string            `yaml:"path"`
			Routes   []string          `yaml:"routes"`
			Metadata core.FileMetadata `yaml:"metadata"`
		}{
			Path:     file.Path,
			Routes:   file.Routes,
			Metadata: file.Metadata,
		}
		encoded, err := yaml.Marshal(&sidecar)
		if err != nil {
			log.Fatalf("Failed to marshal metadata for %s: %v", path, err)
		}
		sidecarPath := filepath.Join(dir, file.Name) + ".yaml"
		if err := os.WriteFile(sidecarPath, encoded, 0644); err != nil {
			log.Fatalf("Failed to create %s: %v", sidecarPath, err)
		}

		// Write the cached file content
		content := file.Content
		if content == nil {
			content = file.ReadFile(ctxcopy.Config.SiteDirectory)
		}
		outPath := filepath.Join(dir, file.Name)
		if err := os.WriteFile(outPath, content, 0644); err != nil {
			log.Fatalf("Failed to create %s: %v", outPath, err)
		}
	}

	// Filesystem has circular references which break the JSON serializer.
	// Remove them, and remove other unsupported types
	ctxcopy.Watcher = nil
	for _, file := range ctxcopy.FileManager.GetAllFiles() {
		file.Parent = nil
		file.Dependencies = nil
		file.Dependents = nil
		file.Content = nil
	}

	contextJson, err := json.MarshalIndent(&ctxcopy, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal context: %v", err)
	}

	outPath := filepath.Join(outDir, "context.json")
	if err := os.WriteFile(outPath, contextJson, 0644); err != nil {
		log.Fatalf("Failed to write %s: %v", outPath, err)
	}
}
