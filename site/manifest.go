package site

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	manifestFileName = ".inkwell-manifest.json"
	manifestVersion  = 1
)

// buildManifest records what the last build wrote, so unchanged pages
// and assets are skipped on the next run. It lives in the output
// directory next to the files it describes.
type buildManifest struct {
	Version     int                      `json:"version"`
	BuildID     string                   `json:"build_id"`
	GeneratedAt time.Time                `json:"generated_at"`
	Pages       map[string]manifestPage  `json:"pages"`
	Assets      map[string]manifestAsset `json:"assets"`
}

type manifestPage struct {
	Route     string    `json:"route"`
	Source    string    `json:"source"`
	Output    string    `json:"output"`
	Checksum  string    `json:"checksum"`
	Size      int       `json:"size"`
	WrittenAt time.Time `json:"written_at"`
}

type manifestAsset struct {
	Source   string    `json:"source"`
	Output   string    `json:"output"`
	Checksum string    `json:"checksum"`
	Size     int64     `json:"size"`
	CopiedAt time.Time `json:"copied_at"`
}

func newBuildManifest() *buildManifest {
	return &buildManifest{
		Version: manifestVersion,
		Pages:   map[string]manifestPage{},
		Assets:  map[string]manifestAsset{},
	}
}

// loadManifest reads the manifest of a previous build. A missing or
// unreadable manifest means a full rebuild, never a failure.
func loadManifest(outDir string) *buildManifest {
	data, err := os.ReadFile(filepath.Join(outDir, manifestFileName))
	if err != nil {
		return newBuildManifest()
	}
	var manifest buildManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return newBuildManifest()
	}
	if manifest.Pages == nil {
		manifest.Pages = map[string]manifestPage{}
	}
	if manifest.Assets == nil {
		manifest.Assets = map[string]manifestAsset{}
	}
	if manifest.Version == 0 {
		manifest.Version = manifestVersion
	}
	return &manifest
}

func (m *buildManifest) save(outDir string) error {
	// map keys serialize in sorted order, so output is deterministic
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(outDir, manifestFileName), append(data, '\n'), 0644)
}

// pageUpToDate reports whether a page can be skipped: same checksum as
// last time and the output file still on disk.
func (m *buildManifest) pageUpToDate(route, checksum, outputAbs string) bool {
	entry, ok := m.Pages[route]
	if !ok || entry.Checksum != checksum {
		return false
	}
	_, err := os.Stat(outputAbs)
	return err == nil
}

func (m *buildManifest) assetUpToDate(rel, checksum, outputAbs string) bool {
	entry, ok := m.Assets[rel]
	if !ok || entry.Checksum != checksum {
		return false
	}
	_, err := os.Stat(outputAbs)
	return err == nil
}

// prune drops manifest entries that the current build did not produce.
func (m *buildManifest) prune(pages, assets map[string]bool) {
	for key := range m.Pages {
		if !pages[key] {
			delete(m.Pages, key)
		}
	}
	for key := range m.Assets {
		if !assets[key] {
			delete(m.Assets, key)
		}
	}
}

func checksumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
