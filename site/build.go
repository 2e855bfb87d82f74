package site

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"inkwell/core"
)

// BuildResult summarizes one static build.
type BuildResult struct {
	BuildID string
	Pages   int
	Skipped int
	Assets  int
}

// Builder renders every registered route into a static file tree that
// any web server can host. Routes without an extension become
// directories with an index.html, so /posts/alembic-basics serves from
// posts/alembic-basics/index.html.
type Builder struct {
	ctx *core.Context
	rm  *core.RouterManager
}

func NewBuilder(ctx *core.Context, rm *core.RouterManager) *Builder {
	return &Builder{ctx: ctx, rm: rm}
}

func (b *Builder) Build(outDir string) (*BuildResult, error) {
	if outDir == "" {
		return nil, core.ErrOutputDirMissing
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	manifest := loadManifest(outDir)
	result := &BuildResult{BuildID: uuid.NewString()}

	fm := b.ctx.FileManager
	routes := b.rm.GetAllRoutes()

	keptPages := make(map[string]bool)
	for _, pattern := range b.rm.SortedRoutes() {
		filePath := routes[pattern]
		file := fm.GetFile(filePath)
		if file == nil {
			core.Warn("build: route %s points at missing file %s", pattern, filePath)
			continue
		}

		content := file.Content
		if content == nil {
			content = file.ReadFile(b.ctx.Config.SiteDirectory)
		}
		if content == nil {
			core.Warn("build: no content for %s", filePath)
			continue
		}

		keptPages[pattern] = true
		if err := b.writePage(manifest, result, outDir, pattern, file.Path, content); err != nil {
			return nil, err
		}
	}

	// Static hosts serve 404.html for unmatched paths. The page has no
	// route of its own, so the loop above never sees it.
	if nf := fm.GetFile(generatedPath("404.html")); nf != nil && nf.Content != nil {
		keptPages["/404.html"] = true
		if err := b.writePage(manifest, result, outDir, "/404.html", nf.Path, nf.Content); err != nil {
			return nil, err
		}
	}

	keptAssets, err := b.copyAssets(manifest, result, outDir)
	if err != nil {
		return nil, err
	}

	manifest.prune(keptPages, keptAssets)
	manifest.BuildID = result.BuildID
	manifest.GeneratedAt = time.Now()
	if err := manifest.save(outDir); err != nil {
		return nil, err
	}

	return result, nil
}

func (b *Builder) writePage(manifest *buildManifest, result *BuildResult, outDir, pattern, source string, content []byte) error {
	rel := outputPath(pattern)
	outputAbs := filepath.Join(outDir, filepath.FromSlash(rel))

	checksum := checksumBytes(content)
	if manifest.pageUpToDate(pattern, checksum, outputAbs) {
		result.Skipped++
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(outputAbs), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(outputAbs, content, 0644); err != nil {
		return err
	}

	manifest.Pages[pattern] = manifestPage{
		Route:     pattern,
		Source:    source,
		Output:    rel,
		Checksum:  checksum,
		Size:      len(content),
		WrittenAt: time.Now(),
	}
	result.Pages++
	return nil
}

// copyAssets mirrors the assets directory into the output tree. A site
// without assets is fine.
func (b *Builder) copyAssets(manifest *buildManifest, result *BuildResult, outDir string) (map[string]bool, error) {
	kept := make(map[string]bool)
	assetDir := filepath.Join(b.ctx.Config.SiteDirectory, "assets")

	err := filepath.WalkDir(assetDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(assetDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}

		kept[rel] = true
		outputRel := path.Join("assets", rel)
		outputAbs := filepath.Join(outDir, filepath.FromSlash(outputRel))

		checksum := checksumBytes(data)
		if manifest.assetUpToDate(rel, checksum, outputAbs) {
			result.Skipped++
			return nil
		}

		if err := os.MkdirAll(filepath.Dir(outputAbs), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(outputAbs, data, 0644); err != nil {
			return err
		}

		manifest.Assets[rel] = manifestAsset{
			Source:   outputRel,
			Output:   outputRel,
			Checksum: checksum,
			Size:     int64(len(data)),
			CopiedAt: time.Now(),
		}
		result.Assets++
		return nil
	})
	return kept, err
}

// outputPath maps a route to its file below the output directory.
func outputPath(route string) string {
	route = strings.TrimPrefix(route, "/")
	if route == "" {
		return "index.html"
	}
	if path.Ext(route) != "" {
		return route
	}
	return route + "/index.html"
}
