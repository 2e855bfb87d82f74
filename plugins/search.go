package plugins

import (
	"errors"
	"inkwell/core"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/gin-gonic/gin"
)

// SearchDocument is what gets indexed for every published page. The
// document ID is the source file path, which stays stable when a page
// moves between published and gated, so reindexing always replaces and
// deleting always finds the old entry. The served URL is a field.
type SearchDocument struct {
	Url    string    `json:"url"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	Tags   []string  `json:"tags"`
	Author string    `json:"author"`
	Date   time.Time `json:"date"`
}

type SearchResult struct {
	Url       string   `json:"url"`
	Title     string   `json:"title"`
	Score     int      `json:"score"`
	Fragments []string `json:"fragments,omitempty"`
}

type BuiltinSearchPlugin struct {
	index bleve.Index
	mu    sync.RWMutex
}

// NewSearchPlugin opens the full-text index. With an "index-path"
// parameter the index lives on disk and survives restarts; without one
// it is kept in memory and rebuilt on startup. Returns nil when the
// index cannot be opened.
func NewSearchPlugin(params map[string]string) *BuiltinSearchPlugin {
	var index bleve.Index
	var err error

	if indexPath := params["index-path"]; indexPath != "" {
		index, err = bleve.Open(indexPath)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			index, err = bleve.New(indexPath, bleve.NewIndexMapping())
		}
	} else {
		index, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	}

	if err != nil {
		core.Error("failed to open search index: %v", err)
		return nil
	}
	return &BuiltinSearchPlugin{index: index}
}

func (p *BuiltinSearchPlugin) Name() string {
	return "builtin/search"
}

func (p *BuiltinSearchPlugin) Priority() int {
	return 1000 // Run last, after the page plugins have filled in metadata
}

func (p *BuiltinSearchPlugin) CanProcess(file *core.File) bool {
	if !strings.HasPrefix(file.Path, "content/") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(file.Name))
	return ext == ".txt" || ext == ".md" || ext == ".markdown" || ext == ".html" || ext == ".htm"
}

func (p *BuiltinSearchPlugin) Process(ctx *core.PluginContext) *core.PluginResult {
	meta := &ctx.File.Metadata

	// Unpublished pages stay out of the index. A page that was indexed
	// while published gets its document deleted when it turns draft or
	// future-dated, so stale hits cannot point at a withdrawn URL.
	cfg := ctx.Config
	if meta.Draft && (cfg == nil || !cfg.IncludeDrafts()) {
		return p.dropDocument(ctx.File.Path)
	}
	if meta.IsFuture(time.Now()) && (cfg == nil || !cfg.IncludeFuture()) {
		return p.dropDocument(ctx.File.Path)
	}

	// Index the source text, not the rendered page: the layout would
	// drag navigation labels and footer text into every match
	raw := ctx.File.ReadFile(ctx.SiteDirectory)
	if raw == nil {
		return &core.PluginResult{
			Success: false,
		}
	}
	_, body, _, err := core.SplitFrontMatter(raw)
	if err != nil {
		body = raw
	}

	url := meta.Permalink
	if url == "" {
		url = "/" + strings.TrimPrefix(ctx.File.Path, "content/")
	}

	doc := SearchDocument{
		Url:    url,
		Title:  meta.Title,
		Body:   string(body),
		Tags:   meta.Tags,
		Author: meta.Author,
		Date:   meta.EffectiveDate(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.index.Index(ctx.File.Path, doc); err != nil {
		return &core.PluginResult{
			Success: false,
			Error:   err,
		}
	}

	return &core.PluginResult{
		Success: true,
	}
}

// dropDocument removes a page from the index. Deleting an ID that was
// never indexed is a no-op for bleve, so gated pages that were gated
// all along pass through here too.
func (p *BuiltinSearchPlugin) dropDocument(path string) *core.PluginResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.index.Delete(path); err != nil {
		return &core.PluginResult{
			Success: false,
			Error:   err,
		}
	}
	return &core.PluginResult{Success: true}
}

// FileRemoved drops a deleted source from the index; the file manager
// calls this when a content file disappears from disk.
func (p *BuiltinSearchPlugin) FileRemoved(path string) {
	if !strings.HasPrefix(path, "content/") {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.index.Delete(path); err != nil {
		core.Error("failed to drop %s from the search index: %v", path, err)
	}
}

// GetSearchResults searches the index for a term
func (p *BuiltinSearchPlugin) GetSearchResults(query string, limit int) ([]SearchResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	searchRequest := bleve.NewSearchRequest(bleve.NewQueryStringQuery(query))
	searchRequest.Size = limit
	searchRequest.Highlight = bleve.NewHighlight()
	searchRequest.Fields = []string{"title", "url"}

	searchResults, err := p.index.Search(searchRequest)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(searchResults.Hits))
	for i, hit := range searchResults.Hits {
		result := SearchResult{
			Score: int(hit.Score * 1000),
		}
		if url, ok := hit.Fields["url"].(string); ok {
			result.Url = url
		}
		if title, ok := hit.Fields["title"].(string); ok {
			result.Title = title
		}
		result.Fragments = append(result.Fragments, hit.Fragments["body"]...)
		results[i] = result
	}

	return results, nil
}

// Handler serves /api/search?q=...&limit=...
func (p *BuiltinSearchPlugin) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := strings.TrimSpace(c.Query("q"))
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
			return
		}

		limit := 20
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		core.RecordSearchQuery()
		timer := core.NewSearchTimer()
		results, err := p.GetSearchResults(query, limit)
		timer.ObserveDuration()

		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"query":   query,
			"count":   len(results),
			"results": results,
		})
	}
}

// Close flushes a persistent index to disk.
func (p *BuiltinSearchPlugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index.Close()
}
