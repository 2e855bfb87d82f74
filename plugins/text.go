package plugins

import (
	"inkwell/core"
	"path"
	"strings"
)

// plainTypes maps extensions served verbatim to their MIME types.
// Blogs keep more than pages in the content tree: PGP keys next to a
// contact page, CSV data referenced by a post, calendar files.
var plainTypes = map[string]string{
	".txt":  "text/plain; charset=utf-8",
	".text": "text/plain; charset=utf-8",
	".asc":  "text/plain; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
	".ics":  "text/calendar; charset=utf-8",
}

// BuiltinTextPlugin serves plain files from the content tree as-is.
type BuiltinTextPlugin struct{}

func (p *BuiltinTextPlugin) Name() string {
	return "builtin/text"
}

func (p *BuiltinTextPlugin) Priority() int {
	return 100
}

func (p *BuiltinTextPlugin) CanProcess(file *core.File) bool {
	// Plain files outside content/ (layout, config) are never served
	if !strings.HasPrefix(file.Path, "content/") {
		return false
	}
	_, ok := plainTypes[strings.ToLower(path.Ext(file.Name))]
	return ok
}

func (p *BuiltinTextPlugin) Process(ctx *core.PluginContext) *core.PluginResult {
	content := ctx.File.ReadFile(ctx.SiteDirectory)
	if content == nil {
		return &core.PluginResult{
			Success: false,
		}
	}

	// Unlike pages, plain files keep their extension in the route:
	// content/notes/key.asc is served at /notes/key.asc and nowhere else.
	route := path.Clean("/" + strings.TrimPrefix(ctx.File.Path, "content/"))

	return &core.PluginResult{
		Success:    true,
		Modified:   true,
		NewContent: content,
		MimeType:   plainTypes[strings.ToLower(path.Ext(ctx.File.Name))],
		Routes:     []string{route},
	}
}
