package plugins

import (
	"inkwell/core"
	"log"
	"strings"
)

type BuiltinHtmlPlugin struct {
	Context *core.Context
}

func (p *BuiltinHtmlPlugin) Name() string {
	return "builtin/html"
}

func (p *BuiltinHtmlPlugin) Priority() int {
	return 100
}

func (p *BuiltinHtmlPlugin) CanProcess(file *core.File) bool {
	// Ignore files in the layout directory
	if strings.HasPrefix(file.Path, "layout/") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(file.Name), ".html") ||
		strings.HasSuffix(strings.ToLower(file.Name), ".htm")
}

func (p *BuiltinHtmlPlugin) Process(ctx *core.PluginContext) *core.PluginResult {
	var body []byte

	log.Printf("START Processing html file: %s\n", ctx.File.Path)
	defer log.Printf("END   Processing html file: %s\n", ctx.File.Path)

	// HTML pages may carry front matter just like markdown pages
	content, failed := readPageSource(p.Name(), ctx)
	if failed != nil {
		return failed
	}
	meta := &ctx.File.Metadata

	cfg := &p.Context.Config
	if skipUnpublished(cfg, ctx.File) {
		return &core.PluginResult{Success: true, Routes: []string{}}
	}

	var result core.PluginResult

	// fetch the dependency files (header, footer) unless the layout is ignored
	if !meta.IgnoreLayout {
		header, footer := loadLayout(ctx)
		if header == nil || footer == nil {
			return &core.PluginResult{
				Success: false,
			}
		}

		result.Dependencies = []*core.File{header, footer}

		body = append(header.Content, content...)
		body = append(body, footer.Content...)
	} else {
		// If the layout is ignored, we still need to read the file content
		body = content
	}

	// An html file has two routes: the path itself (without "content/")
	// and the path without the extension (e.g. "/about.html" becomes
	// "/about"). If this file is an index page then we also add the
	// directory name as a route.
	route, base := routeBase(ctx.File)
	result.Routes = []string{base + ".html", base}
	meta.Permalink = base

	if isIndexFile(ctx.File.Name) {
		dir := sectionRoute(ctx, route)
		result.Routes = append(result.Routes, dir)
		meta.Permalink = dir
	}

	result.Generated = aliasStubs(cfg.Site.Language, meta)

	// Unlike markdown, the whole page is treated as a template: HTML
	// pages are hand-written and may use the variables inline
	vars := BuildTemplateVars(p.Context, ctx.File, result.Routes)
	body, err := ApplyTemplate(ctx.File.Path, body, vars)
	if err != nil {
		log.Printf("failed to apply template for %s: %s", ctx.File.Path, err)
		return &core.PluginResult{
			Success: false,
		}
	}

	core.RecordPageRender()

	result.Success = true
	result.Modified = true
	result.NewContent = body
	result.MimeType = "text/html"
	return &result
}
