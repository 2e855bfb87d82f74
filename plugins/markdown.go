package plugins

import (
	"bytes"
	"inkwell/core"
	"log"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

type BuiltinMarkdownPlugin struct {
	markdown  goldmark.Markdown
	sanitizer *bluemonday.Policy
	Context   *core.Context
}

func NewMarkdownPlugin(ctx *core.Context) *BuiltinMarkdownPlugin {
	cfg := &ctx.Config.Markdown

	markdown := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			highlighting.NewHighlighting(
				highlighting.WithStyle(cfg.Style),
				highlighting.WithFormatOptions(
					chromahtml.WithLineNumbers(cfg.LineNumbers),
				),
			),
		),
		goldmark.WithParserOptions(
			// Heading IDs give the table of contents its anchors
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			// Authors embed raw HTML in their own posts; the sanitize
			// option below covers sites that render untrusted content
			gmhtml.WithUnsafe(),
		),
	)

	p := &BuiltinMarkdownPlugin{markdown: markdown, Context: ctx}
	if cfg.Sanitize {
		// Note that the UGC policy also strips the inline styles the
		// syntax highlighter emits
		p.sanitizer = bluemonday.UGCPolicy()
	}
	return p
}

func (p *BuiltinMarkdownPlugin) Name() string {
	return "builtin/markdown"
}

func (p *BuiltinMarkdownPlugin) Priority() int {
	return 100
}

func (p *BuiltinMarkdownPlugin) CanProcess(file *core.File) bool {
	// Ignore files in the layout directory
	if strings.HasPrefix(file.Path, "layout/") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(file.Name), ".md") ||
		strings.HasSuffix(strings.ToLower(file.Name), ".markdown")
}

func (p *BuiltinMarkdownPlugin) Process(ctx *core.PluginContext) *core.PluginResult {
	log.Printf("START Processing markdown file: %s\n", ctx.File.Path)
	defer log.Printf("END   Processing markdown file: %s\n", ctx.File.Path)

	timer := core.NewFileProcessingTimer()
	defer timer.ObserveDuration()

	// Split off and decode the front matter block. A missing block is
	// fine, the page just has no metadata.
	body, failed := readPageSource(p.Name(), ctx)
	if failed != nil {
		return failed
	}
	meta := &ctx.File.Metadata

	cfg := &p.Context.Config

	// Drafts and future-dated pages keep their metadata (listings count
	// them) but are not rendered or routed unless enabled. The empty
	// route set withdraws routes a previously published version held.
	if skipUnpublished(cfg, ctx.File) {
		return &core.PluginResult{Success: true, Routes: []string{}}
	}

	// Parse once; the same tree feeds the renderer, the table of
	// contents and the plain-text summary
	doc := p.markdown.Parser().Parse(text.NewReader(body))

	var html bytes.Buffer
	if err := p.markdown.Renderer().Render(&html, body, doc); err != nil {
		return &core.PluginResult{
			Success: false,
			Error:   err,
		}
	}
	rendered := html.Bytes()
	if p.sanitizer != nil {
		rendered = p.sanitizer.SanitizeBytes(rendered)
	}

	plain := PlainText(doc, body)
	meta.WordCount = len(strings.Fields(plain))
	wpm := cfg.Content.WordsPerMin
	if wpm <= 0 {
		wpm = core.DefaultWordsPerMin
	}
	meta.ReadingTime = (meta.WordCount + wpm - 1) / wpm
	meta.Summary = meta.Description
	if meta.Summary == "" {
		meta.Summary = Summarize(plain, cfg.Content.SummaryLength)
	}

	var result core.PluginResult

	// A markdown file is reachable without an extension and with ".html"
	// (e.g. "/about.md" is served as "/about" and "/about.html"). A slug
	// in the front matter replaces the file name in both. Index pages
	// additionally answer under their directory name.
	route, base := routeBase(ctx.File)
	result.Routes = []string{base, base + ".html"}
	meta.Permalink = base

	if isIndexFile(ctx.File.Name) {
		// Index pages double as section pages: their front matter
		// titles the directory they live in
		dir := sectionRoute(ctx, route)
		result.Routes = append(result.Routes, dir)
		meta.Permalink = dir
	}

	// Old URLs listed as aliases become redirect stubs pointing at the
	// canonical permalink
	result.Generated = aliasStubs(cfg.Site.Language, meta)

	// Sandwich the page between the layout fragments unless the layout
	// is ignored. The fragments are templates, the rendered markdown is
	// not: code samples regularly contain "{{" and must pass through
	// untouched.
	final := rendered
	if !meta.IgnoreLayout {
		header, footer := loadLayout(ctx)
		if header == nil || footer == nil {
			return &core.PluginResult{
				Success: false,
			}
		}
		result.Dependencies = []*core.File{header, footer}

		vars := BuildTemplateVars(p.Context, ctx.File, result.Routes)
		if meta.ShowToc {
			vars["Toc"] = RenderToc(ExtractToc(doc, body), meta.TocOpen)
		}

		renderedHeader, err := ApplyTemplate(header.Path, header.Content, vars)
		if err != nil {
			log.Printf("failed to apply template for %s: %s", ctx.File.Path, err)
			return &core.PluginResult{
				Success: false,
			}
		}
		renderedFooter, err := ApplyTemplate(footer.Path, footer.Content, vars)
		if err != nil {
			log.Printf("failed to apply template for %s: %s", ctx.File.Path, err)
			return &core.PluginResult{
				Success: false,
			}
		}

		final = append(renderedHeader, rendered...)
		final = append(final, renderedFooter...)
	}

	core.RecordPageRender()

	result.Success = true
	result.Modified = true
	result.NewContent = final
	result.MimeType = "text/html"
	return &result
}
