package plugins

import (
	"errors"
	"html/template"
	"inkwell/core"
	"log"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-slug"
)

// templateFuncs are available in every layout fragment.
var templateFuncs = template.FuncMap{
	"tagUrl": TagUrl,
}

// TagUrl returns the route of a tag's term page. Names that cannot be
// slugified keep their lowercased words joined with dashes.
func TagUrl(name string) string {
	s, err := slug.Normalize(name)
	if err != nil || s == "" {
		s = strings.ToLower(strings.Join(strings.Fields(name), "-"))
	}
	return path.Join("/tags", s)
}

// ApplyTemplate executes a layout fragment with the given variables.
func ApplyTemplate(name string, body []byte, vars map[string]any) ([]byte, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs).Parse(string(body))
	if err != nil {
		log.Printf("failed to parse template %s: %s", name, err)
		return nil, err
	}

	var output strings.Builder
	err = tmpl.Execute(&output, vars)
	if err != nil {
		log.Printf("failed to execute template %s: %s", name, err)
		return nil, err
	}

	return []byte(output.String()), nil
}

// readPageSource loads a page and splits off its front matter, filling
// ctx.File.Metadata. The second return is non-nil when processing must
// stop, and is handed back as the plugin's result.
func readPageSource(plugin string, ctx *core.PluginContext) ([]byte, *core.PluginResult) {
	// Redirect stubs are generated; a source page carrying one reached
	// the wrong pipeline
	if ctx.File.Metadata.RedirectUrl != "" {
		return nil, &core.PluginResult{
			Success: false,
			Error:   core.NewPluginError(plugin, ctx.File.Path, errors.New("page is a redirect stub")),
		}
	}

	content := ctx.File.ReadFile(ctx.SiteDirectory)
	if content == nil {
		return nil, &core.PluginResult{Success: false}
	}

	meta := &ctx.File.Metadata
	body, err := core.ParseFrontMatter(content, meta)
	if err != nil && !errors.Is(err, core.ErrNoFrontMatter) {
		return nil, &core.PluginResult{
			Success: false,
			Error:   core.NewFrontMatterError(ctx.File.Path, err),
		}
	}
	if err := meta.Validate(); err != nil {
		return nil, &core.PluginResult{
			Success: false,
			Error:   core.NewFrontMatterError(ctx.File.Path, err),
		}
	}
	return body, nil
}

// skipUnpublished reports whether the page is a draft or future-dated
// and the configuration excludes it. Skipped pages keep their metadata
// but get no content and no routes: a page that was published before
// this run may still carry its old permalink, so it is cleared here and
// listings and feeds drop the page on the next refresh.
func skipUnpublished(cfg *core.Config, file *core.File) bool {
	meta := &file.Metadata
	if meta.Draft && !cfg.IncludeDrafts() {
		log.Printf("Skipping draft: %s", file.Path)
		meta.Permalink = ""
		return true
	}
	if meta.IsFuture(time.Now()) && !cfg.IncludeFuture() {
		log.Printf("Skipping future-dated page: %s", file.Path)
		meta.Permalink = ""
		return true
	}
	return false
}

// routeBase computes the clean URL of a content file: its path below
// "content/" without the extension, with a front matter slug replacing
// the file name when present.
func routeBase(file *core.File) (route, base string) {
	route = strings.TrimPrefix(file.Path, "content/")
	route = path.Clean("/" + strings.TrimLeft(route, "/"))
	base = strings.TrimSuffix(route, path.Ext(route))
	if s := file.Metadata.Slug; s != "" {
		base = path.Join(path.Dir(base), s)
	}
	return route, base
}

// isIndexFile matches index pages regardless of extension and case.
func isIndexFile(name string) bool {
	return strings.TrimSuffix(strings.ToLower(name), path.Ext(strings.ToLower(name))) == "index"
}

// sectionRoute registers the index page's front matter as section
// metadata on its directory and returns the directory route.
func sectionRoute(ctx *core.PluginContext, route string) string {
	dir := path.Dir(route)
	if dir == "." {
		dir = "/"
	}

	meta := &ctx.File.Metadata
	ctx.FileManager.SetDirectoryMetadata(filepath.Dir(ctx.File.Path), core.DirectoryMetadata{
		Title:       meta.Title,
		Description: meta.Description,
		CssFile:     meta.CssFile,
		Weight:      meta.Weight,
	})
	return dir
}

// aliasStubs builds a redirect stub for every alias of the page. The
// permalink must be final when this is called.
func aliasStubs(lang string, meta *core.FileMetadata) []core.GeneratedFile {
	var stubs []core.GeneratedFile
	for _, alias := range meta.Aliases {
		alias = path.Clean(alias)
		if alias == meta.Permalink {
			continue
		}
		stubs = append(stubs, core.GeneratedFile{
			Path:    filepath.Join(core.GeneratedPrefix, "alias", strings.TrimPrefix(alias, "/")) + ".html",
			Routes:  []string{alias},
			Content: aliasRedirectHTML(lang, meta.Permalink),
			Metadata: core.FileMetadata{
				RedirectUrl: meta.Permalink,
				MimeType:    "text/html",
			},
		})
	}
	return stubs
}

// aliasRedirectHTML is the body of an alias stub: a meta refresh for
// static exports, with noindex so search engines keep the canonical URL.
// The live server short-circuits these with a real 302.
func aliasRedirectHTML(lang, target string) []byte {
	if lang == "" {
		lang = core.DefaultLanguage
	}
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"")
	sb.WriteString(template.HTMLEscapeString(lang))
	sb.WriteString("\">\n<head>\n<title>")
	sb.WriteString(template.HTMLEscapeString(target))
	sb.WriteString("</title>\n<link rel=\"canonical\" href=\"")
	sb.WriteString(template.HTMLEscapeString(target))
	sb.WriteString("\">\n<meta name=\"robots\" content=\"noindex\">\n")
	sb.WriteString("<meta charset=\"utf-8\">\n<meta http-equiv=\"refresh\" content=\"0; url=")
	sb.WriteString(template.HTMLEscapeString(target))
	sb.WriteString("\">\n</head>\n</html>\n")
	return []byte(sb.String())
}

// loadLayout fetches the header and footer fragments, reading them from
// disk on first use. Both returns are nil when either fragment is
// missing or unreadable.
func loadLayout(ctx *core.PluginContext) (header, footer *core.File) {
	header = ctx.FileManager.GetFile("layout/header.html")
	footer = ctx.FileManager.GetFile("layout/footer.html")
	if header == nil || footer == nil {
		return nil, nil
	}

	if header.Content == nil {
		header.Content = header.ReadFile(ctx.SiteDirectory)
	}
	if footer.Content == nil {
		footer.Content = footer.ReadFile(ctx.SiteDirectory)
	}
	if header.Content == nil || footer.Content == nil {
		return nil, nil
	}
	return header, footer
}

// Summarize returns the first n words of the text, with an ellipsis when
// it was cut off.
func Summarize(plain string, n int) string {
	if n <= 0 {
		n = core.DefaultSummaryLength
	}
	words := strings.Fields(plain)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + " …"
}

func BuildTemplateVars(ctx *core.Context, file *core.File, routes []string) map[string]any {
	cfg := &ctx.Config
	meta := &file.Metadata

	vars := map[string]any{
		"SiteTitle":       cfg.Site.Title,
		"SiteDescription": cfg.Site.Description,
		"SiteLanguage":    cfg.Site.Language,
		"SiteCopyright":   cfg.Site.Copyright,
		"BaseURL":         cfg.BaseURL(),
		"BrandingFavicon": cfg.Branding.Favicon,
		"BrandingCssFile": cfg.Branding.CssFile,
		"PageTitle":       meta.Title,
		"PageDescription": meta.Description,
		"PageTags":        meta.Tags,
		"PageCssFile":     meta.CssFile,
		"PagePermalink":   meta.Permalink,
		"Summary":         meta.Summary,
		"WordCount":       meta.WordCount,
		"ReadingTime":     meta.ReadingTime,
		"ShowToc":         meta.ShowToc,
		"TocOpen":         meta.TocOpen,
		"Cover":           meta.Cover,
		"Params":          meta.Params,
		// Filled in by the markdown plugin for pages that want one
		"Toc": template.HTML(""),
	}

	// Resolve the author against the registry so templates can show the
	// full name even when the front matter uses the short handle
	name := meta.Author
	if name == "" {
		name = cfg.Site.Author
	}
	vars["PageAuthor"] = name
	if author, found := ctx.Authors.Lookup(name); found {
		if author.FullName != "" {
			vars["PageAuthor"] = author.FullName
		}
		vars["Author"] = author
	}

	// Publication date is either specified in the front matter or is
	// fetched from the file system
	if date := meta.EffectiveDate(); !date.IsZero() {
		vars["PageDate"] = date
		vars["PageUpdated"] = meta.Updated()
	} else if !file.Generated {
		info, err := os.Stat(filepath.Join(cfg.SiteDirectory, file.Path))
		if err != nil {
			log.Printf("failed to get file info for %s: %s", file.Path, err)
		} else {
			vars["PageDate"] = info.ModTime()
			vars["PageUpdated"] = info.ModTime()
		}
	}

	if file.Parent != nil { // Can be nil when "dump"ing everything to disk
		vars["Directory"] = map[string]interface{}{
			"Title":       file.Parent.Metadata.Title,
			"Description": file.Parent.Metadata.Description,
			"CssFile":     file.Parent.Metadata.CssFile,
		}
	}

	// Go through all NavigationItems. If their URL matches the current
	// file's URL, then set the "active" variable to true.
	nav := make([]core.NavigationItem, len(ctx.Navigation.NavigationTree))
	copy(nav, ctx.Navigation.NavigationTree)
	for i := range nav {
		nav[i].IsActive = slices.Contains(routes, strings.ToLower(nav[i].Url))
	}
	vars["Navigation"] = nav

	return vars
}
