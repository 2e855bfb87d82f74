package site

import (
	"fmt"
	"time"

	"inkwell/core"
	"inkwell/plugins"
)

const (
	postsRoute = "/posts"
	tagsRoute  = "/tags"
)

// Builtin listing bodies, used when the site ships no layout/list.html,
// layout/terms.html or layout/404.html of its own. Like the header and
// footer they are Go templates, fed by BuildTemplateVars plus the
// listing variables (Listing, Posts, Tags, Term, MorePostsUrl).
const builtinListTemplate = `<main class="list">
{{- if .PageTitle }}
<header class="page-header">
<h1>{{ .PageTitle }}</h1>
{{- if .PageDescription }}
<p>{{ .PageDescription }}</p>
{{- end }}
</header>
{{- end }}
{{- range .Posts }}
<article class="post-entry">
<h2><a href="{{ .Permalink }}">{{ .Title }}</a>{{ if .Draft }} <span class="draft-label">draft</span>{{ end }}</h2>
<div class="entry-meta">
<time datetime="{{ .Date.Format "2006-01-02" }}">{{ .Date.Format "January 2, 2006" }}</time>
{{- if .Author }} &middot; <span>{{ .Author }}</span>{{ end }}
{{- if .ReadingTime }} &middot; <span>{{ .ReadingTime }} min</span>{{ end }}
</div>
{{- if .Summary }}
<p class="entry-summary">{{ .Summary }}</p>
{{- end }}
{{- if .Tags }}
<ul class="entry-tags">
{{- range .Tags }}
<li><a href="{{ .Url }}">{{ .Name }}</a></li>
{{- end }}
</ul>
{{- end }}
</article>
{{- end }}
{{- if .MorePostsUrl }}
<footer class="list-footer">
<a href="{{ .MorePostsUrl }}">All posts</a>
</footer>
{{- end }}
</main>
`

const builtinTermsTemplate = `<main class="terms">
<header class="page-header">
<h1>{{ .PageTitle }}</h1>
</header>
<ul class="terms-list">
{{- range .Tags }}
<li><a href="{{ .Url }}">{{ .Name }}</a> <span class="term-count">{{ .Count }}</span></li>
{{- end }}
</ul>
</main>
`

const builtinNotFoundTemplate = `<main class="error-page">
<h1>404</h1>
<p>The page you are looking for does not exist.</p>
<p><a href="/">Back to the front page</a></p>
</main>
`

var builtinTemplates = map[string]string{
	"list":  builtinListTemplate,
	"terms": builtinTermsTemplate,
	"404":   builtinNotFoundTemplate,
}

// homePage lists the most recent posts at /. The full archive stays on
// /posts; the feed limit caps how much the front page shows.
func (s *Site) homePage(posts []Post) (page, error) {
	cfg := &s.ctx.Config

	limit := cfg.Content.FeedLimit
	if limit <= 0 {
		limit = core.DefaultFeedLimit
	}

	recent := posts
	more := ""
	if len(recent) > limit {
		recent = recent[:limit]
		more = postsRoute
	}

	meta := core.FileMetadata{
		Description: cfg.Site.Description,
		Date:        newestUpdate(posts),
		MimeType:    "text/html",
		Permalink:   "/",
	}
	routes := []string{"/"}
	content, err := s.renderListing("list", meta, routes, map[string]any{
		"Posts":        recent,
		"MorePostsUrl": more,
	})
	if err != nil {
		return page{}, err
	}
	return page{
		path:    generatedPath("index.html"),
		routes:  routes,
		content: content,
		meta:    meta,
		sitemap: true,
	}, nil
}

// sectionPage is the full archive at /posts.
func (s *Site) sectionPage(posts []Post) (page, error) {
	meta := core.FileMetadata{
		Title:     "Posts",
		Date:      newestUpdate(posts),
		MimeType:  "text/html",
		Permalink: postsRoute,
	}
	routes := []string{postsRoute}
	content, err := s.renderListing("list", meta, routes, map[string]any{
		"Posts": posts,
	})
	if err != nil {
		return page{}, err
	}
	return page{
		path:    generatedPath("posts.html"),
		routes:  routes,
		content: content,
		meta:    meta,
		sitemap: true,
	}, nil
}

// tagsPage is the term index at /tags.
func (s *Site) tagsPage(tags []Tag) (page, error) {
	meta := core.FileMetadata{
		Title:     "Tags",
		MimeType:  "text/html",
		Permalink: tagsRoute,
	}
	routes := []string{tagsRoute}
	content, err := s.renderListing("terms", meta, routes, map[string]any{
		"Tags": tags,
	})
	if err != nil {
		return page{}, err
	}
	return page{
		path:    generatedPath("tags.html"),
		routes:  routes,
		content: content,
		meta:    meta,
		sitemap: true,
	}, nil
}

// termPage lists the posts filed under one tag.
func (s *Site) termPage(tag Tag) (page, error) {
	meta := core.FileMetadata{
		Title:     tag.Name,
		Date:      newestUpdate(tag.Posts),
		MimeType:  "text/html",
		Permalink: tag.Url,
	}
	routes := []string{tag.Url}
	content, err := s.renderListing("list", meta, routes, map[string]any{
		"Posts": tag.Posts,
		"Term":  tag,
	})
	if err != nil {
		return page{}, err
	}
	return page{
		path:    generatedPath("tags", tag.Slug+".html"),
		routes:  routes,
		content: content,
		meta:    meta,
		sitemap: true,
	}, nil
}

// notFoundPage renders generated/404.html. It carries no routes; the
// router serves it for every unmatched request.
func (s *Site) notFoundPage() (page, error) {
	meta := core.FileMetadata{
		Title:    "Page Not Found",
		MimeType: "text/html",
	}
	content, err := s.renderListing("404", meta, nil, nil)
	if err != nil {
		return page{}, err
	}
	return page{
		path:    generatedPath("404.html"),
		content: content,
		meta:    meta,
	}, nil
}

// renderListing wraps a listing body in the site layout. The body
// template comes from layout/<kind>.html when the site provides one,
// from the builtin fallback otherwise.
func (s *Site) renderListing(kind string, meta core.FileMetadata, routes []string, extra map[string]any) ([]byte, error) {
	fm := s.ctx.FileManager
	siteDir := s.ctx.Config.SiteDirectory

	body := []byte(builtinTemplates[kind])
	if file := fm.GetFile("layout/" + kind + ".html"); file != nil {
		if file.Content == nil {
			file.Content = file.ReadFile(siteDir)
		}
		if file.Content != nil {
			body = file.Content
		}
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("no %q listing template available", kind)
	}

	header := fm.GetFile("layout/header.html")
	footer := fm.GetFile("layout/footer.html")
	if header == nil || footer == nil {
		return nil, fmt.Errorf("layout header or footer missing")
	}
	if header.Content == nil {
		header.Content = header.ReadFile(siteDir)
	}
	if footer.Content == nil {
		footer.Content = footer.ReadFile(siteDir)
	}
	if header.Content == nil || footer.Content == nil {
		return nil, fmt.Errorf("layout header or footer not readable")
	}

	stub := &core.File{
		Name:      kind + ".html",
		Path:      generatedPath(kind + ".html"),
		Generated: true,
		Metadata:  meta,
	}
	vars := plugins.BuildTemplateVars(s.ctx, stub, routes)
	// Listing pages carry their own heading; layouts check this to skip
	// the article header they'd render for a regular page.
	vars["Listing"] = true
	for key, value := range extra {
		vars[key] = value
	}

	renderedHeader, err := plugins.ApplyTemplate(header.Path, header.Content, vars)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", header.Path, err)
	}
	renderedBody, err := plugins.ApplyTemplate(kind, body, vars)
	if err != nil {
		return nil, fmt.Errorf("render %s listing: %w", kind, err)
	}
	renderedFooter, err := plugins.ApplyTemplate(footer.Path, footer.Content, vars)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", footer.Path, err)
	}

	out := make([]byte, 0, len(renderedHeader)+len(renderedBody)+len(renderedFooter))
	out = append(out, renderedHeader...)
	out = append(out, renderedBody...)
	out = append(out, renderedFooter...)

	core.RecordPageRender()
	return out, nil
}

// newestUpdate is the most recent change across the given posts, used
// as the lastmod of the listing pages that contain them.
func newestUpdate(posts []Post) time.Time {
	var newest time.Time
	for _, post := range posts {
		if updated := post.Updated; updated.After(newest) {
			newest = updated
		}
	}
	return newest
}
