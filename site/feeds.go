package site

import (
	"html"
	"sort"
	"strings"
	"time"

	"inkwell/core"
)

// Feed dates follow the conventions of each format: RFC 1123 with a
// numeric zone for RSS, RFC 3339 for Atom.
const (
	rssTimeFormat  = time.RFC1123Z
	atomTimeFormat = time.RFC3339
)

var escapeXML = html.EscapeString

// rssPage renders the RSS 2.0 feed served at /index.xml.
func (s *Site) rssPage(posts []Post) page {
	cfg := &s.ctx.Config
	base := strings.TrimSuffix(cfg.BaseURL(), "/")
	items := feedPosts(posts, cfg.Content.FeedLimit)

	updated := newestUpdate(items)
	if updated.IsZero() {
		updated = time.Now()
	}

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	sb.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">` + "\n")
	sb.WriteString("<channel>\n")
	sb.WriteString("<title>" + escapeXML(cfg.Site.Title) + "</title>\n")
	sb.WriteString("<link>" + escapeXML(base+"/") + "</link>\n")
	sb.WriteString("<description>" + escapeXML(cfg.Site.Description) + "</description>\n")
	if cfg.Site.Language != "" {
		sb.WriteString("<language>" + escapeXML(cfg.Site.Language) + "</language>\n")
	}
	if cfg.Site.Copyright != "" {
		sb.WriteString("<copyright>" + escapeXML(cfg.Site.Copyright) + "</copyright>\n")
	}
	sb.WriteString("<lastBuildDate>" + updated.Format(rssTimeFormat) + "</lastBuildDate>\n")
	sb.WriteString(`<atom:link href="` + escapeXML(base+"/index.xml") + `" rel="self" type="application/rss+xml" />` + "\n")

	for _, post := range items {
		link := base + post.Permalink
		sb.WriteString("<item>\n")
		sb.WriteString("<title>" + escapeXML(post.Title) + "</title>\n")
		sb.WriteString("<link>" + escapeXML(link) + "</link>\n")
		sb.WriteString("<guid>" + escapeXML(link) + "</guid>\n")
		if !post.Date.IsZero() {
			sb.WriteString("<pubDate>" + post.Date.Format(rssTimeFormat) + "</pubDate>\n")
		}
		if post.Summary != "" {
			sb.WriteString("<description>" + escapeXML(post.Summary) + "</description>\n")
		}
		for _, tag := range post.Tags {
			sb.WriteString("<category>" + escapeXML(tag.Name) + "</category>\n")
		}
		sb.WriteString("</item>\n")
	}

	sb.WriteString("</channel>\n")
	sb.WriteString("</rss>\n")

	return page{
		path:    generatedPath("index.xml"),
		routes:  []string{"/index.xml"},
		content: []byte(sb.String()),
		meta: core.FileMetadata{
			Title:    cfg.Site.Title,
			Date:     updated,
			MimeType: "application/rss+xml",
		},
	}
}

// atomPage renders the Atom feed served at /atom.xml.
func (s *Site) atomPage(posts []Post) page {
	cfg := &s.ctx.Config
	base := strings.TrimSuffix(cfg.BaseURL(), "/")
	items := feedPosts(posts, cfg.Content.FeedLimit)

	updated := newestUpdate(items)
	if updated.IsZero() {
		updated = time.Now()
	}

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	if cfg.Site.Language != "" {
		sb.WriteString(`<feed xmlns="http://www.w3.org/2005/Atom" xml:lang="` + escapeXML(cfg.Site.Language) + `">` + "\n")
	} else {
		sb.WriteString(`<feed xmlns="http://www.w3.org/2005/Atom">` + "\n")
	}
	sb.WriteString("<title>" + escapeXML(cfg.Site.Title) + "</title>\n")
	if cfg.Site.Description != "" {
		sb.WriteString("<subtitle>" + escapeXML(cfg.Site.Description) + "</subtitle>\n")
	}
	sb.WriteString("<id>" + escapeXML(base+"/") + "</id>\n")
	sb.WriteString("<updated>" + updated.Format(atomTimeFormat) + "</updated>\n")
	sb.WriteString(`<link href="` + escapeXML(base+"/") + `" rel="alternate" />` + "\n")
	sb.WriteString(`<link href="` + escapeXML(base+"/atom.xml") + `" rel="self" type="application/atom+xml" />` + "\n")

	for _, post := range items {
		link := base + post.Permalink
		sb.WriteString("<entry>\n")
		sb.WriteString("<id>" + escapeXML(link) + "</id>\n")
		sb.WriteString("<title>" + escapeXML(post.Title) + "</title>\n")
		sb.WriteString(`<link href="` + escapeXML(link) + `" rel="alternate" />` + "\n")
		if !post.Updated.IsZero() {
			sb.WriteString("<updated>" + post.Updated.Format(atomTimeFormat) + "</updated>\n")
		}
		if !post.Date.IsZero() {
			sb.WriteString("<published>" + post.Date.Format(atomTimeFormat) + "</published>\n")
		}
		if author := s.displayAuthor(post.Author); author != "" {
			sb.WriteString("<author><name>" + escapeXML(author) + "</name></author>\n")
		}
		if post.Summary != "" {
			sb.WriteString("<summary>" + escapeXML(post.Summary) + "</summary>\n")
		}
		for _, tag := range post.Tags {
			sb.WriteString(`<category term="` + escapeXML(tag.Name) + `" />` + "\n")
		}
		sb.WriteString("</entry>\n")
	}

	sb.WriteString("</feed>\n")

	return page{
		path:    generatedPath("atom.xml"),
		routes:  []string{"/atom.xml"},
		content: []byte(sb.String()),
		meta: core.FileMetadata{
			Title:    cfg.Site.Title,
			Date:     updated,
			MimeType: "application/atom+xml",
		},
	}
}

// feedPosts returns the newest posts first, capped at the feed limit.
// Listing order (weight first) does not apply to feeds.
func feedPosts(posts []Post, limit int) []Post {
	if limit <= 0 {
		limit = core.DefaultFeedLimit
	}

	items := make([]Post, len(posts))
	copy(items, posts)
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.After(items[j].Date)
		}
		return items[i].Permalink < items[j].Permalink
	})

	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// displayAuthor resolves a front matter author against the registry,
// falling back to the site-wide default.
func (s *Site) displayAuthor(name string) string {
	if name == "" {
		name = s.ctx.Config.Site.Author
	}
	if author, found := s.ctx.Authors.Lookup(name); found && author.FullName != "" {
		return author.FullName
	}
	return name
}
