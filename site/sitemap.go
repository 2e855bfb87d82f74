package site

import (
	"sort"
	"strings"
	"time"

	"inkwell/core"
)

// sitemapPage renders /sitemap.xml from the canonical URLs of the
// authored pages plus the listings built during this refresh. Aliases,
// feeds and the 404 page stay out.
func (s *Site) sitemapPage(built []page) page {
	base := strings.TrimSuffix(s.ctx.Config.BaseURL(), "/")

	type entry struct {
		loc     string
		lastmod time.Time
	}

	seen := make(map[string]entry)
	add := func(permalink string, lastmod time.Time) {
		if permalink == "" {
			return
		}
		loc := base + permalink
		if existing, ok := seen[loc]; !ok || lastmod.After(existing.lastmod) {
			seen[loc] = entry{loc: loc, lastmod: lastmod}
		}
	}

	for _, file := range s.ctx.FileManager.GetFilesByPrefix("content") {
		meta := file.Metadata
		if len(file.Routes) == 0 || meta.RedirectUrl != "" {
			continue
		}
		add(meta.Permalink, meta.Updated())
	}
	for _, pg := range built {
		if pg.sitemap {
			add(pg.meta.Permalink, pg.meta.Updated())
		}
	}

	entries := make([]entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].loc < entries[j].loc
	})

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	sb.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">` + "\n")
	for _, e := range entries {
		sb.WriteString("<url>\n")
		sb.WriteString("<loc>" + escapeXML(e.loc) + "</loc>\n")
		if !e.lastmod.IsZero() {
			sb.WriteString("<lastmod>" + e.lastmod.Format(atomTimeFormat) + "</lastmod>\n")
		}
		sb.WriteString("</url>\n")
	}
	sb.WriteString("</urlset>\n")

	return page{
		path:    generatedPath("sitemap.xml"),
		routes:  []string{"/sitemap.xml"},
		content: []byte(sb.String()),
		meta: core.FileMetadata{
			MimeType: "application/xml",
		},
	}
}

// robotsPage renders /robots.txt, pointing crawlers at the sitemap.
func (s *Site) robotsPage() page {
	base := strings.TrimSuffix(s.ctx.Config.BaseURL(), "/")

	var sb strings.Builder
	sb.WriteString("User-agent: *\n")
	sb.WriteString("Allow: /\n\n")
	sb.WriteString("Sitemap: " + base + "/sitemap.xml\n")

	return page{
		path:    generatedPath("robots.txt"),
		routes:  []string{"/robots.txt"},
		content: []byte(sb.String()),
		meta: core.FileMetadata{
			MimeType: "text/plain",
		},
	}
}
