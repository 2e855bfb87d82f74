// Package site derives the synthetic pages of the blog from the
// content tree: section listings, the tag index and term pages, the
// RSS and Atom feeds, the sitemap and the 404 page. It also hosts the
// content checker and the page scaffolder used by the CLI.
package site

import (
	"path/filepath"
	"sort"
	"sync"

	"inkwell/core"
)

// Site rebuilds the generated pages from whatever the file manager
// currently holds. It implements core.SiteRefresher, so the file
// watcher can regenerate listings whenever content changes.
type Site struct {
	mu  sync.Mutex
	ctx *core.Context

	// paths generated by the previous refresh, true when the page had
	// routes. Used to retire pages that disappear, e.g. the term page
	// of a tag that no post carries anymore.
	previous map[string]bool
}

func New(ctx *core.Context) *Site {
	return &Site{
		ctx:      ctx,
		previous: make(map[string]bool),
	}
}

// page is one generated page before it is handed to the file manager.
type page struct {
	path    string // below core.GeneratedPrefix
	routes  []string
	content []byte
	meta    core.FileMetadata
	sitemap bool
}

// Refresh recomputes every generated page. It returns the files to
// (re)route and the paths whose routes must be dropped. When any page
// fails to render, nothing is registered and the previously generated
// pages keep serving.
func (s *Site) Refresh() ([]*core.File, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := core.NewSiteRefreshTimer()
	defer timer.ObserveDuration()

	fm := s.ctx.FileManager

	posts, drafts := CollectPosts(fm, &s.ctx.Config)
	tags := GroupByTag(posts)

	core.SetPostsCount(len(posts))
	core.SetDraftsCount(drafts)
	core.SetTagsCount(len(tags))

	pages, err := s.buildPages(posts, tags)
	if err != nil {
		return nil, nil, err
	}

	files := make([]*core.File, 0, len(pages))
	current := make(map[string]bool, len(pages))
	for _, pg := range pages {
		file := fm.AddGeneratedFile(pg.path, pg.routes, pg.content, pg.meta)
		files = append(files, file)
		current[pg.path] = len(pg.routes) > 0
	}

	var removed []string
	for path, hadRoutes := range s.previous {
		if _, ok := current[path]; ok {
			continue
		}
		fm.RemoveFile(path)
		if hadRoutes {
			removed = append(removed, path)
		}
	}
	sort.Strings(removed)
	s.previous = current

	return files, removed, nil
}

// buildPages renders all generated pages into memory. Listings step
// aside wherever the author routed their own page, so a hand-written
// content/index.md takes precedence over the generated front page.
func (s *Site) buildPages(posts []Post, tags []Tag) ([]page, error) {
	taken := contentRoutes(s.ctx.FileManager)

	var pages []page

	if !taken["/"] {
		pg, err := s.homePage(posts)
		if err != nil {
			return nil, err
		}
		pages = append(pages, pg)
	}

	if !taken[postsRoute] {
		pg, err := s.sectionPage(posts)
		if err != nil {
			return nil, err
		}
		pages = append(pages, pg)
	}

	if !taken[tagsRoute] {
		pg, err := s.tagsPage(tags)
		if err != nil {
			return nil, err
		}
		pages = append(pages, pg)
	}

	for _, tag := range tags {
		if taken[tag.Url] {
			continue
		}
		pg, err := s.termPage(tag)
		if err != nil {
			return nil, err
		}
		pages = append(pages, pg)
	}

	pg, err := s.notFoundPage()
	if err != nil {
		return nil, err
	}
	pages = append(pages, pg)

	pages = append(pages, s.rssPage(posts), s.atomPage(posts))
	pages = append(pages, s.sitemapPage(pages), s.robotsPage())

	return pages, nil
}

// contentRoutes collects every route claimed by an authored page.
func contentRoutes(fm *core.FileManager) map[string]bool {
	taken := make(map[string]bool)
	for _, file := range fm.GetFilesByPrefix("content") {
		for _, route := range file.Routes {
			taken[route] = true
		}
	}
	return taken
}

// generatedPath builds a file manager path below the generated prefix.
func generatedPath(parts ...string) string {
	return filepath.Join(append([]string{core.GeneratedPrefix}, parts...)...)
}
