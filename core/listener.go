package core

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// RouteTable is what the reloader needs from the router: route content
// files and unroute gone ones. RouterManager satisfies it.
type RouteTable interface {
	AddFile(file *File)
	RemoveFile(path string) error
}

// SiteRefresher rebuilds derived pages (listings, tag pages, feeds,
// sitemap) after content changed. It returns the current generated files
// so the reloader can route new ones, plus the paths of generated files
// that no longer exist, e.g. the page of a tag whose last post was
// deleted.
type SiteRefresher interface {
	Refresh() (files []*File, removed []string, err error)
}

// contentPath reports whether a site-relative path is a content source,
// which is what gets routes.
func contentPath(path string) bool {
	return strings.HasPrefix(path, "content/")
}

// derivedInput reports whether a change to the path invalidates derived
// pages. Posts feed the listings, and layout files are baked into every
// rendered page.
func derivedInput(path string) bool {
	return strings.HasPrefix(path, "content/") || strings.HasPrefix(path, "layout/")
}

// SiteReloader keeps a served site in step with its sources. It consumes
// change batches from a SiteWatcher and applies each batch as a unit:
// sources are added to or dropped from the file manager, the plugin
// pipeline runs once over everything that went stale, routes are synced,
// and derived pages are regenerated once, no matter how many files the
// batch touched.
type SiteReloader struct {
	mu        sync.RWMutex
	watcher   *SiteWatcher
	fm        *FileManager
	routes    RouteTable
	refresher SiteRefresher
	running   bool
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewSiteReloader wires a reloader to its collaborators.
func NewSiteReloader(watcher *SiteWatcher, fm *FileManager, routes RouteTable) (*SiteReloader, error) {
	if watcher == nil {
		return nil, fmt.Errorf("watcher cannot be nil")
	}
	if fm == nil {
		return nil, fmt.Errorf("file manager cannot be nil")
	}
	if routes == nil {
		return nil, fmt.Errorf("route table cannot be nil")
	}

	return &SiteReloader{
		watcher: watcher,
		fm:      fm,
		routes:  routes,
		done:    make(chan struct{}),
	}, nil
}

// SetRefresher installs the hook that regenerates listings and feeds.
// Without one the reloader still syncs sources and routes.
func (r *SiteReloader) SetRefresher(refresher SiteRefresher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refresher = refresher
}

// Start begins consuming change batches. The watcher does not have to be
// running yet; the subscription survives either start order.
func (r *SiteReloader) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("reloader is already running")
	}
	r.running = true

	r.wg.Add(1)
	go r.loop(r.watcher.Changes())

	log.Printf("Reloading on source changes")
	return nil
}

// Stop stops consuming change batches.
func (r *SiteReloader) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("reloader is not running")
	}
	r.running = false
	r.mu.Unlock()

	close(r.done)
	r.wg.Wait()

	log.Printf("Reloader stopped")
	return nil
}

// IsRunning reports whether the reloader is consuming batches.
func (r *SiteReloader) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *SiteReloader) loop(ch <-chan []Change) {
	defer r.wg.Done()

	for {
		select {
		case <-r.done:
			return
		case batch, ok := <-ch:
			if !ok {
				return
			}
			r.apply(batch)
		}
	}
}

// apply carries one batch of changes into the live site.
func (r *SiteReloader) apply(batch []Change) {
	var wrote []string // content files whose routes need a sync
	var refresh bool

	for _, c := range batch {
		switch c.Kind {
		case ChangeWrite:
			r.fm.AddFile(c.Path)
			if contentPath(c.Path) {
				wrote = append(wrote, c.Path)
			}

		case ChangeMkdir:
			// files may have landed inside before the directory was
			// watched, the walk picks them up
			if err := r.fm.WalkDirectory(c.Path); err != nil {
				log.Printf("reload: cannot walk new directory %s: %v", c.Path, err)
				continue
			}
			for path := range r.fm.GetFilesByPrefix(c.Path) {
				if contentPath(path) {
					wrote = append(wrote, path)
				}
			}

		case ChangeRemove:
			if c.IsDir {
				gone := r.fm.GetFilesByPrefix(c.Path)
				r.fm.RemoveDirectory(c.Path)
				for path := range gone {
					r.unroute(path)
				}
			} else {
				r.fm.RemoveFile(c.Path)
				r.unroute(c.Path)
			}
		}

		if derivedInput(c.Path) {
			refresh = true
		}
		log.Printf("reload: %s %s", c.Kind, c.Path)
	}

	// One plugin pass over everything the batch made stale, including
	// dependents like posts that embed an edited layout.
	r.fm.ProcessUpdatedFiles()

	for _, path := range wrote {
		file := r.fm.GetFile(path)
		if file == nil {
			continue
		}
		// A non-nil empty route set means the plugin run withdrew the
		// page, e.g. a post edited to draft: true while serving. Its
		// old routes must come down, not stay mounted over nil content.
		if file.Routes != nil && len(file.Routes) == 0 {
			r.unroute(path)
			continue
		}
		r.routes.AddFile(file)
		// Stubs the page produced, e.g. for a freshly added alias,
		// get mounted alongside it
		for _, gen := range r.fm.GeneratedFor(path) {
			r.routes.AddFile(gen)
		}
	}

	// Synthetic files the batch retired, e.g. the redirect stub of an
	// alias that was edited away, lose their routes too
	for _, path := range r.fm.DrainRetiredGenerated() {
		if err := r.routes.RemoveFile(path); err != nil {
			log.Printf("reload: no routes to drop for %s: %v", path, err)
		}
	}

	if refresh {
		r.refreshSite()
	}

	RecordSourceChanges(len(batch))
}

func (r *SiteReloader) unroute(path string) {
	if !contentPath(path) {
		return
	}
	if err := r.routes.RemoveFile(path); err != nil {
		// routine for sources that never had routes, e.g. skipped drafts
		log.Printf("reload: no routes to drop for %s: %v", path, err)
	}
}

// refreshSite regenerates derived pages and makes sure any new generated
// pages (say, a page for a brand-new tag) get their routes, while pages
// that lost their reason to exist lose them.
func (r *SiteReloader) refreshSite() {
	r.mu.RLock()
	refresher := r.refresher
	r.mu.RUnlock()

	if refresher == nil {
		return
	}

	files, removed, err := refresher.Refresh()
	if err != nil {
		log.Printf("Error refreshing generated pages: %v", err)
		return
	}

	for _, file := range files {
		r.routes.AddFile(file)
	}
	for _, path := range removed {
		if err := r.routes.RemoveFile(path); err != nil {
			log.Printf("Warning: failed to remove routes for %s: %v", path, err)
		}
	}
}
