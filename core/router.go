package core

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// RouterManager owns the gin engine and the pattern -> file mapping.
// gin cannot unregister routes, so removals swap in a fresh engine.
type RouterManager struct {
	mu         sync.RWMutex
	router     *gin.Engine
	routes     map[string]string // pattern -> file path
	handlers   map[string]gin.HandlerFunc
	fm         *FileManager
	ctx        *Context
	middleware []gin.HandlerFunc
}

func NewRouterManager() *RouterManager {
	return &RouterManager{
		routes:     make(map[string]string),
		handlers:   make(map[string]gin.HandlerFunc),
		middleware: make([]gin.HandlerFunc, 0),
	}
}

// AddMiddleware appends middleware that every rebuilt engine inherits.
// Must be called before InitializeRouter.
func (rm *RouterManager) AddMiddleware(middleware ...gin.HandlerFunc) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.middleware = append(rm.middleware, middleware...)
}

// RegisterHandler mounts a non-content endpoint such as /api/search or
// /healthz. Registered handlers survive router rebuilds and cannot be
// shadowed by content routes.
func (rm *RouterManager) RegisterHandler(pattern string, handler gin.HandlerFunc) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	_, exists := rm.handlers[pattern]
	rm.handlers[pattern] = handler
	// gin panics on duplicate registration, so only mount new patterns
	if rm.router != nil && !exists {
		rm.router.GET(pattern, handler)
	}
}

// makeFileHandler serves one file from the manager by path. The lookup
// happens per request, so re-processed content is picked up without a
// router rebuild.
func (rm *RouterManager) makeFileHandler(filePath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rm.mu.RLock()
		fm := rm.fm
		rm.mu.RUnlock()

		if fm == nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		file := fm.GetFile(filePath)
		if file == nil {
			// The route outlived the file, give it the site's 404 page
			rm.notFoundHandler()(c)
			return
		}

		// Aliases and moved pages carry a redirect target instead of content
		if file.Metadata.RedirectUrl != "" {
			c.Redirect(http.StatusFound, file.Metadata.RedirectUrl)
			return
		}

		mimeType := file.Metadata.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		if updated := file.Metadata.Updated(); !updated.IsZero() {
			c.Header("Last-Modified", updated.UTC().Format(http.TimeFormat))
		}

		c.Data(http.StatusOK, mimeType, file.Content)
	}
}

// notFoundHandler serves the site's own 404 page when one was generated.
func (rm *RouterManager) notFoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rm.mu.RLock()
		fm := rm.fm
		rm.mu.RUnlock()

		if fm != nil {
			page := fm.GetFile(filepath.Join(GeneratedPrefix, "404.html"))
			if page != nil && page.Content != nil {
				c.Data(http.StatusNotFound, "text/html; charset=utf-8", page.Content)
				return
			}
		}
		c.AbortWithStatus(http.StatusNotFound)
	}
}

// ensures the route starts with / and has no double slashes
func normalizeRoute(route string) (string, error) {
	if route == "" {
		return "", errors.New("route cannot be empty")
	}

	route = path.Clean("/" + strings.TrimPrefix(route, "/"))
	if route == "." {
		route = "/"
	}

	if !strings.HasPrefix(route, "/") {
		return "", fmt.Errorf("route must start with '/': %s", route)
	}

	return route, nil
}

// routable reports whether a file is served at all. Content pages and
// generated pages get routes, layout and config files do not.
func routable(file *File) bool {
	return strings.HasPrefix(file.Path, "content/") ||
		strings.HasPrefix(file.Path, GeneratedPrefix+"/")
}

// newEngine assembles a gin engine with the standing middleware, the
// registered endpoints, asset serving and the 404 handler. Content
// routes are mounted by the caller. Assumes the lock is held.
func (rm *RouterManager) newEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger())
	engine.Use(gin.Recovery())
	for _, mw := range rm.middleware {
		engine.Use(mw)
	}

	if rm.ctx != nil {
		engine.Static("/assets", filepath.Join(rm.ctx.Config.SiteDirectory, "assets"))
	}
	for pattern, handler := range rm.handlers {
		engine.GET(pattern, handler)
	}
	engine.NoRoute(rm.notFoundHandler())
	return engine
}

// InitializeRouter builds the engine and mounts a route for every
// servable file the manager currently knows.
func (rm *RouterManager) InitializeRouter(ctx *Context) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	timer := NewRouteRebuildTimer()
	defer timer.ObserveDuration()

	rm.fm = ctx.FileManager
	rm.ctx = ctx
	rm.routes = make(map[string]string)
	rm.router = rm.newEngine()

	for _, file := range ctx.FileManager.GetAllFiles() {
		if !routable(file) {
			continue
		}
		rm.addFileUnsafe(file)
	}

	SetRoutesCount(len(rm.routes))
	return nil
}

// AddRoute mounts a single explicit pattern for a file path. Content
// routes normally arrive through AddFile; this is for hand-wired ones.
func (rm *RouterManager) AddRoute(pattern, filePath string) error {
	normalizedPattern, err := normalizeRoute(pattern)
	if err != nil {
		return fmt.Errorf("invalid route pattern: %w", err)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.router == nil {
		return errors.New("router not initialized")
	}
	if _, exists := rm.routes[normalizedPattern]; exists {
		return fmt.Errorf("%s: %w", normalizedPattern, ErrRouteExists)
	}
	if _, exists := rm.handlers[normalizedPattern]; exists {
		return fmt.Errorf("route %s is a registered endpoint", normalizedPattern)
	}

	rm.router.GET(normalizedPattern, rm.makeFileHandler(filePath))
	rm.routes[normalizedPattern] = filePath
	SetRoutesCount(len(rm.routes))

	return nil
}

// AddFile mounts all routes a processed file asks for.
func (rm *RouterManager) AddFile(file *File) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.addFileUnsafe(file)
	SetRoutesCount(len(rm.routes))
}

func (rm *RouterManager) addFileUnsafe(file *File) {
	for _, route := range file.Routes {
		normalizedRoute, err := normalizeRoute(route)
		if err != nil {
			continue // Skip invalid routes
		}

		// Skip duplicates
		if _, exists := rm.routes[normalizedRoute]; exists {
			continue
		}
		// Never shadow registered endpoints like /healthz
		if _, exists := rm.handlers[normalizedRoute]; exists {
			continue
		}
		// The asset tree has its own static mount; a content route under
		// it would make gin panic on the wildcard conflict
		if normalizedRoute == "/assets" || strings.HasPrefix(normalizedRoute, "/assets/") {
			continue
		}

		rm.routes[normalizedRoute] = file.Path
		rm.router.GET(normalizedRoute, rm.makeFileHandler(file.Path))
	}
}

// RemoveRoute unmounts a single pattern. Requires an engine rebuild.
func (rm *RouterManager) RemoveRoute(pattern string) error {
	normalizedPattern, err := normalizeRoute(pattern)
	if err != nil {
		return fmt.Errorf("invalid route pattern: %w", err)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, exists := rm.routes[normalizedPattern]; !exists {
		return fmt.Errorf("%s: %w", normalizedPattern, ErrRouteNotFound)
	}

	delete(rm.routes, normalizedPattern)
	return rm.rebuildRouterUnsafe()
}

// RemoveFile unmounts every route that serves the given file path.
func (rm *RouterManager) RemoveFile(filePath string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	var stale []string
	for pattern, fp := range rm.routes {
		if fp == filePath {
			stale = append(stale, pattern)
		}
	}

	if len(stale) == 0 {
		return fmt.Errorf("no routes for file %s: %w", filePath, ErrRouteNotFound)
	}

	for _, pattern := range stale {
		delete(rm.routes, pattern)
	}

	return rm.rebuildRouterUnsafe()
}

// GetAllRoutes returns a copy of the pattern -> file path mapping.
func (rm *RouterManager) GetAllRoutes() map[string]string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	routes := make(map[string]string, len(rm.routes))
	for pattern, filePath := range rm.routes {
		routes[pattern] = filePath
	}
	return routes
}

// SortedRoutes returns all route patterns in lexical order. The static
// builder walks this list so output is deterministic.
func (rm *RouterManager) SortedRoutes() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	patterns := make([]string, 0, len(rm.routes))
	for pattern := range rm.routes {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	return patterns
}

// rebuildRouterUnsafe swaps in a fresh engine carrying the surviving
// routes. Assumes the write lock is held.
func (rm *RouterManager) rebuildRouterUnsafe() error {
	timer := NewRouteRebuildTimer()
	defer timer.ObserveDuration()

	engine := rm.newEngine()
	for pattern, filePath := range rm.routes {
		engine.GET(pattern, rm.makeFileHandler(filePath))
	}

	rm.router = engine
	SetRoutesCount(len(rm.routes))
	return nil
}

// GetRouter returns the current engine.
func (rm *RouterManager) GetRouter() *gin.Engine {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.router
}

// ServeHTTP dispatches to the current router. The HTTP server holds the
// manager, not the engine, so rebuilt routers take effect without
// restarting the listener.
func (rm *RouterManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router := rm.GetRouter()
	if router == nil {
		http.Error(w, "router not initialized", http.StatusServiceUnavailable)
		return
	}
	router.ServeHTTP(w, r)
}

// RouteExists reports whether a pattern is currently mounted.
func (rm *RouterManager) RouteExists(pattern string) bool {
	normalizedPattern, err := normalizeRoute(pattern)
	if err != nil {
		return false
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()
	_, exists := rm.routes[normalizedPattern]
	return exists
}

// GetRouteCount returns the number of mounted content routes.
func (rm *RouterManager) GetRouteCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.routes)
}
