package core

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// severity orders statuses from best to worst for the global rollup.
func (s HealthStatus) severity() int {
	switch s {
	case HealthStatusHealthy:
		return 0
	case HealthStatusDegraded:
		return 1
	case HealthStatusUnknown:
		return 2
	default:
		return 3
	}
}

// HealthCheck is one registered probe together with its last result.
type HealthCheck struct {
	Name        string                          `json:"name"`
	Status      HealthStatus                    `json:"status"`
	Message     string                          `json:"message,omitempty"`
	LastChecked time.Time                       `json:"last_checked"`
	Duration    time.Duration                   `json:"duration"`
	CheckFunc   func(ctx context.Context) error `json:"-"`
}

// HealthChecker runs registered probes and rolls their results up into
// one status for the whole engine.
type HealthChecker struct {
	mu           sync.RWMutex
	checks       map[string]*HealthCheck
	globalStatus HealthStatus
	lastUpdate   time.Time
}

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:       make(map[string]*HealthCheck),
		globalStatus: HealthStatusUnknown,
		lastUpdate:   time.Now(),
	}
}

// RegisterCheck registers a new health check
func (hc *HealthChecker) RegisterCheck(name string, checkFunc func(ctx context.Context) error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.checks[name] = &HealthCheck{
		Name:      name,
		Status:    HealthStatusUnknown,
		CheckFunc: checkFunc,
	}
}

// UnregisterCheck removes a health check
func (hc *HealthChecker) UnregisterCheck(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	delete(hc.checks, name)
}

// RunCheck executes one health check and stores its result.
func (hc *HealthChecker) RunCheck(ctx context.Context, name string) error {
	hc.mu.RLock()
	check, exists := hc.checks[name]
	hc.mu.RUnlock()

	if !exists {
		return fmt.Errorf("health check %s not found", name)
	}

	start := time.Now()
	err := check.CheckFunc(ctx)

	hc.mu.Lock()
	defer hc.mu.Unlock()

	check.Duration = time.Since(start)
	check.LastChecked = time.Now()
	if err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = err.Error()
	} else {
		check.Status = HealthStatusHealthy
		check.Message = ""
	}

	return err
}

// RunAllChecks executes every registered check and updates the global
// status to the worst individual result.
func (hc *HealthChecker) RunAllChecks(ctx context.Context) map[string]error {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	hc.mu.RUnlock()

	errors := make(map[string]error)
	for _, name := range names {
		if err := hc.RunCheck(ctx, name); err != nil {
			errors[name] = err
		}
	}

	hc.mu.Lock()
	defer hc.mu.Unlock()

	worst := HealthStatusUnknown
	if len(hc.checks) > 0 {
		worst = HealthStatusHealthy
		for _, check := range hc.checks {
			if check.Status.severity() > worst.severity() {
				worst = check.Status
			}
		}
	}
	hc.globalStatus = worst
	hc.lastUpdate = time.Now()

	return errors
}

// GetStatus returns the global status and a snapshot of all checks.
func (hc *HealthChecker) GetStatus() (HealthStatus, map[string]*HealthCheck) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	snapshot := make(map[string]*HealthCheck, len(hc.checks))
	for name, check := range hc.checks {
		copied := *check
		copied.CheckFunc = nil
		snapshot[name] = &copied
	}

	return hc.globalStatus, snapshot
}

// HealthHandler serves the full health report with per-check details.
func (hc *HealthChecker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		errors := hc.RunAllChecks(ctx)
		globalStatus, checks := hc.GetStatus()

		response := gin.H{
			"status":      globalStatus,
			"timestamp":   time.Now(),
			"checks":      checks,
			"last_update": hc.lastUpdate,
		}
		if len(errors) > 0 {
			response["errors"] = errors
		}

		// Degraded still serves traffic, so it reports 200.
		httpStatus := http.StatusOK
		if globalStatus != HealthStatusHealthy && globalStatus != HealthStatusDegraded {
			httpStatus = http.StatusServiceUnavailable
		}

		c.JSON(httpStatus, response)
	}
}

// LivenessHandler answers as long as the process can serve requests.
func (hc *HealthChecker) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"timestamp": time.Now(),
		})
	}
}

// ReadinessHandler reports whether the engine should receive traffic.
func (hc *HealthChecker) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		globalStatus, _ := hc.GetStatus()

		if globalStatus == HealthStatusHealthy || globalStatus == HealthStatusDegraded {
			c.JSON(http.StatusOK, gin.H{
				"status":    "ready",
				"timestamp": time.Now(),
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"timestamp": time.Now(),
		})
	}
}

// StartPeriodicChecks runs all checks on the given interval until the
// context is cancelled.
func (hc *HealthChecker) StartPeriodicChecks(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	hc.RunAllChecks(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			errors := hc.RunAllChecks(checkCtx)
			cancel()

			for name, err := range errors {
				Error("Health check %s failed: %v", name, err)
			}
		}
	}
}

// Probes for the engine's components

// FileManagerHealthCheck verifies the file manager answers lookups.
func FileManagerHealthCheck(fm *FileManager) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if fm == nil {
			return fmt.Errorf("file manager is nil")
		}
		if fm.GetRoot() == nil {
			return fmt.Errorf("file manager root is nil")
		}
		return nil
	}
}

// ContentHealthCheck verifies the site has at least one content page.
// An empty content tree usually means the site directory is wrong or
// the initial walk failed.
func ContentHealthCheck(fm *FileManager) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if fm == nil {
			return fmt.Errorf("file manager is nil")
		}
		if len(fm.GetFilesByPrefix("content")) == 0 {
			return fmt.Errorf("no content pages loaded")
		}
		return nil
	}
}

// WatcherHealthCheck verifies live reload is actually observing the
// site directory.
func WatcherHealthCheck(w *SiteWatcher) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if w == nil {
			return fmt.Errorf("watcher is nil")
		}
		if !w.IsRunning() {
			return fmt.Errorf("watcher is not running")
		}
		if len(w.WatchedDirs()) == 0 {
			return fmt.Errorf("no directories being watched")
		}
		return nil
	}
}

// RouterHealthCheck verifies requests have somewhere to go.
func RouterHealthCheck(rm *RouterManager) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if rm == nil {
			return fmt.Errorf("router manager is nil")
		}
		if rm.GetRouter() == nil {
			return fmt.Errorf("gin router is nil")
		}
		if rm.GetRouteCount() == 0 {
			return fmt.Errorf("no routes registered")
		}
		return nil
	}
}

// PluginManagerHealthCheck verifies the processing pipeline is populated.
func PluginManagerHealthCheck(pm *PluginManager) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if pm == nil {
			return fmt.Errorf("plugin manager is nil")
		}
		if len(pm.ListPlugins()) == 0 {
			return fmt.Errorf("no plugins registered")
		}
		return nil
	}
}

// Global health checker instance
var GlobalHealthChecker = NewHealthChecker()

// RegisterDefaultHealthChecks registers the standard checks for a running site
func RegisterDefaultHealthChecks(ctx *Context) {
	if ctx.FileManager != nil {
		GlobalHealthChecker.RegisterCheck("file_manager", FileManagerHealthCheck(ctx.FileManager))
		GlobalHealthChecker.RegisterCheck("content", ContentHealthCheck(ctx.FileManager))
	}

	if ctx.Watcher != nil {
		GlobalHealthChecker.RegisterCheck("watcher", WatcherHealthCheck(ctx.Watcher))
	}

	if ctx.PluginManager != nil {
		GlobalHealthChecker.RegisterCheck("plugin_manager", PluginManagerHealthCheck(ctx.PluginManager))
	}

	GlobalHealthChecker.RegisterCheck("memory", func(ctx context.Context) error {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		if memStats.Alloc > 1024*1024*1024 {
			return fmt.Errorf("high memory usage: %d bytes", memStats.Alloc)
		}
		return nil
	})

	GlobalHealthChecker.RegisterCheck("goroutines", func(ctx context.Context) error {
		if count := runtime.NumGoroutine(); count > 1000 {
			return fmt.Errorf("high goroutine count: %d", count)
		}
		return nil
	})
}
