package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"inkwell/core"
	"inkwell/plugins"
	"inkwell/site"
)

func initializeWatcher(ctx *core.Context) error {
	watcher, err := core.NewSiteWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// A build output directory inside the site tree must not feed its
	// own writes back into the reload loop
	rel, err := filepath.Rel(ctx.Config.SiteDirectory, ctx.Config.OutDirectory)
	if err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		watcher.Prune(filepath.ToSlash(rel))
	}

	if err := watcher.Start(ctx.Config.SiteDirectory); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	ctx.Watcher = watcher
	return nil
}

// Run serves the site. The search plugin is optional; when present its
// query endpoint is mounted and its index closed on shutdown.
func Run(ctx *core.Context, search *plugins.BuiltinSearchPlugin) {
	// Edits to the site directory flow through the watcher into the
	// reloader, which re-renders pages and keeps routes in sync
	err := initializeWatcher(ctx)
	if err != nil {
		log.Fatalf("failed to initialize watcher: %v", err)
	}
	defer ctx.Watcher.Stop()

	// Listings, feeds and the sitemap must exist before the router
	// builds its initial route table
	blog := site.New(ctx)
	if _, _, err := blog.Refresh(); err != nil {
		log.Fatalf("Failed to generate site pages: %v", err)
	}

	// Set up the routes
	rm := core.NewRouterManager()

	rm.AddMiddleware(core.SecurityHeadersMiddleware(ctx.Config.Server.TLS.Enabled))
	if rpm := ctx.Config.Server.RateLimit; rpm > 0 {
		limiter := core.NewRateLimiter(rpm)
		defer limiter.Stop()
		rm.AddMiddleware(limiter.Middleware())
	}
	rm.AddMiddleware(core.GlobalMetrics.MetricsMiddleware())

	// Operational endpoints are registered before the first build so
	// content can never shadow them
	rm.RegisterHandler("/healthz", core.GlobalHealthChecker.HealthHandler())
	rm.RegisterHandler("/livez", core.GlobalHealthChecker.LivenessHandler())
	rm.RegisterHandler("/readyz", core.GlobalHealthChecker.ReadinessHandler())
	rm.RegisterHandler("/metrics", core.GlobalMetrics.PrometheusHandler())
	rm.RegisterHandler("/metrics.json", core.GlobalMetrics.MetricsHandler())
	if search != nil {
		rm.RegisterHandler("/api/search", search.Handler())
		defer search.Close()
	}

	err = rm.InitializeRouter(ctx)
	if err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	reloader, err := core.NewSiteReloader(ctx.Watcher, ctx.FileManager, rm)
	if err != nil {
		log.Fatalf("Failed to create reloader: %v", err)
	}
	reloader.SetRefresher(blog)
	if err := reloader.Start(); err != nil {
		log.Fatalf("Failed to start reloader: %v", err)
	}
	defer reloader.Stop()

	core.RegisterDefaultHealthChecks(ctx)
	core.GlobalHealthChecker.RegisterCheck("router", core.RouterHealthCheck(rm))

	// Start monitoring services
	monitoringCtx, cancelMonitoring := context.WithCancel(context.Background())
	defer cancelMonitoring()

	// Start metrics collection
	go core.GlobalMetrics.StartMetricsCollector(monitoringCtx)

	// Start health checks (every 60 seconds)
	go core.GlobalHealthChecker.StartPeriodicChecks(monitoringCtx, 60*time.Second)

	// The server holds the router manager, not a router snapshot, so
	// rebuilds after file changes take effect immediately
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(ctx.Config.Server.Port),
		Handler:      rm,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if ctx.Config.Server.TLS.Enabled {
		manager, err := core.NewCertManager(&ctx.Config.Server.TLS)
		if err != nil {
			log.Fatalf("Failed to configure TLS: %v", err)
		}
		server.TLSConfig = manager.TLSConfig()

		// Port 80 answers ACME http-01 challenges and redirects the rest
		challenge := core.ChallengeServer(manager)
		go func() {
			if err := challenge.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("ACME challenge server stopped: %v", err)
			}
		}()
		defer challenge.Close()

		go func() {
			log.Printf("Starting server on %s (TLS)", server.Addr)
			if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
	} else {
		go func() {
			log.Printf("Starting server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
	}

	// Wait for interrupt signal
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
