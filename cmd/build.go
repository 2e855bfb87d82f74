package cmd

import (
	"log"
	"time"

	"inkwell/core"
	"inkwell/site"
)

// Build renders every route into a static tree under the output
// directory. Unchanged pages are skipped based on the build manifest
// from the previous run.
func Build(ctx *core.Context) {
	blog := site.New(ctx)
	if _, _, err := blog.Refresh(); err != nil {
		log.Fatalf("Failed to generate site pages: %v", err)
	}

	rm := core.NewRouterManager()
	if err := rm.InitializeRouter(ctx); err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	start := time.Now()
	result, err := site.NewBuilder(ctx, rm).Build(ctx.Config.OutDirectory)
	if err != nil {
		log.Fatalf("Build failed: %v", err)
	}

	log.Printf("Build %s finished in %v: %d page(s) written, %d up to date, %d asset(s) copied",
		result.BuildID, time.Since(start).Round(time.Millisecond),
		result.Pages, result.Skipped, result.Assets)
}
