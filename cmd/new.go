package cmd

import (
	"log"

	"inkwell/core"
	"inkwell/site"
)

// New scaffolds a content file with starter front matter.
func New(ctx *core.Context) {
	target, err := site.Scaffold(&ctx.Config)
	if err != nil {
		log.Fatalf("Failed to scaffold page: %v", err)
	}
	log.Printf("Created %s", target)
}
