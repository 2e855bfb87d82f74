package cmd

import (
	"fmt"
	"os"

	"inkwell/core"
	"inkwell/site"
)

// Check lints the content tree and reports every finding on stdout.
// The exit code is non-zero on errors, and in strict mode also on
// warnings.
func Check(ctx *core.Context) {
	// Generate listings first so links to tag pages and feeds resolve
	refreshFailed := false
	blog := site.New(ctx)
	if _, _, err := blog.Refresh(); err != nil {
		refreshFailed = true
		fmt.Printf("error: cannot generate listing pages: %v\n", err)
	}

	issues := site.NewChecker(ctx).Run()
	for _, issue := range issues {
		fmt.Println(issue)
	}

	errs, warnings := site.CountIssues(issues)
	checked := len(ctx.FileManager.GetFilesByPrefix("content"))
	fmt.Printf("%d file(s) checked: %d error(s), %d warning(s)\n", checked, errs, warnings)

	if refreshFailed || errs > 0 {
		os.Exit(1)
	}
	if ctx.Config.Strict && warnings > 0 {
		os.Exit(1)
	}
}
