package plugins

import (
	"inkwell/core"
	"strings"
	"testing"
)

func renderHtmlPage(t *testing.T, ctx *core.Context, relPath, source string) *core.PluginResult {
	t.Helper()

	core.NewTestFileBuilder(relPath).
		WithContent(source).
		CreatePhysically(t, ctx.Config.SiteDirectory)

	file := ctx.FileManager.AddFile(relPath)
	if file == nil {
		t.Fatalf("Failed to add %s to the file manager", relPath)
	}

	plugin := &BuiltinHtmlPlugin{Context: ctx}
	return plugin.Process(&core.PluginContext{
		File:          file,
		FileManager:   ctx.FileManager,
		Config:        &ctx.Config,
		SiteDirectory: ctx.Config.SiteDirectory,
	})
}

func TestHtmlPluginCanProcess(t *testing.T) {
	plugin := &BuiltinHtmlPlugin{}

	tests := []struct {
		path     string
		expected bool
	}{
		{"content/about.html", true},
		{"content/legacy.htm", true},
		{"content/INDEX.HTML", true},
		{"layout/header.html", false},
		{"content/posts/alembic.md", false},
		{"content/robots.txt", false},
	}

	for _, tt := range tests {
		file := core.NewTestFileBuilder(tt.path).Build()
		if got := plugin.CanProcess(file); got != tt.expected {
			t.Errorf("CanProcess(%s) = %v, expected %v", tt.path, got, tt.expected)
		}
	}
}

func TestHtmlPluginProcess(t *testing.T) {
	ctx := newMarkdownTestSite(t)
	ctx.Config.Site.Title = "Migration Notes"

	source := "---\ntitle: \"About Us\"\n---\n" +
		"<h1>{{.PageTitle}}</h1>\n<p>Hand written page on {{.SiteTitle}}.</p>\n"

	result := renderHtmlPage(t, ctx, "content/about.html", source)
	if !result.Success {
		t.Fatalf("Process failed: %v", result.Error)
	}
	if !result.Modified || result.MimeType != "text/html" {
		t.Errorf("Modified = %v, MimeType = %q", result.Modified, result.MimeType)
	}

	// The extension route comes first for html pages
	expected := []string{"/about.html", "/about"}
	if len(result.Routes) != 2 || result.Routes[0] != expected[0] || result.Routes[1] != expected[1] {
		t.Errorf("Routes = %v, expected %v", result.Routes, expected)
	}

	// The whole page is a template, hand-written html uses the variables inline
	html := string(result.NewContent)
	if !strings.Contains(html, "<h1>About Us</h1>") {
		t.Errorf("Expected the title variable to render, got:\n%s", html)
	}
	if !strings.Contains(html, "Hand written page on Migration Notes.") {
		t.Error("Expected site variables inside the body")
	}
	if !strings.HasPrefix(html, "<!DOCTYPE html>") {
		t.Error("Expected the layout header")
	}
	if strings.Contains(html, "title: ") {
		t.Error("Front matter must be stripped from the output")
	}

	file := ctx.FileManager.GetFile("content/about.html")
	if file.Metadata.Permalink != "/about" {
		t.Errorf("Permalink = %q", file.Metadata.Permalink)
	}
}

func TestHtmlPluginIndexPage(t *testing.T) {
	ctx := newMarkdownTestSite(t)

	source := "---\ntitle: \"Home\"\n---\n<p>Welcome.</p>\n"
	result := renderHtmlPage(t, ctx, "content/index.html", source)
	if !result.Success {
		t.Fatalf("Process failed: %v", result.Error)
	}

	found := false
	for _, route := range result.Routes {
		if route == "/" {
			found = true
		}
	}
	if !found {
		t.Errorf("Index page should answer under /, got %v", result.Routes)
	}

	file := ctx.FileManager.GetFile("content/index.html")
	if file.Metadata.Permalink != "/" {
		t.Errorf("Permalink = %q, expected /", file.Metadata.Permalink)
	}

	dir := ctx.FileManager.GetDirectory("content")
	if dir == nil || dir.Metadata.Title != "Home" {
		t.Error("Index front matter should title the content directory")
	}
}

func TestHtmlPluginIgnoreLayout(t *testing.T) {
	ctx := newMarkdownTestSite(t)

	source := "---\ntitle: \"Raw\"\nignore-layout: true\n---\n" +
		"<html><body><h1>{{.PageTitle}}</h1></body></html>\n"

	result := renderHtmlPage(t, ctx, "content/raw.html", source)
	if !result.Success {
		t.Fatalf("Process failed: %v", result.Error)
	}

	html := string(result.NewContent)
	if strings.Contains(html, "<!DOCTYPE html>") {
		t.Error("ignore-layout pages carry their own document structure")
	}
	// Still a template even without the layout
	if !strings.Contains(html, "<h1>Raw</h1>") {
		t.Errorf("Expected template variables to render, got:\n%s", html)
	}
}

func TestHtmlPluginDraftSkipped(t *testing.T) {
	ctx := newMarkdownTestSite(t)

	source := "---\ntitle: \"Hidden\"\ndraft: true\n---\n<p>Soon.</p>\n"
	result := renderHtmlPage(t, ctx, "content/hidden.html", source)

	if !result.Success {
		t.Fatalf("Draft should not be an error: %v", result.Error)
	}
	if result.Modified || len(result.Routes) != 0 {
		t.Error("Draft html pages should not be rendered or routed")
	}
}

func TestHtmlPluginAliases(t *testing.T) {
	ctx := newMarkdownTestSite(t)

	source := "---\ntitle: \"Moved\"\naliases: [\"/old-about\"]\n---\n<p>Current location.</p>\n"
	result := renderHtmlPage(t, ctx, "content/about.html", source)
	if !result.Success {
		t.Fatalf("Process failed: %v", result.Error)
	}

	if len(result.Generated) != 1 {
		t.Fatalf("Generated = %d, expected 1 alias stub", len(result.Generated))
	}
	stub := result.Generated[0]
	if stub.Path != "generated/alias/old-about.html" {
		t.Errorf("Stub path = %q", stub.Path)
	}
	if stub.Metadata.RedirectUrl != "/about" {
		t.Errorf("Stub redirect = %q", stub.Metadata.RedirectUrl)
	}
}

func TestHtmlPluginTemplateError(t *testing.T) {
	ctx := newMarkdownTestSite(t)

	result := renderHtmlPage(t, ctx, "content/broken.html", "<p>{{.Unclosed</p>\n")
	if result.Success {
		t.Error("A broken template should fail processing")
	}
}

func TestHtmlPluginRedirectRejected(t *testing.T) {
	ctx := newMarkdownTestSite(t)

	file := core.NewTestFileBuilder("content/moved.html").
		WithRedirect("/about").
		Build()

	plugin := &BuiltinHtmlPlugin{Context: ctx}
	result := plugin.Process(&core.PluginContext{
		File:          file,
		FileManager:   ctx.FileManager,
		Config:        &ctx.Config,
		SiteDirectory: ctx.Config.SiteDirectory,
	})

	if result.Success || result.Error == nil {
		t.Error("Redirect stubs must not reach the html plugin")
	}
}
