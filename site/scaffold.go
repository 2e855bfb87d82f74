package site

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"inkwell/core"
)

// Scaffold creates a new content file with starter front matter and
// returns the path it wrote. The page starts as a draft; the date is
// emitted as a plain timestamp scalar so it round-trips into the
// metadata parser.
func Scaffold(cfg *core.Config) (string, error) {
	rel := path.Clean(filepath.ToSlash(cfg.ScaffoldPath))
	rel = strings.TrimPrefix(rel, "content/")
	if rel == "" || rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("invalid content path %q", cfg.ScaffoldPath)
	}

	switch strings.ToLower(path.Ext(rel)) {
	case "":
		rel += ".md"
	case ".md", ".markdown", ".html", ".htm", ".txt":
	default:
		return "", fmt.Errorf("unsupported content type %q", path.Ext(rel))
	}

	target := filepath.Join(cfg.SiteDirectory, "content", filepath.FromSlash(rel))
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("%s already exists", target)
	}

	title := cfg.ScaffoldTitle
	if title == "" {
		title = titleFromName(path.Base(rel))
	}

	format := core.FormatYAML
	if cfg.ScaffoldFormat == "toml" {
		format = core.FormatTOML
	}

	fields := yaml.MapSlice{
		{Key: "title", Value: title},
		{Key: "date", Value: time.Now().Truncate(time.Second)},
	}
	if cfg.Site.Author != "" {
		fields = append(fields, yaml.MapItem{Key: "author", Value: cfg.Site.Author})
	}
	fields = append(fields,
		yaml.MapItem{Key: "tags", Value: []string{}},
		yaml.MapItem{Key: "description", Value: ""},
		yaml.MapItem{Key: "draft", Value: true},
	)

	content, err := core.ComposeFrontMatter(fields, "", format)
	if err != nil {
		return "", fmt.Errorf("compose front matter: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(target, content, 0644); err != nil {
		return "", err
	}
	return target, nil
}
