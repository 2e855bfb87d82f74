package site

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	xhtml "golang.org/x/net/html"

	"inkwell/core"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding of the content checker.
type Issue struct {
	Path     string
	Severity Severity
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// CountIssues tallies a finding list by severity.
func CountIssues(issues []Issue) (errs, warnings int) {
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warnings++
		}
	}
	return errs, warnings
}

// Checker lints the content tree: front matter must parse, internal
// links must resolve, fenced code must at least tokenize in its
// declared language. Run it after a refresh so the generated routes
// (tag pages, feeds) are known.
type Checker struct {
	ctx *core.Context
	md  goldmark.Markdown
}

func NewChecker(ctx *core.Context) *Checker {
	return &Checker{
		ctx: ctx,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Footnote),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

type report struct {
	issues []Issue
}

func (r *report) errorf(path, format string, args ...any) {
	r.issues = append(r.issues, Issue{Path: path, Severity: SeverityError, Message: fmt.Sprintf(format, args...)})
}

func (r *report) warnf(path, format string, args ...any) {
	r.issues = append(r.issues, Issue{Path: path, Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)})
}

// Run checks every content file and returns the findings ordered by
// path. Drafts and future-dated pages are linted like everything else.
func (c *Checker) Run() []Issue {
	var r report

	resolver := c.newLinkResolver()
	files := c.ctx.FileManager.GetFilesByPrefix("content")

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		c.checkFile(&r, resolver, files[p])
	}
	c.checkCollisions(&r, files, paths)

	sort.SliceStable(r.issues, func(i, j int) bool {
		if r.issues[i].Path != r.issues[j].Path {
			return r.issues[i].Path < r.issues[j].Path
		}
		if r.issues[i].Severity != r.issues[j].Severity {
			return r.issues[i].Severity < r.issues[j].Severity
		}
		return r.issues[i].Message < r.issues[j].Message
	})
	return r.issues
}

func (c *Checker) checkFile(r *report, resolver *linkResolver, file *core.File) {
	ext := strings.ToLower(path.Ext(file.Name))
	switch ext {
	case ".md", ".markdown", ".html", ".htm", ".txt":
	default:
		return
	}

	raw := file.ReadFile(c.ctx.Config.SiteDirectory)
	if raw == nil {
		r.errorf(file.Path, "file is not readable")
		return
	}

	block, _, format, err := core.SplitFrontMatter(raw)
	if err != nil && !errors.Is(err, core.ErrNoFrontMatter) {
		r.errorf(file.Path, "front matter: %v", err)
		return
	}
	if err == nil && len(block) > 0 {
		if err := core.CheckFrontMatterSyntax(block, format); err != nil {
			r.errorf(file.Path, "front matter: %v", err)
			return
		}
	}

	var meta core.FileMetadata
	body, err := core.ParseFrontMatter(raw, &meta)
	if err != nil && !errors.Is(err, core.ErrNoFrontMatter) {
		r.errorf(file.Path, "front matter: %v", err)
		return
	}
	if err := meta.Validate(); err != nil {
		r.errorf(file.Path, "front matter: %v", err)
	}

	c.checkMetadata(r, file, &meta)

	// Relative links resolve against the page's own route
	pageDir := path.Dir("/" + strings.TrimPrefix(file.Path, "content/"))

	switch ext {
	case ".md", ".markdown":
		c.checkMarkdown(r, resolver, file, body, pageDir)
	case ".html", ".htm":
		c.checkHTML(r, resolver, file, body, pageDir)
	}
}

// checkMetadata flags authoring slips that parse fine but hurt the
// rendered site.
func (c *Checker) checkMetadata(r *report, file *core.File, meta *core.FileMetadata) {
	isPost := strings.HasPrefix(file.Path, "content/posts/") && !isIndexFile(file.Name)
	if isPost {
		if meta.Title == "" {
			r.warnf(file.Path, "post has no title")
		}
		if meta.EffectiveDate().IsZero() {
			r.warnf(file.Path, "post has no date, feeds and listings fall back to file times")
		}
	}

	if meta.Author != "" && len(c.ctx.Authors.Authors) > 0 {
		if _, found := c.ctx.Authors.Lookup(meta.Author); !found {
			r.warnf(file.Path, "author %q is not in the author registry", meta.Author)
		}
	}
}

func (c *Checker) checkMarkdown(r *report, resolver *linkResolver, file *core.File, body []byte, pageDir string) {
	doc := c.md.Parser().Parse(text.NewReader(body))

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			c.checkLink(r, resolver, file, string(node.Destination), pageDir)
		case *ast.Image:
			c.checkLink(r, resolver, file, string(node.Destination), pageDir)
		case *ast.FencedCodeBlock:
			lang := ""
			if l := node.Language(body); l != nil {
				lang = string(l)
			}
			c.checkFence(r, file, lang, fenceText(node, body))
		}
		return ast.WalkContinue, nil
	})
}

// checkHTML walks the parsed document for link-carrying attributes.
// Template expressions inside attributes are skipped, they only become
// URLs at render time.
func (c *Checker) checkHTML(r *report, resolver *linkResolver, file *core.File, body []byte, pageDir string) {
	doc, err := xhtml.Parse(bytes.NewReader(body))
	if err != nil {
		r.errorf(file.Path, "html does not parse: %v", err)
		return
	}

	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode {
			attr := ""
			switch n.Data {
			case "a", "link":
				attr = "href"
			case "img", "script", "source":
				attr = "src"
			}
			if attr != "" {
				for _, a := range n.Attr {
					if a.Key == attr && a.Val != "" {
						c.checkLink(r, resolver, file, a.Val, pageDir)
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
}

func (c *Checker) checkLink(r *report, resolver *linkResolver, file *core.File, target, pageDir string) {
	ok, internal := resolver.check(target, pageDir)
	if internal && !ok {
		r.errorf(file.Path, "broken internal link %q", target)
	}
}

// checkFence tokenizes a fenced code block in its declared language.
// Chroma emits error tokens for input the lexer cannot make sense of,
// a reliable smell for typos in shell or python samples.
func (c *Checker) checkFence(r *report, file *core.File, lang, code string) {
	if lang == "" {
		return
	}
	lexer := lexers.Get(lang)
	if lexer == nil {
		r.warnf(file.Path, "unknown code fence language %q", lang)
		return
	}
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		r.warnf(file.Path, "cannot tokenize %s code block: %v", lang, err)
		return
	}
	bad := 0
	for token := iterator(); token != chroma.EOF; token = iterator() {
		if token.Type == chroma.Error {
			bad++
		}
	}
	if bad > 0 {
		r.warnf(file.Path, "%s code block has %d token(s) the lexer rejects", lang, bad)
	}
}

// checkCollisions finds routes claimed twice and aliases that shadow a
// real page. First writer wins at the router, so both are authoring
// errors.
func (c *Checker) checkCollisions(r *report, files map[string]*core.File, paths []string) {
	owner := make(map[string]string)
	canonical := make(map[string]string)

	for _, p := range paths {
		file := files[p]
		for _, route := range file.Routes {
			if other, taken := owner[route]; taken && other != file.Path {
				r.errorf(file.Path, "route %s already claimed by %s", route, other)
				continue
			}
			owner[route] = file.Path
		}
		if perm := file.Metadata.Permalink; perm != "" {
			canonical[perm] = file.Path
		}
	}

	for _, p := range paths {
		file := files[p]
		for _, alias := range file.Metadata.Aliases {
			target := path.Clean(alias)
			if other, taken := canonical[target]; taken {
				r.errorf(file.Path, "alias %s shadows %s", alias, other)
			}
		}
	}
}

// linkResolver knows every served route plus the asset tree on disk.
type linkResolver struct {
	routes   map[string]bool
	assetDir string
}

func (c *Checker) newLinkResolver() *linkResolver {
	routes := make(map[string]bool)
	for _, file := range c.ctx.FileManager.GetAllFiles() {
		for _, route := range file.Routes {
			routes[route] = true
		}
	}
	return &linkResolver{
		routes:   routes,
		assetDir: filepath.Join(c.ctx.Config.SiteDirectory, "assets"),
	}
}

// check reports whether the target resolves and whether it was an
// internal link at all. External URLs, fragments, mailto and template
// expressions come back as not internal and are never flagged.
func (lr *linkResolver) check(target, pageDir string) (ok, internal bool) {
	target = strings.TrimSpace(target)
	if target == "" || strings.Contains(target, "{{") {
		return true, false
	}

	u, err := url.Parse(target)
	if err != nil {
		return true, false
	}
	if u.Scheme != "" || u.Host != "" {
		return true, false
	}

	p := u.Path
	if p == "" {
		return true, false
	}
	if !strings.HasPrefix(p, "/") {
		p = path.Join(pageDir, p)
	}
	p = path.Clean(p)

	if strings.HasPrefix(p, "/assets/") {
		rel := strings.TrimPrefix(p, "/assets/")
		_, err := os.Stat(filepath.Join(lr.assetDir, filepath.FromSlash(rel)))
		return err == nil, true
	}

	if lr.routes[p] {
		return true, true
	}
	if p != "/" && lr.routes[strings.TrimSuffix(p, "/")] {
		return true, true
	}
	return false, true
}

// fenceText reassembles the raw body of a fenced code block.
func fenceText(node *ast.FencedCodeBlock, source []byte) string {
	var sb strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		sb.Write(source[segment.Start:segment.Stop])
	}
	return sb.String()
}
