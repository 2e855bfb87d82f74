package plugins

import (
	"html/template"
	"strings"

	"github.com/yuin/goldmark/ast"
)

// TocEntry is one heading in the table-of-contents tree.
type TocEntry struct {
	Title    string
	Anchor   string
	Level    int
	Children []*TocEntry
}

// ExtractToc collects the h2-h4 headings of a parsed document into a
// tree. The h1 is the page title and stays out of the table of contents.
// Anchors come from the auto-generated heading IDs, so the parser must
// run with parser.WithAutoHeadingID().
func ExtractToc(doc ast.Node, source []byte) []*TocEntry {
	var entries []*TocEntry
	var stack []*TocEntry

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		heading, ok := n.(*ast.Heading)
		if !ok || !entering {
			return ast.WalkContinue, nil
		}
		if heading.Level < 2 || heading.Level > 4 {
			return ast.WalkSkipChildren, nil
		}

		entry := &TocEntry{
			Title:  nodeText(heading, source),
			Anchor: headingAnchor(heading),
			Level:  heading.Level,
		}

		// Pop the stack until the top can hold this heading
		for len(stack) > 0 && stack[len(stack)-1].Level >= entry.Level {
			stack = stack[:len(stack)-1]
		}

		if len(stack) == 0 {
			entries = append(entries, entry)
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, entry)
		}
		stack = append(stack, entry)

		return ast.WalkSkipChildren, nil
	})

	return entries
}

func headingAnchor(heading *ast.Heading) string {
	id, ok := heading.AttributeString("id")
	if !ok {
		return ""
	}
	if b, ok := id.([]byte); ok {
		return string(b)
	}
	if s, ok := id.(string); ok {
		return s
	}
	return ""
}

// nodeText flattens the text content of a node, dropping markup.
func nodeText(n ast.Node, source []byte) string {
	var sb strings.Builder

	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})

	return sb.String()
}

// PlainText flattens a document into whitespace-normalized text. Code
// blocks are skipped: they would dominate summaries and word counts on
// pages that are mostly listings.
func PlainText(doc ast.Node, source []byte) string {
	var sb strings.Builder

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				sb.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}

		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock:
			return ast.WalkSkipChildren, nil
		}

		switch t := n.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(sb.String()), " ")
}

// RenderToc renders the tree as a collapsible block the header template
// places above the content. The open flag expands it on page load.
func RenderToc(entries []*TocEntry, open bool) template.HTML {
	if len(entries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(`<details class="toc"`)
	if open {
		sb.WriteString(" open")
	}
	sb.WriteString(">\n<summary>Table of Contents</summary>\n")
	renderTocLevel(&sb, entries)
	sb.WriteString("</details>\n")

	return template.HTML(sb.String())
}

func renderTocLevel(sb *strings.Builder, entries []*TocEntry) {
	sb.WriteString("<ul>\n")
	for _, entry := range entries {
		sb.WriteString(`<li><a href="#`)
		sb.WriteString(template.HTMLEscapeString(entry.Anchor))
		sb.WriteString(`">`)
		sb.WriteString(template.HTMLEscapeString(entry.Title))
		sb.WriteString("</a>")
		if len(entry.Children) > 0 {
			sb.WriteString("\n")
			renderTocLevel(sb, entry.Children)
		}
		sb.WriteString("</li>\n")
	}
	sb.WriteString("</ul>\n")
}
