package site

import (
	"path"
	"sort"
	"strings"
	"time"
	"unicode"

	"inkwell/core"
	"inkwell/plugins"
)

// Post is the listing view of a published article. Fields are exported
// so layout templates can reach them directly.
type Post struct {
	Title       string
	Permalink   string
	Date        time.Time
	Updated     time.Time
	Author      string
	Summary     string
	Tags        []TagRef
	ReadingTime int
	WordCount   int
	Weight      int
	Draft       bool

	file *core.File
}

// TagRef links a tag name to its term page.
type TagRef struct {
	Name string
	Url  string
}

// Tag is one term on the tag index, with the posts filed under it.
type Tag struct {
	Name  string
	Slug  string
	Url   string
	Posts []Post
}

// Count is used by the terms template.
func (t Tag) Count() int {
	return len(t.Posts)
}

// TagUrl returns the route of a term page. It shares the slug helper
// with the layout templates so both always agree on the URL.
func TagUrl(name string) string {
	return plugins.TagUrl(name)
}

func tagRefs(names []string) []TagRef {
	if len(names) == 0 {
		return nil
	}
	refs := make([]TagRef, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		refs = append(refs, TagRef{Name: name, Url: TagUrl(name)})
	}
	return refs
}

// CollectPosts gathers the published articles under content/posts.
// Section index pages are skipped, and drafts and future-dated pages
// are gated on the configuration even when a page still carries the
// permalink of an earlier published version. The second return value
// counts drafts, published or not, for diagnostics.
func CollectPosts(fm *core.FileManager, cfg *core.Config) ([]Post, int) {
	files := fm.GetFilesByPrefix("content/posts")

	posts := make([]Post, 0, len(files))
	drafts := 0
	for _, file := range files {
		meta := file.Metadata
		if meta.Draft {
			drafts++
			if !cfg.IncludeDrafts() {
				continue
			}
		}
		if meta.IsFuture(time.Now()) && !cfg.IncludeFuture() {
			continue
		}
		if meta.Permalink == "" || len(file.Routes) == 0 {
			continue
		}
		if isIndexFile(file.Name) {
			continue
		}
		posts = append(posts, Post{
			Title:       postTitle(file),
			Permalink:   meta.Permalink,
			Date:        meta.EffectiveDate(),
			Updated:     meta.Updated(),
			Author:      meta.Author,
			Summary:     meta.Summary,
			Tags:        tagRefs(meta.Tags),
			ReadingTime: meta.ReadingTime,
			WordCount:   meta.WordCount,
			Weight:      meta.Weight,
			Draft:       meta.Draft,
			file:        file,
		})
	}

	sortPosts(posts)
	return posts, drafts
}

// sortPosts orders weighted posts first (ascending weight), then the
// rest newest first, with the title as a stable tiebreak.
func sortPosts(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		wi, wj := posts[i].Weight, posts[j].Weight
		if wi > 0 || wj > 0 {
			if wi <= 0 {
				return false
			}
			if wj <= 0 {
				return true
			}
			if wi != wj {
				return wi < wj
			}
		}
		if !posts[i].Date.Equal(posts[j].Date) {
			return posts[i].Date.After(posts[j].Date)
		}
		return posts[i].Title < posts[j].Title
	})
}

// GroupByTag buckets posts by tag, case-insensitively. The spelling of
// the first occurrence wins. Terms are sorted by post count, then name.
func GroupByTag(posts []Post) []Tag {
	index := make(map[string]*Tag)
	var order []string
	for _, post := range posts {
		for _, ref := range post.Tags {
			key := strings.ToLower(ref.Name)
			tag, ok := index[key]
			if !ok {
				tag = &Tag{
					Name: ref.Name,
					Slug: strings.TrimPrefix(ref.Url, "/tags/"),
					Url:  ref.Url,
				}
				index[key] = tag
				order = append(order, key)
			}
			tag.Posts = append(tag.Posts, post)
		}
	}

	tags := make([]Tag, 0, len(order))
	for _, key := range order {
		tags = append(tags, *index[key])
	}
	sort.SliceStable(tags, func(i, j int) bool {
		if len(tags[i].Posts) != len(tags[j].Posts) {
			return len(tags[i].Posts) > len(tags[j].Posts)
		}
		return strings.ToLower(tags[i].Name) < strings.ToLower(tags[j].Name)
	})
	return tags
}

// postTitle falls back to the file name so untitled pages still show
// up in listings instead of as blank rows.
func postTitle(file *core.File) string {
	if file.Metadata.Title != "" {
		return file.Metadata.Title
	}
	return titleFromName(file.Name)
}

// titleFromName derives a presentable title from a file name.
func titleFromName(name string) string {
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	r := []rune(name)
	if len(r) > 0 {
		r[0] = unicode.ToUpper(r[0])
	}
	return string(r)
}

func isIndexFile(name string) bool {
	return strings.TrimSuffix(strings.ToLower(name), path.Ext(strings.ToLower(name))) == "index"
}
