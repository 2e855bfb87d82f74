package core

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-slug"
)

// CoverImage describes the cover block of a page's front matter.
type CoverImage struct {
	Image    string `yaml:"image" toml:"image"`
	Alt      string `yaml:"alt" toml:"alt"`
	Caption  string `yaml:"caption" toml:"caption"`
	Relative bool   `yaml:"relative" toml:"relative"`
	Hidden   bool   `yaml:"hidden" toml:"hidden"`
}

// IsSet reports whether the front matter declared a cover image.
func (c CoverImage) IsSet() bool {
	return c.Image != ""
}

// FileMetadata is the front matter of a content file. Author-facing keys
// follow the usual static-site conventions; the kebab-case keys at the
// bottom steer layout and routing and are normally set by templates or
// tooling rather than written by hand.
type FileMetadata struct {
	Title       string                 `yaml:"title" toml:"title"`
	Date        time.Time              `yaml:"date" toml:"date"`
	LastMod     time.Time              `yaml:"lastmod" toml:"lastmod"`
	Author      string                 `yaml:"author" toml:"author"`
	Description string                 `yaml:"description" toml:"description"`
	Tags        []string               `yaml:"tags" toml:"tags"`
	Categories  []string               `yaml:"categories" toml:"categories"`
	Weight      int                    `yaml:"weight" toml:"weight"`
	Draft       bool                   `yaml:"draft" toml:"draft"`
	Slug        string                 `yaml:"slug" toml:"slug"`
	Aliases     []string               `yaml:"aliases" toml:"aliases"`
	ShowToc     bool                   `yaml:"ShowToc" toml:"ShowToc"`
	TocOpen     bool                   `yaml:"TocOpen" toml:"TocOpen"`
	Cover       CoverImage             `yaml:"cover" toml:"cover"`
	Params      map[string]interface{} `yaml:"params" toml:"params"`

	CssFile      string `yaml:"css-file" toml:"css-file"`
	MimeType     string `yaml:"mime-type" toml:"mime-type"`
	RedirectUrl  string `yaml:"redirect-url" toml:"redirect-url"`
	IgnoreLayout bool   `yaml:"ignore-layout" toml:"ignore-layout"`

	// Derived during processing, never read from front matter.
	Permalink   string `yaml:"-" toml:"-"`
	Summary     string `yaml:"-" toml:"-"`
	WordCount   int    `yaml:"-" toml:"-"`
	ReadingTime int    `yaml:"-" toml:"-"`
}

// Validate checks the author-facing front matter fields. Parse errors are
// caught earlier; this covers values that parse fine but make no sense.
func (m FileMetadata) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Title, validation.Length(0, 200)),
		validation.Field(&m.Weight, validation.Min(0)),
		validation.Field(&m.Slug, validation.By(validateSlug)),
		validation.Field(&m.Aliases, validation.Each(validation.By(validateAlias))),
		validation.Field(&m.Cover, validation.By(validateCover)),
	)
}

func validateSlug(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if !slug.IsValid(s) {
		return NewValidationError("slug", s, "must contain only lowercase letters, digits and hyphens")
	}
	return nil
}

func validateAlias(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return NewValidationError("aliases", s, "alias must not be empty")
	}
	if !strings.HasPrefix(s, "/") {
		return NewValidationError("aliases", s, "alias must start with /")
	}
	return nil
}

func validateCover(value interface{}) error {
	c, _ := value.(CoverImage)
	if !c.IsSet() && (c.Alt != "" || c.Caption != "") {
		return NewValidationError("cover", c, "cover alt/caption given without an image")
	}
	return nil
}

// EffectiveDate is the publication date, falling back to lastmod for
// pages that only track updates.
func (m FileMetadata) EffectiveDate() time.Time {
	if !m.Date.IsZero() {
		return m.Date
	}
	return m.LastMod
}

// Updated is the last modification date, falling back to the publication
// date when the author never set lastmod.
func (m FileMetadata) Updated() time.Time {
	if !m.LastMod.IsZero() {
		return m.LastMod
	}
	return m.Date
}

// IsFuture reports whether the page is dated after now.
func (m FileMetadata) IsFuture(now time.Time) bool {
	d := m.EffectiveDate()
	return !d.IsZero() && d.After(now)
}

// Param looks up a key from the free-form params block.
func (m FileMetadata) Param(key string) (interface{}, bool) {
	if m.Params == nil {
		return nil, false
	}
	v, ok := m.Params[key]
	return v, ok
}

// BoolParam reads a boolean from the params block, e.g. params.math.
func (m FileMetadata) BoolParam(key string) bool {
	v, ok := m.Param(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// HasTag reports whether the page carries the given tag, ignoring case.
func (m FileMetadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// DirectoryMetadata is read from a directory's index front matter and
// applies to every page in the section.
type DirectoryMetadata struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	CssFile     string `yaml:"css-file"`
	Weight      int    `yaml:"weight"`
}
