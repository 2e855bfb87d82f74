package core

import (
	"strings"
	"testing"
	"time"
)

func validMetadata() FileMetadata {
	return FileMetadata{
		Title:       "Alembic Migrations in Practice",
		Date:        time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC),
		Author:      "mara",
		Description: "Autogenerate, batch mode, and the offline story.",
		Tags:        []string{"python", "databases"},
		Weight:      10,
		Slug:        "alembic-migrations",
		Aliases:     []string{"/old/alembic"},
		Cover: CoverImage{
			Image:   "/assets/covers/alembic.png",
			Alt:     "Migration graph",
			Caption: "A linear history",
		},
	}
}

func TestFileMetadataValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *FileMetadata)
		wantErr bool
	}{
		{
			name:   "valid metadata",
			mutate: func(m *FileMetadata) {},
		},
		{
			name:   "empty metadata is fine",
			mutate: func(m *FileMetadata) { *m = FileMetadata{} },
		},
		{
			name:    "title too long",
			mutate:  func(m *FileMetadata) { m.Title = strings.Repeat("x", 201) },
			wantErr: true,
		},
		{
			name:   "title at the limit",
			mutate: func(m *FileMetadata) { m.Title = strings.Repeat("x", 200) },
		},
		{
			name:    "negative weight",
			mutate:  func(m *FileMetadata) { m.Weight = -1 },
			wantErr: true,
		},
		{
			name:    "slug with spaces and capitals",
			mutate:  func(m *FileMetadata) { m.Slug = "Not A Slug!" },
			wantErr: true,
		},
		{
			name:   "empty slug is fine",
			mutate: func(m *FileMetadata) { m.Slug = "" },
		},
		{
			name:    "alias without leading slash",
			mutate:  func(m *FileMetadata) { m.Aliases = []string{"old/alembic"} },
			wantErr: true,
		},
		{
			name:    "empty alias",
			mutate:  func(m *FileMetadata) { m.Aliases = []string{""} },
			wantErr: true,
		},
		{
			name:    "cover alt without image",
			mutate:  func(m *FileMetadata) { m.Cover = CoverImage{Alt: "orphan alt"} },
			wantErr: true,
		},
		{
			name:    "cover caption without image",
			mutate:  func(m *FileMetadata) { m.Cover = CoverImage{Caption: "orphan caption"} },
			wantErr: true,
		},
		{
			name:   "cover image alone",
			mutate: func(m *FileMetadata) { m.Cover = CoverImage{Image: "/assets/c.png"} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMetadata()
			tt.mutate(&m)

			err := m.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestEffectiveDate(t *testing.T) {
	date := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	lastmod := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

	m := FileMetadata{Date: date, LastMod: lastmod}
	if !m.EffectiveDate().Equal(date) {
		t.Errorf("EffectiveDate = %v, expected the publication date", m.EffectiveDate())
	}

	m = FileMetadata{LastMod: lastmod}
	if !m.EffectiveDate().Equal(lastmod) {
		t.Errorf("EffectiveDate = %v, expected lastmod fallback", m.EffectiveDate())
	}

	m = FileMetadata{}
	if !m.EffectiveDate().IsZero() {
		t.Errorf("EffectiveDate = %v, expected zero", m.EffectiveDate())
	}
}

func TestUpdated(t *testing.T) {
	date := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	lastmod := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

	m := FileMetadata{Date: date, LastMod: lastmod}
	if !m.Updated().Equal(lastmod) {
		t.Errorf("Updated = %v, expected lastmod", m.Updated())
	}

	m = FileMetadata{Date: date}
	if !m.Updated().Equal(date) {
		t.Errorf("Updated = %v, expected date fallback", m.Updated())
	}
}

func TestIsFuture(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	m := FileMetadata{Date: now.Add(24 * time.Hour)}
	if !m.IsFuture(now) {
		t.Error("Post dated tomorrow should be future")
	}

	m = FileMetadata{Date: now.Add(-24 * time.Hour)}
	if m.IsFuture(now) {
		t.Error("Post dated yesterday should not be future")
	}

	// Scheduled via lastmod only
	m = FileMetadata{LastMod: now.Add(time.Hour)}
	if !m.IsFuture(now) {
		t.Error("Post with future lastmod and no date should be future")
	}

	m = FileMetadata{}
	if m.IsFuture(now) {
		t.Error("Undated post should not be future")
	}
}

func TestParams(t *testing.T) {
	m := FileMetadata{
		Params: map[string]interface{}{
			"math":   true,
			"series": "sqlalchemy",
		},
	}

	if v, ok := m.Param("series"); !ok || v != "sqlalchemy" {
		t.Errorf("Param(series) = %v (ok=%v)", v, ok)
	}

	if _, ok := m.Param("missing"); ok {
		t.Error("Param(missing) should not be found")
	}

	if !m.BoolParam("math") {
		t.Error("BoolParam(math) should be true")
	}

	// Non-bool values read as false
	if m.BoolParam("series") {
		t.Error("BoolParam(series) should be false for a string value")
	}

	if m.BoolParam("missing") {
		t.Error("BoolParam(missing) should be false")
	}

	// No params block at all
	empty := FileMetadata{}
	if _, ok := empty.Param("anything"); ok {
		t.Error("Param on nil params should not be found")
	}
	if empty.BoolParam("anything") {
		t.Error("BoolParam on nil params should be false")
	}
}

func TestHasTag(t *testing.T) {
	m := FileMetadata{Tags: []string{"Python", "databases"}}

	if !m.HasTag("python") {
		t.Error("HasTag should ignore case")
	}
	if !m.HasTag("DATABASES") {
		t.Error("HasTag should ignore case")
	}
	if m.HasTag("bash") {
		t.Error("HasTag should not match absent tags")
	}

	empty := FileMetadata{}
	if empty.HasTag("python") {
		t.Error("HasTag on empty tags should be false")
	}
}

func TestCoverImageIsSet(t *testing.T) {
	if (CoverImage{}).IsSet() {
		t.Error("Empty cover should not be set")
	}
	if !(CoverImage{Image: "/assets/c.png"}).IsSet() {
		t.Error("Cover with image should be set")
	}
	if (CoverImage{Alt: "alt only"}).IsSet() {
		t.Error("Cover with only alt should not be set")
	}
}
