package core

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Authors is the list of people allowed to appear in a page's author
// field, read from config/authors.yaml.
type Authors struct {
	FilePath string
	Authors  []Author `yaml:"authors"`
}

type Author struct {
	Name     string `yaml:"name"`
	FullName string `yaml:"fullname"`
	Email    string `yaml:"email"`
	Bio      string `yaml:"bio"`
}

// Lookup resolves an author by short name or full name, ignoring case.
func (a Authors) Lookup(name string) (Author, bool) {
	for _, author := range a.Authors {
		if strings.EqualFold(author.Name, name) || strings.EqualFold(author.FullName, name) {
			return author, true
		}
	}
	return Author{}, false
}

func ReadAuthorsYaml(path string) (Authors, error) {
	var authors Authors
	authors.FilePath = path

	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return Authors{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// Parse the YAML file
	if err := yaml.Unmarshal(data, &authors); err != nil {
		return Authors{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// Check if the authors list is empty
	if len(authors.Authors) == 0 {
		return Authors{}, fmt.Errorf("no authors found in %s", path)
	}

	// Return the parsed data
	return authors, nil
}
