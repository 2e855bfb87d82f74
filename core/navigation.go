package core

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// Navigation is the site's main menu, read from config/navigation.yaml.
// Templates receive the tree with IsActive set for the current page.
type Navigation struct {
	FilePath       string
	NavigationTree []NavigationItem `yaml:"main"`
}

type NavigationItem struct {
	Url      string           `yaml:"url"`
	Label    string           `yaml:"label"`
	Weight   int              `yaml:"weight"`
	Children []NavigationItem `yaml:"children,omitempty"`
	IsActive bool             // helper field for templating
}

// External reports whether the item links off-site.
func (n NavigationItem) External() bool {
	return strings.HasPrefix(n.Url, "http://") || strings.HasPrefix(n.Url, "https://")
}

func ReadNavigationYaml(path string) (Navigation, error) {
	var navigation Navigation
	navigation.FilePath = path

	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return Navigation{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// Parse the YAML file
	if err := yaml.Unmarshal(data, &navigation); err != nil {
		return Navigation{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// We need at least one main navigation item
	if len(navigation.NavigationTree) == 0 {
		return Navigation{}, fmt.Errorf("no main navigation items found in %s", path)
	}

	// Menu entries link to site routes or external pages, nothing else
	for _, item := range navigation.NavigationTree {
		if err := validateNavigationItem(item); err != nil {
			return Navigation{}, fmt.Errorf("%s: %w", path, err)
		}
	}

	sortNavigationTree(navigation.NavigationTree)
	return navigation, nil
}

func validateNavigationItem(item NavigationItem) error {
	if item.Label == "" {
		return fmt.Errorf("navigation item %q has no label", item.Url)
	}
	if !strings.HasPrefix(item.Url, "/") && !item.External() {
		return fmt.Errorf("expected absolute url for %s", item.Url)
	}
	for _, child := range item.Children {
		if err := validateNavigationItem(child); err != nil {
			return err
		}
	}
	return nil
}

// sortNavigationTree orders menu entries by weight, keeping the file
// order for entries with equal weight.
func sortNavigationTree(items []NavigationItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Weight < items[j].Weight
	})
	for i := range items {
		sortNavigationTree(items[i].Children)
	}
}
