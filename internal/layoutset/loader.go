// Package layoutset loads layout-set directories from disk, converts each page
// into the internal representation, and serves them from a fast-lookup
// registry with atomic pointer swap.
package layoutset

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/askelund/forma/internal/layout"
	"github.com/askelund/forma/internal/wire"
)

// settingsFileName is the per-set settings document carrying the page order.
const settingsFileName = "Settings.json"

// LayoutSet is one loaded set: its pages in internal form, the page order from
// settings (or sorted file names when absent), and a content checksum.
type LayoutSet struct {
	Name            string
	DefaultDataType string
	Pages           map[string]layout.Layout
	PageOrder       []string
	Checksum        string
	SourceDir       string
}

// Page returns a page of the set by name.
func (s LayoutSet) Page(name string) (layout.Layout, bool) {
	l, ok := s.Pages[name]
	return l, ok
}

// settings mirrors the on-disk Settings.json page-order document.
type settings struct {
	Pages struct {
		Order []string `json:"order"`
	} `json:"pages"`
}

// Loader scans a root directory where each subdirectory is one layout set
// containing "<page>.json" files and an optional Settings.json.
type Loader struct {
	DefaultDataType string
}

// NewLoader creates a Loader that assigns the given default data type to
// implicit bindings.
func NewLoader(defaultDataType string) *Loader {
	return &Loader{DefaultDataType: defaultDataType}
}

// LoadAll loads every layout set under root, sorted by set name.
func (l *Loader) LoadAll(root string) ([]LayoutSet, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("layoutset: scanning %s: %w", root, err)
	}

	var sets []LayoutSet
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		set, err := l.LoadSet(filepath.Join(root, entry.Name()), entry.Name())
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Name < sets[j].Name })
	return sets, nil
}

// LoadSet loads one layout-set directory: each *.json file except the settings
// document is a page, parsed as the external wire format and converted.
func (l *Loader) LoadSet(dir, name string) (LayoutSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return LayoutSet{}, fmt.Errorf("layoutset: reading %s: %w", dir, err)
	}

	set := LayoutSet{
		Name:            name,
		DefaultDataType: l.DefaultDataType,
		Pages:           map[string]layout.Layout{},
		SourceDir:       dir,
	}

	var checksumParts []string
	var pageNames []string
	var order []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return LayoutSet{}, fmt.Errorf("layoutset: reading %s: %w", path, err)
		}
		checksumParts = append(checksumParts, fmt.Sprintf("%x", sha256.Sum256(data)))

		if entry.Name() == settingsFileName {
			var s settings
			if err := json.Unmarshal(data, &s); err != nil {
				return LayoutSet{}, fmt.Errorf("layoutset: parsing %s: %w", path, err)
			}
			order = s.Pages.Order
			continue
		}

		var ext wire.ExternalLayout
		if err := json.Unmarshal(data, &ext); err != nil {
			return LayoutSet{}, fmt.Errorf("layoutset: parsing %s: %w", path, err)
		}
		pageName := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		set.Pages[pageName] = wire.ToInternal(&ext, l.DefaultDataType)
		pageNames = append(pageNames, pageName)
	}

	sort.Strings(pageNames)
	set.PageOrder = resolvePageOrder(order, pageNames)

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	set.Checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))
	return set, nil
}

// resolvePageOrder applies the settings order where given, appending any page
// the settings do not mention and dropping entries without a backing file.
func resolvePageOrder(order, pageNames []string) []string {
	known := map[string]bool{}
	for _, name := range pageNames {
		known[name] = true
	}
	var out []string
	listed := map[string]bool{}
	for _, name := range order {
		if known[name] && !listed[name] {
			out = append(out, name)
			listed[name] = true
		}
	}
	for _, name := range pageNames {
		if !listed[name] {
			out = append(out, name)
		}
	}
	return out
}
