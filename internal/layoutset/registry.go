package layoutset

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/askelund/forma/internal/layout"
)

// snapshot is an immutable collection of all loaded layout sets.
type snapshot struct {
	sets     map[string]LayoutSet
	checksum string
}

// Registry is a read-optimized, thread-safe store of loaded layout sets. It
// uses atomic pointer swap for lock-free concurrent reads; Replace installs a
// whole new snapshot, so readers never observe a half-loaded state.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given layout sets.
func NewRegistry(sets []LayoutSet) *Registry {
	r := &Registry{}
	r.Replace(sets)
	return r
}

// Replace atomically swaps the registry contents.
func (r *Registry) Replace(sets []LayoutSet) {
	s := &snapshot{sets: make(map[string]LayoutSet, len(sets))}

	var checksumParts []string
	for _, set := range sets {
		s.sets[set.Name] = set
		checksumParts = append(checksumParts, set.Checksum)
	}
	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Set returns the layout set with the given name.
func (r *Registry) Set(name string) (LayoutSet, bool) {
	s, ok := r.current().sets[name]
	return s, ok
}

// Page returns one page of a layout set.
func (r *Registry) Page(setName, pageName string) (layout.Layout, bool) {
	set, ok := r.current().sets[setName]
	if !ok {
		return layout.Layout{}, false
	}
	return set.Page(pageName)
}

// SetNames returns all loaded set names, sorted.
func (r *Registry) SetNames() []string {
	s := r.current()
	names := make([]string, 0, len(s.sets))
	for name := range s.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DuplicateReport runs cross-page duplicate detection over one set, in page
// order.
func (r *Registry) DuplicateReport(setName string) (map[string][]string, bool) {
	set, ok := r.current().sets[setName]
	if !ok {
		return nil, false
	}
	return layout.PagesWithDuplicateIDs(set.PageOrder, set.Pages), true
}

// Checksum returns the combined checksum of all loaded sets.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
