package layout

import (
	"sort"
	"strings"
)

// Item returns the component or container with the given id, or nil and false
// if neither map contains it.
func (l Layout) Item(id string) (Item, bool) {
	if c, ok := l.Components[id]; ok {
		return c, true
	}
	if c, ok := l.Containers[id]; ok {
		return c, true
	}
	return nil, false
}

// IsContainer returns true if the id refers to a container.
func (l Layout) IsContainer(id string) bool {
	_, ok := l.Containers[id]
	return ok
}

// ChildIDs returns a copy of the ordered child ids of the given container, or
// an empty slice if the container has no order entry.
func (l Layout) ChildIDs(parentID string) []string {
	return append([]string{}, l.Order[parentID]...)
}

// Descendants returns all ids under the given container in depth-first
// pre-order, parents before their children. Ids referenced in the order map
// without a backing item are included; the caller decides how to surface them.
func (l Layout) Descendants(parentID string) []string {
	var out []string
	for _, id := range l.Order[parentID] {
		out = append(out, id)
		if l.IsContainer(id) {
			out = append(out, l.Descendants(id)...)
		}
	}
	return out
}

// ParentID returns the id of the container whose order list contains the given
// id. Layouts are small, so the linear scan over containers is acceptable.
func (l Layout) ParentID(itemID string) (string, bool) {
	for containerID, children := range l.Order {
		for _, child := range children {
			if child == itemID {
				return containerID, true
			}
		}
	}
	return "", false
}

// Depth returns the deepest nesting level of containers within containers,
// 0 if only the base container exists.
func (l Layout) Depth() int {
	return l.depthBelow(BaseContainerID)
}

func (l Layout) depthBelow(containerID string) int {
	depth := 0
	for _, id := range l.Order[containerID] {
		if !l.IsContainer(id) {
			continue
		}
		if d := l.depthBelow(id) + 1; d > depth {
			depth = d
		}
	}
	return depth
}

// HasSubContainers returns true if any container other than the base holds
// another container.
func (l Layout) HasSubContainers() bool {
	for containerID := range l.Containers {
		if containerID == BaseContainerID {
			continue
		}
		for _, id := range l.Order[containerID] {
			if l.IsContainer(id) {
				return true
			}
		}
	}
	return false
}

// HasMultiPageGroup returns true if any container is a multi-page group.
func (l Layout) HasMultiPageGroup() bool {
	for _, c := range l.Containers {
		if c.IsMultiPage() {
			return true
		}
	}
	return false
}

// HasNavigationButtons returns true if the layout contains a navigation
// buttons component.
func (l Layout) HasNavigationButtons() bool {
	for _, c := range l.Components {
		if c.Type == TypeNavigationButtons {
			return true
		}
	}
	return false
}

// IDExists reports whether an id is already taken by a component or container.
// The comparison is case-insensitive; DuplicateIDs is deliberately not, which
// matches long-observed behaviour in the designer.
func (l Layout) IDExists(id string) bool {
	upper := strings.ToUpper(id)
	for existing := range l.Components {
		if strings.ToUpper(existing) == upper {
			return true
		}
	}
	for existing := range l.Containers {
		if strings.ToUpper(existing) == upper {
			return true
		}
	}
	return false
}

// DuplicateIDs flattens every order list and returns each id that appears more
// than once, in first-seen order. Duplicates are detected, not prevented: the
// caller blocks publishing instead of rejecting the mutation that caused them.
func (l Layout) DuplicateIDs() []string {
	seen := map[string]int{}
	flat := l.flattenOrder()
	for _, id := range flat {
		seen[id]++
	}
	var out []string
	reported := map[string]bool{}
	for _, id := range flat {
		if seen[id] > 1 && !reported[id] {
			out = append(out, id)
			reported[id] = true
		}
	}
	return out
}

// flattenOrder concatenates all order lists, iterating container keys in
// sorted order so the result is deterministic.
func (l Layout) flattenOrder() []string {
	keys := make([]string, 0, len(l.Order))
	for k := range l.Order {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var flat []string
	for _, k := range keys {
		flat = append(flat, l.Order[k]...)
	}
	return flat
}

// HasDuplicateIDs returns true if any id appears more than once across all
// order lists.
func (l Layout) HasDuplicateIDs() bool {
	return len(l.DuplicateIDs()) > 0
}

// PagesWithDuplicateIDs detects ids reused across pages. The first occurrence
// of an id establishes ownership; any later occurrence, on another page or
// the same one, flags both pages and records the offending id. pageNames
// fixes the iteration order so results are deterministic.
func PagesWithDuplicateIDs(pageNames []string, pages map[string]Layout) map[string][]string {
	owners := map[string]string{} // id -> owning page
	flagged := map[string]map[string]bool{}

	flag := func(page, id string) {
		if flagged[page] == nil {
			flagged[page] = map[string]bool{}
		}
		flagged[page][id] = true
	}

	for _, name := range pageNames {
		page, ok := pages[name]
		if !ok {
			continue
		}
		for _, id := range page.flattenOrder() {
			if ownerPage, taken := owners[id]; taken {
				flag(ownerPage, id)
				flag(name, id)
				continue
			}
			owners[id] = name
		}
	}

	out := make(map[string][]string, len(flagged))
	for page, ids := range flagged {
		list := make([]string, 0, len(ids))
		for _, id := range pages[page].flattenOrder() {
			if ids[id] {
				list = append(list, id)
				delete(ids, id)
			}
		}
		out[page] = list
	}
	return out
}
