// Package repeating derives repeating-group runtime state from a layout and a
// flat form-data store, and expands group templates into per-row component
// copies. It only reads the layout tree; every component it produces is a new,
// derived value with rewritten ids and bindings.
package repeating

import (
	"strconv"
	"strings"

	"github.com/askelund/forma/internal/layout"
)

// GroupState is the runtime state of one repeating-group instance: the highest
// observed row index in form data (-1 means no rows) and which row is open for
// inline edit (-1 means none).
type GroupState struct {
	Count            int    `json:"count"`
	DataModelBinding string `json:"dataModelBinding,omitempty"`
	BaseGroupID      string `json:"baseGroupId,omitempty"`
	EditIndex        int    `json:"editIndex"`
}

// Groups derives the repeating-group state map from a layout and flat form
// data. Top-level groups get one entry keyed by their id, count -1 when the
// data holds no rows. Groups nested inside a repeating group get one entry per
// parent row, keyed "<groupId>-<parentRowIndex>", each with its own count
// scanned under the parent row's data prefix.
func Groups(l layout.Layout, formData map[string]string) map[string]GroupState {
	repeating := map[string]*layout.Container{}
	for id, c := range l.Containers {
		if c.IsRepeating() {
			repeating[id] = c
		}
	}

	// A group listed in another repeating group's subtree is expanded per
	// parent row, not on its own.
	childGroups := map[string]bool{}
	for id := range repeating {
		for _, descID := range l.Descendants(id) {
			if _, ok := repeating[descID]; ok {
				childGroups[descID] = true
			}
		}
	}

	out := map[string]GroupState{}
	for id, c := range repeating {
		if childGroups[id] {
			continue
		}
		binding := c.GroupBinding()
		count := maxRowIndex(formData, binding+"[")
		out[id] = GroupState{Count: count, DataModelBinding: binding, EditIndex: -1}
		if count < 0 {
			continue
		}
		for _, childID := range l.Descendants(id) {
			child, ok := repeating[childID]
			if !ok {
				continue
			}
			childBinding := child.GroupBinding()
			relative := strings.TrimPrefix(childBinding, binding+".")
			for row := 0; row <= count; row++ {
				prefix := binding + "[" + strconv.Itoa(row) + "]." + relative + "["
				out[childID+"-"+strconv.Itoa(row)] = GroupState{
					Count:            maxRowIndex(formData, prefix),
					DataModelBinding: childBinding,
					BaseGroupID:      childID,
					EditIndex:        -1,
				}
			}
		}
	}
	return out
}

// maxRowIndex scans form-data keys starting with prefix (which ends at an
// opening bracket) and returns the highest row index found, or -1.
func maxRowIndex(formData map[string]string, prefix string) int {
	max := -1
	for key := range formData {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		end := strings.IndexByte(rest, ']')
		if end <= 0 {
			continue
		}
		n, err := strconv.Atoi(rest[:end])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max
}
