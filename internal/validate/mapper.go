// Package validate files data-model validation messages onto the layout
// components they belong to, resolving row-indexed paths to the expanded
// per-row component ids, and keeps validation state in step with repeating-row
// removal.
package validate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/askelund/forma/internal/layout"
	"github.com/askelund/forma/internal/repeating"
)

// Results accumulates validation messages keyed by layout id, component id
// and binding key.
type Results map[string]map[string]map[string][]string

var rowIndexRe = regexp.MustCompile(`\[\d+\]`)

// MapToComponentValidations files a message from a flat, possibly row-indexed
// data-model path (e.g. "group_1[2].dataModelField_4") under the component
// whose binding matches the path with indices stripped. When the path carries
// a row index the message lands on the expanded component id "<id>-<index>".
// Identical messages for the same binding are filed once.
func (r Results) MapToComponentValidations(layoutID string, l layout.Layout, dataBindingName, message string) {
	stripped := rowIndexRe.ReplaceAllString(dataBindingName, "")

	for _, id := range l.Descendants(layout.BaseContainerID) {
		c, ok := l.Components[id]
		if !ok {
			continue
		}
		for bindingKey, b := range c.Bindings {
			if b.Field != stripped {
				continue
			}
			componentID := c.ID
			if index, ok := firstRowIndex(dataBindingName); ok {
				componentID += "-" + strconv.Itoa(index)
			}
			r.add(layoutID, componentID, bindingKey, message)
			return
		}
	}
}

func (r Results) add(layoutID, componentID, bindingKey, message string) {
	if r[layoutID] == nil {
		r[layoutID] = map[string]map[string][]string{}
	}
	if r[layoutID][componentID] == nil {
		r[layoutID][componentID] = map[string][]string{}
	}
	for _, existing := range r[layoutID][componentID][bindingKey] {
		if existing == message {
			return
		}
	}
	r[layoutID][componentID][bindingKey] = append(r[layoutID][componentID][bindingKey], message)
}

// firstRowIndex extracts the first "[n]" of a data-binding path.
func firstRowIndex(dataBindingName string) (int, bool) {
	open := strings.IndexByte(dataBindingName, '[')
	if open < 0 {
		return 0, false
	}
	end := strings.IndexByte(dataBindingName[open:], ']')
	if end < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(dataBindingName[open+1 : open+end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Clone deep-copies the accumulated results.
func (r Results) Clone() Results {
	out := make(Results, len(r))
	for layoutID, components := range r {
		out[layoutID] = make(map[string]map[string][]string, len(components))
		for componentID, bindings := range components {
			out[layoutID][componentID] = make(map[string][]string, len(bindings))
			for key, messages := range bindings {
				out[layoutID][componentID][key] = append([]string(nil), messages...)
			}
		}
	}
	return out
}

// RemoveGroupValidationsByIndex drops every validation entry belonging to the
// deleted row of a repeating group, including rows of nested child groups, and
// shifts the entries of all subsequent sibling rows one index down. This
// mirrors repeating.RemoveRow so UI state and validation state renumber
// together.
func RemoveGroupValidationsByIndex(
	groupID string,
	index int,
	layoutID string,
	l layout.Layout,
	groups map[string]repeating.GroupState,
	r Results,
) Results {
	out := r.Clone()
	entries := out[layoutID]
	if entries == nil {
		return out
	}

	count := groups[groupID].Count
	for i := index; i <= count; i++ {
		for _, childID := range l.Order[groupID] {
			child, isContainer := l.Containers[childID]
			if isContainer && child.IsRepeating() {
				instanceKey := childID + "-" + strconv.Itoa(i)
				childCount := groups[instanceKey].Count
				for row := 0; row <= childCount; row++ {
					for _, grandchildID := range l.Order[childID] {
						shiftRowEntry(entries,
							grandchildID+"-"+strconv.Itoa(i)+"-"+strconv.Itoa(row),
							grandchildID+"-"+strconv.Itoa(i-1)+"-"+strconv.Itoa(row),
							i == index)
					}
				}
				shiftRowEntry(entries, instanceKey, childID+"-"+strconv.Itoa(i-1), i == index)
				continue
			}
			shiftRowEntry(entries,
				childID+"-"+strconv.Itoa(i),
				childID+"-"+strconv.Itoa(i-1),
				i == index)
		}
	}
	return out
}

// shiftRowEntry deletes the entry when the row itself is being removed, and
// otherwise re-keys it one index down.
func shiftRowEntry(entries map[string]map[string][]string, from, to string, removing bool) {
	value, ok := entries[from]
	if !ok {
		return
	}
	delete(entries, from)
	if !removing {
		entries[to] = value
	}
}
