package repeating

import (
	"strconv"

	"github.com/askelund/forma/internal/layout"
)

// RemoveRow deletes the "<groupID>-<index>" state entry. With shiftUp set,
// every subsequent sibling entry is re-keyed one index down so the numbering
// stays contiguous; component ids downstream are positionally derived, so a
// sparse delete would desynchronize them.
func RemoveRow(state map[string]GroupState, groupID string, index int, shiftUp bool) map[string]GroupState {
	out := make(map[string]GroupState, len(state))
	for key, value := range state {
		out[key] = value
	}
	delete(out, rowKey(groupID, index))
	if !shiftUp {
		return out
	}
	for i := index + 1; ; i++ {
		entry, ok := out[rowKey(groupID, i)]
		if !ok {
			break
		}
		delete(out, rowKey(groupID, i))
		out[rowKey(groupID, i-1)] = entry
	}
	return out
}

// RemoveRowCascade removes row index from groupID's state along with the state
// of everything nested under that row. The group's own entry drops one from
// its count, and the per-parent-row instance entries of repeating groups in
// the subtree are deleted at that index and, with shiftUp, renumbered the same
// way validation entries are.
func RemoveRowCascade(l layout.Layout, state map[string]GroupState, groupID string, index int, shiftUp bool) map[string]GroupState {
	out := RemoveRow(state, groupID, index, shiftUp)
	for _, descID := range l.Descendants(groupID) {
		c, ok := l.Containers[descID]
		if !ok || !c.IsRepeating() {
			continue
		}
		out = RemoveRow(out, descID, index, shiftUp)
	}
	// Count is the highest surviving row index. A contiguous shift always
	// lowers it; a sparse delete only does when the last row went away.
	if entry, ok := out[groupID]; ok && entry.Count >= 0 && (shiftUp || index == entry.Count) {
		entry.Count--
		out[groupID] = entry
	}
	return out
}

func rowKey(groupID string, index int) string {
	return groupID + "-" + strconv.Itoa(index)
}
