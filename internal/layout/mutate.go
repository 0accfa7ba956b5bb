package layout

// Mutation operations. All of them clone the input layout and return a new
// value; the input is never touched. They assume well-formed input (valid
// parent ids): a missing parent results in a silent no-op, not an error,
// because the caller validates existence before invoking them. Child-type
// validity is likewise checked by the caller through IsValidChildType, not
// re-checked here.

// AddComponent inserts a component into the given container at position.
// A negative position appends. The component's page index is recomputed from
// the destination context.
func AddComponent(l Layout, c Component, parentID string, position int) Layout {
	out := l.Clone()
	c.PageIndex = pageIndexFor(out, parentID, position)
	out.Components[c.ID] = c.Clone()
	out.Order[parentID] = insertAt(out.Order[parentID], c.ID, position)
	return out
}

// AddContainer inserts a container under parentID at position and initializes
// its (empty) order entry. The id parameter overrides any id set on the
// container payload.
func AddContainer(l Layout, c Container, id, parentID string, position int) Layout {
	out := l.Clone()
	c.ID = id
	c.PageIndex = pageIndexFor(out, parentID, position)
	out.Containers[id] = c.Clone()
	if _, ok := out.Order[id]; !ok {
		out.Order[id] = []string{}
	}
	out.Order[parentID] = insertAt(out.Order[parentID], id, position)
	return out
}

// UpdateContainer replaces the container stored under currentID with the
// given payload. If the payload carries a different id the container is
// renamed: its order entry moves to the new key and the reference in the
// parent's order list is rewritten.
func UpdateContainer(l Layout, updated Container, currentID string) Layout {
	out := l.Clone()
	if updated.ID != currentID && updated.ID != "" {
		out.Order[updated.ID] = out.Order[currentID]
		delete(out.Order, currentID)
		if parentID, ok := out.ParentID(currentID); ok {
			children := out.Order[parentID]
			for i, child := range children {
				if child == currentID {
					children[i] = updated.ID
				}
			}
		}
		delete(out.Containers, currentID)
		out.Containers[updated.ID] = updated.Clone()
		return out
	}
	updated.ID = currentID
	out.Containers[currentID] = updated.Clone()
	return out
}

// RemoveComponent deletes a component and strips it from its parent's order
// list. An already-detached component is deleted without touching any order.
func RemoveComponent(l Layout, componentID string) Layout {
	out := l.Clone()
	delete(out.Components, componentID)
	if parentID, ok := out.ParentID(componentID); ok {
		out.Order[parentID] = removeID(out.Order[parentID], componentID)
	}
	return out
}

// RemoveContainer deletes a container together with its whole subtree and
// strips it from its parent's order list.
func RemoveContainer(l Layout, containerID string) Layout {
	out := l.Clone()
	for _, id := range out.Descendants(containerID) {
		delete(out.Components, id)
		delete(out.Containers, id)
		delete(out.Order, id)
	}
	delete(out.Containers, containerID)
	delete(out.Order, containerID)
	if parentID, ok := out.ParentID(containerID); ok {
		out.Order[parentID] = removeID(out.Order[parentID], containerID)
	}
	return out
}

// RemoveComponentsByType removes every component of the given type.
func RemoveComponentsByType(l Layout, t ComponentType) Layout {
	out := l
	for id, c := range l.Components {
		if c.Type == t {
			out = RemoveComponent(out, id)
		}
	}
	return out
}

// MoveItem detaches an item from its current parent and inserts it into
// newParentID at newPosition, recomputing the page index under the
// destination context.
func MoveItem(l Layout, id, newParentID string, newPosition int) Layout {
	out := l.Clone()
	if oldParent, ok := out.ParentID(id); ok {
		out.Order[oldParent] = removeID(out.Order[oldParent], id)
	}
	pageIndex := pageIndexFor(out, newParentID, newPosition)
	if c, ok := out.Components[id]; ok {
		c.PageIndex = pageIndex
	}
	if c, ok := out.Containers[id]; ok {
		c.PageIndex = pageIndex
	}
	out.Order[newParentID] = insertAt(out.Order[newParentID], id, newPosition)
	return out
}

// AddItemOfType builds a default-valued item for the component type and adds
// it as a component or container depending on the type.
func AddItemOfType(l Layout, t ComponentType, id, parentID string, position int) Layout {
	if t.IsContainerType() {
		return AddContainer(l, DefaultContainer(t), id, parentID, position)
	}
	c := DefaultComponent(t, id)
	return AddComponent(l, c, parentID, position)
}

// IsValidChildType reports whether a component type may be placed inside the
// given parent. Anything is valid at the top level; other containers consult
// their static allow-list.
func (l Layout) IsValidChildType(parentID string, t ComponentType) bool {
	if parentID == BaseContainerID {
		return true
	}
	parent, ok := l.Containers[parentID]
	if !ok {
		return false
	}
	allowed := ValidChildTypes(parent.Type)
	if allowed == nil {
		return true
	}
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

// pageIndexFor computes the page index an item gets when inserted into
// parentID at position: nil unless the parent is a multi-page repeating
// container, otherwise the page index of the immediately preceding sibling,
// or 0 when inserting first into an empty or front position.
func pageIndexFor(l Layout, parentID string, position int) *int {
	parent, ok := l.Containers[parentID]
	if !ok || !parent.IsMultiPage() {
		return nil
	}
	children := l.Order[parentID]
	zero := 0
	if len(children) == 0 || position == 0 {
		return &zero
	}
	precedingIdx := position - 1
	if position < 0 || position > len(children) {
		precedingIdx = len(children) - 1
	}
	if item, ok := l.Item(children[precedingIdx]); ok {
		switch it := item.(type) {
		case *Component:
			if it.PageIndex != nil {
				v := *it.PageIndex
				return &v
			}
		case *Container:
			if it.PageIndex != nil {
				v := *it.PageIndex
				return &v
			}
		}
	}
	return &zero
}

// insertAt inserts id into children at position; a negative or out-of-range
// position appends.
func insertAt(children []string, id string, position int) []string {
	if position < 0 || position >= len(children) {
		return append(children, id)
	}
	out := make([]string, 0, len(children)+1)
	out = append(out, children[:position]...)
	out = append(out, id)
	out = append(out, children[position:]...)
	return out
}

func removeID(children []string, id string) []string {
	out := children[:0]
	for _, child := range children {
		if child != id {
			out = append(out, child)
		}
	}
	return out
}
