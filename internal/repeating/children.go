package repeating

import "github.com/askelund/forma/internal/layout"

// FindChildren resolves the transitive child-component set of a group by
// walking the layout's order edges from rootGroupID (the base container when
// empty). Nested groups contribute their components regardless of where they
// sit in the component maps; only components the optional matching predicate
// accepts are returned.
func FindChildren(l layout.Layout, rootGroupID string, matching func(*layout.Component) bool) []*layout.Component {
	if rootGroupID == "" {
		rootGroupID = layout.BaseContainerID
	}
	var out []*layout.Component
	seen := map[string]bool{}

	var walk func(containerID string)
	walk = func(containerID string) {
		if seen[containerID] {
			return
		}
		seen[containerID] = true
		for _, id := range l.Order[containerID] {
			if l.IsContainer(id) {
				walk(id)
				continue
			}
			c, ok := l.Components[id]
			if !ok {
				continue
			}
			if matching == nil || matching(c) {
				out = append(out, c)
			}
		}
	}
	walk(rootGroupID)
	return out
}
