package wire

import (
	"github.com/askelund/forma/internal/layout"
)

// ToInternal converts an external layout into the internal flat-map form.
// Implicit (bare string) data-model bindings are made explicit, defaulting
// their data type to defaultDataType. A nil external layout produces an empty
// layout with only the base container.
func ToInternal(ext *ExternalLayout, defaultDataType string) layout.Layout {
	l := layout.Empty()
	if ext == nil || ext.Data == nil {
		return l
	}

	// Pass 1: partition into containers and simple components, and collect
	// the set of ids claimed as a child by some container.
	childOf := map[string]bool{}
	pageOf := map[string]int{}
	for _, ec := range ext.Data.Layout {
		if !ec.Type.IsContainerType() {
			continue
		}
		multiPage := ec.Edit != nil && ec.Edit.MultiPage
		children := make([]string, 0, len(ec.Children))
		for _, ref := range ec.Children {
			id := ref
			if multiPage {
				realID, page, hasPage := ParseChildRef(ref)
				id = realID
				if hasPage {
					pageOf[id] = page
				}
			}
			children = append(children, id)
			childOf[id] = true
		}
		l.Order[ec.ID] = children
	}

	// Pass 2: build the item maps and the base container's order from the
	// original array order.
	for _, ec := range ext.Data.Layout {
		if ec.Type.IsContainerType() {
			c := &layout.Container{
				ID:                   ec.ID,
				Type:                 ec.Type,
				Bindings:             internalBindings(ec.DataModelBindings, defaultDataType),
				TextResourceBindings: ec.TextResourceBindings,
				Edit:                 ec.Edit,
				Extra:                ec.Extra,
			}
			if ec.MaxCount != nil {
				c.MaxCount = *ec.MaxCount
			}
			if page, ok := pageOf[ec.ID]; ok {
				c.PageIndex = &page
			}
			l.Containers[ec.ID] = c
		} else {
			c := &layout.Component{
				ID:                   ec.ID,
				Type:                 ec.Type,
				Bindings:             internalBindings(ec.DataModelBindings, defaultDataType),
				TextResourceBindings: ec.TextResourceBindings,
				Mapping:              ec.Mapping,
				Extra:                ec.Extra,
			}
			if page, ok := pageOf[ec.ID]; ok {
				c.PageIndex = &page
			}
			l.Components[ec.ID] = c
		}
		if !childOf[ec.ID] {
			l.Order[layout.BaseContainerID] = append(l.Order[layout.BaseContainerID], ec.ID)
		}
	}

	l.Hidden = ext.Data.Hidden
	l.CustomDataProperties = ext.Data.Extra
	l.CustomRootProperties = ext.RootExtra
	return l
}

// FromInternal converts an internal layout back to the external form. The flat
// array is assembled by depth-first traversal from the base container, so
// array order and nesting round-trip exactly.
func FromInternal(l layout.Layout) *ExternalLayout {
	data := &ExternalData{
		Layout: []ExternalComponent{},
		Hidden: l.Hidden,
		Extra:  l.CustomDataProperties,
	}
	appendSubtree(l, layout.BaseContainerID, data)
	return &ExternalLayout{
		Data:      data,
		RootExtra: l.CustomRootProperties,
	}
}

func appendSubtree(l layout.Layout, containerID string, data *ExternalData) {
	for _, id := range l.Order[containerID] {
		if c, ok := l.Containers[id]; ok {
			data.Layout = append(data.Layout, externalContainer(l, c))
			appendSubtree(l, id, data)
			continue
		}
		if c, ok := l.Components[id]; ok {
			data.Layout = append(data.Layout, externalComponent(c))
		}
	}
}

func externalComponent(c *layout.Component) ExternalComponent {
	return ExternalComponent{
		ID:                   c.ID,
		Type:                 c.Type,
		DataModelBindings:    externalBindings(c.Bindings),
		TextResourceBindings: c.TextResourceBindings,
		Mapping:              c.Mapping,
		Extra:                c.Extra,
	}
}

func externalContainer(l layout.Layout, c *layout.Container) ExternalComponent {
	children := make([]string, 0, len(l.Order[c.ID]))
	for _, childID := range l.Order[c.ID] {
		var page *int
		if c.IsMultiPage() {
			if item, ok := l.Item(childID); ok {
				switch it := item.(type) {
				case *layout.Component:
					page = it.PageIndex
				case *layout.Container:
					page = it.PageIndex
				}
			}
		}
		children = append(children, FormatChildRef(childID, page))
	}
	out := ExternalComponent{
		ID:                   c.ID,
		Type:                 c.Type,
		DataModelBindings:    externalBindings(c.Bindings),
		TextResourceBindings: c.TextResourceBindings,
		Children:             children,
		Edit:                 c.Edit,
		Extra:                c.Extra,
	}
	if c.Type == layout.TypeGroup {
		maxCount := c.MaxCount
		out.MaxCount = &maxCount
	}
	return out
}

func internalBindings(in map[string]ExternalBinding, defaultDataType string) map[string]layout.Binding {
	if in == nil {
		return nil
	}
	out := make(map[string]layout.Binding, len(in))
	for key, b := range in {
		dataType := b.DataType
		if b.Implicit() {
			dataType = defaultDataType
		}
		out[key] = layout.Binding{Field: b.Field, DataType: dataType}
	}
	return out
}

func externalBindings(in map[string]layout.Binding) map[string]ExternalBinding {
	if in == nil {
		return nil
	}
	out := make(map[string]ExternalBinding, len(in))
	for key, b := range in {
		out[key] = ExternalBinding{Field: b.Field, DataType: b.DataType}
	}
	return out
}
