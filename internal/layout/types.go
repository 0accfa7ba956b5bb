// Package layout holds the internal representation of a form layout: flat
// component and container maps plus a parent-to-children order map. The order
// map is the only place nesting is represented; the tree is reconstructed by
// following order edges from the base container. All operations are pure:
// they take a Layout value and return a new one, never mutating the input.
package layout

import "encoding/json"

// BaseContainerID is the reserved id of the synthetic root container. It has
// no parent and is never itself listed as a child.
const BaseContainerID = "__base__"

// ItemType discriminates components from containers.
type ItemType string

const (
	ItemTypeComponent ItemType = "COMPONENT"
	ItemTypeContainer ItemType = "CONTAINER"
)

// ComponentType enumerates the known form component and container types.
type ComponentType string

const (
	TypeInput             ComponentType = "Input"
	TypeTextArea          ComponentType = "TextArea"
	TypeHeader            ComponentType = "Header"
	TypeParagraph         ComponentType = "Paragraph"
	TypeCheckboxes        ComponentType = "Checkboxes"
	TypeRadioButtons      ComponentType = "RadioButtons"
	TypeDropdown          ComponentType = "Dropdown"
	TypeDatepicker        ComponentType = "Datepicker"
	TypeFileUpload        ComponentType = "FileUpload"
	TypeFileUploadWithTag ComponentType = "FileUploadWithTag"
	TypeAddress           ComponentType = "AddressComponent"
	TypeAttachmentList    ComponentType = "AttachmentList"
	TypeButton            ComponentType = "Button"
	TypeNavigationButtons ComponentType = "NavigationButtons"
	TypeImage             ComponentType = "Image"
	TypePanel             ComponentType = "Panel"
	TypeGroup             ComponentType = "Group"
	TypeButtonGroup       ComponentType = "ButtonGroup"
)

// containerTypes is the set of types stored in Layout.Containers rather than
// Layout.Components.
var containerTypes = map[ComponentType]bool{
	TypeGroup:       true,
	TypeButtonGroup: true,
}

// IsContainerType returns true if the type is a container type.
func (t ComponentType) IsContainerType() bool {
	return containerTypes[t]
}

// Well-known data-model binding keys.
const (
	BindingKeySimple  = "simpleBinding"
	BindingKeyGroup   = "group"
	BindingKeyList    = "list"
	BindingKeyAddress = "address"
)

// Binding is an explicit data-model binding: a field path within a named data
// type. Implicit (bare string) bindings only exist at the wire boundary.
type Binding struct {
	Field    string `json:"field"`
	DataType string `json:"dataType"`
}

// Item is implemented by both Component and Container.
type Item interface {
	ItemID() string
	Kind() ItemType
}

// Component is a leaf form element.
type Component struct {
	ID                   string
	Type                 ComponentType
	Bindings             map[string]Binding
	TextResourceBindings map[string]string
	Mapping              map[string]string
	// PageIndex is non-nil only when the parent is a multi-page repeating
	// container. It is recomputed on add and move, never caller-settable.
	PageIndex *int
	// BaseComponentID is set only on expanded runtime copies and records the
	// template id before the row-index suffix was appended.
	BaseComponentID string
	// Hidden marks expanded runtime copies matched by a hidden-fields list.
	Hidden bool
	// Extra preserves type-specific wire properties the engine does not
	// interpret, keyed by their original JSON name.
	Extra map[string]json.RawMessage
}

// ItemID implements Item.
func (c *Component) ItemID() string { return c.ID }

// Kind implements Item.
func (c *Component) Kind() ItemType { return ItemTypeComponent }

// RowFilter restricts which rows of a repeating group are rendered.
// Keys "start" and "stop" override the default 0..count range.
type RowFilter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GroupEdit holds the edit-mode options of a repeating container.
type GroupEdit struct {
	Mode      string      `json:"mode,omitempty"`
	MultiPage bool        `json:"multiPage,omitempty"`
	Filter    []RowFilter `json:"filter,omitempty"`
}

// Container is a form element that holds children. Its child order lives in
// Layout.Order, not on the container itself.
type Container struct {
	ID                   string
	Type                 ComponentType
	Bindings             map[string]Binding
	TextResourceBindings map[string]string
	MaxCount             int
	Edit                 *GroupEdit
	PageIndex            *int
	Extra                map[string]json.RawMessage
}

// ItemID implements Item.
func (c *Container) ItemID() string { return c.ID }

// Kind implements Item.
func (c *Container) Kind() ItemType { return ItemTypeContainer }

// IsMultiPage returns true if the container distributes its children across
// multiple pages.
func (c *Container) IsMultiPage() bool {
	return c.Edit != nil && c.Edit.MultiPage
}

// IsRepeating returns true if the container repeats over a data-model group.
func (c *Container) IsRepeating() bool {
	return c.Type == TypeGroup && c.MaxCount > 1
}

// GroupBinding returns the container's group data-model binding field, or ""
// if none is set.
func (c *Container) GroupBinding() string {
	return c.Bindings[BindingKeyGroup].Field
}

// Layout is the internal tree representation of one form page.
type Layout struct {
	Components map[string]*Component
	Containers map[string]*Container
	// Order maps every container id (including BaseContainerID) to its
	// ordered child ids. An entry exists for every container, empty included.
	Order map[string][]string
	// Hidden is the page-level hidden expression, passed through unparsed.
	Hidden json.RawMessage
	// CustomDataProperties and CustomRootProperties carry wire-format keys
	// the engine does not interpret.
	CustomDataProperties map[string]json.RawMessage
	CustomRootProperties map[string]json.RawMessage
}

// Empty returns a layout containing only the base container with no children.
func Empty() Layout {
	return Layout{
		Components: map[string]*Component{},
		Containers: map[string]*Container{BaseContainerID: {ID: BaseContainerID, Type: TypeGroup}},
		Order:      map[string][]string{BaseContainerID: {}},
	}
}

// Clone returns a deep copy of the layout. Mutation operations clone before
// modifying so that old and new values never share mutable state.
func (l Layout) Clone() Layout {
	out := Layout{
		Components: make(map[string]*Component, len(l.Components)),
		Containers: make(map[string]*Container, len(l.Containers)),
		Order:      make(map[string][]string, len(l.Order)),
		Hidden:     cloneRaw(l.Hidden),
	}
	for id, c := range l.Components {
		out.Components[id] = c.Clone()
	}
	for id, c := range l.Containers {
		out.Containers[id] = c.Clone()
	}
	for id, children := range l.Order {
		out.Order[id] = append([]string(nil), children...)
	}
	out.CustomDataProperties = cloneRawMap(l.CustomDataProperties)
	out.CustomRootProperties = cloneRawMap(l.CustomRootProperties)
	return out
}

// Clone returns a deep copy of the component.
func (c *Component) Clone() *Component {
	if c == nil {
		return nil
	}
	out := *c
	out.Bindings = cloneBindings(c.Bindings)
	out.TextResourceBindings = cloneStringMap(c.TextResourceBindings)
	out.Mapping = cloneStringMap(c.Mapping)
	out.PageIndex = cloneIntPtr(c.PageIndex)
	out.Extra = cloneRawMap(c.Extra)
	return &out
}

// Clone returns a deep copy of the container.
func (c *Container) Clone() *Container {
	if c == nil {
		return nil
	}
	out := *c
	out.Bindings = cloneBindings(c.Bindings)
	out.TextResourceBindings = cloneStringMap(c.TextResourceBindings)
	out.PageIndex = cloneIntPtr(c.PageIndex)
	out.Extra = cloneRawMap(c.Extra)
	if c.Edit != nil {
		edit := *c.Edit
		edit.Filter = append([]RowFilter(nil), c.Edit.Filter...)
		out.Edit = &edit
	}
	return &out
}

func cloneBindings(in map[string]Binding) map[string]Binding {
	if in == nil {
		return nil
	}
	out := make(map[string]Binding, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneRawMap(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = cloneRaw(v)
	}
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if in == nil {
		return nil
	}
	return append(json.RawMessage(nil), in...)
}

func cloneIntPtr(in *int) *int {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}
