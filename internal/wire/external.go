// Package wire implements the external (persisted) JSON layout format and its
// bidirectional conversion to the internal layout representation. The external
// form is a flat component array where containment is expressed by container
// components carrying a children id list; multi-page containers prefix each
// child id with "<pageIndex>:". Unknown keys are passed through untouched at
// every level so that properties the engine does not interpret survive a
// load/save cycle.
package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/askelund/forma/internal/layout"
)

// ExternalLayout is the persisted wire envelope:
// { $schema?, data: { layout: [...], hidden? }, <custom root keys> }.
type ExternalLayout struct {
	Schema string
	Data   *ExternalData
	// RootExtra holds every top-level key other than $schema and data.
	RootExtra map[string]json.RawMessage
}

// ExternalData is the data object of the envelope.
type ExternalData struct {
	Layout []ExternalComponent
	Hidden json.RawMessage
	// Extra holds every data-level key other than layout and hidden.
	Extra map[string]json.RawMessage
}

// ExternalComponent is one entry of the flat layout array. Known keys are
// typed; everything else rides along in Extra.
type ExternalComponent struct {
	ID                   string
	Type                 layout.ComponentType
	DataModelBindings    map[string]ExternalBinding
	TextResourceBindings map[string]string
	Mapping              map[string]string
	Children             []string
	MaxCount             *int
	Edit                 *layout.GroupEdit
	Extra                map[string]json.RawMessage
}

// ExternalBinding is a data-model binding on the wire. Historically these were
// bare path strings; the explicit {field, dataType} object form supersedes
// that, and marshalling always emits the explicit form.
type ExternalBinding struct {
	Field    string
	DataType string
	// implicit records that the binding was read as a bare string, so the
	// converter knows to apply the default data type.
	implicit bool
}

// Implicit reports whether the binding was read in bare-string form.
func (b ExternalBinding) Implicit() bool { return b.implicit }

// ImplicitBinding builds a bare-string binding, used by tests and by callers
// constructing legacy-form layouts.
func ImplicitBinding(field string) ExternalBinding {
	return ExternalBinding{Field: field, implicit: true}
}

func (b ExternalBinding) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Field    string `json:"field"`
		DataType string `json:"dataType"`
	}{b.Field, b.DataType})
}

func (b *ExternalBinding) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = ExternalBinding{Field: s, implicit: true}
		return nil
	}
	var obj struct {
		Field    string `json:"field"`
		DataType string `json:"dataType"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("data model binding is neither string nor object: %w", err)
	}
	*b = ExternalBinding{Field: obj.Field, DataType: obj.DataType}
	return nil
}

// --- ExternalComponent JSON ---

// componentKnown mirrors ExternalComponent's typed fields for JSON purposes.
type componentKnown struct {
	ID                   string                      `json:"id"`
	Type                 layout.ComponentType        `json:"type"`
	DataModelBindings    map[string]ExternalBinding  `json:"dataModelBindings,omitempty"`
	TextResourceBindings map[string]string           `json:"textResourceBindings,omitempty"`
	Mapping              map[string]string           `json:"mapping,omitempty"`
	Children             []string                    `json:"children,omitempty"`
	MaxCount             *int                        `json:"maxCount,omitempty"`
	Edit                 *layout.GroupEdit           `json:"edit,omitempty"`
}

var componentKnownKeys = []string{
	"id", "type", "dataModelBindings", "textResourceBindings",
	"mapping", "children", "maxCount", "edit",
}

func (c ExternalComponent) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(componentKnown{
		ID:                   c.ID,
		Type:                 c.Type,
		DataModelBindings:    c.DataModelBindings,
		TextResourceBindings: c.TextResourceBindings,
		Mapping:              c.Mapping,
		Children:             c.Children,
		MaxCount:             c.MaxCount,
		Edit:                 c.Edit,
	})
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return known, nil
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range c.Extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (c *ExternalComponent) UnmarshalJSON(data []byte) error {
	var known componentKnown
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range componentKnownKeys {
		delete(raw, k)
	}
	*c = ExternalComponent{
		ID:                   known.ID,
		Type:                 known.Type,
		DataModelBindings:    known.DataModelBindings,
		TextResourceBindings: known.TextResourceBindings,
		Mapping:              known.Mapping,
		Children:             known.Children,
		MaxCount:             known.MaxCount,
		Edit:                 known.Edit,
	}
	if len(raw) > 0 {
		c.Extra = raw
	}
	return nil
}

// --- envelope JSON ---

func (l ExternalLayout) MarshalJSON() ([]byte, error) {
	out := map[string]json.RawMessage{}
	for k, v := range l.RootExtra {
		out[k] = v
	}
	if l.Schema != "" {
		s, err := json.Marshal(l.Schema)
		if err != nil {
			return nil, err
		}
		out["$schema"] = s
	}
	if l.Data != nil {
		d, err := json.Marshal(l.Data)
		if err != nil {
			return nil, err
		}
		out["data"] = d
	}
	return json.Marshal(out)
}

func (l *ExternalLayout) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = ExternalLayout{}
	if s, ok := raw["$schema"]; ok {
		if err := json.Unmarshal(s, &l.Schema); err != nil {
			return err
		}
		delete(raw, "$schema")
	}
	if d, ok := raw["data"]; ok {
		l.Data = &ExternalData{}
		if err := json.Unmarshal(d, l.Data); err != nil {
			return err
		}
		delete(raw, "data")
	}
	if len(raw) > 0 {
		l.RootExtra = raw
	}
	return nil
}

func (d ExternalData) MarshalJSON() ([]byte, error) {
	out := map[string]json.RawMessage{}
	for k, v := range d.Extra {
		out[k] = v
	}
	comps, err := json.Marshal(d.Layout)
	if err != nil {
		return nil, err
	}
	out["layout"] = comps
	if d.Hidden != nil {
		out["hidden"] = d.Hidden
	}
	return json.Marshal(out)
}

func (d *ExternalData) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = ExternalData{}
	if c, ok := raw["layout"]; ok {
		if err := json.Unmarshal(c, &d.Layout); err != nil {
			return err
		}
		delete(raw, "layout")
	}
	if h, ok := raw["hidden"]; ok {
		d.Hidden = h
		delete(raw, "hidden")
	}
	if len(raw) > 0 {
		d.Extra = raw
	}
	return nil
}

// --- page-prefixed child references ---

// ParseChildRef splits a child reference into its real id and optional page
// index. "1:address" yields ("address", 1, true); a ref without a numeric
// prefix yields the ref itself and no page index.
func ParseChildRef(ref string) (id string, pageIndex int, hasPage bool) {
	prefix, rest, found := strings.Cut(ref, ":")
	if !found {
		return ref, 0, false
	}
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return ref, 0, false
	}
	return rest, n, true
}

// FormatChildRef renders a child reference, re-adding the page prefix when a
// page index is present.
func FormatChildRef(id string, pageIndex *int) string {
	if pageIndex == nil {
		return id
	}
	return strconv.Itoa(*pageIndex) + ":" + id
}
