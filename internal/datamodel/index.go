// Package datamodel loads and indexes data-model schemas, flattening each
// model's object tree into bindable field records. Components reference these
// fields through dot-separated binding names; the databinding package decides
// which fields are assignable where.
package datamodel

import (
	"context"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// Unbounded is the maxOccurs value of an array field without an explicit
// item cap.
const Unbounded = 9999

// XSDValueType is the XSD-derived value type of a leaf field.
type XSDValueType string

const (
	XSDString   XSDValueType = "String"
	XSDDateTime XSDValueType = "DateTime"
	XSDInteger  XSDValueType = "Integer"
	XSDDecimal  XSDValueType = "Decimal"
	XSDBoolean  XSDValueType = "Boolean"
)

// Field is one bindable node of a flattened data model.
type Field struct {
	BindingName  string       `json:"dataBindingName"`
	MinOccurs    int          `json:"minOccurs"`
	MaxOccurs    int          `json:"maxOccurs"`
	XSDValueType XSDValueType `json:"xsdValueType,omitempty"`
}

// Source describes one data-model schema document to load. RootSchema names
// the component schema to flatten; empty means a schema named after the data
// type.
type Source struct {
	DataType   string `yaml:"dataType"`
	SpecPath   string `yaml:"specPath"`
	RootSchema string `yaml:"rootSchema"`
}

// Index is an in-memory index of flattened data-model fields keyed by data
// type name.
type Index struct {
	fields map[string][]Field
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{fields: make(map[string][]Field)}
}

// Load parses the schema documents and flattens each root schema into the
// index. Loading the same data type twice replaces the earlier entry.
func (idx *Index) Load(sources []Source) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	for _, src := range sources {
		doc, err := loader.LoadFromFile(src.SpecPath)
		if err != nil {
			return fmt.Errorf("datamodel: loading %s (%s): %w", src.DataType, src.SpecPath, err)
		}
		if err := doc.Validate(context.Background()); err != nil {
			return fmt.Errorf("datamodel: validating %s: %w", src.DataType, err)
		}

		rootName := src.RootSchema
		if rootName == "" {
			rootName = src.DataType
		}
		if doc.Components == nil || doc.Components.Schemas[rootName] == nil {
			return fmt.Errorf("datamodel: %s: root schema %q not found", src.DataType, rootName)
		}
		root := doc.Components.Schemas[rootName].Value

		var fields []Field
		flattenSchema(root, "", 1, 1, &fields)
		sort.Slice(fields, func(i, j int) bool {
			return fields[i].BindingName < fields[j].BindingName
		})
		idx.fields[src.DataType] = fields
	}
	return nil
}

// flattenSchema walks an object schema depth-first, emitting one Field per
// named node. Array nodes recurse into their item schema under the same
// binding name, so a repeating group and its row fields share the path prefix.
func flattenSchema(s *openapi3.Schema, prefix string, minOccurs, maxOccurs int, out *[]Field) {
	if s == nil {
		return
	}

	if s.Type != nil && s.Type.Is(openapi3.TypeArray) {
		max := Unbounded
		if s.MaxItems != nil {
			max = int(*s.MaxItems)
		}
		var item *openapi3.Schema
		if s.Items != nil {
			item = s.Items.Value
		}
		if prefix != "" {
			*out = append(*out, Field{BindingName: prefix, MinOccurs: minOccurs, MaxOccurs: max})
		}
		flattenObject(item, prefix, out)
		return
	}

	if s.Type != nil && s.Type.Is(openapi3.TypeObject) {
		if prefix != "" {
			*out = append(*out, Field{BindingName: prefix, MinOccurs: minOccurs, MaxOccurs: maxOccurs})
		}
		flattenObject(s, prefix, out)
		return
	}

	if prefix == "" {
		return
	}
	*out = append(*out, Field{
		BindingName:  prefix,
		MinOccurs:    minOccurs,
		MaxOccurs:    maxOccurs,
		XSDValueType: valueType(s),
	})
}

func flattenObject(s *openapi3.Schema, prefix string, out *[]Field) {
	if s == nil {
		return
	}
	required := map[string]bool{}
	for _, name := range s.Required {
		required[name] = true
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ref := s.Properties[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		min := 0
		if required[name] {
			min = 1
		}
		flattenSchema(ref.Value, path, min, 1, out)
	}
}

func valueType(s *openapi3.Schema) XSDValueType {
	if s.Type == nil {
		return XSDString
	}
	switch {
	case s.Type.Is(openapi3.TypeString):
		if s.Format == "date-time" || s.Format == "date" {
			return XSDDateTime
		}
		return XSDString
	case s.Type.Is(openapi3.TypeInteger):
		return XSDInteger
	case s.Type.Is(openapi3.TypeNumber):
		return XSDDecimal
	case s.Type.Is(openapi3.TypeBoolean):
		return XSDBoolean
	default:
		return XSDString
	}
}

// Fields returns the flattened fields of a data type, sorted by binding name.
func (idx *Index) Fields(dataType string) ([]Field, bool) {
	fields, ok := idx.fields[dataType]
	if !ok {
		return nil, false
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return out, true
}

// DataTypes returns every loaded data type name, sorted.
func (idx *Index) DataTypes() []string {
	names := make([]string, 0, len(idx.fields))
	for name := range idx.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Put stores a pre-flattened field list, used by tests and by callers that
// build models programmatically.
func (idx *Index) Put(dataType string, fields []Field) {
	sorted := make([]Field, len(fields))
	copy(sorted, fields)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].BindingName < sorted[j].BindingName
	})
	idx.fields[dataType] = sorted
}
