// Package databinding decides which data-model fields are assignable to which
// component bindings and derives binding metadata (required, cardinality cap,
// date-time typing) from the flattened model.
package databinding

import (
	"github.com/askelund/forma/internal/datamodel"
	"github.com/askelund/forma/internal/layout"
)

// Explicit normalizes a binding into explicit form, filling in the default
// data type when none is set.
func Explicit(defaultDataType string, b layout.Binding) layout.Binding {
	if b.DataType == "" {
		b.DataType = defaultDataType
	}
	return b
}

// FieldFilter returns the predicate selecting the data-model fields assignable
// to the given component type and binding key. A field with an empty binding
// name is never assignable.
func FieldFilter(componentType layout.ComponentType, bindingKey string) func(datamodel.Field) bool {
	isList := bindingKey == layout.BindingKeyList
	isGroup := bindingKey == layout.BindingKeyGroup
	switch {
	case isGroup:
		// Repeating groups bind to repeating nodes.
		return func(f datamodel.Field) bool {
			return f.BindingName != "" && f.MaxOccurs > 1
		}
	case isList:
		// Upload lists bind to repeating string nodes.
		return func(f datamodel.Field) bool {
			return f.BindingName != "" && f.MaxOccurs > 1 && f.XSDValueType == datamodel.XSDString
		}
	default:
		return func(f datamodel.Field) bool {
			return f.BindingName != "" && f.MaxOccurs <= 1
		}
	}
}

// AssignableFields filters the model's fields through FieldFilter.
func AssignableFields(fields []datamodel.Field, componentType layout.ComponentType, bindingKey string) []datamodel.Field {
	keep := FieldFilter(componentType, bindingKey)
	out := make([]datamodel.Field, 0, len(fields))
	for _, f := range fields {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

func fieldByBindingName(fields []datamodel.Field, bindingName string) (datamodel.Field, bool) {
	for _, f := range fields {
		if f.BindingName == bindingName {
			return f, true
		}
	}
	return datamodel.Field{}, false
}

// MinOccursFor returns the bound field's minOccurs, or false when the binding
// resolves to no field.
func MinOccursFor(fields []datamodel.Field, bindingName string) (int, bool) {
	f, ok := fieldByBindingName(fields, bindingName)
	if !ok {
		return 0, false
	}
	return f.MinOccurs, true
}

// MaxOccursFor returns the bound field's maxOccurs, or false when the binding
// resolves to no field.
func MaxOccursFor(fields []datamodel.Field, bindingName string) (int, bool) {
	f, ok := fieldByBindingName(fields, bindingName)
	if !ok {
		return 0, false
	}
	return f.MaxOccurs, true
}

// Required reports whether the bound field is mandatory in the model.
func Required(fields []datamodel.Field, bindingName string) bool {
	min, ok := MinOccursFor(fields, bindingName)
	return ok && min > 0
}

// IsDateTimeField reports whether the bound field's XSD value type is exactly
// DateTime. Only date pickers consult this; an unresolved binding is simply
// not a date-time field.
func IsDateTimeField(fields []datamodel.Field, bindingName string) bool {
	f, ok := fieldByBindingName(fields, bindingName)
	return ok && f.XSDValueType == datamodel.XSDDateTime
}

// ValidateSelectedDataModel reports whether the selected data model is usable:
// an empty selection is fine, and an unknown one signals the caller to fall
// back rather than fail.
func ValidateSelectedDataModel(selected string, available []string) bool {
	if selected == "" {
		return true
	}
	for _, name := range available {
		if name == selected {
			return true
		}
	}
	return false
}
