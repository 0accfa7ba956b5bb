package layoutset

import (
	"fmt"

	"github.com/askelund/forma/internal/databinding"
	"github.com/askelund/forma/internal/datamodel"
	"github.com/askelund/forma/internal/layout"
)

// VError describes a single validation error in a loaded layout set.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator checks loaded layout sets structurally, referentially, and against
// the data-model index.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all sets. The index may be nil to skip data-model checks.
func (v *Validator) Validate(sets []LayoutSet, index *datamodel.Index) []VError {
	var errs []VError
	for _, set := range sets {
		errs = append(errs, v.validateSet(set, index)...)
	}
	return errs
}

func (v *Validator) validateSet(set LayoutSet, index *datamodel.Index) []VError {
	var errs []VError
	prefix := set.Name

	for _, pageName := range set.PageOrder {
		page, ok := set.Pages[pageName]
		if !ok {
			errs = append(errs, VError{
				Path:    prefix + ".pages",
				Code:    "REF_NOT_FOUND",
				Message: fmt.Sprintf("ordered page %q has no layout file", pageName),
			})
			continue
		}
		errs = append(errs, v.validatePage(prefix+"."+pageName, page, index)...)
	}

	for pageName, ids := range layout.PagesWithDuplicateIDs(set.PageOrder, set.Pages) {
		for _, id := range ids {
			errs = append(errs, VError{
				Path:    prefix + "." + pageName,
				Code:    "DUPLICATE_ID",
				Message: fmt.Sprintf("component id %q is used on more than one page", id),
			})
		}
	}

	return errs
}

func (v *Validator) validatePage(prefix string, page layout.Layout, index *datamodel.Index) []VError {
	var errs []VError

	for _, id := range page.Descendants(layout.BaseContainerID) {
		if _, ok := page.Item(id); !ok {
			errs = append(errs, VError{
				Path:    prefix + ".order",
				Code:    "UNKNOWN_REFERENCE",
				Message: fmt.Sprintf("order references %q but no component or container has that id", id),
			})
		}
	}

	for _, id := range page.DuplicateIDs() {
		errs = append(errs, VError{
			Path:    prefix + ".order",
			Code:    "DUPLICATE_ID",
			Message: fmt.Sprintf("id %q appears more than once", id),
		})
	}

	for id, c := range page.Containers {
		if id == layout.BaseContainerID {
			continue
		}
		cp := prefix + "." + id
		if c.MaxCount < 0 {
			errs = append(errs, VError{Path: cp + ".maxCount", Code: "RANGE", Message: "maxCount must not be negative"})
		}
		if c.IsRepeating() && c.GroupBinding() == "" {
			errs = append(errs, VError{Path: cp + ".dataModelBindings", Code: "REQUIRED", Message: "repeating group requires a group binding"})
		}
		for _, childID := range page.ChildIDs(id) {
			child, ok := page.Item(childID)
			if !ok {
				continue
			}
			var childType layout.ComponentType
			switch it := child.(type) {
			case *layout.Component:
				childType = it.Type
			case *layout.Container:
				childType = it.Type
			}
			if !page.IsValidChildType(id, childType) {
				errs = append(errs, VError{
					Path:    cp + ".children",
					Code:    "INVALID_CHILD",
					Message: fmt.Sprintf("type %q is not allowed inside %q", childType, c.Type),
				})
			}
		}
		errs = append(errs, v.validateBindings(cp, c.Bindings, index)...)
	}

	for id, c := range page.Components {
		errs = append(errs, v.validateBindings(prefix+"."+id, c.Bindings, index)...)
	}

	return errs
}

// validateBindings resolves each explicit binding against the data-model
// index, when one is available.
func (v *Validator) validateBindings(prefix string, bindings map[string]layout.Binding, index *datamodel.Index) []VError {
	if index == nil {
		return nil
	}
	var errs []VError
	for key, b := range bindings {
		if b.Field == "" {
			continue
		}
		bp := fmt.Sprintf("%s.dataModelBindings.%s", prefix, key)
		if !databinding.ValidateSelectedDataModel(b.DataType, index.DataTypes()) {
			errs = append(errs, VError{
				Path:    bp,
				Code:    "DATATYPE_NOT_FOUND",
				Message: fmt.Sprintf("data type %q is not loaded", b.DataType),
			})
			continue
		}
		if b.DataType == "" {
			continue
		}
		fields, _ := index.Fields(b.DataType)
		if _, ok := databinding.MaxOccursFor(fields, b.Field); !ok {
			errs = append(errs, VError{
				Path:    bp,
				Code:    "FIELD_NOT_FOUND",
				Message: fmt.Sprintf("field %q not found in data type %q", b.Field, b.DataType),
			})
		}
	}
	return errs
}
