package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/askelund/forma/internal/databinding"
	"github.com/askelund/forma/internal/layout"
)

// listDataTypes returns the data types the field index knows about.
func (h *handlers) listDataTypes(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"dataTypes": h.index.DataTypes()})
}

// listFields returns the bindable fields of a data type, optionally narrowed
// to the fields a given component type and binding key may bind to.
func (h *handlers) listFields(w http.ResponseWriter, r *http.Request) {
	dataType := chi.URLParam(r, "dataType")
	fields, ok := h.index.Fields(dataType)
	if !ok {
		WriteNotFound(w, "data type "+dataType+" not found")
		return
	}

	componentType := r.URL.Query().Get("componentType")
	bindingKey := r.URL.Query().Get("bindingKey")
	if componentType != "" {
		fields = databinding.AssignableFields(fields, layout.ComponentType(componentType), bindingKey)
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"dataType": dataType,
		"fields":   fields,
	})
}
