package transport

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/askelund/forma/internal/databinding"
	"github.com/askelund/forma/internal/layout"
	"github.com/askelund/forma/internal/wire"
	"github.com/askelund/forma/model"
)

// addItemRequest creates a component or container on the page. A nil index
// appends; parentId defaults to the page root.
type addItemRequest struct {
	ComponentType string `json:"componentType"`
	ID            string `json:"id,omitempty"`
	ParentID      string `json:"parentId,omitempty"`
	Index         *int   `json:"index,omitempty"`
}

// updateContainerRequest replaces a container's own properties. A changed id
// renames the container and is propagated to the backend on the next save.
type updateContainerRequest struct {
	ID                   string                          `json:"id"`
	MaxCount             int                             `json:"maxCount,omitempty"`
	Edit                 *layout.GroupEdit               `json:"edit,omitempty"`
	DataModelBindings    map[string]wire.ExternalBinding `json:"dataModelBindings,omitempty"`
	TextResourceBindings map[string]string               `json:"textResourceBindings,omitempty"`
}

// moveItemRequest moves an item to a new parent and position.
type moveItemRequest struct {
	ID          string `json:"id"`
	NewParentID string `json:"newParentId,omitempty"`
	Index       int    `json:"index"`
}

// addItem inserts a default-valued item of the requested type.
func (h *handlers) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.ComponentType == "" {
		WriteError(w, model.NewBadRequestError("componentType is required"))
		return
	}
	t := layout.ComponentType(req.ComponentType)

	parentID := req.ParentID
	if parentID == "" {
		parentID = layout.BaseContainerID
	}
	position := -1
	if req.Index != nil {
		position = *req.Index
	}

	s, err := h.session(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	l := s.Layout()

	if parentID != layout.BaseContainerID && !l.IsContainer(parentID) {
		WriteError(w, model.NewUnknownReferenceError(parentID))
		return
	}
	if !l.IsValidChildType(parentID, t) {
		WriteError(w, model.NewBadRequestError("type "+req.ComponentType+" is not allowed inside "+parentID))
		return
	}

	id := req.ID
	if id == "" {
		id = generateItemID(t)
	}
	if l.IDExists(id) {
		WriteError(w, model.NewConflictError("id "+id+" already exists on this page"))
		return
	}

	s.Apply(func(l layout.Layout) layout.Layout {
		return layout.AddItemOfType(l, t, id, parentID, position)
	})
	h.recordMutation("add")
	WriteJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// removeItem deletes a component, or a container together with its subtree.
func (h *handlers) removeItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "componentId")
	s, err := h.session(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	l := s.Layout()

	_, isComponent := l.Components[id]
	switch {
	case l.IsContainer(id):
		s.Apply(func(l layout.Layout) layout.Layout {
			return layout.RemoveContainer(l, id)
		})
		h.recordMutation("remove_container")
	case isComponent:
		s.Apply(func(l layout.Layout) layout.Layout {
			return layout.RemoveComponent(l, id)
		})
		h.recordMutation("remove")
	default:
		WriteNotFound(w, "item "+id+" not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// updateContainer replaces a container's properties, renaming it when the
// payload carries a different id.
func (h *handlers) updateContainer(w http.ResponseWriter, r *http.Request) {
	currentID := chi.URLParam(r, "containerId")
	var req updateContainerRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	s, err := h.session(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	l := s.Layout()

	existing, ok := l.Containers[currentID]
	if !ok {
		WriteNotFound(w, "container "+currentID+" not found")
		return
	}

	updated := existing.Clone()
	updated.ID = currentID
	if req.ID != "" {
		updated.ID = req.ID
	}
	updated.MaxCount = req.MaxCount
	updated.Edit = req.Edit
	if req.DataModelBindings != nil {
		updated.Bindings = h.internalBindings(refFrom(r).LayoutSet, req.DataModelBindings)
	}
	if req.TextResourceBindings != nil {
		updated.TextResourceBindings = req.TextResourceBindings
	}

	if updated.ID != currentID {
		if l.IDExists(updated.ID) {
			WriteError(w, model.NewConflictError("id "+updated.ID+" already exists on this page"))
			return
		}
		s.ApplyRename(currentID, updated.ID, func(l layout.Layout) layout.Layout {
			return layout.UpdateContainer(l, *updated, currentID)
		})
	} else {
		s.Apply(func(l layout.Layout) layout.Layout {
			return layout.UpdateContainer(l, *updated, currentID)
		})
	}
	h.recordMutation("update_container")
	WriteJSON(w, http.StatusOK, map[string]string{"id": updated.ID})
}

// moveItem detaches an item and reinserts it under a new parent.
func (h *handlers) moveItem(w http.ResponseWriter, r *http.Request) {
	var req moveItemRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.ID == "" {
		WriteError(w, model.NewBadRequestError("id is required"))
		return
	}
	newParentID := req.NewParentID
	if newParentID == "" {
		newParentID = layout.BaseContainerID
	}

	s, err := h.session(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	l := s.Layout()

	item, ok := l.Item(req.ID)
	if !ok {
		WriteError(w, model.NewUnknownReferenceError(req.ID))
		return
	}
	if newParentID != layout.BaseContainerID && !l.IsContainer(newParentID) {
		WriteError(w, model.NewUnknownReferenceError(newParentID))
		return
	}
	var itemType layout.ComponentType
	switch it := item.(type) {
	case *layout.Component:
		itemType = it.Type
	case *layout.Container:
		itemType = it.Type
	}
	if !l.IsValidChildType(newParentID, itemType) {
		WriteError(w, model.NewBadRequestError("type "+string(itemType)+" is not allowed inside "+newParentID))
		return
	}

	s.Apply(func(l layout.Layout) layout.Layout {
		return layout.MoveItem(l, req.ID, newParentID, req.Index)
	})
	h.recordMutation("move")
	w.WriteHeader(http.StatusNoContent)
}

// internalBindings converts wire-form bindings to internal form, applying the
// set's default data type to bare-string bindings.
func (h *handlers) internalBindings(setName string, in map[string]wire.ExternalBinding) map[string]layout.Binding {
	dataType := h.defaultDataType(setName)
	out := make(map[string]layout.Binding, len(in))
	for key, b := range in {
		out[key] = databinding.Explicit(dataType, layout.Binding{Field: b.Field, DataType: b.DataType})
	}
	return out
}

// generateItemID builds a fresh id in the "<Type>-<suffix>" convention the
// designer uses for new items.
func generateItemID(t layout.ComponentType) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return string(t) + "-" + suffix
}
