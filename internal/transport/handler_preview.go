package transport

import (
	"net/http"

	"github.com/askelund/forma/internal/repeating"
	"github.com/askelund/forma/internal/validate"
	"github.com/askelund/forma/model"
)

// previewGroupsRequest derives repeating-group state from flat form data.
type previewGroupsRequest struct {
	FormData map[string]string `json:"formData"`
}

// previewRowsRequest expands one repeating group into its per-row component
// lists, the way the runtime renders it.
type previewRowsRequest struct {
	GroupID       string                   `json:"groupId"`
	FormData      map[string]string        `json:"formData"`
	TextResources []repeating.TextResource `json:"textResources,omitempty"`
	HiddenFields  []string                 `json:"hiddenFields,omitempty"`
}

// mapValidationsRequest files data-model validation messages onto components.
type mapValidationsRequest struct {
	Results         validate.Results `json:"results,omitempty"`
	DataBindingName string           `json:"dataBindingName"`
	Message         string           `json:"message"`
}

// removeRowValidationsRequest drops and renumbers validation entries after a
// repeating-group row is deleted.
type removeRowValidationsRequest struct {
	GroupID  string            `json:"groupId"`
	Index    int               `json:"index"`
	FormData map[string]string `json:"formData"`
	Results  validate.Results  `json:"results"`
	ShiftUp  bool              `json:"shiftUp"`
}

// previewGroups returns the repeating-group state map for the page under the
// given form data.
func (h *handlers) previewGroups(w http.ResponseWriter, r *http.Request) {
	var req previewGroupsRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	s, err := h.session(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	groups := repeating.Groups(s.Layout(), req.FormData)
	WriteJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

// previewRows materializes the expanded per-row components of one repeating
// group.
func (h *handlers) previewRows(w http.ResponseWriter, r *http.Request) {
	var req previewRowsRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.GroupID == "" {
		WriteError(w, model.NewBadRequestError("groupId is required"))
		return
	}
	s, err := h.session(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	l := s.Layout()

	container, ok := l.Containers[req.GroupID]
	if !ok {
		WriteError(w, model.NewUnknownReferenceError(req.GroupID))
		return
	}

	groups := repeating.Groups(l, req.FormData)
	state := groups[req.GroupID]
	templates := repeating.FindChildren(l, req.GroupID, nil)
	rows := repeating.ExpandRows(container, templates, state.Count, req.TextResources, req.HiddenFields)

	if h.metrics != nil {
		h.metrics.RecordGroupExpansion(len(rows))
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"groupId": req.GroupID,
		"count":   state.Count,
		"rows":    rows,
	})
}

// mapValidations files a backend validation message onto the component whose
// binding matches the message's data-model path.
func (h *handlers) mapValidations(w http.ResponseWriter, r *http.Request) {
	var req mapValidationsRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.DataBindingName == "" {
		WriteError(w, model.NewBadRequestError("dataBindingName is required"))
		return
	}
	s, err := h.session(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	results := req.Results
	if results == nil {
		results = validate.Results{}
	}
	page := refFrom(r).Page
	results.MapToComponentValidations(page, s.Layout(), req.DataBindingName, req.Message)

	if h.metrics != nil {
		status := "mapped"
		if len(results[page]) == 0 {
			status = "unmatched"
		}
		h.metrics.RecordValidationMapping(status)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

// removeRowValidations removes a repeating-group row from both the UI state
// and the validation results, renumbering subsequent rows.
func (h *handlers) removeRowValidations(w http.ResponseWriter, r *http.Request) {
	var req removeRowValidationsRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.GroupID == "" {
		WriteError(w, model.NewBadRequestError("groupId is required"))
		return
	}
	s, err := h.session(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	l := s.Layout()

	if !l.IsContainer(req.GroupID) {
		WriteError(w, model.NewUnknownReferenceError(req.GroupID))
		return
	}

	groups := repeating.Groups(l, req.FormData)
	results := req.Results
	if results == nil {
		results = validate.Results{}
	}
	page := refFrom(r).Page
	results = validate.RemoveGroupValidationsByIndex(req.GroupID, req.Index, page, l, groups, results)
	groups = repeating.RemoveRowCascade(l, groups, req.GroupID, req.Index, req.ShiftUp)

	WriteJSON(w, http.StatusOK, map[string]any{
		"groups":  groups,
		"results": results,
	})
}
