package transport

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/askelund/forma/internal/rule"
)

type invokeRuleRequest struct {
	Inputs map[string]string `json:"inputs"`
}

// listRules returns the rules the configured provider can evaluate.
func (h *handlers) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.ListRules(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	if rules == nil {
		rules = []rule.Descriptor{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// invokeRule evaluates one rule over the posted form-data values.
func (h *handlers) invokeRule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "rule")

	var req invokeRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	outputs, err := h.rules.Invoke(r.Context(), name, req.Inputs)
	if err != nil {
		var unknown *rule.UnknownRuleError
		if errors.As(err, &unknown) {
			WriteNotFound(w, "rule "+name+" not found")
			return
		}
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"outputs": outputs})
}
