package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// layoutSetSummary is the list-endpoint view of one layout set.
type layoutSetSummary struct {
	Name            string   `json:"name"`
	DefaultDataType string   `json:"defaultDataType"`
	Pages           []string `json:"pages"`
	Checksum        string   `json:"checksum"`
}

func (h *handlers) listLayoutSets(w http.ResponseWriter, r *http.Request) {
	names := h.registry.SetNames()
	sets := make([]layoutSetSummary, 0, len(names))
	for _, name := range names {
		set, ok := h.registry.Set(name)
		if !ok {
			continue
		}
		sets = append(sets, layoutSetSummary{
			Name:            set.Name,
			DefaultDataType: set.DefaultDataType,
			Pages:           set.PageOrder,
			Checksum:        set.Checksum,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"sets":     sets,
		"checksum": h.registry.Checksum(),
	})
}

func (h *handlers) getLayoutSet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "set")
	set, ok := h.registry.Set(name)
	if !ok {
		WriteNotFound(w, "layout set "+name+" not found")
		return
	}
	WriteJSON(w, http.StatusOK, layoutSetSummary{
		Name:            set.Name,
		DefaultDataType: set.DefaultDataType,
		Pages:           set.PageOrder,
		Checksum:        set.Checksum,
	})
}

func (h *handlers) duplicateReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "set")
	report, ok := h.registry.DuplicateReport(name)
	if !ok {
		WriteNotFound(w, "layout set "+name+" not found")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"set":        name,
		"duplicates": report,
	})
}
