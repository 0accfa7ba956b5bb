package transport

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/askelund/forma/internal/store"
	"github.com/askelund/forma/internal/wire"
	"github.com/askelund/forma/model"
)

// pageResponse is the envelope for a single layout page.
type pageResponse struct {
	Page    string               `json:"page"`
	Version int                  `json:"version"`
	Layout  *wire.ExternalLayout `json:"layout"`
}

// saveResponse acknowledges a persisted page.
type saveResponse struct {
	Page    string    `json:"page"`
	Version int       `json:"version"`
	SavedAt time.Time `json:"savedAt"`
}

// putPageRequest is a whole-page save: the layout in external form, the
// caller's last-seen version (0 creates the page) and any renames performed
// since that version.
type putPageRequest struct {
	Layout             *wire.ExternalLayout `json:"layout"`
	Version            int                  `json:"version"`
	ComponentIDsChange []store.IDChange     `json:"componentIdsChange,omitempty"`
}

// getPage returns the page as the editor currently sees it: the live session's
// layout when edits are in flight, otherwise the stored or on-disk content.
func (h *handlers) getPage(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	ext := wire.FromInternal(s.Layout())
	if h.metrics != nil {
		h.metrics.RecordConversion("to_external")
	}
	WriteJSON(w, http.StatusOK, pageResponse{
		Page:    refFrom(r).Page,
		Version: s.Version(),
		Layout:  ext,
	})
}

// putPage replaces the whole page in one optimistic save, bypassing the
// debounced session. The session, if any, is discarded afterwards so the next
// read reloads the stored content.
func (h *handlers) putPage(w http.ResponseWriter, r *http.Request) {
	ref := refFrom(r)
	var req putPageRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.Layout == nil {
		WriteError(w, model.NewBadRequestError("layout is required"))
		return
	}

	start := time.Now()
	rec, err := h.layouts.Save(r.Context(), ref, store.SaveRequest{
		Layout:             req.Layout,
		Version:            req.Version,
		ComponentIDsChange: req.ComponentIDsChange,
		SavedBy:            savedBy(r),
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordLayoutSave(h.cfg.Storage.Driver, "error", time.Since(start))
			if isConflict(err) {
				h.metrics.RecordSaveConflict()
			}
		}
		WriteError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordLayoutSave(h.cfg.Storage.Driver, "ok", time.Since(start))
	}

	if err := h.sessions.Discard(r.Context(), ref); err != nil {
		h.log.Warn("discarding session after save failed",
			zap.String("layout", ref.Key()),
			zap.Error(err))
	}

	status := http.StatusOK
	if req.Version == 0 {
		status = http.StatusCreated
	}
	WriteJSON(w, status, saveResponse{Page: ref.Page, Version: rec.Version, SavedAt: rec.UpdatedAt})
}

// deletePage removes the page from the store and drops any live session. The
// session is discarded first; a flush error is irrelevant because the saved
// content is deleted right after.
func (h *handlers) deletePage(w http.ResponseWriter, r *http.Request) {
	ref := refFrom(r)
	_ = h.sessions.Discard(r.Context(), ref)
	if err := h.layouts.Delete(r.Context(), ref); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// flushPage persists any pending debounced edits immediately. Called when the
// editor navigates to another page.
func (h *handlers) flushPage(w http.ResponseWriter, r *http.Request) {
	ref := refFrom(r)
	if s, ok := h.sessions.Peek(ref); ok {
		if err := s.Flush(r.Context()); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, saveResponse{Page: ref.Page, Version: s.Version(), SavedAt: time.Now().UTC()})
		return
	}
	rec, err := h.layouts.Get(r.Context(), ref)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, saveResponse{Page: ref.Page, Version: rec.Version, SavedAt: rec.UpdatedAt})
}
